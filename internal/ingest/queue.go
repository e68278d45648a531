package ingest

import "sync/atomic"

// DefaultSize je výchozí kapacita fronty.
const DefaultSize = 1024

// Queue je omezená FIFO fronta mezi MQTT listenerem (producent) a procesorem (konzument).
//
// Interně je to bufferovaný kanál, takže žádný další zámek není potřeba.
// Push nikdy neblokuje: paho volá handler ze své goroutiny a zdržení by zastavilo
// příjem dalších zpráv. Když je fronta plná, zahodí se nejstarší událost (a započítá).
type Queue struct {
	ch      chan Event
	dropped atomic.Int64

	// OnDrop se volá pro každou zahozenou událost (např. metrika). Může být nil.
	OnDrop func(Event)
}

// NewQueue vytvoří frontu. Služba ji vytváří jen jednou při startu a předává
// ji listeneru i procesoru (dependency injection místo globální proměnné).
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultSize
	}
	return &Queue{ch: make(chan Event, size)}
}

// Push vloží událost na konec fronty.
func (q *Queue) Push(e Event) {
	for {
		select {
		case q.ch <- e:
			return
		default:
		}

		// Fronta je plná -> uvolníme místo odebráním nejstarší události.
		select {
		case old := <-q.ch:
			q.dropped.Add(1)
			if q.OnDrop != nil {
				q.OnDrop(old)
			}
		default:
			// Mezitím ji vyprázdnil konzument, zkusíme to znovu.
		}
	}
}

// Drain vybere všechny čekající události v pořadí, v jakém přišly.
// Nikdy nečeká na další zprávy; prázdná fronta vrátí nil.
func (q *Queue) Drain() []Event {
	var events []Event
	for {
		select {
		case e := <-q.ch:
			events = append(events, e)
		default:
			return events
		}
	}
}

// Len vrací počet čekajících událostí.
func (q *Queue) Len() int { return len(q.ch) }

// Cap vrací kapacitu fronty.
func (q *Queue) Cap() int { return cap(q.ch) }

// Dropped vrací počet událostí zahozených kvůli plné frontě.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }
