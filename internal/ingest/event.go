package ingest

import "time"

// Kind rozlišuje varianty události ve frontě.
type Kind int

const (
	KindSensor Kind = iota
	KindConnectionStatus
	KindTransportError
	KindRawUnparsed
)

func (k Kind) String() string {
	switch k {
	case KindSensor:
		return "sensor"
	case KindConnectionStatus:
		return "status"
	case KindTransportError:
		return "error"
	case KindRawUnparsed:
		return "raw"
	default:
		return "unknown"
	}
}

// Event je zpráva, kterou MQTT listener předává zpracování.
// Jde o tagged union: platná jsou jen pole odpovídající Kind.
// Po vložení do fronty listener už s hodnotou nepracuje, vlastníkem je fronta.
type Event struct {
	Kind Kind
	Time time.Time

	// KindSensor
	Data  map[string]any
	Topic string

	// KindConnectionStatus
	Connected bool

	// KindTransportError
	Message string

	// KindRawUnparsed (Topic je vyplněný také)
	Payload string
}

func SensorEvent(topic string, data map[string]any, at time.Time) Event {
	return Event{Kind: KindSensor, Topic: topic, Data: data, Time: at}
}

func StatusEvent(connected bool, at time.Time) Event {
	return Event{Kind: KindConnectionStatus, Connected: connected, Time: at}
}

func ErrorEvent(msg string, at time.Time) Event {
	return Event{Kind: KindTransportError, Message: msg, Time: at}
}

func RawEvent(topic, payload string, at time.Time) Event {
	return Event{Kind: KindRawUnparsed, Topic: topic, Payload: payload, Time: at}
}
