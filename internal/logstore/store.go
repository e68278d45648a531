package logstore

import "sync"

// DefaultCapacity je výchozí počet uchovaných záznamů.
const DefaultCapacity = 5000

// Store je kruhový buffer záznamů s pevnou kapacitou. Při zaplnění se zahazuje
// nejstarší záznam. Pořadí je vždy pořadí přidání.
type Store struct {
	mu    sync.RWMutex
	buf   []LogRecord
	start int // index nejstaršího záznamu
	n     int
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{buf: make([]LogRecord, capacity)}
}

// Append přidá záznam na konec.
func (s *Store) Append(r LogRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(r)
}

func (s *Store) appendLocked(r LogRecord) {
	c := len(s.buf)
	if s.n < c {
		s.buf[(s.start+s.n)%c] = r
		s.n++
		return
	}
	s.buf[s.start] = r
	s.start = (s.start + 1) % c
}

// Len vrací počet uložených záznamů.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}

// Cap vrací kapacitu.
func (s *Store) Cap() int { return len(s.buf) }

// Snapshot vrací kopii všech záznamů od nejstaršího.
func (s *Store) Snapshot() []LogRecord {
	return s.Last(-1)
}

// Last vrací posledních n záznamů od nejstaršího k nejnovějšímu.
// Záporné n znamená všechny.
func (s *Store) Last(n int) []LogRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 0 || n > s.n {
		n = s.n
	}
	out := make([]LogRecord, n)
	c := len(s.buf)
	first := s.start + s.n - n
	for i := 0; i < n; i++ {
		out[i] = s.buf[(first+i)%c]
	}
	return out
}

// Latest vrací nejnovější záznam.
func (s *Store) Latest() (LogRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.n == 0 {
		return LogRecord{}, false
	}
	return s.buf[(s.start+s.n-1)%len(s.buf)], true
}

// Load nahradí obsah záznamy z records. Když jich je víc než kapacita,
// zůstanou jen ty nejnovější.
func (s *Store) Load(records []LogRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.start, s.n = 0, 0
	if len(records) > len(s.buf) {
		records = records[len(records)-len(s.buf):]
	}
	for _, r := range records {
		s.appendLocked(r)
	}
}
