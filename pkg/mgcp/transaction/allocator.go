package transaction

import (
	"sync"
	"sync/atomic"
)

// Диапазон идентификаторов транзакций MGCP (RFC 3435, раздел 3.2.1.2).
// Ноль не используется, после MaxID счетчик возвращается к MinID.
const (
	MinID uint32 = 1
	MaxID uint32 = 999999999
)

// Allocator выдает идентификаторы транзакций для одного endpoint.
type Allocator interface {
	// Next возвращает следующий идентификатор транзакции
	Next() uint32
}

// Counter локальный счетчик транзакций endpoint'а.
//
// Каждый вызов Next возвращает значение, строго большее предыдущего,
// пока счетчик не упрется в MaxID; дальше он продолжает с MinID.
// Два одновременно ожидающих запроса одного endpoint'а не могут
// получить один и тот же ID, так как между ними почти миллиард значений.
type Counter struct {
	last atomic.Uint32
}

// NewCounter создает счетчик, первое значение которого будет start.
// Значения вне диапазона MGCP приводятся к MinID.
func NewCounter(start uint32) *Counter {
	c := &Counter{}
	if start < MinID || start > MaxID {
		start = MinID
	}
	c.last.Store(start - 1)
	return c
}

// Next возвращает следующий идентификатор
func (c *Counter) Next() uint32 {
	for {
		prev := c.last.Load()
		next := advance(prev)
		if c.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}

func advance(prev uint32) uint32 {
	if prev >= MaxID {
		return MinID
	}
	return prev + 1
}

// SharedAllocator общий счетчик для нескольких endpoint'ов одного шлюза.
// Нужен, когда транспорт требует уникальности ID в пределах всего шлюза.
type SharedAllocator struct {
	mu   sync.Mutex
	last uint32

	issued uint64
}

// NewSharedAllocator создает общий счетчик
func NewSharedAllocator(start uint32) *SharedAllocator {
	if start < MinID || start > MaxID {
		start = MinID
	}
	return &SharedAllocator{last: start - 1}
}

// Next возвращает следующий идентификатор
func (s *SharedAllocator) Next() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = advance(s.last)
	s.issued++
	return s.last
}

// Issued возвращает количество выданных идентификаторов
func (s *SharedAllocator) Issued() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued
}
