package transport

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arzzra/ivr_control/pkg/mgcp/message"
)

// pendingRequest команда, ожидающая финального ответа шлюза
type pendingRequest struct {
	request  *message.Request
	response chan *message.Response
	sentAt   time.Time
}

// pendingStore thread-safe таблица ожидающих транзакций
type pendingStore struct {
	mu       sync.Mutex
	requests map[uint32]*pendingRequest
	maxSeen  int
}

func newPendingStore() *pendingStore {
	return &pendingStore{requests: make(map[uint32]*pendingRequest)}
}

// add регистрирует команду. Повторное использование ID, который еще
// ожидает ответа, является ошибкой вызывающего.
func (s *pendingStore) add(req *message.Request) (*pendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateTransaction, req.ID)
	}
	p := &pendingRequest{
		request:  req,
		response: make(chan *message.Response, 1),
		sentAt:   time.Now(),
	}
	s.requests[req.ID] = p
	if len(s.requests) > s.maxSeen {
		s.maxSeen = len(s.requests)
	}
	return p, nil
}

// get возвращает ожидающую команду
func (s *pendingStore) get(id uint32) (*pendingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.requests[id]
	return p, ok
}

// resolve передает финальный ответ ожидающей команде и удаляет ее
func (s *pendingStore) resolve(resp *message.Response) bool {
	s.mu.Lock()
	p, ok := s.requests[resp.ID]
	if ok {
		delete(s.requests, resp.ID)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	p.response <- resp
	return true
}

// remove удаляет команду без ответа (таймаут, отмена контекста)
func (s *pendingStore) remove(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, id)
}

func (s *pendingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *pendingStore) maxObserved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

// subscription обработчик уведомлений одного endpoint'а
type subscription struct {
	handler NotifyHandler
	names   []string
}

// subscriptions маршрутизация NTFY по имени endpoint'а.
// Имена сравниваются без учета регистра (RFC 3435, 3.2.1.3).
// На одно имя может быть подписано несколько обработчиков: endpoint'ы
// с общим wildcard именем различают свои уведомления по ID транзакции.
type subscriptions struct {
	mu     sync.RWMutex
	byName map[string][]*subscription
}

func newSubscriptions() *subscriptions {
	return &subscriptions{byName: make(map[string][]*subscription)}
}

func normalizeEndpoint(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// add подписывает обработчик на имя endpoint'а
func (s *subscriptions) add(endpoint string, handler NotifyHandler) func() {
	sub := &subscription{handler: handler}
	key := normalizeEndpoint(endpoint)

	s.mu.Lock()
	sub.names = append(sub.names, key)
	s.byName[key] = append(s.byName[key], sub)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.removeSub(sub) })
	}
}

// alias направляет уведомления для specific подписчикам wildcard
func (s *subscriptions) alias(wildcard, specific string) bool {
	from := normalizeEndpoint(wildcard)
	to := normalizeEndpoint(specific)
	if from == to || to == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added := false
	for _, sub := range s.byName[from] {
		if containsSub(s.byName[to], sub) {
			continue
		}
		s.byName[to] = append(s.byName[to], sub)
		sub.names = append(sub.names, to)
		added = true
	}
	return added
}

func containsSub(list []*subscription, sub *subscription) bool {
	for _, s := range list {
		if s == sub {
			return true
		}
	}
	return false
}

func (s *subscriptions) removeSub(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range sub.names {
		list := s.byName[name]
		kept := list[:0:0]
		for _, other := range list {
			if other != sub {
				kept = append(kept, other)
			}
		}
		if len(kept) == 0 {
			delete(s.byName, name)
		} else {
			s.byName[name] = kept
		}
	}
}

// lookup возвращает обработчики для имени endpoint'а
func (s *subscriptions) lookup(endpoint string) []NotifyHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byName[normalizeEndpoint(endpoint)]
	if len(list) == 0 {
		return nil
	}
	handlers := make([]NotifyHandler, len(list))
	for i, sub := range list {
		handlers[i] = sub.handler
	}
	return handlers
}

// notifyEvents раскладывает NTFY на отдельные события
func notifyEvents(req *message.Request) ([]NotifyEvent, error) {
	tid, err := message.ParseRequestIdentifier(req.Params().Value(message.ParamRequestIdentifier))
	if err != nil {
		return nil, err
	}
	observed, err := message.ParseEventList(req.Params().Value(message.ParamObservedEvents))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	events := make([]NotifyEvent, 0, len(observed))
	for _, ev := range observed {
		events = append(events, NotifyEvent{
			TransactionID: tid,
			NotifyID:      req.ID,
			Endpoint:      req.Endpoint,
			Package:       ev.Package,
			EventCode:     ev.Code,
			Parameters:    ev.Parameters,
			ReceivedAt:    now,
		})
	}
	return events, nil
}
