package transport

import (
	"errors"
	"testing"

	"github.com/arzzra/ivr_control/pkg/mgcp/message"
)

func TestPendingStore(t *testing.T) {
	s := newPendingStore()

	req := message.NewNotificationRequest(10, "ivr/1@mgw", nil)
	p, err := s.add(req)
	if err != nil {
		t.Fatalf("add() error = %v", err)
	}

	// Повторная регистрация того же ID
	if _, err := s.add(req); !errors.Is(err, ErrDuplicateTransaction) {
		t.Errorf("expected ErrDuplicateTransaction, got %v", err)
	}

	if !s.resolve(message.NewResponse(200, 10, "")) {
		t.Fatal("resolve() должен найти транзакцию")
	}
	resp := <-p.response
	if resp.Code != 200 {
		t.Errorf("Code = %d", resp.Code)
	}
	if s.count() != 0 {
		t.Errorf("count = %d, ожидали 0", s.count())
	}
	if s.resolve(message.NewResponse(200, 10, "")) {
		t.Error("повторный ответ не должен находить транзакцию")
	}
	if s.maxObserved() != 1 {
		t.Errorf("maxObserved = %d", s.maxObserved())
	}
}

func TestSubscriptionsAlias(t *testing.T) {
	s := newSubscriptions()

	var got []string
	unsubscribe := s.add("IVR/$@mgw", func(ev NotifyEvent) { got = append(got, ev.Endpoint) })

	if !s.alias("ivr/$@MGW", "ivr/3@mgw") {
		t.Fatal("alias() должен найти подписку без учета регистра")
	}
	if s.alias("ivr/$@mgw", "ivr/3@mgw") {
		t.Error("повторный alias() ничего не добавляет")
	}
	handlers := s.lookup("IVR/3@MGW")
	if len(handlers) != 1 {
		t.Fatalf("lookup() по specific имени: %d обработчиков", len(handlers))
	}
	handlers[0](NotifyEvent{Endpoint: "ivr/3@mgw"})
	if len(got) != 1 {
		t.Errorf("handler calls = %d", len(got))
	}

	unsubscribe()
	unsubscribe()
	if len(s.lookup("ivr/3@mgw")) != 0 {
		t.Error("отписка удаляет и псевдонимы")
	}
	if len(s.lookup("ivr/$@mgw")) != 0 {
		t.Error("отписка удаляет основное имя")
	}
}

func TestSubscriptionsSharedWildcard(t *testing.T) {
	s := newSubscriptions()

	var first, second int
	unsubFirst := s.add("ivr/$@mgw", func(NotifyEvent) { first++ })
	s.add("ivr/$@mgw", func(NotifyEvent) { second++ })
	s.alias("ivr/$@mgw", "ivr/5@mgw")

	for _, h := range s.lookup("ivr/5@mgw") {
		h(NotifyEvent{})
	}
	if first != 1 || second != 1 {
		t.Errorf("calls = %d/%d, ожидали 1/1", first, second)
	}

	unsubFirst()
	if n := len(s.lookup("ivr/5@mgw")); n != 1 {
		t.Errorf("после отписки осталось %d обработчиков", n)
	}
	if n := len(s.lookup("ivr/$@mgw")); n != 1 {
		t.Errorf("wildcard: %d обработчиков", n)
	}
}

func TestNotifyEvents(t *testing.T) {
	ntfy := message.NewNotify(77, "ivr/1@mgw", message.RequestIdentifier(12),
		message.NewEvent("AU", "oc", "rc=101 asrr=41"),
		message.NewEvent("AU", "oc", "rc=100"))

	events, err := notifyEvents(ntfy)
	if err != nil {
		t.Fatalf("notifyEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d", len(events))
	}
	if events[0].TransactionID != 12 || events[0].NotifyID != 77 {
		t.Errorf("ids = %d/%d", events[0].TransactionID, events[0].NotifyID)
	}
	if events[1].Parameters != "rc=100" {
		t.Errorf("params = %q", events[1].Parameters)
	}

	bad := message.NewNotify(78, "ivr/1@mgw", "not-hex", message.NewEvent("AU", "oc", "rc=100"))
	if _, err := notifyEvents(bad); !errors.Is(err, message.ErrInvalidTransaction) {
		t.Errorf("expected ErrInvalidTransaction, got %v", err)
	}
}
