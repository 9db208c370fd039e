package transport_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/ivr_control/pkg/mgcp/message"
	"github.com/arzzra/ivr_control/pkg/mgcp/transport"
	"github.com/arzzra/ivr_control/pkg/mgcp/transport/mock"
)

func newPair(t *testing.T, b mock.Behavior) (*transport.UDPTransport, *mock.Simulator) {
	t.Helper()

	sim, err := mock.NewSimulator("127.0.0.1:0", b, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sim.Close() })

	tr, err := transport.NewUDPTransport(transport.UDPConfig{
		LocalAddr:      "127.0.0.1:0",
		GatewayAddr:    sim.Addr().String(),
		RequestTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	return tr, sim
}

func asrRequest(id uint32, endpoint string) *message.Request {
	return message.NewNotificationRequest(id, endpoint,
		[]message.EventName{message.NewEvent("AU", "oc", "N"), message.NewEvent("AU", "of", "N")},
		message.NewEvent("AU", "asr", "dr=test ln=en-US ip=hello.wav"))
}

type recorder struct {
	mu     sync.Mutex
	events []transport.NotifyEvent
}

func (r *recorder) handle(ev transport.NotifyEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) get() []transport.NotifyEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transport.NotifyEvent(nil), r.events...)
}

func TestUDPTransport_RequestAndNotifications(t *testing.T) {
	tr, sim := newPair(t, mock.AsrBehavior("Super_text", 2))

	rec := &recorder{}
	tr.Subscribe("ivr/1@mgw", rec.handle)

	resp, err := tr.SendRequest(context.Background(), asrRequest(100, "ivr/1@mgw"))
	require.NoError(t, err)
	assert.Equal(t, message.CodeTransactionExecuted, resp.Code)
	assert.Equal(t, uint32(100), resp.ID)

	require.Eventually(t, func() bool { return len(rec.get()) == 3 }, 2*time.Second, 5*time.Millisecond)

	events := rec.get()
	assert.Equal(t, "rc=101 asrr=53757065725f74657874", events[0].Parameters)
	assert.Equal(t, "rc=100", events[2].Parameters)
	for _, ev := range events {
		assert.Equal(t, uint32(100), ev.TransactionID, "X: должен вернуть ID транзакции RQNT")
	}

	stats := tr.Stats()
	assert.Equal(t, uint64(1), stats.RequestsSent)
	assert.Equal(t, uint64(3), stats.NotifiesReceived)
	assert.Equal(t, uint64(1), sim.Received())
}

func TestUDPTransport_ProvisionalAndSpecificEndpoint(t *testing.T) {
	behavior := func(req *message.Request) mock.Reply {
		r := mock.AsrBehavior("hi", 1)(req)
		r.Provisional = true
		r.SpecificEndpoint = "ivr/42@mgw"
		return r
	}
	tr, _ := newPair(t, behavior)

	rec := &recorder{}
	tr.Subscribe("ivr/$@mgw", rec.handle)

	resp, err := tr.SendRequest(context.Background(), asrRequest(5, "ivr/$@mgw"))
	require.NoError(t, err)
	assert.Equal(t, message.CodeTransactionExecuted, resp.Code, "100 должен быть пропущен")
	assert.Equal(t, "ivr/42@mgw", resp.Params().Value(message.ParamSpecificEndpointID))

	require.Eventually(t, func() bool { return len(rec.get()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "ivr/42@mgw", rec.get()[0].Endpoint)
}

func TestUDPTransport_Timeout(t *testing.T) {
	// Сокет, который никогда не отвечает
	silent, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer silent.Close()

	tr, err := transport.NewUDPTransport(transport.UDPConfig{
		LocalAddr:      "127.0.0.1:0",
		GatewayAddr:    silent.LocalAddr().String(),
		RequestTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.SendRequest(context.Background(), asrRequest(1, "ivr/1@mgw"))
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrRequestTimeout)

	var te *transport.TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Temporary)
	assert.Equal(t, uint64(1), tr.Stats().RequestTimeouts)
}

func TestUDPTransport_Closed(t *testing.T) {
	tr, _ := newPair(t, mock.ManualBehavior())
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close(), "повторное закрытие безопасно")

	_, err := tr.SendRequest(context.Background(), asrRequest(1, "ivr/1@mgw"))
	assert.ErrorIs(t, err, transport.ErrTransportClosed)
}

func TestUDPTransport_InvalidAddress(t *testing.T) {
	_, err := transport.NewUDPTransport(transport.UDPConfig{LocalAddr: "127.0.0.1:0", GatewayAddr: "no-port"})
	assert.ErrorIs(t, err, transport.ErrInvalidAddress)
}

// Шлюз присылает NTFY для specific имени раньше ответа с Z:
func TestUDPTransport_NotifyBeforeResponse(t *testing.T) {
	gw, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer gw.Close()

	tr, err := transport.NewUDPTransport(transport.UDPConfig{
		LocalAddr:      "127.0.0.1:0",
		GatewayAddr:    gw.LocalAddr().String(),
		RequestTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	defer tr.Close()

	rec := &recorder{}
	tr.Subscribe("ivr/$@mgw", rec.handle)

	type result struct {
		resp *message.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := tr.SendRequest(context.Background(), asrRequest(9, "ivr/$@mgw"))
		done <- result{resp, err}
	}()

	buf := make([]byte, 65535)
	require.NoError(t, gw.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, agent, err := gw.ReadFromUDP(buf)
	require.NoError(t, err)
	msg, err := message.Parse(buf[:n])
	require.NoError(t, err)
	rqnt, ok := msg.(*message.Request)
	require.True(t, ok)

	ntfy := message.NewNotify(500, "ivr/7@mgw",
		rqnt.Params().Value(message.ParamRequestIdentifier),
		message.NewEvent("AU", "oc", "rc=100"))
	_, err = gw.WriteToUDP(ntfy.Bytes(), agent)
	require.NoError(t, err)

	n, _, err = gw.ReadFromUDP(buf)
	require.NoError(t, err)
	msg, err = message.Parse(buf[:n])
	require.NoError(t, err)
	ntfyAck, ok := msg.(*message.Response)
	require.True(t, ok)
	assert.Equal(t, message.CodeTransactionExecuted, ntfyAck.Code)
	assert.Equal(t, uint32(500), ntfyAck.ID)

	time.Sleep(20 * time.Millisecond)
	resp := message.NewResponse(message.CodeTransactionExecuted, rqnt.ID, "OK")
	resp.Params().Set(message.ParamSpecificEndpointID, "ivr/7@mgw")
	_, err = gw.WriteToUDP(resp.Bytes(), agent)
	require.NoError(t, err)

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "ivr/7@mgw", r.resp.Params().Value(message.ParamSpecificEndpointID))

	events := rec.get()
	require.Len(t, events, 1)
	assert.Equal(t, uint32(9), events[0].TransactionID)
	assert.Equal(t, "ivr/7@mgw", events[0].Endpoint)

	stats := tr.Stats()
	assert.Equal(t, uint64(0), stats.NotifiesUnrouted)
	assert.Equal(t, 0, stats.Pending)
}

func TestUDPTransport_UnroutedNotifyRejected(t *testing.T) {
	gw, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer gw.Close()

	tr, err := transport.NewUDPTransport(transport.UDPConfig{
		LocalAddr:   "127.0.0.1:0",
		GatewayAddr: gw.LocalAddr().String(),
	})
	require.NoError(t, err)
	defer tr.Close()

	agent := tr.LocalAddr().(*net.UDPAddr)
	ntfy := message.NewNotify(600, "ivr/8@mgw", message.RequestIdentifier(77),
		message.NewEvent("AU", "oc", "rc=100"))
	_, err = gw.WriteToUDP(ntfy.Bytes(), agent)
	require.NoError(t, err)

	buf := make([]byte, 65535)
	require.NoError(t, gw.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := gw.ReadFromUDP(buf)
	require.NoError(t, err)
	msg, err := message.Parse(buf[:n])
	require.NoError(t, err)
	resp, ok := msg.(*message.Response)
	require.True(t, ok)
	assert.Equal(t, message.CodeEndpointUnknown, resp.Code)
	assert.Equal(t, uint64(1), tr.Stats().NotifiesUnrouted)
}
