package ivr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverRegistry_OrderAndIsolation(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	r := NewObserverRegistry(nil, metrics)

	var first, third []string
	r.Subscribe(ListenerFunc(func(resp Response) error {
		first = append(first, resp.Result.Text)
		return nil
	}))
	r.Subscribe(ListenerFunc(func(Response) error {
		panic("observer bug")
	}))
	r.Subscribe(ListenerFunc(func(resp Response) error {
		third = append(third, resp.Result.Text)
		return errors.New("rejected")
	}))

	ctx := context.Background()
	r.Notify(ctx, success(1, "a"))
	r.Notify(ctx, success(1, "b"))

	assert.Equal(t, []string{"a", "b"}, first)
	assert.Equal(t, []string{"a", "b"}, third, "паника соседа не мешает доставке")
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.listenerErrors))
}

func TestObserverRegistry_Unsubscribe(t *testing.T) {
	r := NewObserverRegistry(nil, nil)

	var got int
	id := r.Subscribe(ListenerFunc(func(Response) error { got++; return nil }))
	assert.Equal(t, 1, r.Len())

	r.Notify(context.Background(), success(1, "x"))
	assert.True(t, r.Unsubscribe(id))
	assert.False(t, r.Unsubscribe(id))
	r.Notify(context.Background(), success(1, "y"))

	assert.Equal(t, 1, got)
	assert.Equal(t, 0, r.Len())
}

func TestObserverRegistry_NoRetroactiveDelivery(t *testing.T) {
	r := NewObserverRegistry(nil, nil)
	r.Notify(context.Background(), success(1, "before"))

	ch := make(chan Response, 1)
	r.Subscribe(ChannelListener(ch))
	r.Notify(context.Background(), success(1, "after"))

	require.Len(t, ch, 1)
	assert.Equal(t, "after", (<-ch).Result.Text)
}

func TestChannelListener_Overflow(t *testing.T) {
	ch := make(chan Response, 1)
	l := ChannelListener(ch)

	require.NoError(t, l.OnResponse(success(1, "a")))
	assert.ErrorIs(t, l.OnResponse(success(1, "b")), ErrListenerOverflow)
}

func TestDispatcher_OrderAndDrainOnClose(t *testing.T) {
	r := NewObserverRegistry(nil, nil)
	ch := make(chan Response, 8)
	r.Subscribe(ChannelListener(ch))

	d := newDispatcher(r)
	d.push(success(1, "a"))
	d.push(success(1, "b"))

	// подписка после push не получает уже поставленные ответы
	late := make(chan Response, 8)
	r.Subscribe(ChannelListener(late))

	d.push(success(1, "c"))
	d.close()
	d.push(success(1, "ignored"))

	select {
	case <-d.done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}

	require.Len(t, ch, 3)
	for _, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, (<-ch).Result.Text)
	}
	require.Len(t, late, 1)
	assert.Equal(t, "c", (<-late).Result.Text)
}
