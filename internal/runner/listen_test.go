package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/funpay-runner/internal/funpay"
)

func TestListen_FailsFastWhenNotAuthorized(t *testing.T) {
	client := newFakeClient(fakeCycle{})
	client.authenticated = false
	r := newTestRunner(client)

	seq, err := r.Listen(context.Background(), ListenOptions{Interval: time.Millisecond})
	assert.ErrorIs(t, err, funpay.ErrNotAuthorized)
	assert.Nil(t, seq)
	assert.Zero(t, client.polled)
}

func TestListen_SwallowsFailures(t *testing.T) {
	client := newFakeClient(
		fakeCycle{chats: []funpay.ChatSummary{chat(1, "a")}},
		fakeCycle{pollErr: errors.New("timeout")},
		fakeCycle{chats: []funpay.ChatSummary{chat(1, "b")}},
	)
	r := newTestRunner(client)

	seq, err := r.Listen(context.Background(), ListenOptions{Interval: time.Millisecond})
	require.NoError(t, err)

	var got []Event
	for ev, err := range seq {
		require.NoError(t, err)
		got = append(got, ev)
		break
	}

	require.Len(t, got, 1)
	msg, ok := got[0].(*NewMessage)
	require.True(t, ok)
	assert.Equal(t, "b", msg.Message.Text)
	assert.Equal(t, 3, client.polled)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, client.polled, "no polling after the consumer stops")
}

func TestListen_PropagatesFailures(t *testing.T) {
	pollErr := errors.New("connection refused")
	client := newFakeClient(
		fakeCycle{},
		fakeCycle{pollErr: pollErr},
		fakeCycle{chats: []funpay.ChatSummary{chat(1, "never")}},
	)
	r := newTestRunner(client)

	seq, err := r.Listen(context.Background(), ListenOptions{Interval: time.Millisecond, PropagateFailures: true})
	require.NoError(t, err)

	var errs []error
	events := 0
	for ev, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ev != nil {
			events++
		}
	}

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], pollErr)
	assert.Zero(t, events)
	assert.Equal(t, 2, client.polled)
}

func TestListen_OrderedAcrossCycles(t *testing.T) {
	client := newFakeClient(
		fakeCycle{},
		fakeCycle{
			chats:  []funpay.ChatSummary{chat(2, "x"), chat(1, "y")},
			orders: []funpay.Order{order("B", funpay.OrderOutstanding), order("A", funpay.OrderOutstanding)},
		},
		fakeCycle{
			chats:  []funpay.ChatSummary{chat(2, "x"), chat(1, "z")},
			orders: []funpay.Order{order("B", funpay.OrderRefund), order("A", funpay.OrderOutstanding)},
		},
	)
	r := newTestRunner(client)

	seq, err := r.Listen(context.Background(), ListenOptions{Interval: time.Millisecond})
	require.NoError(t, err)

	var labels []string
	for ev, err := range seq {
		require.NoError(t, err)
		switch e := ev.(type) {
		case *NewMessage:
			labels = append(labels, "msg:"+e.Message.Text)
		case *NewOrder:
			labels = append(labels, "new:"+e.Order.ID)
		case *OrderStatusChanged:
			labels = append(labels, "status:"+e.Order.ID)
		}
		if len(labels) == 6 {
			break
		}
	}

	assert.Equal(t, []string{"msg:x", "msg:y", "new:B", "new:A", "msg:z", "status:B"}, labels)
}

func TestListen_StopsOnCancel(t *testing.T) {
	client := newFakeClient(fakeCycle{chatsUnchanged: true})
	r := newTestRunner(client)

	ctx, cancel := context.WithCancel(context.Background())
	seq, err := r.Listen(ctx, ListenOptions{Interval: 5 * time.Millisecond})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range seq {
		}
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
}
