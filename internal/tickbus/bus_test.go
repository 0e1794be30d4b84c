package tickbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/indexpulse/internal/domain"
)

func recvWithTimeout(t *testing.T, ch <-chan domain.Tick) (domain.Tick, bool) {
	t.Helper()
	select {
	case tk := <-ch:
		return tk, true
	case <-time.After(200 * time.Millisecond):
		return domain.Tick{}, false
	}
}

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := New()
	ch := b.Subscribe(domain.NIFTY, true)

	b.Publish(domain.Tick{Symbol: domain.NIFTY, Price: 100})

	tk, ok := recvWithTimeout(t, ch)
	require.True(t, ok)
	assert.Equal(t, 100.0, tk.Price)
}

func TestBus_PublishOnlyReachesSameSymbolSubscribers(t *testing.T) {
	b := New()
	niftyCh := b.Subscribe(domain.NIFTY, true)
	bankCh := b.Subscribe(domain.BANKNIFTY, true)

	b.Publish(domain.Tick{Symbol: domain.NIFTY, Price: 1})

	_, ok := recvWithTimeout(t, niftyCh)
	assert.True(t, ok)

	select {
	case <-bankCh:
		t.Fatal("BANKNIFTY subscriber should not receive a NIFTY tick")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_MultipleSubscribersToSameSymbolAllReceive(t *testing.T) {
	b := New()
	a := b.Subscribe(domain.NIFTY, true)
	c := b.Subscribe(domain.NIFTY, false)

	b.Publish(domain.Tick{Symbol: domain.NIFTY, Price: 55})

	_, ok := recvWithTimeout(t, a)
	assert.True(t, ok)
	_, ok = recvWithTimeout(t, c)
	assert.True(t, ok)
}

func TestBus_BestEffortSubscriberDropsOldestOnOverflow(t *testing.T) {
	b := New()
	ch := b.Subscribe(domain.NIFTY, false)

	for i := 0; i < defaultCapacity+10; i++ {
		b.Publish(domain.Tick{Symbol: domain.NIFTY, Price: float64(i)})
	}

	// The channel never blocks Publish and stays within its bounded capacity.
	assert.LessOrEqual(t, len(ch), defaultCapacity)
	// The oldest ticks were dropped: the first received tick is not price 0.
	first, ok := recvWithTimeout(t, ch)
	require.True(t, ok)
	assert.NotEqual(t, 0.0, first.Price)
}

func TestBus_PublishWithNoSubscribersDoesNotPanic(t *testing.T) {
	b := New()
	assert.NotPanics(t, func() {
		b.Publish(domain.Tick{Symbol: domain.SENSEX, Price: 1})
	})
}
