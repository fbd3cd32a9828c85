package events

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBusFanout(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	bus.Publish(FeesCollected{
		Payer:     common.HexToAddress("0x11"),
		Amount:    big.NewInt(42),
		Operation: "deposit",
	})

	for _, ch := range []<-chan Envelope{a, b} {
		select {
		case env := <-ch:
			fc, ok := env.Event.(FeesCollected)
			require.True(t, ok)
			assert.Equal(t, "42", fc.Amount.String())
			assert.Equal(t, "FeesCollected", env.Event.Name())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()

	_, open := <-ch
	assert.False(t, open, "cancel closes the channel")

	// Publishing after unsubscribe must not panic.
	bus.Publish(AdminStatusUpdated{Address: common.HexToAddress("0x22"), Enabled: true})
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus(zap.NewNop())
	defer bus.Close()

	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(PercentageFeeUpdated{Old: 0, New: uint64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ch, _ := bus.Subscribe()
	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	post, cancel := bus.Subscribe()
	defer cancel()
	_, open = <-post
	assert.False(t, open, "subscriptions after close are closed immediately")
}
