package registry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	calls int32
}

func (o *countingObserver) ObserveCycle(moduleAddress string, meta *Meta, err error) {
	atomic.AddInt32(&o.calls, 1)
}

func (o *countingObserver) ObserveDuration(moduleAddress string, seconds float64) {}

func TestLoopRunsInitialCycleOnStart(t *testing.T) {
	chain := &fakeChainReader{
		resolved:       ResolvedBlock{Number: 1, Hash: common.HexToHash("0x01"), Timestamp: 1000},
		keysOpIndex:    1,
		operatorsCount: 0,
	}
	store := newFakeStore()
	r := newReconcilerUnderTest(chain, store)
	obs := &countingObserver{}

	loop := NewLoop(LoopConfig{
		ModuleAddress: testModule.Hex(),
		Interval:      time.Hour,
		Observer:      obs,
	}, r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop.Start(ctx)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&obs.calls) >= 1
	}, time.Second, 5*time.Millisecond)

	loop.Stop()
	assert.NotNil(t, store.meta)
}

func TestLoopSingleFlightDropsOverlappingTrigger(t *testing.T) {
	chain := &fakeChainReader{
		resolved:       ResolvedBlock{Number: 1, Hash: common.HexToHash("0x01"), Timestamp: 1000},
		keysOpIndex:    1,
		operatorsCount: 0,
	}
	store := newFakeStore()
	r := newReconcilerUnderTest(chain, store)
	loop := NewLoop(LoopConfig{ModuleAddress: testModule.Hex(), Interval: time.Hour}, r, nil)

	loop.runMu.Lock()
	ran := loop.trigger(context.Background(), BlockRefTag("finalized"))
	loop.runMu.Unlock()

	assert.False(t, ran, "trigger must be dropped while a cycle is already in flight")
}

func TestLoopStallWatchdogFiresFatal(t *testing.T) {
	chain := &fakeChainReader{
		resolved:       ResolvedBlock{Number: 1, Hash: common.HexToHash("0x01"), Timestamp: 1000},
		keysOpIndex:    1,
		operatorsCount: 0,
	}
	store := newFakeStore()
	r := newReconcilerUnderTest(chain, store)

	loop := NewLoop(LoopConfig{
		ModuleAddress: testModule.Hex(),
		Interval:      time.Hour,
		StallTimeout:  20 * time.Millisecond,
	}, r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)

	select {
	case fatal := <-loop.Fatal():
		require.NotNil(t, fatal)
		assert.ErrorIs(t, fatal.Err, ErrValidatorsOutdated)
	case <-time.After(time.Second):
		t.Fatal("stall watchdog did not fire")
	}
}
