package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Observer receives per-cycle outcomes from a Loop, for wiring into
// observability counters (§4.8: "last block number, last block timestamp").
// A nil Observer on LoopConfig disables reporting.
type Observer interface {
	ObserveCycle(moduleAddress string, meta *Meta, err error)
	ObserveDuration(moduleAddress string, seconds float64)
}

// LoopConfig configures the periodic driver for one module.
type LoopConfig struct {
	ModuleAddress string
	Interval      time.Duration
	// StallTimeout is the stall-watchdog deadline, reset after every
	// successful cycle. Zero disables the watchdog.
	StallTimeout time.Duration
	Observer     Observer
}

// Fatal carries the terminal stall-watchdog failure (§4.8, §7
// ValidatorsOutdated): the caller is expected to exit(1) on receipt.
type Fatal struct {
	LastBlockNumber uint64
	Err             error
}

func (f *Fatal) Error() string {
	return fmt.Sprintf("%v (last observed block %d)", f.Err, f.LastBlockNumber)
}

func (f *Fatal) Unwrap() error {
	return f.Err
}

// Loop is the Update Loop (H): a periodic single-flight driver with a stall
// watchdog, one instance per tracked module.
type Loop struct {
	cfg        LoopConfig
	reconciler *Reconciler
	logger     *zap.Logger

	runMu     sync.Mutex
	lastBlock uint64
	fatalCh   chan *Fatal
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewLoop builds a Loop driving reconciler on the schedule in cfg.
func NewLoop(cfg LoopConfig, reconciler *Reconciler, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Loop{
		cfg:        cfg,
		reconciler: reconciler,
		logger:     logger.Named(cfg.ModuleAddress),
		fatalCh:    make(chan *Fatal, 1),
	}
}

// Start kicks an initial update("finalized") and then runs on cfg.Interval
// until ctx is cancelled or the stall watchdog fires. It does not block;
// call Stop or select on Fatal() to observe termination.
func (l *Loop) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.wg.Add(1)
	go l.run(runCtx)
}

// Stop cancels the loop and waits for its goroutine to return.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// Fatal returns a channel that receives a value exactly once, if and only
// if the stall watchdog fires. The receiver is expected to terminate the
// process (§6: exit code 1); the loop does not call os.Exit itself so that
// callers can coordinate shutdown across multiple modules.
func (l *Loop) Fatal() <-chan *Fatal {
	return l.fatalCh
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	var watchdog *time.Timer
	var watchdogC <-chan time.Time
	if l.cfg.StallTimeout > 0 {
		watchdog = time.NewTimer(l.cfg.StallTimeout)
		watchdogC = watchdog.C
		defer watchdog.Stop()
	}

	l.trigger(ctx, BlockRefTag("finalized"))
	l.resetWatchdog(watchdog)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if l.trigger(ctx, BlockRefTag("finalized")) {
				l.resetWatchdog(watchdog)
			}
		case <-watchdogC:
			l.fatalCh <- &Fatal{LastBlockNumber: l.lastBlock, Err: ErrValidatorsOutdated}
			return
		}
	}
}

func (l *Loop) resetWatchdog(watchdog *time.Timer) {
	if watchdog == nil {
		return
	}
	if !watchdog.Stop() {
		select {
		case <-watchdog.C:
		default:
		}
	}
	watchdog.Reset(l.cfg.StallTimeout)
}

// trigger runs one cycle unless one is already in flight, in which case the
// trigger is dropped, not queued (§4.8 single-flight). Returns true if a
// cycle ran to a successful completion.
func (l *Loop) trigger(ctx context.Context, ref BlockRef) bool {
	if !l.runMu.TryLock() {
		l.logger.Warn("update already in progress, dropping trigger")
		return false
	}
	defer l.runMu.Unlock()

	start := time.Now()
	meta, err := l.reconciler.Update(ctx, ref)
	if l.cfg.Observer != nil {
		l.cfg.Observer.ObserveCycle(l.cfg.ModuleAddress, meta, err)
		l.cfg.Observer.ObserveDuration(l.cfg.ModuleAddress, time.Since(start).Seconds())
	}
	if err != nil {
		l.logger.Error("update cycle failed", zap.Error(err))
		return false
	}
	if meta == nil {
		return false
	}

	l.lastBlock = meta.BlockNumber
	l.logger.Info("update cycle complete",
		zap.Uint64("block_number", meta.BlockNumber),
		zap.Uint64("keys_op_index", meta.KeysOpIndex),
	)
	return true
}
