// Package reveal animates the progressive disclosure of an answer whose full
// text is already known. The service never streams, so the engine fakes the
// feel of it: one more rune per tick until the text is out or the target
// message stops being eligible.
package reveal

import (
	"context"
	"sync"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/whoknows-ai/whoknows-go/internal/chat"
	"github.com/whoknows-ai/whoknows-go/internal/logger"
)

// FSM States
type FSMState stateless.State

var (
	StateIdle      FSMState = "Idle"
	StateRevealing FSMState = "Revealing"
	StateComplete  FSMState = "Complete" // Terminal until the next Start
)

// FSM Triggers
type FSMTrigger stateless.Trigger

var (
	TriggerStart     FSMTrigger = "Start"
	TriggerFinished  FSMTrigger = "Finished"
	TriggerCancelled FSMTrigger = "Cancelled"
)

// DefaultInterval is the cadence used when the configured interval is unset.
const DefaultInterval = 20 * time.Millisecond

// Sink receives each successive prefix of the text under reveal.
type Sink func(messageID, prefix string)

// Lookup resolves a message id against the current session. It gates every
// emission: a missing or still-pending message stops the reveal outright.
type Lookup func(messageID string) (chat.Message, bool)

// Engine runs at most one reveal at a time. Starting a new reveal cancels the
// previous one; cancellation is checked before every emission so a stale run
// can never write past a session switch or a deleted message.
type Engine struct {
	interval time.Duration
	sink     Sink
	lookup   Lookup

	mu     sync.Mutex
	fsm    *stateless.StateMachine
	gen    int // bumped on Start/Cancel/Close; stale runs see the mismatch and exit
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewEngine builds an engine emitting to sink every interval. lookup may be
// nil, in which case emissions are gated only by cancellation.
func NewEngine(interval time.Duration, sink Sink, lookup Lookup) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	e := &Engine{interval: interval, sink: sink, lookup: lookup}

	fsm := stateless.NewStateMachine(StateIdle)
	fsm.Configure(StateIdle).
		Permit(TriggerStart, StateRevealing).
		Ignore(TriggerCancelled)
	fsm.Configure(StateRevealing).
		PermitReentry(TriggerStart). // restart against replaced text
		OnEntry(func(_ context.Context, _ ...any) error {
			logger.L.Debug("FSM: Entering StateRevealing")
			return nil
		}).
		Permit(TriggerFinished, StateComplete).
		Permit(TriggerCancelled, StateIdle)
	fsm.Configure(StateComplete).
		Permit(TriggerStart, StateRevealing).
		Ignore(TriggerCancelled)
	e.fsm = fsm
	return e
}

// Start begins revealing text for the given message, cancelling any reveal
// already in flight. A Start against new text mid-reveal restarts from an
// empty prefix.
func (e *Engine) Start(messageID, text string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.gen++
	gen := e.gen
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.fireLocked(TriggerStart)
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(ctx, gen, messageID, text)
}

// Cancel stops the running reveal, if any. Safe to call in any state.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
}

// Wait blocks until reveals running at the time of the call have drained,
// whether they finished or were cancelled.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close cancels any running reveal and waits for its goroutine to drain. The
// engine is unusable afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.cancelLocked()
	e.mu.Unlock()
	e.wg.Wait()
}

// State reports the engine's lifecycle state.
func (e *Engine) State() FSMState {
	return e.fsm.MustState().(FSMState)
}

func (e *Engine) run(ctx context.Context, gen int, messageID, text string) {
	defer e.wg.Done()

	runes := []rune(text)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for i := 1; i <= len(runes); i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !e.emit(gen, messageID, string(runes[:i])) {
			return
		}
	}
	e.finish(gen, messageID)
}

// emit delivers one prefix if this run is still current and the target
// message still exists and is resolved. Holding the lock across the sink call
// keeps Cancel strictly ordered against emissions: once Cancel returns, no
// further prefix can arrive.
func (e *Engine) emit(gen int, messageID, prefix string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return false
	}
	if e.lookup != nil {
		msg, ok := e.lookup(messageID)
		if !ok || msg.Pending {
			e.cancelLocked()
			return false
		}
	}
	e.sink(messageID, prefix)
	return true
}

func (e *Engine) finish(gen int, messageID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	e.cancel = nil
	e.fireLocked(TriggerFinished)
	logger.L.Debug("reveal complete", "message_id", messageID)
}

func (e *Engine) cancelLocked() {
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.fireLocked(TriggerCancelled)
}

func (e *Engine) fireLocked(trigger FSMTrigger) {
	if err := e.fsm.Fire(trigger); err != nil {
		logger.L.Warn("FSM fire error", "trigger", trigger, "error", err)
	}
}
