// Package statusexchange implements a shared state machine: the
// rendezvous point between an Authenticator blocked on an MFA code and
// whatever external producer (webui handler, webhook, Telegram bot)
// eventually supplies one. The interactive terminal prompt reads its code
// directly and does not go through an Exchange.
package statusexchange

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is one of the five states this exchange moves through during an
// authentication attempt.
type State string

const (
	NoInputNeeded State = "NO_INPUT_NEEDED"
	NeedPassword  State = "NEED_PASSWORD"
	NeedMFA       State = "NEED_MFA"
	SuppliedMFA   State = "SUPPLIED_MFA"
	CheckingMFA   State = "CHECKING_MFA"
)

// ErrCASFailed is returned by Transition when the observed-from state does
// not match the caller's expectation.
var ErrCASFailed = errors.New("statusexchange: compare-and-swap failed, state changed concurrently")

// ErrTimeout is returned by WaitForCode when the deadline elapses before a
// code is supplied: an MFA timeout in webui mode is terminal after a
// configured deadline.
var ErrTimeout = errors.New("statusexchange: timed out waiting for MFA code")

// Exchange is the CAS-guarded state machine. Zero value is not usable; use
// New.
type Exchange struct {
	mu      sync.Mutex
	state   State
	payload string // submitted MFA code
	lastErr error
	waiters []chan struct{} // notified on every transition; see notify()
}

// New returns an Exchange in NoInputNeeded.
func New() *Exchange {
	return &Exchange{state: NoInputNeeded}
}

// notify wakes every goroutine blocked in WaitForCode. Caller must hold mu.
func (e *Exchange) notify() {
	for _, ch := range e.waiters {
		close(ch)
	}

	e.waiters = nil
}

// addWaiter registers a fresh notification channel. Caller must hold mu.
func (e *Exchange) addWaiter() chan struct{} {
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)

	return ch
}

// State returns the current state.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// LastError returns the most recently recorded error slot value, if any.
func (e *Exchange) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lastErr
}

// Transition performs a CAS-style move from "from" to "to". It fails with
// ErrCASFailed if the current state isn't "from".
func (e *Exchange) Transition(from, to State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != from {
		return ErrCASFailed
	}

	e.state = to
	e.notify()

	return nil
}

// SetError records a terminal error against the current state transition
// (e.g. domain mismatch, invalid credentials) without changing state.
func (e *Exchange) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastErr = err
	e.notify()
}

// RequestMFA moves NoInputNeeded → NeedMFA, the Authenticator's entry point
// into the MFA sub-flow's webui code path.
func (e *Exchange) RequestMFA() error {
	return e.Transition(NoInputNeeded, NeedMFA)
}

// SupplyCode is called by the external producer (an HTTP handler, a bot
// update handler) once a human has entered a code. It moves
// NeedMFA → SuppliedMFA and records the payload.
func (e *Exchange) SupplyCode(code string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != NeedMFA {
		return ErrCASFailed
	}

	e.payload = code
	e.state = SuppliedMFA
	e.notify()

	return nil
}

// WaitForCode blocks until the state reaches SuppliedMFA (returning the
// submitted code and transitioning to CheckingMFA atomically) or until ctx
// is done / the configured deadline elapses. A deadline of 0 means wait
// indefinitely (subject to ctx).
func (e *Exchange) WaitForCode(ctx context.Context, deadline time.Duration) (string, error) {
	var cancel context.CancelFunc

	waitCtx := ctx
	if deadline > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	for {
		e.mu.Lock()

		if e.state == SuppliedMFA {
			code := e.payload
			e.state = CheckingMFA

			e.mu.Unlock()

			return code, nil
		}

		waitCh := e.addWaiter()
		e.mu.Unlock()

		select {
		case <-waitCh:
			continue
		case <-waitCtx.Done():
			if deadline > 0 && waitCtx.Err() != nil && ctx.Err() == nil {
				return "", ErrTimeout
			}

			return "", waitCtx.Err()
		}
	}
}

// Reset returns the machine to NoInputNeeded, clearing the payload and
// error slots. Called after a sync run completes or after a terminal
// failure is surfaced.
func (e *Exchange) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = NoInputNeeded
	e.payload = ""
	e.lastErr = nil
}
