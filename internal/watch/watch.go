// Package watch implements an outer loop wrapping SyncDriver with an
// interruptible sleep, remote command polling, and MFA-required
// surfacing.
package watch

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/icloud-photos/icloudpd-go/internal/notify"
	"github.com/icloud-photos/icloudpd-go/internal/statusexchange"
)

// Command is one remote instruction delivered through StatusExchange's
// command channel.
type Command string

const (
	CommandSyncNow Command = "sync-now"
	CommandSyncAll Command = "sync-all"
	CommandStop    Command = "stop"
)

// RunFunc performs one SyncDriver pass; forceFull disables the
// incremental-skip cache (a "sync-all" run).
type RunFunc func(ctx context.Context, forceFull bool) error

// Loop wraps RunFunc with an interruptible, command-driven sleep.
type Loop struct {
	run           RunFunc
	interval      time.Duration
	exchange      *statusexchange.Exchange
	commands      chan Command
	notifier      notify.Notifier
	logger        *slog.Logger
	stopRequested atomic.Bool
}

// New builds a Loop. commands is fed by an external producer (webhook
// handler, polling goroutine, direct CLI invocation); see internal/notify.
func New(run RunFunc, interval time.Duration, exchange *statusexchange.Exchange, commands chan Command, notifier notify.Notifier, logger *slog.Logger) *Loop {
	return &Loop{run: run, interval: interval, exchange: exchange, commands: commands, notifier: notifier, logger: logger}
}

// Cancel reports whether a "stop" command has been processed, the shared
// cancel flag SyncDriver polls at iteration boundaries.
func (l *Loop) Cancel() bool {
	return l.stopRequested.Load()
}

// Run blocks forever (or until ctx is cancelled), alternating between
// SyncDriver passes and interruptible sleeps.
func (l *Loop) Run(ctx context.Context) error {
	forceFull := false

	for {
		if err := l.run(ctx, forceFull); err != nil {
			if isMFARequired(err) {
				l.logger.Info("authentication required, surfacing for interactive/webui handling")

				if tErr := l.exchange.Transition(statusexchange.NoInputNeeded, statusexchange.NeedMFA); tErr != nil {
					l.exchange.SetError(err)
				}

				if l.notifier != nil {
					_ = l.notifier.Notify(ctx, notify.Message{
						Subject: "Authentication required",
						Body:    "A verification code is needed to continue syncing.",
					})
				}
			} else {
				l.logger.Error("sync pass failed, will retry next interval", slog.String("error", err.Error()))
			}
		}

		l.stopRequested.Store(false)
		forceFull = false

		if err := l.sleepInterruptible(ctx, &forceFull); err != nil {
			return err
		}
	}
}

// sleepInterruptible sleeps up to l.interval in 1-second ticks, observing
// ctx cancellation and commands delivered on l.commands. Only one command
// is processed per sleep window.
func (l *Loop) sleepInterruptible(ctx context.Context, forceFull *bool) error {
	deadline := time.Now().Add(l.interval)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-l.commands:
			switch cmd {
			case CommandSyncNow:
				return nil
			case CommandSyncAll:
				*forceFull = true

				return nil
			case CommandStop:
				l.stopRequested.Store(true)

				return nil
			}
		case <-ticker.C:
		}
	}

	return nil
}

func isMFARequired(err error) bool {
	// Matched by substring rather than errors.Is because the error can
	// originate from several layers (auth, transport, syncdriver); all
	// funnel through the same wording.
	return err != nil && (strings.Contains(err.Error(), "verification code") || strings.Contains(err.Error(), "MFA"))
}
