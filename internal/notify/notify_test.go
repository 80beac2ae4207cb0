package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSink struct {
	called bool
	err    error
}

func (f *fakeSink) Notify(ctx context.Context, msg Message) error {
	f.called = true

	return f.err
}

func TestMultiNotifiesAllSinksDespiteErrors(t *testing.T) {
	a := &fakeSink{err: errors.New("boom")}
	b := &fakeSink{}

	m := &Multi{Sinks: []Notifier{a, b}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := m.Notify(context.Background(), Message{Subject: "hi"})

	assert.NoError(t, err)
	assert.True(t, a.called)
	assert.True(t, b.called)
}
