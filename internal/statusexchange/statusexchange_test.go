package statusexchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionCAS(t *testing.T) {
	e := New()

	require.NoError(t, e.Transition(NoInputNeeded, NeedMFA))
	assert.Equal(t, NeedMFA, e.State())

	err := e.Transition(NoInputNeeded, NeedMFA)
	assert.ErrorIs(t, err, ErrCASFailed)
}

func TestWaitForCodeUnblocksOnSupply(t *testing.T) {
	e := New()
	require.NoError(t, e.RequestMFA())

	go func() {
		time.Sleep(20 * time.Millisecond)
		require.NoError(t, e.SupplyCode("123456"))
	}()

	code, err := e.WaitForCode(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "123456", code)
	assert.Equal(t, CheckingMFA, e.State())
}

func TestWaitForCodeTimesOut(t *testing.T) {
	e := New()
	require.NoError(t, e.RequestMFA())

	_, err := e.WaitForCode(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWaitForCodeRespectsContextCancel(t *testing.T) {
	e := New()
	require.NoError(t, e.RequestMFA())

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := e.WaitForCode(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSupplyCodeRequiresNeedMFA(t *testing.T) {
	e := New()

	err := e.SupplyCode("000000")
	assert.ErrorIs(t, err, ErrCASFailed)
}

func TestResetClearsState(t *testing.T) {
	e := New()
	require.NoError(t, e.RequestMFA())
	e.SetError(assert.AnError)

	e.Reset()

	assert.Equal(t, NoInputNeeded, e.State())
	assert.NoError(t, e.LastError())
}
