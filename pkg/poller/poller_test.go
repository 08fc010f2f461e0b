package poller

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotusgift/pkg/types"
)

type step struct {
	status types.OrderStatus
	err    error
}

// scriptedReader replays steps and repeats the last one forever.
type scriptedReader struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (r *scriptedReader) Status(ctx context.Context, txHash string) (*types.StatusResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.calls
	if i >= len(r.steps) {
		i = len(r.steps) - 1
	}
	r.calls++

	s := r.steps[i]
	if s.err != nil {
		return nil, s.err
	}
	return &types.StatusResponse{Status: s.status}, nil
}

type recordingWaiter struct {
	waits []time.Duration
}

func (w *recordingWaiter) wait(ctx context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	return ctx.Err()
}

func pending() step { return step{status: types.StatusPending} }

func TestAwaitTerminalWaitsBetweenPolls(t *testing.T) {
	reader := &scriptedReader{steps: []step{pending(), pending(), {status: types.StatusSuccess}}}
	waiter := &recordingWaiter{}

	var seen []types.OrderStatus
	p := New(reader,
		WithInterval(2*time.Second),
		WithWaiter(waiter.wait),
		WithObserver(func(_ int, s types.OrderStatus) { seen = append(seen, s) }),
	)

	status, err := p.AwaitTerminal(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, status)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, waiter.waits)
	assert.Equal(t, 3, reader.calls)
	assert.Equal(t, []types.OrderStatus{types.StatusPending, types.StatusPending, types.StatusSuccess}, seen)
}

func TestAwaitTerminalStopsOnEveryTerminalStatus(t *testing.T) {
	for _, terminal := range []types.OrderStatus{types.StatusSuccess, types.StatusFailed, types.StatusRefunded, types.StatusUnknown} {
		t.Run(string(terminal), func(t *testing.T) {
			reader := &scriptedReader{steps: []step{{status: terminal}}}
			waiter := &recordingWaiter{}

			status, err := New(reader, WithWaiter(waiter.wait)).AwaitTerminal(context.Background(), "0xabc")
			require.NoError(t, err)
			assert.Equal(t, terminal, status)
			assert.Empty(t, waiter.waits)
		})
	}
}

func TestAwaitTerminalAttemptCap(t *testing.T) {
	reader := &scriptedReader{steps: []step{{status: "BRIDGING"}}}
	waiter := &recordingWaiter{}

	status, err := New(reader, WithMaxAttempts(4), WithWaiter(waiter.wait)).AwaitTerminal(context.Background(), "0xabc")
	assert.ErrorIs(t, err, types.ErrPollingFailed)
	assert.Equal(t, types.OrderStatus("BRIDGING"), status)
	assert.Equal(t, 4, reader.calls)
	assert.Len(t, waiter.waits, 3)
}

func TestAwaitTerminalRetriesTransientFailures(t *testing.T) {
	netErr := errors.New("connection reset")
	reader := &scriptedReader{steps: []step{
		pending(),
		{err: netErr},
		{err: &types.UpstreamError{StatusCode: http.StatusBadGateway, Message: "bad gateway"}},
		{status: types.StatusRefunded},
	}}
	waiter := &recordingWaiter{}

	status, err := New(reader, WithRetryBudget(2), WithWaiter(waiter.wait)).AwaitTerminal(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, types.StatusRefunded, status)
}

func TestAwaitTerminalRetryBudgetExhausted(t *testing.T) {
	netErr := errors.New("connection reset")
	reader := &scriptedReader{steps: []step{pending(), {err: netErr}}}
	waiter := &recordingWaiter{}

	status, err := New(reader, WithRetryBudget(2), WithWaiter(waiter.wait)).AwaitTerminal(context.Background(), "0xabc")
	assert.ErrorIs(t, err, types.ErrPollingFailed)
	assert.ErrorIs(t, err, netErr)
	assert.Equal(t, types.StatusPending, status)
	assert.Equal(t, 4, reader.calls)
}

func TestAwaitTerminalFatalErrors(t *testing.T) {
	tests := map[string]error{
		"missing key":  types.ErrMissingCredential,
		"unauthorized": &types.UpstreamError{StatusCode: http.StatusUnauthorized, Message: "bad key"},
		"forbidden":    &types.UpstreamError{StatusCode: http.StatusForbidden, Message: "nope"},
	}

	for name, fatalErr := range tests {
		t.Run(name, func(t *testing.T) {
			reader := &scriptedReader{steps: []step{{err: fatalErr}}}
			_, err := New(reader, WithWaiter((&recordingWaiter{}).wait)).AwaitTerminal(context.Background(), "0xabc")
			assert.ErrorIs(t, err, fatalErr)
			assert.NotErrorIs(t, err, types.ErrPollingFailed)
			assert.Equal(t, 1, reader.calls)
		})
	}
}

func TestAwaitTerminalCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &scriptedReader{steps: []step{pending()}}

	p := New(reader, WithWaiter(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	status, err := p.AwaitTerminal(ctx, "0xabc")
	assert.ErrorIs(t, err, types.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.StatusPending, status)
	assert.Equal(t, 1, reader.calls)
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, sleep(context.Background(), time.Millisecond))
}
