package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpdepth/internal/exchange"
)

// fakeExchange fails the first failures connects, then succeeds. Each
// successful connection ends when drop is called.
type fakeExchange struct {
	mu          sync.Mutex
	failures    int
	connects    int
	disconnects int
	done        chan error
}

func (f *fakeExchange) GetName() exchange.ExchangeName { return exchange.Lighter }

func (f *fakeExchange) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connects <= f.failures {
		return &exchange.ConnectionError{Exchange: exchange.Lighter, Op: "dial", Err: errors.New("refused")}
	}
	f.done = make(chan error, 1)
	return nil
}

func (f *fakeExchange) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done <- errors.New("eof")
	close(f.done)
}

func (f *fakeExchange) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeExchange) Done() <-chan error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *fakeExchange) Updates() <-chan exchange.Update { return nil }
func (f *fakeExchange) State() exchange.ConnState       { return exchange.Disconnected }
func (f *fakeExchange) Health() exchange.HealthStatus   { return exchange.HealthStatus{} }

func (f *fakeExchange) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects
}

func nextEvent(t *testing.T, s *Supervisor) Event {
	t.Helper()
	select {
	case e := <-s.Events():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestRetriesFailedConnects(t *testing.T) {
	fake := &fakeExchange{failures: 2}
	s := New(fake, Config{ReconnectDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	first := nextEvent(t, s)
	assert.Equal(t, EventConnectFailed, first.Kind)
	assert.Equal(t, 1, first.Attempt)
	var connErr *exchange.ConnectionError
	assert.True(t, errors.As(first.Err, &connErr))

	second := nextEvent(t, s)
	assert.Equal(t, EventConnectFailed, second.Kind)
	assert.Equal(t, 2, second.Attempt)

	third := nextEvent(t, s)
	assert.Equal(t, EventConnected, third.Kind)
	assert.Equal(t, 3, third.Attempt)
	assert.Equal(t, exchange.Lighter, third.Exchange)

	cancel()
	require.NoError(t, <-errCh)

	connects, disconnects := fake.counts()
	assert.Equal(t, 3, connects)
	assert.Equal(t, 1, disconnects)
}

func TestReconnectsAfterDrop(t *testing.T) {
	fake := &fakeExchange{}
	s := New(fake, Config{ReconnectDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	assert.Equal(t, EventConnected, nextEvent(t, s).Kind)
	fake.drop()

	dropped := nextEvent(t, s)
	assert.Equal(t, EventDisconnected, dropped.Kind)
	assert.EqualError(t, dropped.Err, "eof")

	assert.Equal(t, EventConnected, nextEvent(t, s).Kind)
	connects, _ := fake.counts()
	assert.Equal(t, 2, connects)
}

func TestFixedDelay(t *testing.T) {
	fake := &fakeExchange{failures: 3}
	delay := 50 * time.Millisecond
	s := New(fake, Config{ReconnectDelay: delay})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	var times []time.Time
	for i := 0; i < 3; i++ {
		times = append(times, nextEvent(t, s).Time)
	}
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		assert.GreaterOrEqual(t, gap, delay)
		assert.Less(t, gap, 4*delay)
	}
}

func TestStopsDuringDelay(t *testing.T) {
	fake := &fakeExchange{failures: 100}
	s := New(fake, Config{ReconnectDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	assert.Equal(t, EventConnectFailed, nextEvent(t, s).Kind)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestDefaults(t *testing.T) {
	s := New(&fakeExchange{}, Config{})
	assert.Equal(t, 5*time.Second, s.delay)
	assert.Equal(t, defaultEventBuffer, cap(s.events))
}
