package worker_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beamspace/beam/internal/progress"
	"github.com/beamspace/beam/internal/state"
	"github.com/beamspace/beam/internal/ticket"
	"github.com/beamspace/beam/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var oracle = ticket.Ticket{
	Hash: strings.Repeat("ab", 32),
	Size: 10_000_000,
	Addr: "127.0.0.1:4545",
}

// fakeEngine scripts provide/fetch outcomes and records invocations.
type fakeEngine struct {
	mu    sync.Mutex
	calls []string

	provide func(ctx context.Context, path string, events chan<- progress.Event) (ticket.Ticket, error)
	fetch   func(ctx context.Context, t ticket.Ticket, dest string, events chan<- progress.Event) error
}

func (f *fakeEngine) Provide(ctx context.Context, path string, events chan<- progress.Event) (ticket.Ticket, error) {
	f.record("provide:" + path)
	if f.provide != nil {
		return f.provide(ctx, path, events)
	}
	return oracle, nil
}

func (f *fakeEngine) Fetch(ctx context.Context, t ticket.Ticket, dest string, events chan<- progress.Event) error {
	f.record("fetch:" + dest)
	if f.fetch != nil {
		return f.fetch(ctx, t, dest, events)
	}
	return nil
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeEngine) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// run starts the worker and returns a join func that stops it and waits for
// all queued requests to finish.
func run(t *testing.T, w *worker.Worker) func() {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(context.Background())
	}()
	return func() {
		w.Stop()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func TestRequestsProcessedInOrder(t *testing.T) {
	eng := &fakeEngine{}
	store := state.NewStore()
	w := worker.New(store, eng)

	join := run(t, w)
	w.Dispatch(worker.ShareRequest{Path: "a"})
	w.Dispatch(worker.GetRequest{TicketText: oracle.String(), Dest: "b"})
	w.Dispatch(worker.ShareRequest{Path: "c"})
	w.Dispatch(worker.GetRequest{TicketText: oracle.String(), Dest: "d"})
	join()

	assert.Equal(t, []string{"provide:a", "fetch:b", "provide:c", "fetch:d"}, eng.recorded())
}

func TestShareSuccess(t *testing.T) {
	// Scenario: a 10_000_000 byte file is declared and processed in full.
	eng := &fakeEngine{
		provide: func(ctx context.Context, path string, events chan<- progress.Event) (ticket.Ticket, error) {
			events <- progress.Event{Type: progress.DeclaredSize, Bytes: 10_000_000}
			for i := 0; i < 10; i++ {
				events <- progress.Event{Type: progress.Processed, Bytes: 1_000_000}
			}
			return oracle, nil
		},
	}
	store := state.NewStore()
	w := worker.New(store, eng)

	join := run(t, w)
	w.Dispatch(worker.ShareRequest{Path: "big.bin"})
	join()

	snap := store.Snapshot()
	assert.Nil(t, snap.Sharing, "sharing progress must be cleared on success")
	require.NotNil(t, snap.Ticket)
	assert.Equal(t, oracle, *snap.Ticket)
	assert.Nil(t, snap.Err)
}

func TestShareFailure(t *testing.T) {
	boom := errors.New("connection torn down")
	eng := &fakeEngine{
		provide: func(ctx context.Context, path string, events chan<- progress.Event) (ticket.Ticket, error) {
			events <- progress.Event{Type: progress.DeclaredSize, Bytes: 100}
			return ticket.Ticket{}, boom
		},
	}
	store := state.NewStore()
	w := worker.New(store, eng)

	join := run(t, w)
	w.Dispatch(worker.ShareRequest{Path: "big.bin"})
	join()

	snap := store.Snapshot()
	assert.Nil(t, snap.Sharing, "sharing progress must be cleared on failure")
	assert.Nil(t, snap.Ticket)

	var shareErr *worker.ShareError
	require.ErrorAs(t, snap.Err, &shareErr)
	assert.Equal(t, "big.bin", shareErr.Path)
	assert.ErrorIs(t, snap.Err, boom)
	assert.Contains(t, snap.Err.Error(), "sharing:")
}

func TestGetSuccess(t *testing.T) {
	eng := &fakeEngine{
		fetch: func(ctx context.Context, tk ticket.Ticket, dest string, events chan<- progress.Event) error {
			events <- progress.Event{Type: progress.DeclaredSize, Bytes: tk.Size}
			events <- progress.Event{Type: progress.Processed, Bytes: tk.Size}
			events <- progress.Event{Type: progress.Done}
			return nil
		},
	}
	store := state.NewStore()
	w := worker.New(store, eng)

	join := run(t, w)
	w.Dispatch(worker.GetRequest{TicketText: oracle.String(), Dest: "downloads"})
	join()

	snap := store.Snapshot()
	assert.Nil(t, snap.Download, "download progress must be cleared on success")
	assert.Nil(t, snap.Err)
	assert.Equal(t, []string{"fetch:downloads"}, eng.recorded())
}

func TestGetFailure(t *testing.T) {
	boom := errors.New("provider unreachable")
	eng := &fakeEngine{
		fetch: func(ctx context.Context, tk ticket.Ticket, dest string, events chan<- progress.Event) error {
			return boom
		},
	}
	store := state.NewStore()
	w := worker.New(store, eng)

	join := run(t, w)
	w.Dispatch(worker.GetRequest{TicketText: oracle.String(), Dest: "downloads"})
	join()

	snap := store.Snapshot()
	assert.Nil(t, snap.Download, "download progress must be cleared on failure")

	var getErr *worker.GetError
	require.ErrorAs(t, snap.Err, &getErr)
	assert.Equal(t, oracle, getErr.Ticket)
	assert.ErrorIs(t, snap.Err, boom)
	assert.Contains(t, snap.Err.Error(), "get:")
}

func TestMalformedTicketNeverTouchesEngine(t *testing.T) {
	// Scenario: paste "not-a-ticket" and invoke download.
	eng := &fakeEngine{}
	var downloads []*state.Progress
	store := state.NewStore()
	w := worker.New(store, eng)

	join := run(t, w)
	w.Dispatch(worker.GetRequest{TicketText: "not-a-ticket", Dest: "downloads"})
	join()
	downloads = append(downloads, store.Snapshot().Download)

	snap := store.Snapshot()
	assert.Equal(t, 1, snap.PendingErrors, "exactly one error entry")
	var parseErr *ticket.ParseError
	require.ErrorAs(t, snap.Err, &parseErr)
	assert.Equal(t, "not-a-ticket", parseErr.Text)

	for _, d := range downloads {
		assert.Nil(t, d, "download progress must stay unset")
	}
	assert.Empty(t, eng.recorded(), "transfer engine must never be invoked")
}

func TestFailureDoesNotStopLoop(t *testing.T) {
	eng := &fakeEngine{
		provide: func(ctx context.Context, path string, events chan<- progress.Event) (ticket.Ticket, error) {
			if path == "bad" {
				return ticket.Ticket{}, errors.New("boom")
			}
			return oracle, nil
		},
	}
	store := state.NewStore()
	w := worker.New(store, eng)

	join := run(t, w)
	w.Dispatch(worker.ShareRequest{Path: "bad"})
	w.Dispatch(worker.ShareRequest{Path: "good"})
	join()

	assert.Equal(t, []string{"provide:bad", "provide:good"}, eng.recorded())
	require.NotNil(t, store.Snapshot().Ticket)
}

func TestProgressRelayedToStore(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	eng := &fakeEngine{
		fetch: func(ctx context.Context, tk ticket.Ticket, dest string, events chan<- progress.Event) error {
			events <- progress.Event{Type: progress.DeclaredSize, Bytes: 100}
			events <- progress.Event{Type: progress.Processed, Bytes: 25}
			close(started)
			<-release
			return nil
		},
	}
	store := state.NewStore()
	w := worker.New(store, eng)

	join := run(t, w)
	w.Dispatch(worker.GetRequest{TicketText: oracle.String(), Dest: "downloads"})

	<-started
	assert.Eventually(t, func() bool {
		d := store.Snapshot().Download
		return d != nil && d.Known && d.Ratio == 0.25
	}, time.Second, time.Millisecond)

	close(release)
	join()
	assert.Nil(t, store.Snapshot().Download)
}

func TestCancelActive(t *testing.T) {
	eng := &fakeEngine{
		provide: func(ctx context.Context, path string, events chan<- progress.Event) (ticket.Ticket, error) {
			<-ctx.Done()
			return ticket.Ticket{}, ctx.Err()
		},
	}
	store := state.NewStore()
	w := worker.New(store, eng)

	join := run(t, w)
	w.Dispatch(worker.ShareRequest{Path: "slow.bin"})

	assert.Eventually(t, func() bool {
		return store.Snapshot().Sharing != nil
	}, time.Second, time.Millisecond)

	w.CancelActive()
	join()

	snap := store.Snapshot()
	assert.Nil(t, snap.Sharing)
	assert.ErrorIs(t, snap.Err, context.Canceled)
}
