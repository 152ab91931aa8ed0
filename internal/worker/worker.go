// Package worker implements the background dispatch loop that serializes all
// transfer operations. Requests are consumed strictly in send order, one at a
// time; outcomes are never returned to the sender but recorded in the shared
// state store, where the presentation loop observes them.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/beamspace/beam/internal/engine"
	"github.com/beamspace/beam/internal/progress"
	"github.com/beamspace/beam/internal/state"
	"github.com/beamspace/beam/internal/ticket"
	"go.uber.org/zap"
)

// ----------------------------------------------------- Requests ------------------------------------------------------

// Request is an operation request sent from the presentation loop. It is
// fire-and-forget: consumed exactly once, never retried.
type Request interface {
	isRequest()
}

// ShareRequest asks the worker to provide the file at Path.
type ShareRequest struct {
	Path string
}

func (ShareRequest) isRequest() {}

// GetRequest asks the worker to redeem TicketText and fetch into Dest.
type GetRequest struct {
	TicketText string
	Dest       string
}

func (GetRequest) isRequest() {}

// ------------------------------------------------------ Errors -------------------------------------------------------

// ShareError reports a transfer engine failure during a share operation.
type ShareError struct {
	Path string
	Err  error
}

func (e *ShareError) Error() string {
	return fmt.Sprintf("sharing: %v", e.Err)
}

func (e *ShareError) Unwrap() error {
	return e.Err
}

// GetError reports a transfer engine failure during a fetch operation.
type GetError struct {
	Ticket ticket.Ticket
	Err    error
}

func (e *GetError) Error() string {
	return fmt.Sprintf("get: %v", e.Err)
}

func (e *GetError) Unwrap() error {
	return e.Err
}

// ------------------------------------------------------ Worker -------------------------------------------------------

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the worker logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithQueueSize sets the request queue capacity.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		w.requests = make(chan Request, n)
	}
}

// Worker owns the request queue and the only goroutine that mutates the
// store during transfers.
type Worker struct {
	store    *state.Store
	engine   engine.Engine
	logger   *zap.Logger
	requests chan Request

	mu           sync.Mutex
	stop         sync.Once
	cancelActive context.CancelFunc
}

func New(store *state.Store, eng engine.Engine, opts ...Option) *Worker {
	w := &Worker{
		store:    store,
		engine:   eng,
		logger:   zap.NewNop(),
		requests: make(chan Request, 64),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dispatch queues a request for processing. Requests are processed in
// dispatch order.
func (w *Worker) Dispatch(req Request) {
	w.requests <- req
}

// Stop closes the request queue; Run drains the remaining requests and
// returns, so the worker goroutine can be joined. Dispatch must not be
// called after Stop. Stop is idempotent.
func (w *Worker) Stop() {
	w.stop.Do(func() {
		close(w.requests)
	})
}

// CancelActive cancels the in-flight operation, if any. The operation still
// runs to its (failed) completion before the next request is picked up.
func (w *Worker) CancelActive() {
	w.mu.Lock()
	cancel := w.cancelActive
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run processes requests until the queue is closed or ctx is canceled. No
// operation failure terminates the loop; failures are recorded in the store
// and the loop returns to waiting for the next request.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-w.requests:
			if !ok {
				return
			}
			switch r := req.(type) {
			case ShareRequest:
				w.handleShare(ctx, r)
			case GetRequest:
				w.handleGet(ctx, r)
			}
		}
	}
}

// handleShare invokes the engine's provide operation and records the outcome.
func (w *Worker) handleShare(ctx context.Context, req ShareRequest) {
	w.logger.Info("sharing", zap.String("path", req.Path))

	opCtx, cancel := w.beginOperation(ctx)
	defer cancel()

	w.store.SetSharingProgress(state.Progress{})

	events := make(chan progress.Event, progress.ChannelCap)
	relayed := make(chan struct{})
	go func() {
		defer close(relayed)
		progress.Relay(events, func(ratio float64, known bool) {
			w.store.SetSharingProgress(state.Progress{Ratio: ratio, Known: known})
		})
	}()

	t, err := w.engine.Provide(opCtx, req.Path, events)
	close(events)
	<-relayed

	if err != nil {
		w.logger.Error("share failed", zap.String("path", req.Path), zap.Error(err))
		w.store.ClearSharingProgress()
		w.store.PushError(&ShareError{Path: req.Path, Err: err})
		return
	}
	w.store.CompleteShare(t)
	w.logger.Info("share ready", zap.String("ticket", t.String()))
}

// handleGet parses the ticket text and, if valid, invokes the engine's fetch
// operation. A parse failure never touches the engine.
func (w *Worker) handleGet(ctx context.Context, req GetRequest) {
	t, err := ticket.Parse(req.TicketText)
	if err != nil {
		w.logger.Error("invalid ticket", zap.Error(err))
		w.store.PushError(err)
		return
	}
	w.logger.Info("getting", zap.String("ticket", req.TicketText), zap.String("dest", req.Dest))

	opCtx, cancel := w.beginOperation(ctx)
	defer cancel()

	w.store.SetDownloadProgress(state.Progress{Ratio: 0, Known: true})

	events := make(chan progress.Event, progress.ChannelCap)
	relayed := make(chan struct{})
	go func() {
		defer close(relayed)
		progress.Relay(events, func(ratio float64, known bool) {
			w.store.SetDownloadProgress(state.Progress{Ratio: ratio, Known: known})
		})
	}()

	err = w.engine.Fetch(opCtx, t, req.Dest, events)
	close(events)
	<-relayed

	w.store.ClearDownloadProgress()
	if err != nil {
		w.logger.Error("get failed", zap.Error(err))
		w.store.PushError(&GetError{Ticket: t, Err: err})
		return
	}
	w.logger.Info("get completed", zap.String("dest", req.Dest))
}

// beginOperation derives a cancelable per-operation context and registers
// its cancel func so a superseding user action can abort the operation.
func (w *Worker) beginOperation(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancelActive = cancel
	w.mu.Unlock()
	return opCtx, func() {
		w.mu.Lock()
		w.cancelActive = nil
		w.mu.Unlock()
		cancel()
	}
}
