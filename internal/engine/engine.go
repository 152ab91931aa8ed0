// Package engine implements the beam transfer engine: providing a local file
// under a redeemable ticket and fetching a remote file given one. The worker
// consumes it only through the Engine contract; progress is reported on a
// per-operation event channel.
package engine

import (
	"context"
	"sync"

	"github.com/beamspace/beam/internal/progress"
	"github.com/beamspace/beam/internal/ticket"
	"go.uber.org/zap"
)

const MAX_CHUNK_BYTES = 1e6
const MAX_SEND_CHUNKS = 2e8

// Engine is the narrow asynchronous contract between the worker and the
// transfer implementation. Both calls emit zero or more events on the
// provided channel before returning and never send on it afterwards.
type Engine interface {
	// Provide makes the file at path available for fetching and returns a
	// redeemable ticket for it.
	Provide(ctx context.Context, path string, events chan<- progress.Event) (ticket.Ticket, error)
	// Fetch redeems a ticket, writing the fetched content into dest.
	Fetch(ctx context.Context, t ticket.Ticket, dest string, events chan<- progress.Event) error
}

// Beam is the websocket-based Engine implementation. At most one provider
// is active at a time; a new Provide supersedes the previous one.
type Beam struct {
	listenAddr      string
	logger          *zap.Logger
	overwritePrompt func(name string) (bool, error)

	mu     sync.Mutex
	active *provider
}

// Option configures a Beam engine.
type Option func(*Beam)

// WithListenAddr sets the address the provider side listens on.
func WithListenAddr(addr string) Option {
	return func(b *Beam) {
		b.listenAddr = addr
	}
}

// WithLogger sets the logger used by the provider side.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Beam) {
		b.logger = logger
	}
}

// WithOverwritePrompt installs a callback consulted before a fetched file
// overwrites an existing one. Without it existing files are overwritten.
func WithOverwritePrompt(prompt func(name string) (bool, error)) Option {
	return func(b *Beam) {
		b.overwritePrompt = prompt
	}
}

func New(opts ...Option) *Beam {
	b := &Beam{
		listenAddr: "127.0.0.1:0",
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Close shuts down the active provider, if any.
func (b *Beam) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return nil
	}
	err := b.active.close()
	b.active = nil
	return err
}

// swapProvider installs p as the active provider, closing the previous one.
func (b *Beam) swapProvider(p *provider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active != nil {
		_ = b.active.close()
	}
	b.active = p
}

// chunkSize returns an appropriate chunk size for the payload size.
func chunkSize(payloadSize int64) int64 {
	// clamp amount of chunks to be at most MAX_SEND_CHUNKS if it exceeds
	if payloadSize/MAX_CHUNK_BYTES > MAX_SEND_CHUNKS {
		return payloadSize / MAX_SEND_CHUNKS
	}
	// if not exceeding MAX_SEND_CHUNKS, divide up no. of chunks to MAX_CHUNK_BYTES-sized chunks
	chunks := payloadSize / MAX_CHUNK_BYTES
	if chunks <= MAX_CHUNK_BYTES {
		return MAX_CHUNK_BYTES
	}
	return chunks
}
