// Package state holds the single cross-thread record of transfer progress,
// the last share ticket and pending errors. The worker side mutates it, the
// presentation side only reads value-copied snapshots.
package state

import (
	"sync"

	"github.com/beamspace/beam/internal/ticket"
)

// Progress is a displayable progress value. Known is false while the
// operation has not yet declared a total size, in which case Ratio is
// meaningless and an indeterminate indicator should be shown instead.
type Progress struct {
	Ratio float64
	Known bool
}

// Snapshot is an immutable copy of the store, safe to hold across frames.
type Snapshot struct {
	Sharing  *Progress
	Ticket   *ticket.Ticket
	Download *Progress

	// Err is the most recently pushed unacknowledged error, nil if none.
	Err error
	// PendingErrors is the number of unacknowledged errors, including Err.
	PendingErrors int
}

// Option configures a Store.
type Option func(*Store)

// WithNotify registers a hook invoked after every mutation, outside the
// lock. Used to wake the presentation loop for a repaint.
func WithNotify(notify func()) Option {
	return func(s *Store) {
		s.notify = notify
	}
}

// Store is the single point of cross-thread observation. Every mutation is a
// short critical section; the lock is never held across an engine call or
// the notify hook.
type Store struct {
	mu       sync.Mutex
	notify   func()
	sharing  *Progress
	ticket   *ticket.Ticket
	download *Progress
	errs     []error
}

func NewStore(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a value copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{PendingErrors: len(s.errs)}
	if s.sharing != nil {
		p := *s.sharing
		snap.Sharing = &p
	}
	if s.ticket != nil {
		t := *s.ticket
		snap.Ticket = &t
	}
	if s.download != nil {
		p := *s.download
		snap.Download = &p
	}
	if len(s.errs) > 0 {
		snap.Err = s.errs[len(s.errs)-1]
	}
	return snap
}

// SetSharingProgress records progress for the in-flight share operation.
func (s *Store) SetSharingProgress(p Progress) {
	s.mu.Lock()
	s.sharing = &p
	s.mu.Unlock()
	s.wake()
}

// ClearSharingProgress unsets the share progress, typically after a failed
// share.
func (s *Store) ClearSharingProgress() {
	s.mu.Lock()
	s.sharing = nil
	s.mu.Unlock()
	s.wake()
}

// CompleteShare records a successful share: the ticket is set and the share
// progress is cleared in the same critical section, so no snapshot ever
// observes both for the same share cycle.
func (s *Store) CompleteShare(t ticket.Ticket) {
	s.mu.Lock()
	s.sharing = nil
	s.ticket = &t
	s.mu.Unlock()
	s.wake()
}

// SetDownloadProgress records progress for the in-flight fetch operation.
func (s *Store) SetDownloadProgress(p Progress) {
	s.mu.Lock()
	s.download = &p
	s.mu.Unlock()
	s.wake()
}

// ClearDownloadProgress unsets the fetch progress regardless of outcome.
func (s *Store) ClearDownloadProgress() {
	s.mu.Lock()
	s.download = nil
	s.mu.Unlock()
	s.wake()
}

// ResetShareCycle clears the share progress and ticket, starting a new share
// cycle. Called when the user selects a new source file.
func (s *Store) ResetShareCycle() {
	s.mu.Lock()
	s.sharing = nil
	s.ticket = nil
	s.mu.Unlock()
	s.wake()
}

// PushError appends an error to the pending list. Errors are only ever
// removed by explicit acknowledgment.
func (s *Store) PushError(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	s.wake()
}

// AckError removes exactly the most recently pushed error, revealing the
// next most recent one if any.
func (s *Store) AckError() {
	s.mu.Lock()
	if len(s.errs) > 0 {
		s.errs = s.errs[:len(s.errs)-1]
	}
	s.mu.Unlock()
	s.wake()
}

// CurrentError returns the most recently pushed unacknowledged error.
func (s *Store) CurrentError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	return s.errs[len(s.errs)-1]
}

func (s *Store) wake() {
	if s.notify != nil {
		s.notify()
	}
}
