package state_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/beamspace/beam/internal/state"
	"github.com/beamspace/beam/internal/ticket"
	"github.com/stretchr/testify/assert"
)

var oracle = ticket.Ticket{
	Hash: strings.Repeat("ab", 32),
	Size: 42,
	Addr: "127.0.0.1:4545",
}

func TestShareCycle(t *testing.T) {
	t.Run("progress cleared when ticket set", func(t *testing.T) {
		s := state.NewStore()
		s.SetSharingProgress(state.Progress{Ratio: 0.5, Known: true})
		snap := s.Snapshot()
		assert.NotNil(t, snap.Sharing)
		assert.Nil(t, snap.Ticket)

		s.CompleteShare(oracle)
		snap = s.Snapshot()
		assert.Nil(t, snap.Sharing)
		assert.NotNil(t, snap.Ticket)
		assert.Equal(t, oracle, *snap.Ticket)
	})

	t.Run("reset clears both", func(t *testing.T) {
		s := state.NewStore()
		s.CompleteShare(oracle)
		s.SetSharingProgress(state.Progress{Known: false})
		s.ResetShareCycle()
		snap := s.Snapshot()
		assert.Nil(t, snap.Sharing)
		assert.Nil(t, snap.Ticket)
	})
}

func TestDownloadProgress(t *testing.T) {
	s := state.NewStore()
	assert.Nil(t, s.Snapshot().Download)

	s.SetDownloadProgress(state.Progress{Ratio: 0, Known: true})
	snap := s.Snapshot()
	assert.NotNil(t, snap.Download)
	assert.Equal(t, 0.0, snap.Download.Ratio)

	s.ClearDownloadProgress()
	assert.Nil(t, s.Snapshot().Download)
}

func TestErrorStack(t *testing.T) {
	t.Run("push then ack returns to empty", func(t *testing.T) {
		s := state.NewStore()
		const k = 5
		for i := 0; i < k; i++ {
			s.PushError(fmt.Errorf("failure %d", i))
		}
		for i := k - 1; i >= 0; i-- {
			err := s.CurrentError()
			assert.EqualError(t, err, fmt.Sprintf("failure %d", i))
			assert.Equal(t, i+1, s.Snapshot().PendingErrors)
			s.AckError()
		}
		assert.Nil(t, s.CurrentError())
		assert.Equal(t, 0, s.Snapshot().PendingErrors)
	})

	t.Run("older error resurfaces after dismissal", func(t *testing.T) {
		s := state.NewStore()
		first := errors.New("first")
		second := errors.New("second")
		s.PushError(first)
		s.PushError(second)
		assert.Equal(t, second, s.Snapshot().Err)
		s.AckError()
		assert.Equal(t, first, s.Snapshot().Err)
	})

	t.Run("ack on empty is a no-op", func(t *testing.T) {
		s := state.NewStore()
		s.AckError()
		assert.Nil(t, s.CurrentError())
	})
}

func TestSnapshotIsolation(t *testing.T) {
	s := state.NewStore()
	s.SetSharingProgress(state.Progress{Ratio: 0.25, Known: true})
	snap := s.Snapshot()

	s.SetSharingProgress(state.Progress{Ratio: 0.75, Known: true})
	assert.Equal(t, 0.25, snap.Sharing.Ratio, "snapshot must not observe later writes")
}

func TestNotify(t *testing.T) {
	wakes := 0
	s := state.NewStore(state.WithNotify(func() { wakes++ }))
	s.SetSharingProgress(state.Progress{Known: false})
	s.PushError(errors.New("boom"))
	s.AckError()
	s.ResetShareCycle()
	assert.Equal(t, 4, wakes)
}
