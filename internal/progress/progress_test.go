package progress_test

import (
	"testing"

	"github.com/beamspace/beam/internal/progress"
	"github.com/stretchr/testify/assert"
)

func TestAggregator(t *testing.T) {
	t.Run("indeterminate until size declared", func(t *testing.T) {
		var agg progress.Aggregator
		_, known := agg.Ratio()
		assert.False(t, known)

		agg.Apply(progress.Event{Type: progress.Processed, Bytes: 512})
		_, known = agg.Ratio()
		assert.False(t, known, "no declared size, ratio must stay indeterminate")
	})

	t.Run("monotone and bounded", func(t *testing.T) {
		var agg progress.Aggregator
		agg.Apply(progress.Event{Type: progress.DeclaredSize, Bytes: 1000})

		prev := 0.0
		for i := 0; i < 10; i++ {
			agg.Apply(progress.Event{Type: progress.Processed, Bytes: 100})
			ratio, known := agg.Ratio()
			assert.True(t, known)
			assert.GreaterOrEqual(t, ratio, prev)
			assert.LessOrEqual(t, ratio, 1.0)
			prev = ratio
		}
		assert.Equal(t, 1.0, prev)
	})

	t.Run("processed over declared", func(t *testing.T) {
		var agg progress.Aggregator
		agg.Apply(progress.Event{Type: progress.DeclaredSize, Bytes: 200})
		agg.Apply(progress.Event{Type: progress.Processed, Bytes: 50})
		ratio, known := agg.Ratio()
		assert.True(t, known)
		assert.Equal(t, 0.25, ratio)
	})

	t.Run("overshoot clamps to one", func(t *testing.T) {
		var agg progress.Aggregator
		agg.Apply(progress.Event{Type: progress.DeclaredSize, Bytes: 100})
		agg.Apply(progress.Event{Type: progress.Processed, Bytes: 150})
		ratio, _ := agg.Ratio()
		assert.Equal(t, 1.0, ratio)
	})

	t.Run("multiple sub-items", func(t *testing.T) {
		var agg progress.Aggregator
		agg.Apply(progress.Event{Type: progress.DeclaredSize, ID: 0, Bytes: 100})
		agg.Apply(progress.Event{Type: progress.DeclaredSize, ID: 1, Bytes: 300})
		agg.Apply(progress.Event{Type: progress.Processed, ID: 0, Bytes: 100})
		ratio, known := agg.Ratio()
		assert.True(t, known)
		assert.Equal(t, 0.25, ratio)
	})

	t.Run("done event does not disturb totals", func(t *testing.T) {
		var agg progress.Aggregator
		agg.Apply(progress.Event{Type: progress.DeclaredSize, Bytes: 100})
		agg.Apply(progress.Event{Type: progress.Processed, Bytes: 100})
		agg.Apply(progress.Event{Type: progress.Done})
		ratio, known := agg.Ratio()
		assert.True(t, known)
		assert.Equal(t, 1.0, ratio)
	})
}

func TestRelay(t *testing.T) {
	t.Run("applies events in emission order", func(t *testing.T) {
		events := make(chan progress.Event, progress.ChannelCap)
		events <- progress.Event{Type: progress.DeclaredSize, Bytes: 1000}
		for i := 0; i < 4; i++ {
			events <- progress.Event{Type: progress.Processed, Bytes: 250}
		}
		close(events)

		var ratios []float64
		progress.Relay(events, func(ratio float64, known bool) {
			if known {
				ratios = append(ratios, ratio)
			}
		})
		assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, ratios)
	})

	t.Run("indeterminate stream", func(t *testing.T) {
		events := make(chan progress.Event, progress.ChannelCap)
		events <- progress.Event{Type: progress.Processed, Bytes: 10}
		close(events)

		calls := 0
		progress.Relay(events, func(_ float64, known bool) {
			calls++
			assert.False(t, known)
		})
		assert.Equal(t, 1, calls)
	})

	t.Run("returns when channel closes", func(t *testing.T) {
		events := make(chan progress.Event)
		done := make(chan struct{})
		go func() {
			progress.Relay(events, func(float64, bool) {})
			close(done)
		}()
		close(events)
		<-done
	})
}
