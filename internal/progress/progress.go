// Package progress converts the transfer engine's raw per-item byte events
// into a single displayable ratio for one in-flight operation.
package progress

// ChannelCap is the capacity of a per-operation event channel. The small
// bound applies backpressure to the engine if the relay falls behind.
const ChannelCap = 32

// EventType specifies the event types emitted by the transfer engine.
type EventType int

const (
	// DeclaredSize announces the size of a sub-item before it is processed.
	DeclaredSize EventType = iota
	// Processed reports additional bytes processed for a sub-item.
	Processed
	// Done marks the end of a fetch operation.
	Done
)

// Event is a single progress notification for an in-flight operation.
type Event struct {
	Type  EventType
	ID    int
	Bytes int64
}

// Aggregator folds the event stream of one operation into a ratio. It is
// scoped to a single operation and never shared across operations.
type Aggregator struct {
	declared  int64
	processed int64
}

// Apply adds the event to the running totals.
func (a *Aggregator) Apply(ev Event) {
	switch ev.Type {
	case DeclaredSize:
		a.declared += ev.Bytes
	case Processed:
		a.processed += ev.Bytes
	}
}

// Ratio reports the processed/declared ratio clamped to [0,1]. The second
// return value is false while no size has been declared, in which case
// progress is indeterminate and the ratio must not be displayed.
func (a *Aggregator) Ratio() (float64, bool) {
	if a.declared <= 0 {
		return 0, false
	}
	r := float64(a.processed) / float64(a.declared)
	if r > 1 {
		r = 1
	}
	if r < 0 {
		r = 0
	}
	return r, true
}

// Relay drains events in emission order into the provided write function
// until the channel is closed. The write function receives the current ratio
// and whether it is determinate; it must be O(1) and non-blocking as the
// channel's small capacity stalls the engine's producer otherwise.
func Relay(events <-chan Event, write func(ratio float64, known bool)) {
	var agg Aggregator
	for ev := range events {
		agg.Apply(ev)
		ratio, known := agg.Ratio()
		write(ratio, known)
	}
}
