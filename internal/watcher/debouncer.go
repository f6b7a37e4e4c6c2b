package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces bursts of events for the same path so a rapid
// editor save loop triggers one sync run instead of dozens. Pairs of
// operations within the window merge:
//
//	CREATE then MODIFY -> CREATE
//	CREATE then DELETE -> dropped
//	MODIFY then DELETE -> DELETE
//	DELETE then CREATE -> MODIFY (atomic-save replace)
type Debouncer struct {
	window  time.Duration
	pending map[string]*pendingEvent
	output  chan []Event
	timer   *time.Timer
	mu      sync.Mutex
	stopped bool
}

type pendingEvent struct {
	event   Event
	firstOp Op
}

// NewDebouncer creates a debouncer that flushes after window of
// quiet.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []Event, 10),
	}
}

// Add records an event, merging it with any pending event for the
// same path.
func (d *Debouncer) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged := coalesce(existing.firstOp, event)
		if merged == nil {
			delete(d.pending, event.Path)
		} else {
			existing.event = *merged
		}
	} else {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Op}
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges a later event into the pending one. A nil result
// means the pair cancelled out.
func coalesce(firstOp Op, next Event) *Event {
	switch firstOp {
	case OpCreate:
		switch next.Op {
		case OpModify:
			next.Op = OpCreate
			return &next
		case OpDelete:
			return nil
		}
	case OpDelete:
		if next.Op == OpCreate {
			next.Op = OpModify
			return &next
		}
	}
	return &next
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]Event, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.output <- events:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(events)))
	}
}

// Output returns the channel of flushed batches.
func (d *Debouncer) Output() <-chan []Event {
	return d.output
}

// Stop closes the output channel. Safe to call more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
