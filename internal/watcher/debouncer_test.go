package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectBatch(t *testing.T, d *Debouncer, timeout time.Duration) []Event {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(timeout):
		t.Fatal("timed out waiting for debounced batch")
		return nil
	}
}

func TestDebouncerCoalescesCreateThenModify(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "note.md", Op: OpCreate})
	d.Add(Event{Path: "note.md", Op: OpModify})

	events := collectBatch(t, d, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, OpCreate, events[0].Op)
}

func TestDebouncerDropsCreateThenDelete(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "tmp.md", Op: OpCreate})
	d.Add(Event{Path: "tmp.md", Op: OpDelete})
	d.Add(Event{Path: "keep.md", Op: OpModify})

	events := collectBatch(t, d, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, "keep.md", events[0].Path)
}

func TestDebouncerDeleteThenCreateBecomesModify(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// Atomic saves delete the file and write a fresh one.
	d.Add(Event{Path: "note.md", Op: OpDelete})
	d.Add(Event{Path: "note.md", Op: OpCreate})

	events := collectBatch(t, d, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, OpModify, events[0].Op)
}

func TestDebouncerModifyThenDeleteKeepsDelete(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "note.md", Op: OpModify})
	d.Add(Event{Path: "note.md", Op: OpDelete})

	events := collectBatch(t, d, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, OpDelete, events[0].Op)
}

func TestDebouncerSeparatePathsKeptApart(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(Event{Path: "a.md", Op: OpModify})
	d.Add(Event{Path: "b.md", Op: OpModify})

	events := collectBatch(t, d, time.Second)
	assert.Len(t, events, 2)
}

func TestDebouncerBurstEmitsOneBatch(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	for range 20 {
		d.Add(Event{Path: "busy.md", Op: OpModify})
		time.Sleep(time.Millisecond)
	}

	events := collectBatch(t, d, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, OpModify, events[0].Op)

	select {
	case extra := <-d.Output():
		t.Fatalf("unexpected second batch: %v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncerAddAfterStopIsNoop(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Stop()
	d.Stop()

	d.Add(Event{Path: "late.md", Op: OpCreate})

	_, open := <-d.Output()
	assert.False(t, open)
}
