package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/glibalien/obsidian-tools-sub002/internal/scanner"
)

// vaultPoller detects changes by rescanning the vault on an interval.
// It is the fallback for filesystems fsnotify cannot watch, such as
// network mounts.
type vaultPoller struct {
	interval time.Duration
	excluded map[string]bool
	scanner  *scanner.Scanner
	known    map[string]noteSnapshot
	events   chan Event
	errs     chan error
}

type noteSnapshot struct {
	modTime time.Time
	size    int64
}

func newVaultPoller(interval time.Duration, excluded map[string]bool) *vaultPoller {
	return &vaultPoller{
		interval: interval,
		excluded: excluded,
		scanner:  scanner.New(),
		known:    make(map[string]noteSnapshot),
		events:   make(chan Event, 100),
		errs:     make(chan error, 10),
	}
}

// run polls root until the context is cancelled or stopCh closes. It
// blocks.
func (p *vaultPoller) run(ctx context.Context, root string, stopCh <-chan struct{}) error {
	// Baseline scan so the first tick only reports real changes.
	baseline, err := p.listNotes(ctx, root)
	if err != nil {
		return fmt.Errorf("initial vault scan: %w", err)
	}
	p.known = baseline

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(p.events)
			close(p.errs)
			return ctx.Err()
		case <-stopCh:
			close(p.events)
			close(p.errs)
			return nil
		case <-ticker.C:
			p.tick(ctx, root)
		}
	}
}

func (p *vaultPoller) tick(ctx context.Context, root string) {
	current, err := p.listNotes(ctx, root)
	if err != nil {
		select {
		case p.errs <- err:
		default:
		}
		return
	}

	now := time.Now()
	for path, snap := range current {
		prev, seen := p.known[path]
		switch {
		case !seen:
			p.emit(Event{Path: path, Op: OpCreate, Timestamp: now})
		case prev.modTime != snap.modTime || prev.size != snap.size:
			p.emit(Event{Path: path, Op: OpModify, Timestamp: now})
		}
	}
	for path := range p.known {
		if _, still := current[path]; !still {
			p.emit(Event{Path: path, Op: OpDelete, Timestamp: now})
		}
	}

	p.known = current
}

func (p *vaultPoller) listNotes(ctx context.Context, root string) (map[string]noteSnapshot, error) {
	excludeDirs := make([]string, 0, len(p.excluded))
	for name := range p.excluded {
		excludeDirs = append(excludeDirs, name)
	}

	files, err := p.scanner.ScanAll(ctx, &scanner.Options{
		RootDir:     root,
		ExcludeDirs: excludeDirs,
	})
	if err != nil {
		return nil, err
	}

	notes := make(map[string]noteSnapshot, len(files))
	for _, f := range files {
		notes[f.Path] = noteSnapshot{modTime: f.ModTime, size: f.Size}
	}
	return notes, nil
}

func (p *vaultPoller) emit(event Event) {
	select {
	case p.events <- event:
	default:
	}
}
