// Package scanner discovers markdown notes in a vault, respecting
// exclusion patterns and size limits.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMaxFileSize is the default maximum note size (2MB). Notes
// larger than this are almost never hand-written markdown.
const DefaultMaxFileSize = 2 * 1024 * 1024

// markdownExtensions are the file extensions treated as notes.
var markdownExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
}

// FileInfo contains metadata about a discovered note.
type FileInfo struct {
	Path    string    // relative to the vault root, forward slashes
	AbsPath string    // absolute path
	Size    int64     // file size in bytes
	ModTime time.Time // last modification time
}

// Options configures a vault scan.
type Options struct {
	// RootDir is the vault root directory.
	RootDir string

	// ExcludeDirs are directory names skipped anywhere in the tree.
	ExcludeDirs []string

	// MaxFileSize is the maximum note size in bytes (0 = 2MB default).
	MaxFileSize int64
}

// Result is streamed from the scan channel.
type Result struct {
	File  *FileInfo
	Error error
}

// Scanner discovers markdown notes under a vault root.
type Scanner struct{}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{}
}

// Scan streams discovered notes on the returned channel. The channel
// is closed when the walk completes or the context is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts *Options) (<-chan Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat vault root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root is not a directory: %s", absRoot)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	excluded := make(map[string]bool, len(opts.ExcludeDirs))
	for _, dir := range opts.ExcludeDirs {
		excluded[dir] = true
	}

	results := make(chan Result, 64)

	go func() {
		defer close(results)
		s.walk(ctx, absRoot, excluded, maxFileSize, results)
	}()

	return results, nil
}

// ScanAll collects the full scan into a slice, keyed for callers that
// do not need streaming.
func (s *Scanner) ScanAll(ctx context.Context, opts *Options) ([]*FileInfo, error) {
	results, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var files []*FileInfo
	for r := range results {
		if r.Error != nil {
			return nil, r.Error
		}
		files = append(files, r.File)
	}
	return files, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, excluded map[string]bool, maxFileSize int64, results chan<- Result) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			// Unreadable entries are skipped, not fatal
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath == "." {
				return nil
			}
			name := d.Name()
			if excluded[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinked notes can escape the vault, skip them
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		if !markdownExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		if info.Size() > maxFileSize {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case results <- Result{File: &FileInfo{
			Path:    relPath,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}}:
		}
		return nil
	})

	if err != nil && ctx.Err() == nil {
		select {
		case results <- Result{Error: err}:
		default:
		}
	}
}
