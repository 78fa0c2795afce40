// Package changes tracks files the agent edits so the host can review the
// edited lines and accept or revert them.
package changes

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrNotTracked is returned for paths with no tracked changes.
var ErrNotTracked = errors.New("changes: file is not tracked")

// RevertError reports a failed revert. The file stays tracked so the
// revert can be retried.
type RevertError struct {
	Cause error
	Path  string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("revert %s: %v", e.Path, e.Cause)
}

func (e *RevertError) Unwrap() error {
	return e.Cause
}

// TrackedFile is the review state of one edited file.
type TrackedFile struct {
	// Path is absolute and cleaned.
	Path     string
	Added    RangeSet
	Modified RangeSet
	// OriginalContent is the content before the agent first touched the
	// file. It is never overwritten by later edits.
	OriginalContent string
	// Existed is false when the agent created the file.
	Existed bool
}

func (f *TrackedFile) clone() TrackedFile {
	out := *f
	out.Added = append(RangeSet(nil), f.Added...)
	out.Modified = append(RangeSet(nil), f.Modified...)
	return out
}

// snapshot is a pre-tool content capture.
type snapshot struct {
	path    string
	content string
	existed bool
	// resolved is set once the tool's result was applied.
	resolved bool
}

type trackedEntry struct {
	TrackedFile
	// current is the content seen at the last applied result.
	current string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// Tracker records file content before file-mutating tools run and diffs
// it against the content after they finish. It is safe for concurrent use.
type Tracker struct {
	logger    *slog.Logger
	snapshots map[string]*snapshot
	originals map[string]snapshot
	files     map[string]*trackedEntry
	baseDir   string
	mu        sync.Mutex
}

// New creates a Tracker resolving relative paths against baseDir.
func New(baseDir string, opts ...Option) *Tracker {
	t := &Tracker{
		baseDir:   baseDir,
		logger:    slog.Default(),
		snapshots: make(map[string]*snapshot),
		originals: make(map[string]snapshot),
		files:     make(map[string]*trackedEntry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BaseDir returns the directory relative paths are resolved against.
func (t *Tracker) BaseDir() string {
	return t.baseDir
}

// Resolve returns the absolute, cleaned form of path.
func (t *Tracker) Resolve(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.baseDir, path)
	}
	return filepath.Clean(path)
}

// SnapshotFile captures path's current content for toolID. A missing file
// is captured as empty. The first snapshot of a path becomes its original
// content until the path is accepted, rejected, or cleared, or until every
// pending tool on it resolves without changing it.
func (t *Tracker) SnapshotFile(toolID, path string) error {
	abs := t.Resolve(path)
	content, existed, err := readFile(abs)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", abs, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.snapshots[toolID]; ok && prev.path == abs {
		return nil
	}
	t.snapshots[toolID] = &snapshot{path: abs, content: content, existed: existed}
	if _, ok := t.originals[abs]; !ok {
		t.originals[abs] = snapshot{path: abs, content: content, existed: existed}
	}
	t.logger.Debug("snapshot taken", "tool_id", toolID, "path", abs, "existed", existed)
	return nil
}

// OnResult diffs the file captured for toolID against its current content
// and merges the changed lines into the file's tracked ranges. It returns
// false when toolID has no snapshot or nothing changed. Repeated calls for
// the same toolID do not grow the ranges.
func (t *Tracker) OnResult(toolID string) (TrackedFile, bool, error) {
	t.mu.Lock()
	snap, ok := t.snapshots[toolID]
	t.mu.Unlock()
	if !ok {
		return TrackedFile{}, false, nil
	}

	after, exists, err := readFile(snap.path)
	if err != nil {
		return TrackedFile{}, false, fmt.Errorf("read result %s: %w", snap.path, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Cleared while reading.
	if t.snapshots[toolID] != snap {
		return TrackedFile{}, false, nil
	}
	snap.resolved = true

	entry, tracked := t.files[snap.path]
	if !tracked && after == snap.content && exists == snap.existed {
		if !t.pendingLocked(snap.path) {
			delete(t.originals, snap.path)
		}
		return TrackedFile{}, false, nil
	}

	d := DiffLines(snap.content, after)
	if !tracked {
		orig, ok := t.originals[snap.path]
		if !ok {
			orig = *snap
		}
		entry = &trackedEntry{TrackedFile: TrackedFile{
			Path:            snap.path,
			OriginalContent: orig.content,
			Existed:         orig.existed,
		}}
		t.files[snap.path] = entry
	}
	entry.Added = entry.Added.Union(d.Added)
	entry.Modified = entry.Modified.Union(d.Modified).Subtract(entry.Added)
	entry.current = after

	t.logger.Debug("file change tracked", "tool_id", toolID, "path", snap.path,
		"added", entry.Added.Lines(), "modified", entry.Modified.Lines())
	return entry.clone(), true, nil
}

func (t *Tracker) pendingLocked(abs string) bool {
	for _, s := range t.snapshots {
		if s.path == abs && !s.resolved {
			return true
		}
	}
	return false
}

// InFlight reports whether a snapshot of path awaits its tool result.
func (t *Tracker) InFlight(path string) bool {
	abs := t.Resolve(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingLocked(abs)
}

// ChangedOnDisk reports whether a tracked file's content differs from the
// content seen at its last tool result, meaning something other than the
// agent wrote it. Files with a tool in flight report false.
func (t *Tracker) ChangedOnDisk(path string) (bool, error) {
	abs := t.Resolve(path)
	t.mu.Lock()
	entry, ok := t.files[abs]
	var current string
	if ok {
		current = entry.current
	}
	t.mu.Unlock()
	if !ok || t.InFlight(abs) {
		return false, nil
	}

	content, _, err := readFile(abs)
	if err != nil {
		return false, err
	}
	return content != current, nil
}

// AcceptFile stops tracking path, leaving its content as is.
func (t *Tracker) AcceptFile(path string) error {
	abs := t.Resolve(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.files[abs]; !ok {
		return ErrNotTracked
	}
	t.forgetLocked(abs)
	return nil
}

// AcceptAll stops tracking every file and returns their paths.
func (t *Tracker) AcceptAll() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := t.pathsLocked()
	for _, p := range paths {
		t.forgetLocked(p)
	}
	return paths
}

// RejectFile restores path to its original content and stops tracking it.
// A file the agent created is removed. On failure the file stays tracked
// and a *RevertError is returned.
func (t *Tracker) RejectFile(path string) error {
	abs := t.Resolve(path)
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.files[abs]
	if !ok {
		return ErrNotTracked
	}

	if entry.Existed {
		mode := fs.FileMode(0o644)
		if info, err := os.Stat(abs); err == nil {
			mode = info.Mode().Perm()
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return &RevertError{Path: abs, Cause: err}
		}
		if err := os.WriteFile(abs, []byte(entry.OriginalContent), mode); err != nil {
			return &RevertError{Path: abs, Cause: err}
		}
	} else if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &RevertError{Path: abs, Cause: err}
	}

	t.logger.Debug("file reverted", "path", abs, "existed", entry.Existed)
	t.forgetLocked(abs)
	return nil
}

// Clear drops all tracking state without touching disk.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshots = make(map[string]*snapshot)
	t.originals = make(map[string]snapshot)
	t.files = make(map[string]*trackedEntry)
}

// Files returns the tracked files sorted by path.
func (t *Tracker) Files() []TrackedFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := t.pathsLocked()
	out := make([]TrackedFile, 0, len(paths))
	for _, p := range paths {
		out = append(out, t.files[p].clone())
	}
	return out
}

// File returns the tracked state of path.
func (t *Tracker) File(path string) (TrackedFile, bool) {
	abs := t.Resolve(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.files[abs]
	if !ok {
		return TrackedFile{}, false
	}
	return entry.clone(), true
}

// Diff renders a unified diff from path's original content to its current
// content on disk, with names relative to the base directory.
func (t *Tracker) Diff(path string) (string, error) {
	abs := t.Resolve(path)
	f, ok := t.File(abs)
	if !ok {
		return "", ErrNotTracked
	}
	current, exists, err := readFile(abs)
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", abs, err)
	}

	name := abs
	if rel, err := filepath.Rel(t.baseDir, abs); err == nil && filepath.IsLocal(rel) {
		name = rel
	}
	oldName, newName := name, name
	if !f.Existed {
		oldName = ""
	}
	if !exists {
		newName = ""
	}
	return Unified(oldName, newName, f.OriginalContent, current), nil
}

func (t *Tracker) forgetLocked(abs string) {
	delete(t.files, abs)
	delete(t.originals, abs)
	for id, s := range t.snapshots {
		if s.path == abs {
			delete(t.snapshots, id)
		}
	}
}

func (t *Tracker) pathsLocked() []string {
	paths := make([]string, 0, len(t.files))
	for p := range t.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// readFile returns path's content, treating a missing file as empty.
func readFile(path string) (string, bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}
