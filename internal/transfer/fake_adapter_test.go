package transfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
)

// memAdapter records everything written to it
type memAdapter struct {
	kind       DestinationKind
	every      int
	prepareErr error

	mu       sync.Mutex
	handles  []*memHandle
	failFile map[string]error
	dirErr   map[string]error
	onWrite  func(count int)
	onPrep   func()
}

func newMemAdapter(kind DestinationKind) *memAdapter {
	return &memAdapter{
		kind:     kind,
		every:    ProgressEveryFilesystem,
		failFile: map[string]error{},
		dirErr:   map[string]error{},
	}
}

func (a *memAdapter) Kind() DestinationKind { return a.kind }
func (a *memAdapter) ProgressEvery() int     { return a.every }

func (a *memAdapter) Prepare(_ context.Context, _ DestinationConfig, rootName string) (Handle, error) {
	if a.prepareErr != nil {
		return nil, a.prepareErr
	}
	if a.onPrep != nil {
		a.onPrep()
	}
	h := &memHandle{adapter: a, root: rootName, files: map[string]string{}}
	a.mu.Lock()
	a.handles = append(a.handles, h)
	a.mu.Unlock()
	return h, nil
}

func (a *memAdapter) last() *memHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.handles) == 0 {
		return nil
	}
	return a.handles[len(a.handles)-1]
}

type memHandle struct {
	adapter *memAdapter
	root    string
	dirs    []string
	files   map[string]string
	order   []string
	writes  int
	closed  bool
}

func (h *memHandle) Root() string { return h.root }

func (h *memHandle) EnsureDirectory(_ context.Context, rel string) error {
	h.dirs = append(h.dirs, rel)
	if err, ok := h.adapter.dirErr[rel]; ok {
		return err
	}
	return nil
}

func (h *memHandle) WriteFile(_ context.Context, localPath, rel string) error {
	h.writes++
	if h.adapter.onWrite != nil {
		defer h.adapter.onWrite(h.writes)
	}
	if err, ok := h.adapter.failFile[filepath.Base(localPath)]; ok {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	h.files[rel] = string(data)
	h.order = append(h.order, rel)
	return nil
}

func (h *memHandle) Close() error {
	h.closed = true
	return nil
}

func (h *memHandle) fileNames() []string {
	names := make([]string, 0, len(h.files))
	for k := range h.files {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// recorder collects sink callbacks
type recorder struct {
	mu       sync.Mutex
	logs     []string
	progress []int
	statuses []string
}

func (r *recorder) sinks() Sinks {
	return Sinks{
		OnProgress: func(p int, status string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, p)
			r.statuses = append(r.statuses, status)
		},
		OnLog: func(msg string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.logs = append(r.logs, msg)
		},
	}
}

func (r *recorder) linesContaining(sub string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.logs {
		if strings.Contains(l, sub) {
			n++
		}
	}
	return n
}

// writeTree creates files under root; keys are slash separated relative paths
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

var errBoom = errors.New("boom")
