package backend

import (
	"fmt"
	"sort"
	"sync"
)

// Operation names an optional backend interface.
type Operation string

const (
	OpExportFile         Operation = "export_file"
	OpExportDirectory    Operation = "export_directory"
	OpDirectoryContents  Operation = "get_directory_contents"
	OpAnnotate           Operation = "get_file_annotation"
	OpParallelItems      Operation = "get_parallel_items"
	OpGetItem            Operation = "get_item"
	OpSelectLabel        Operation = "get_selected_label"
	OpObserveOperations  Operation = "operation"
	OpUsernamePolicy     Operation = "account_username"
	OpFormatRevision     Operation = "format_revision_identifier"
	OpAuthorizeOperation Operation = "write_access"
)

func implemented(b Backend) map[Operation]bool {
	ops := make(map[Operation]bool)
	set := func(op Operation, ok bool) {
		if ok {
			ops[op] = true
		}
	}
	_, ok := b.(FileExporter)
	set(OpExportFile, ok)
	_, ok = b.(DirectoryExporter)
	set(OpExportDirectory, ok)
	_, ok = b.(DirectoryLister)
	set(OpDirectoryContents, ok)
	_, ok = b.(Annotator)
	set(OpAnnotate, ok)
	_, ok = b.(ParallelItemFinder)
	set(OpParallelItems, ok)
	_, ok = b.(ItemGetter)
	set(OpGetItem, ok)
	_, ok = b.(LabelSelector)
	set(OpSelectLabel, ok)
	_, ok = b.(OperationObserver)
	set(OpObserveOperations, ok)
	_, ok = b.(UsernamePolicy)
	set(OpUsernamePolicy, ok)
	_, ok = b.(RevisionFormatter)
	set(OpFormatRevision, ok)
	_, ok = b.(Authorizer)
	set(OpAuthorizeOperation, ok)
	return ops
}

type entry struct {
	backend Backend
	info    Info
	ops     map[Operation]bool
}

// Registry maps VCS identifiers to backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]entry
}

func NewRegistry(backends ...Backend) (*Registry, error) {
	r := &Registry{backends: make(map[string]entry)}
	for _, b := range backends {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(b Backend) error {
	vcs := b.VCS()
	if vcs == "" {
		return fmt.Errorf("register backend: empty vcs identifier")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[vcs]; ok {
		return fmt.Errorf("register backend %q: already registered", vcs)
	}
	r.backends[vcs] = entry{backend: b, info: b.Info(), ops: implemented(b)}
	return nil
}

func (r *Registry) lookup(vcs string) (entry, bool) {
	if r == nil {
		return entry{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.backends[vcs]
	return e, ok
}

func (r *Registry) Get(vcs string) (Backend, bool) {
	e, ok := r.lookup(vcs)
	return e.backend, ok
}

func (r *Registry) Info(vcs string) (Info, bool) {
	e, ok := r.lookup(vcs)
	return e.info, ok
}

// Implements reports whether the backend for vcs provides op.
func (r *Registry) Implements(vcs string, op Operation) bool {
	e, ok := r.lookup(vcs)
	return ok && e.ops[op]
}

// Supports reports whether the backend for vcs declares capability c.
func (r *Registry) Supports(vcs string, c Capability) bool {
	e, ok := r.lookup(vcs)
	return ok && e.info.Has(c)
}

func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for k := range r.backends {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// As returns the backend for vcs as T when it implements T.
func As[T any](r *Registry, vcs string) (T, bool) {
	var zero T
	e, ok := r.lookup(vcs)
	if !ok {
		return zero, false
	}
	t, ok := e.backend.(T)
	return t, ok
}
