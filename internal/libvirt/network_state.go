package libvirt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const stateLockRetry = 50 * time.Millisecond

// networkRefs maps libvirt network names to the sorted ids of the VMs
// using them.
type networkRefs map[string][]string

func (r networkRefs) add(name, vmID string) {
	users := r[name]
	i := sort.SearchStrings(users, vmID)
	if i < len(users) && users[i] == vmID {
		return
	}
	users = append(users, "")
	copy(users[i+1:], users[i:])
	users[i] = vmID
	r[name] = users
}

func (r networkRefs) remove(name, vmID string) bool {
	users := r[name]
	i := sort.SearchStrings(users, vmID)
	if i == len(users) || users[i] != vmID {
		return false
	}
	users = append(users[:i:i], users[i+1:]...)
	if len(users) == 0 {
		delete(r, name)
	} else {
		r[name] = users
	}
	return true
}

func (r networkRefs) clone() networkRefs {
	out := make(networkRefs, len(r))
	for name, users := range r {
		out[name] = append([]string(nil), users...)
	}
	return out
}

// refStore holds the references. update commits the changes fn makes only
// when fn succeeds.
type refStore interface {
	update(ctx context.Context, fn func(networkRefs) error) error
	view(ctx context.Context, fn func(networkRefs)) error
}

type memoryRefs struct {
	mu   sync.Mutex
	refs networkRefs
}

func newMemoryRefs() *memoryRefs {
	return &memoryRefs{refs: make(networkRefs)}
}

func (m *memoryRefs) update(_ context.Context, fn func(networkRefs) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.refs.clone()
	if err := fn(next); err != nil {
		return err
	}
	m.refs = next
	return nil
}

func (m *memoryRefs) view(_ context.Context, fn func(networkRefs)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.refs)
	return nil
}

// fileRefs keeps the references in a YAML file guarded by a file lock,
// shared by every vmdev process on the host.
type fileRefs struct {
	path string
	log  logrus.FieldLogger
}

func newFileRefs(path string, log logrus.FieldLogger) *fileRefs {
	return &fileRefs{path: path, log: log}
}

func (f *fileRefs) update(ctx context.Context, fn func(networkRefs) error) error {
	return f.locked(ctx, func() error {
		refs, err := f.load()
		if err != nil {
			return err
		}
		if err := fn(refs); err != nil {
			return err
		}
		return f.store(refs)
	})
}

func (f *fileRefs) view(ctx context.Context, fn func(networkRefs)) error {
	return f.locked(ctx, func() error {
		refs, err := f.load()
		if err != nil {
			return err
		}
		fn(refs)
		return nil
	})
}

func (f *fileRefs) locked(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	lock := flock.New(f.path + ".lock")
	ok, err := lock.TryLockContext(ctx, stateLockRetry)
	if err != nil {
		return fmt.Errorf("failed to lock network state: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to lock network state: %w", ctx.Err())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			f.log.WithError(err).Warn("failed to unlock network state")
		}
	}()
	return fn()
}

func (f *fileRefs) load() (networkRefs, error) {
	refs := make(networkRefs)
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read network state: %w", err)
	}
	if err := yaml.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("failed to parse network state %s: %w", f.path, err)
	}
	if refs == nil {
		refs = make(networkRefs)
	}
	for name, users := range refs {
		sort.Strings(users)
		if len(users) == 0 {
			delete(refs, name)
		}
	}
	return refs, nil
}

func (f *fileRefs) store(refs networkRefs) error {
	data, err := yaml.Marshal(refs)
	if err != nil {
		return fmt.Errorf("failed to marshal network state: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write network state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to write network state: %w", err)
	}
	return nil
}
