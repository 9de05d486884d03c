package tokenrepofake

import (
	"sync"

	sesserrors "github.com/jrsteele09/go-inventory-session/internal/errors"
	"github.com/jrsteele09/go-inventory-session/token"
)

var _ token.Repo = (*FakeKVRepo)(nil)

// Op names a repo operation failures can be injected into.
type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpDelete Op = "delete"
)

// FakeKVRepo is an in-memory token.Repo. It doubles as an ephemeral store for
// shells that must not persist anything, and lets tests inject failures.
type FakeKVRepo struct {
	values   map[string]string
	failures map[Op]map[string]error
	writes   []string
	lock     sync.RWMutex
}

func NewFakeKVRepo() *FakeKVRepo {
	return &FakeKVRepo{
		values:   make(map[string]string),
		failures: make(map[Op]map[string]error),
	}
}

// FailOn makes op on key return err until Heal is called.
func (r *FakeKVRepo) FailOn(op Op, key string, err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.failures[op] == nil {
		r.failures[op] = make(map[string]error)
	}
	r.failures[op][key] = err
}

// Heal removes every injected failure.
func (r *FakeKVRepo) Heal() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.failures = make(map[Op]map[string]error)
}

// Writes returns the keys written, in order.
func (r *FakeKVRepo) Writes() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]string(nil), r.writes...)
}

// Len returns how many keys are held.
func (r *FakeKVRepo) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.values)
}

// Raw returns a stored value without injected failures, for assertions.
func (r *FakeKVRepo) Raw(key string) (string, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

func (r *FakeKVRepo) failure(op Op, key string) error {
	if keys, ok := r.failures[op]; ok {
		return keys[key]
	}
	return nil
}

func (r *FakeKVRepo) Get(key string) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if err := r.failure(OpGet, key); err != nil {
		return "", err
	}
	v, ok := r.values[key]
	if !ok {
		return "", sesserrors.ErrNotFound
	}
	return v, nil
}

func (r *FakeKVRepo) Set(key, value string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if err := r.failure(OpSet, key); err != nil {
		return err
	}
	r.values[key] = value
	r.writes = append(r.writes, key)
	return nil
}

func (r *FakeKVRepo) Delete(key string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if err := r.failure(OpDelete, key); err != nil {
		return err
	}
	delete(r.values, key)
	return nil
}
