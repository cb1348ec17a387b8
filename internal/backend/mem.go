package backend

import (
	"bytes"
	"context"
	"hash"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Memory is an in-memory Backend, used by tests that don't want to touch
// the filesystem.
type Memory struct {
	mu   sync.Mutex
	objs map[Kind]map[string][]byte
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{objs: make(map[Kind]map[string][]byte)}
}

func (m *Memory) Read(ctx context.Context, kind Kind, name string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kindMap, ok := m.objs[kind]
	if !ok {
		return nil, ErrNotExist
	}
	data, ok := kindMap[name]
	if !ok {
		return nil, ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Write(ctx context.Context, kind Kind, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objs[kind] == nil {
		m.objs[kind] = make(map[string][]byte)
	}
	m.objs[kind][name] = data
	return nil
}

func (m *Memory) Remove(ctx context.Context, kind Kind, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objs[kind] != nil {
		delete(m.objs[kind], name)
	}
	return nil
}

func (m *Memory) List(ctx context.Context, kind Kind, fn func(Entry) error) error {
	m.mu.Lock()
	entries := make([]Entry, 0, len(m.objs[kind]))
	for name, data := range m.objs[kind] {
		entries = append(entries, Entry{Name: name, Size: int64(len(data))})
	}
	m.mu.Unlock()

	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Probe(ctx context.Context, kind Kind, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objs[kind] == nil {
		return false, nil
	}
	_, ok := m.objs[kind][name]
	return ok, nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) Hasher() hash.Hash {
	return xxhash.New()
}
