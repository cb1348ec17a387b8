package backend

import (
	"context"
	"hash"
	"io"

	"golang.org/x/sync/semaphore"

	"github.com/mrkline/backpak/internal/debug"
)

// Semaphored wraps another Backend, bounding how many operations against it
// run concurrently. Useful for network backends where the underlying
// service or connection pool has a concurrency limit the caller has to
// respect itself.
type Semaphored struct {
	Raw Backend
	sem *semaphore.Weighted
}

// NewSemaphored bounds concurrent operations against raw to n at a time.
func NewSemaphored(raw Backend, n int64) *Semaphored {
	return &Semaphored{Raw: raw, sem: semaphore.NewWeighted(n)}
}

func (s *Semaphored) acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	return nil
}

func (s *Semaphored) Read(ctx context.Context, kind Kind, name string) (io.ReadCloser, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}

	rc, err := s.Raw.Read(ctx, kind, name)
	if err != nil {
		s.sem.Release(1)
		return nil, err
	}
	return &releaseOnClose{ReadCloser: rc, release: func() { s.sem.Release(1) }}, nil
}

func (s *Semaphored) Write(ctx context.Context, kind Kind, name string, r io.Reader) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)
	return s.Raw.Write(ctx, kind, name, r)
}

func (s *Semaphored) Remove(ctx context.Context, kind Kind, name string) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)
	return s.Raw.Remove(ctx, kind, name)
}

func (s *Semaphored) List(ctx context.Context, kind Kind, fn func(Entry) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.sem.Release(1)
	return s.Raw.List(ctx, kind, fn)
}

func (s *Semaphored) Probe(ctx context.Context, kind Kind, name string) (bool, error) {
	if err := s.acquire(ctx); err != nil {
		return false, err
	}
	defer s.sem.Release(1)
	return s.Raw.Probe(ctx, kind, name)
}

func (s *Semaphored) Close() error {
	return s.Raw.Close()
}

func (s *Semaphored) Hasher() hash.Hash {
	return s.Raw.Hasher()
}

// releaseOnClose wraps an io.ReadCloser to release a semaphore slot on
// Close, once the caller is actually done draining the read.
type releaseOnClose struct {
	io.ReadCloser
	release func()
	done    bool
}

func (r *releaseOnClose) Close() error {
	err := r.ReadCloser.Close()
	if !r.done {
		r.done = true
		r.release()
	}
	debug.Log("semaphored read closed")
	return err
}
