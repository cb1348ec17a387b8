package backend

import (
	"bytes"
	"context"
	"fmt"
	"hash"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mrkline/backpak/internal/debug"
)

// Retry wraps another Backend, retrying operations after a backoff when
// they fail. Useful for network backends, where a blip shouldn't fail an
// entire backup or restore.
type Retry struct {
	Raw      Backend
	MaxTries int
	// Report, if set, is called with a description of the failed operation,
	// the error, and how long we're about to wait before trying again.
	Report func(string, error, time.Duration)
}

// NewRetry wraps raw with a backend that retries operations after a backoff.
func NewRetry(raw Backend, maxTries int, report func(string, error, time.Duration)) *Retry {
	return &Retry{Raw: raw, MaxTries: maxTries, Report: report}
}

func (r *Retry) retry(ctx context.Context, msg string, f func() error) error {
	return backoff.RetryNotify(f,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(r.MaxTries)), ctx),
		func(err error, d time.Duration) {
			debug.Log("%s failed, retrying in %v: %v", msg, d, err)
			if r.Report != nil {
				r.Report(msg, err, d)
			}
		},
	)
}

func (r *Retry) Read(ctx context.Context, kind Kind, name string) (rc io.ReadCloser, err error) {
	err = r.retry(ctx, fmt.Sprintf("Read(%s, %s)", kind, name), func() error {
		var innerErr error
		rc, innerErr = r.Raw.Read(ctx, kind, name)
		// A missing key won't be fixed by retrying.
		if IsNotExist(innerErr) {
			return backoff.Permanent(innerErr)
		}
		return innerErr
	})
	return rc, err
}

// Write buffers rd's contents up front, since a failed attempt needs to
// replay them from the start and an arbitrary io.Reader can't be rewound
// on its own.
func (r *Retry) Write(ctx context.Context, kind Kind, name string, rd io.Reader) error {
	data, err := io.ReadAll(rd)
	if err != nil {
		return err
	}

	return r.retry(ctx, fmt.Sprintf("Write(%s, %s)", kind, name), func() error {
		return r.Raw.Write(ctx, kind, name, bytes.NewReader(data))
	})
}

func (r *Retry) Remove(ctx context.Context, kind Kind, name string) error {
	return r.retry(ctx, fmt.Sprintf("Remove(%s, %s)", kind, name), func() error {
		return r.Raw.Remove(ctx, kind, name)
	})
}

func (r *Retry) List(ctx context.Context, kind Kind, fn func(Entry) error) error {
	return r.retry(ctx, fmt.Sprintf("List(%s)", kind), func() error {
		return r.Raw.List(ctx, kind, fn)
	})
}

func (r *Retry) Probe(ctx context.Context, kind Kind, name string) (exists bool, err error) {
	err = r.retry(ctx, fmt.Sprintf("Probe(%s, %s)", kind, name), func() error {
		var innerErr error
		exists, innerErr = r.Raw.Probe(ctx, kind, name)
		return innerErr
	})
	return exists, err
}

func (r *Retry) Close() error {
	return r.Raw.Close()
}

func (r *Retry) Hasher() hash.Hash {
	return r.Raw.Hasher()
}
