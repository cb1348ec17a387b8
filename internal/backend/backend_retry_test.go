package backend_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/mrkline/backpak/internal/backend"
)

// flakyBackend wraps a Backend, failing the first failures calls to each
// method before letting the rest through to Raw.
type flakyBackend struct {
	backend.Backend
	failures int

	writeAttempts int
	listAttempts  int
	readAttempts  int
}

func (f *flakyBackend) Write(ctx context.Context, kind backend.Kind, name string, r io.Reader) error {
	f.writeAttempts++
	if f.writeAttempts <= f.failures {
		// Drain r so a retrying caller's buffered bytes aren't the thing
		// under test; the point is the backend call itself failed.
		_, _ = io.Copy(io.Discard, r)
		return errFlaky
	}
	return f.Backend.Write(ctx, kind, name, r)
}

func (f *flakyBackend) Read(ctx context.Context, kind backend.Kind, name string) (io.ReadCloser, error) {
	f.readAttempts++
	if f.readAttempts <= f.failures {
		return nil, errFlaky
	}
	return f.Backend.Read(ctx, kind, name)
}

func (f *flakyBackend) List(ctx context.Context, kind backend.Kind, fn func(backend.Entry) error) error {
	f.listAttempts++
	if f.listAttempts <= f.failures {
		return errFlaky
	}
	return f.Backend.List(ctx, kind, fn)
}

var errFlaky = fakeErr{}

type fakeErr struct{}

func (fakeErr) Error() string { return "injected flaky error" }

func TestRetrySucceedsAfterTransientWriteFailures(t *testing.T) {
	raw := backend.NewMemory()
	flaky := &flakyBackend{Backend: raw, failures: 2}
	r := backend.NewRetry(flaky, 5, nil)

	err := r.Write(context.Background(), backend.Pack, "abc", bytes.NewReader([]byte("hello")))
	if err != nil {
		t.Fatal(err)
	}
	if flaky.writeAttempts != 3 {
		t.Fatalf("expected 3 write attempts, got %d", flaky.writeAttempts)
	}

	rc, err := raw.Read(context.Background(), backend.Pack, "abc")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Fatalf("got %q, want %q", data, "hello")
	}
}

func TestRetryGivesUpAfterMaxTries(t *testing.T) {
	flaky := &flakyBackend{Backend: backend.NewMemory(), failures: 100}
	r := backend.NewRetry(flaky, 2, nil)

	err := r.Write(context.Background(), backend.Pack, "abc", bytes.NewReader([]byte("hello")))
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
}

func TestRetryDoesNotRetryNotFound(t *testing.T) {
	r := backend.NewRetry(backend.NewMemory(), 5, nil)

	_, err := r.Read(context.Background(), backend.Pack, "nope")
	if !backend.IsNotExist(err) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestRetryReportsFailures(t *testing.T) {
	flaky := &flakyBackend{Backend: backend.NewMemory(), failures: 1}
	var reported []string
	r := backend.NewRetry(flaky, 5, func(msg string, err error, d time.Duration) {
		reported = append(reported, msg)
	})

	if err := r.Write(context.Background(), backend.Pack, "abc", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatal(err)
	}
	if len(reported) != 1 {
		t.Fatalf("expected 1 report, got %d: %v", len(reported), reported)
	}
}
