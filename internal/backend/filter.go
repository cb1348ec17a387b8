package backend

import (
	"bytes"
	"context"
	"hash"
	"io"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/debug"
)

// Filter wraps another Backend, piping every write through a shell command
// (e.g. a compressor, or `gpg --encrypt`) and every read through its
// inverse. filter and unfilter are parsed with SplitShellStrings and run
// directly (no shell), so quoting rules are ours, not /bin/sh's.
type Filter struct {
	Raw      Backend
	Filter   string
	Unfilter string
}

// NewFilter builds a Filter and sanity-checks that unfilter really does
// invert filter by round-tripping a fixed plaintext through both, so a
// typo'd command is caught at repository init instead of mid-backup.
func NewFilter(raw Backend, filter, unfilter string) (*Filter, error) {
	f := &Filter{Raw: raw, Filter: filter, Unfilter: unfilter}
	if err := f.roundtripCheck(); err != nil {
		return nil, err
	}
	return f, nil
}

const roundtripPlaintext = "Everything was beautiful and nothing hurt."

func (f *Filter) roundtripCheck() error {
	filtered, err := runPipe(f.Filter, []byte(roundtripPlaintext))
	if err != nil {
		return errors.Wrapf(err, "running filter command %q", f.Filter)
	}
	back, err := runPipe(f.Unfilter, filtered)
	if err != nil {
		return errors.Wrapf(err, "running unfilter command %q", f.Unfilter)
	}
	if string(back) != roundtripPlaintext {
		return errors.Errorf("filter %q / unfilter %q don't round-trip", f.Filter, f.Unfilter)
	}
	return nil
}

func runPipe(command string, input []byte) ([]byte, error) {
	args, err := SplitShellStrings(command)
	if err != nil {
		return nil, errors.Wrapf(err, "splitting command %q", command)
	}
	if len(args) == 0 {
		return nil, errors.Errorf("empty command")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "%s: %s", command, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (f *Filter) Read(ctx context.Context, kind Kind, name string) (io.ReadCloser, error) {
	debug.Log("%s < %s %s", f.Unfilter, kind, name)

	raw, err := f.Raw.Read(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	defer raw.Close()

	data, err := io.ReadAll(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s %s before unfiltering", kind, name)
	}

	unfiltered, err := runPipe(f.Unfilter, data)
	if err != nil {
		return nil, errors.Wrapf(err, "unfiltering %s %s", kind, name)
	}
	return io.NopCloser(bytes.NewReader(unfiltered)), nil
}

func (f *Filter) Write(ctx context.Context, kind Kind, name string, r io.Reader) error {
	debug.Log("%s > %s %s", f.Filter, kind, name)

	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrapf(err, "reading %s %s before filtering", kind, name)
	}

	filtered, err := runPipe(f.Filter, data)
	if err != nil {
		return errors.Wrapf(err, "filtering %s %s", kind, name)
	}

	return f.Raw.Write(ctx, kind, name, bytes.NewReader(filtered))
}

func (f *Filter) Remove(ctx context.Context, kind Kind, name string) error {
	return f.Raw.Remove(ctx, kind, name)
}

func (f *Filter) List(ctx context.Context, kind Kind, fn func(Entry) error) error {
	return f.Raw.List(ctx, kind, fn)
}

func (f *Filter) Probe(ctx context.Context, kind Kind, name string) (bool, error) {
	return f.Raw.Probe(ctx, kind, name)
}

func (f *Filter) Close() error {
	return f.Raw.Close()
}

func (f *Filter) Hasher() hash.Hash {
	return f.Raw.Hasher()
}
