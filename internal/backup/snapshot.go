package backup

import (
	"bytes"
	"context"

	"github.com/pkg/errors"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/snapshot"
)

// uploadSnapshot serializes snap, hashes it, and writes it to be, the last
// step of a backup once every pack and index it depends on is already
// durable.
func uploadSnapshot(ctx context.Context, be backend.Backend, snap snapshot.Snapshot) (objid.ID, error) {
	var buf bytes.Buffer
	id, err := snapshot.Encode(&buf, snap)
	if err != nil {
		return objid.Zero, errors.Wrap(err, "encoding snapshot")
	}

	if err := be.Write(ctx, backend.Snapshot, id.String(), &buf); err != nil {
		return objid.Zero, errors.Wrap(err, "uploading snapshot")
	}
	return id, nil
}
