package repository_test

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"testing"

	"github.com/mrkline/backpak/internal/backend"
	"github.com/mrkline/backpak/internal/blob"
	"github.com/mrkline/backpak/internal/cache"
	"github.com/mrkline/backpak/internal/index"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/pack"
	"github.com/mrkline/backpak/internal/repository"
)

// buildRepo writes a single pack (with the given blobs) and a single index
// covering it into be, via real pack.Writer/index.Writer, the way the
// write pipeline would.
func buildRepo(t *testing.T, be backend.Backend, blobs []blob.Blob) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	pw, err := pack.NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range blobs {
		if _, err := pw.WriteBlob(b); err != nil {
			t.Fatal(err)
		}
	}
	meta, err := pw.Finalize()
	if err != nil {
		t.Fatal(err)
	}

	packBytes, err := os.ReadFile(dir + "/" + meta.ID.String() + ".pack")
	if err != nil {
		t.Fatal(err)
	}
	if err := be.Write(ctx, backend.Pack, meta.ID.String(), bytes.NewReader(packBytes)); err != nil {
		t.Fatal(err)
	}

	iw := index.NewWriter(dir, nil)
	if _, err := iw.Insert(meta); err != nil {
		t.Fatal(err)
	}
	idxID, err := iw.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	idxBytes, err := os.ReadFile(dir + "/" + idxID.String() + ".index")
	if err != nil {
		t.Fatal(err)
	}
	if err := be.Write(ctx, backend.Index, idxID.String(), bytes.NewReader(idxBytes)); err != nil {
		t.Fatal(err)
	}
}

func randomBlob(r *rand.Rand, n int) blob.Blob {
	buf := make([]byte, n)
	r.Read(buf)
	return blob.Blob{
		Contents: blob.NewBufferContents(buf),
		ID:       objid.FromData(buf),
		Kind:     blob.Chunk,
	}
}

func TestOpenAndLoadBlob(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(7))

	blobs := []blob.Blob{randomBlob(r, 128), randomBlob(r, 4096), randomBlob(r, 17)}

	be := backend.NewMemory()
	buildRepo(t, be, blobs)

	repo, err := repository.Open(ctx, be, nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	if repo.Master.NumBlobs() != len(blobs) {
		t.Fatalf("master index has %d blobs, want %d", repo.Master.NumBlobs(), len(blobs))
	}

	for _, b := range blobs {
		data, err := repo.LoadBlob(ctx, b.ID)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, b.Contents.Bytes()) {
			t.Fatalf("loaded blob %v doesn't match original", b.ID)
		}

		size, ok := repo.BlobSize(b.ID)
		if !ok {
			t.Fatalf("BlobSize couldn't find %v", b.ID)
		}
		if size != uint64(len(b.Contents.Bytes())) {
			t.Fatalf("BlobSize(%v) = %d, want %d", b.ID, size, len(b.Contents.Bytes()))
		}
	}

	if _, err := repo.LoadBlob(ctx, objid.FromData([]byte("nope"))); err == nil {
		t.Fatal("expected an error loading an unknown blob")
	}
}

func TestOpenUsesDiskCache(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(11))
	blobs := []blob.Blob{randomBlob(r, 256)}

	be := backend.NewMemory()
	buildRepo(t, be, blobs)

	diskCache, err := cache.New(t.TempDir(), cache.DefaultSize)
	if err != nil {
		t.Fatal(err)
	}
	defer diskCache.Close()

	repo, err := repository.Open(ctx, be, diskCache, 0)
	if err != nil {
		t.Fatal(err)
	}

	data, err := repo.LoadBlob(ctx, blobs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, blobs[0].Contents.Bytes()) {
		t.Fatal("loaded blob doesn't match original")
	}

	// Removing the pack from the backend shouldn't matter once a fresh
	// Repository (with an empty in-memory blob cache, but the same disk
	// cache) reads it again.
	packID, ok := repo.Master.PackOf(blobs[0].ID)
	if !ok {
		t.Fatal("couldn't find pack for blob")
	}
	if err := be.Remove(ctx, backend.Pack, packID.String()); err != nil {
		t.Fatal(err)
	}

	repo2, err := repository.Open(ctx, be, diskCache, 0)
	if err != nil {
		t.Fatal(err)
	}
	again, err := repo2.LoadBlob(ctx, blobs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(again, blobs[0].Contents.Bytes()) {
		t.Fatal("second load (from disk cache) doesn't match original")
	}
}
