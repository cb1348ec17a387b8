package pack_test

import (
	"bytes"
	"math/rand"
	"os"
	"testing"

	"github.com/mrkline/backpak/internal/blob"
	"github.com/mrkline/backpak/internal/objid"
	"github.com/mrkline/backpak/internal/pack"
)

func randomBlob(r *rand.Rand, n int, kind blob.Type) blob.Blob {
	buf := make([]byte, n)
	r.Read(buf)
	return blob.Blob{
		Contents: blob.NewBufferContents(buf),
		ID:       objid.FromData(buf),
		Kind:     kind,
	}
}

func TestWriteAndReadBackPack(t *testing.T) {
	dir := t.TempDir()
	r := rand.New(rand.NewSource(1))

	w, err := pack.NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}

	var blobs []blob.Blob
	for i, n := range []int{23, 31650, 25860, 10928} {
		kind := blob.Chunk
		if i%2 == 1 {
			kind = blob.Tree
		}
		b := randomBlob(r, n, kind)
		if _, err := w.WriteBlob(b); err != nil {
			t.Fatal(err)
		}
		blobs = append(blobs, b)
	}

	meta, err := w.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if len(meta.Manifest) != len(blobs) {
		t.Fatalf("manifest has %d entries, want %d", len(meta.Manifest), len(blobs))
	}

	packPath := dir + "/" + meta.ID.String() + ".pack"
	fh, err := os.Open(packPath)
	if err != nil {
		t.Fatalf("finalize didn't produce %s: %v", packPath, err)
	}
	defer fh.Close()

	manifest, err := pack.ManifestFromReader(fh)
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest) != len(blobs) {
		t.Fatalf("read back %d manifest entries, want %d", len(manifest), len(blobs))
	}
	for i, entry := range manifest {
		if entry.ID != blobs[i].ID {
			t.Fatalf("entry %d id = %s, want %s", i, entry.ID, blobs[i].ID)
		}
	}

	if _, err := fh.Seek(0, 0); err != nil {
		t.Fatal(err)
	}
	if err := pack.Verify(fh, manifest); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	if _, err := fh.Seek(0, 0); err != nil {
		t.Fatal(err)
	}
	data, err := pack.ExtractBlob(fh, blobs[2].ID, manifest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, blobs[2].Contents.Bytes()) {
		t.Fatal("extracted blob bytes don't match original")
	}
}

func TestAbandonRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	w, err := pack.NewWriter(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Abandon(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected abandon to remove the temp pack, found %v", entries)
	}
}
