package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/mensetsu/internal/models"
)

func TestDiskBlobStore_PutGetDelete(t *testing.T) {
	store, err := NewDiskBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	key := "resumes/u1/1_cv.pdf"
	data := []byte("%PDF-1.4 fake")

	if err := store.Put(ctx, key, data); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get() = %q, want %q", got, data)
	}
	usage, err := DiskUsageBytes(store.Root())
	if err != nil {
		t.Fatal(err)
	}
	if usage != int64(len(data)) {
		t.Errorf("DiskUsageBytes = %d, want %d", usage, len(data))
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, models.ErrNotFound) || !errors.Is(err, models.ErrStorage) {
		t.Errorf("Get after delete: want ErrStorage and ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("deleting a missing blob should succeed, got %v", err)
	}
}

func TestDiskBlobStore_rejectsEscapingKeys(t *testing.T) {
	store, err := NewDiskBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "../outside.pdf", "a/../../outside.pdf", "."} {
		if err := store.Put(ctx, key, []byte("x")); !errors.Is(err, models.ErrStorage) {
			t.Errorf("Put(%q) should fail with ErrStorage, got %v", key, err)
		}
	}
}

func TestDiskBlobStore_cancelledContext(t *testing.T) {
	store, err := NewDiskBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
