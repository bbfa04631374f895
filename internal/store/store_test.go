package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "reqdeck.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddAndGet(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	obj, err := s.Add(BucketRequests, []byte(`{"name":"health"}`), "col-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if obj.ID == "" || obj.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamps, got %+v", obj)
	}

	got, err := s.Get(BucketRequests, obj.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Data) != `{"name":"health"}` || got.Index != "col-1" {
		t.Fatalf("unexpected object %+v", got)
	}
}

func TestGetMissingHasStorageCode(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	_, err := s.Get(BucketRequests, "nope")
	if err == nil {
		t.Fatalf("expected error for missing object")
	}
	if errdef.CodeOf(err) != errdef.CodeStorage {
		t.Fatalf("expected storage code, got %s", errdef.CodeOf(err))
	}
}

func TestUpdateMissing(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if err := s.Update(BucketRequests, "missing", []byte(`{}`), ""); err == nil {
		t.Fatalf("expected error updating missing object")
	}
}

func TestAllByIndex(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	for i, idx := range []string{"col-a", "col-b", "col-a"} {
		if _, err := s.Add(BucketRequests, []byte{byte('0' + i)}, idx); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	got, err := s.AllByIndex(BucketRequests, "col-a")
	if err != nil {
		t.Fatalf("all by index: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(got))
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	var last Object
	for i := 0; i < 5; i++ {
		obj, err := s.Add(BucketHistory, []byte{byte('0' + i)}, "")
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		last = obj
	}
	if err := s.Prune(BucketHistory, 2); err != nil {
		t.Fatalf("prune: %v", err)
	}
	n, err := s.Count(BucketHistory)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 after prune, got %d", n)
	}
	if _, err := s.Get(BucketHistory, last.ID); err != nil {
		t.Fatalf("newest entry pruned: %v", err)
	}
}

func TestPutUpsert(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if err := s.Put(BucketAuth, "session", []byte("v1"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(BucketAuth, "session", []byte("v2"), ""); err != nil {
		t.Fatalf("put again: %v", err)
	}
	got, err := s.Get(BucketAuth, "session")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Data) != "v2" {
		t.Fatalf("expected upserted value, got %q", got.Data)
	}
}

func TestDatabaseFilePermissions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "perm.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 perms, got %o", perm)
	}
}
