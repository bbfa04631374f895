package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/reqdeck/internal/errdef"
)

// Bucket names. Every persisted document lives in exactly one bucket.
const (
	BucketCollections  = "collections"
	BucketRequests     = "requests"
	BucketHistory      = "history"
	BucketEnvironments = "environments"
	BucketAuth         = "auth"
)

const (
	secureFileMode = 0o600
	secureDirMode  = 0o700
)

// Object is one stored document. Data is the JSON payload the owning
// package encodes; Index is an optional secondary key (a request's
// collection id) queried with AllByIndex.
type Object struct {
	Bucket    string
	ID        string
	Index     string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Store struct {
	db *sql.DB
}

// Open creates or opens the database file, tightening permissions
// before sqlite touches it so the file never exists world-readable.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, secureDirMode); err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "create data dir %s", dir)
	}
	if err := ensureSecureFile(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "open database %s", path)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, errdef.Wrap(errdef.CodeStorage, err, "configure database")
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSecureFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, secureFileMode)
		if err != nil {
			return errdef.Wrap(errdef.CodeStorage, err, "create database file")
		}
		return f.Close()
	}
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "stat database file")
	}
	if info.Mode().Perm() != secureFileMode {
		if err := os.Chmod(path, secureFileMode); err != nil {
			return errdef.Wrap(errdef.CodeStorage, err, "restrict database permissions")
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS objects (
		bucket     TEXT NOT NULL,
		id         TEXT NOT NULL,
		idx        TEXT NOT NULL DEFAULT '',
		data       BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (bucket, id)
	);
	CREATE INDEX IF NOT EXISTS idx_objects_bucket_idx ON objects(bucket, idx);
	CREATE INDEX IF NOT EXISTS idx_objects_bucket_created ON objects(bucket, created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "init schema")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts a new document with a generated id and fresh
// timestamps.
func (s *Store) Add(bucket string, data []byte, index string) (Object, error) {
	obj := Object{
		Bucket:    bucket,
		ID:        uuid.NewString(),
		Index:     index,
		Data:      data,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO objects (bucket, id, idx, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		obj.Bucket, obj.ID, obj.Index, obj.Data, obj.CreatedAt, obj.UpdatedAt,
	)
	if err != nil {
		return Object{}, errdef.Wrap(errdef.CodeStorage, err, "insert into %s", bucket)
	}
	return obj, nil
}

// Put upserts a document under a caller-chosen id. Used for documents
// whose identity comes from outside the store, like the session slot.
func (s *Store) Put(bucket, id string, data []byte, index string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO objects (bucket, id, idx, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(bucket, id) DO UPDATE SET idx = excluded.idx, data = excluded.data, updated_at = excluded.updated_at`,
		bucket, id, index, data, now, now,
	)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "put %s/%s", bucket, id)
	}
	return nil
}

// Update rewrites an existing document, refreshing updated_at.
func (s *Store) Update(bucket, id string, data []byte, index string) error {
	res, err := s.db.Exec(
		`UPDATE objects SET data = ?, idx = ?, updated_at = ? WHERE bucket = ? AND id = ?`,
		data, index, time.Now().UTC(), bucket, id,
	)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "update %s/%s", bucket, id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "update %s/%s", bucket, id)
	}
	if affected == 0 {
		return errdef.New(errdef.CodeStorage, "no such object %s/%s", bucket, id)
	}
	return nil
}

func (s *Store) Delete(bucket, id string) error {
	_, err := s.db.Exec(`DELETE FROM objects WHERE bucket = ? AND id = ?`, bucket, id)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "delete %s/%s", bucket, id)
	}
	return nil
}

func (s *Store) Get(bucket, id string) (Object, error) {
	row := s.db.QueryRow(
		`SELECT bucket, id, idx, data, created_at, updated_at FROM objects WHERE bucket = ? AND id = ?`,
		bucket, id,
	)
	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Object{}, errdef.New(errdef.CodeStorage, "no such object %s/%s", bucket, id)
	}
	if err != nil {
		return Object{}, errdef.Wrap(errdef.CodeStorage, err, "get %s/%s", bucket, id)
	}
	return obj, nil
}

// All returns the bucket's documents oldest first.
func (s *Store) All(bucket string) ([]Object, error) {
	return s.query(
		`SELECT bucket, id, idx, data, created_at, updated_at FROM objects WHERE bucket = ? ORDER BY rowid`,
		bucket,
	)
}

// AllByIndex returns documents whose secondary key matches, oldest
// first.
func (s *Store) AllByIndex(bucket, index string) ([]Object, error) {
	return s.query(
		`SELECT bucket, id, idx, data, created_at, updated_at FROM objects WHERE bucket = ? AND idx = ? ORDER BY rowid`,
		bucket, index,
	)
}

func (s *Store) Clear(bucket string) error {
	_, err := s.db.Exec(`DELETE FROM objects WHERE bucket = ?`, bucket)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "clear %s", bucket)
	}
	return nil
}

func (s *Store) Count(bucket string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM objects WHERE bucket = ?`, bucket).Scan(&n); err != nil {
		return 0, errdef.Wrap(errdef.CodeStorage, err, "count %s", bucket)
	}
	return n, nil
}

// Prune drops the oldest documents beyond keep. History uses this to
// hold its cap.
func (s *Store) Prune(bucket string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	_, err := s.db.Exec(
		`DELETE FROM objects WHERE bucket = ? AND id NOT IN (
			SELECT id FROM objects WHERE bucket = ? ORDER BY rowid DESC LIMIT ?
		)`,
		bucket, bucket, keep,
	)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "prune %s", bucket)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanObject(r rowScanner) (Object, error) {
	var obj Object
	err := r.Scan(&obj.Bucket, &obj.ID, &obj.Index, &obj.Data, &obj.CreatedAt, &obj.UpdatedAt)
	return obj, err
}

func (s *Store) query(q string, args ...interface{}) ([]Object, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "query objects")
	}
	defer rows.Close()

	var out []Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeStorage, err, "scan object")
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "iterate objects")
	}
	return out, nil
}
