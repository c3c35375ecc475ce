package kvstore

import (
	"database/sql"
	"fmt"

	// Database driver, kept from the teacher's database package.
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store as a single key/value table in a
// SQLite database, the same driver the teacher repo used for its own
// screenshot/genre database, repurposed here as the plain byte-level
// backing store spec.md §1 specifies.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a SQLite-backed
// Store at file.
func OpenSQLiteStore(file string) (*SQLiteStore, error) {
	if file == "" {
		return nil, fmt.Errorf("kvstore: no file")
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY NOT NULL, value BLOB NOT NULL)"); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// OpenSQLiteStoreReadOnly opens an existing SQLite-backed Store for
// read-only access, matching spec.md §5's "the key/value store is
// opened read-only during the sweep".
func OpenSQLiteStoreReadOnly(file string) (*SQLiteStore, error) {
	if file == "" {
		return nil, fmt.Errorf("kvstore: no file")
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro&_foreign_keys=on", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db}, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(key string) ([]byte, error) {
	var value []byte
	switch err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value); err {
	case sql.ErrNoRows:
		return nil, ErrNotFound
	case nil:
		return value, nil
	default:
		return nil, err
	}
}

// Put stores value under key, replacing any existing value.
func (s *SQLiteStore) Put(key string, value []byte) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)", key, value)
	return err
}

// Delete removes key. It is not an error for key to not exist.
func (s *SQLiteStore) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key)
	return err
}

// List returns every key with the given prefix, sorted lexically.
func (s *SQLiteStore) List(prefix string) ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM kv WHERE key LIKE ? ESCAPE '\\' ORDER BY key", escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func escapeLike(s string) string {
	r := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			r = append(r, '\\')
		}
		r = append(r, s[i])
	}
	return string(r)
}

// Batch runs fn against a transaction-backed Batch, committing
// atomically on success and rolling back entirely on error or panic.
func (s *SQLiteStore) Batch(fn func(*Batch) error) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	b := &Batch{apply: func(op batchOp) error {
		if op.delete {
			_, err := tx.Exec("DELETE FROM kv WHERE key = ?", op.key)
			return err
		}
		_, err := tx.Exec("INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)", op.key, op.value)
		return err
	}}

	err = fn(b)
	return err
}
