package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/andrebq/doorman/internal/storeerr"
	"github.com/andrebq/doorman/passwd"
	"github.com/cespare/xxhash/v2"
	"github.com/mattn/go-sqlite3"
)

type (
	SQLite struct {
		db     *sql.DB
		policy Policy
	}
)

// OpenSQLite opens (creating if needed) the credential database at path.
func OpenSQLite(ctx context.Context, path string, hasher passwd.Hasher, opts ...Option) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return nil, fmt.Errorf("unable to create directory %v to store credentials, cause %w", dir, err)
		}
	}
	connstr := fmt.Sprintf("file:%v?_journal=wal&_busy_timeout=5000&mode=rwc", path)
	conn, err := sql.Open("sqlite3", connstr)
	if err != nil {
		return nil, fmt.Errorf("unable to open %v, cause %w", path, err)
	}
	err = conn.PingContext(ctx)
	if err != nil {
		conn.Close()
		return nil, storeerr.Wrap("sqlite", fmt.Errorf("unable to ping %v, cause %w", path, err))
	}
	s := &SQLite{db: conn, policy: NewPolicy(hasher, opts...)}
	err = s.init(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to init credential database %v, cause %w", path, err)
	}
	return s, nil
}

func (s *SQLite) Lookup(ctx context.Context, username string) (Record, bool, error) {
	var id, createdAt int64
	r := Record{Username: username}
	err := s.db.QueryRowContext(ctx, `select user_id, verifier, created_at from credentials
	where username_hash64 = ? and username = ?`, usernameHash(username), username).Scan(&id, &r.Verifier, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	} else if err != nil {
		return Record{}, false, storeerr.Wrap("sqlite", fmt.Errorf("unable to lookup %v, cause %w", username, err))
	}
	r.ID = strconv.FormatInt(id, 10)
	r.CreatedAt = time.UnixMilli(createdAt)
	return r, true, nil
}

func (s *SQLite) Create(ctx context.Context, username string, password passwd.PlainText) (Record, error) {
	verifier, err := s.policy.Prepare(username, password)
	if err != nil {
		return Record{}, err
	}
	r := Record{Username: username, Verifier: verifier, CreatedAt: time.Now()}
	r.ID, err = s.insert(ctx, r)
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

func (s *SQLite) Import(ctx context.Context, r Record) error {
	if err := ValidateImport(r); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.insert(ctx, r)
	return err
}

func (s *SQLite) insert(ctx context.Context, r Record) (string, error) {
	res, err := s.db.ExecContext(ctx, `insert into credentials(username, username_hash64, verifier, created_at)
	values (?, ?, ?, ?)`, r.Username, usernameHash(r.Username), r.Verifier, r.CreatedAt.UnixMilli())
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return "", ErrDuplicate
	} else if err != nil {
		return "", storeerr.Wrap("sqlite", fmt.Errorf("unable to store credentials for %v, cause %w", r.Username, err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", storeerr.Wrap("sqlite", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *SQLite) init(ctx context.Context) error {
	for _, cmd := range []string{
		`create table if not exists credentials(
			user_id integer not null primary key autoincrement,
			username text not null unique,
			username_hash64 integer not null,
			verifier text not null,
			created_at integer not null
		)`,
		`create index if not exists idx_credentials_username_hash64
			on credentials(username_hash64)
		`,
	} {
		_, err := s.db.ExecContext(ctx, cmd)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func usernameHash(username string) int64 {
	return int64(xxhash.Sum64String(username))
}
