// Package pgstore keeps credentials in PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/andrebq/doorman/credentials"
	"github.com/andrebq/doorman/internal/storeerr"
	"github.com/andrebq/doorman/passwd"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const (
	uniqueViolation = "23505"
	storeName       = "postgres"
)

type (
	Store struct {
		db     *sql.DB
		policy credentials.Policy
	}
)

//go:embed migrations/*.sql
var migrations embed.FS

// gooseUpContext is replaced in tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Open connects to the database at dsn and brings its schema up to date.
func Open(ctx context.Context, dsn string, hasher passwd.Hasher, opts ...credentials.Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open postgres connection, cause %w", err)
	}
	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, storeerr.Wrap(storeName, fmt.Errorf("unable to ping postgres, cause %w", err))
	}
	err = Migrate(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return New(db, hasher, opts...), nil
}

// New wraps an already open handle, the schema must already exist.
func New(db *sql.DB, hasher passwd.Hasher, opts ...credentials.Option) *Store {
	return &Store{db: db, policy: credentials.NewPolicy(hasher, opts...)}
}

// Migrate applies the embedded migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("unable to select migration dialect, cause %w", err)
	}
	if err := gooseUpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("unable to migrate credential schema, cause %w", err)
	}
	return nil
}

func (s *Store) Lookup(ctx context.Context, username string) (credentials.Record, bool, error) {
	var id int64
	r := credentials.Record{Username: username}
	err := s.db.QueryRowContext(ctx, `select user_id, verifier, created_at from credentials where username = $1`, username).
		Scan(&id, &r.Verifier, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return credentials.Record{}, false, nil
	} else if err != nil {
		return credentials.Record{}, false, storeerr.Wrap(storeName, fmt.Errorf("unable to lookup %v, cause %w", username, err))
	}
	r.ID = strconv.FormatInt(id, 10)
	return r, true, nil
}

func (s *Store) Create(ctx context.Context, username string, password passwd.PlainText) (credentials.Record, error) {
	verifier, err := s.policy.Prepare(username, password)
	if err != nil {
		return credentials.Record{}, err
	}
	r := credentials.Record{Username: username, Verifier: verifier, CreatedAt: time.Now()}
	r.ID, err = s.insert(ctx, r)
	if err != nil {
		return credentials.Record{}, err
	}
	return r, nil
}

func (s *Store) Import(ctx context.Context, r credentials.Record) error {
	if err := credentials.ValidateImport(r); err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.insert(ctx, r)
	return err
}

func (s *Store) insert(ctx context.Context, r credentials.Record) (string, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `insert into credentials (username, verifier, created_at) values ($1, $2, $3) returning user_id`,
		r.Username, r.Verifier, r.CreatedAt).Scan(&id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return "", credentials.ErrDuplicate
	} else if err != nil {
		return "", storeerr.Wrap(storeName, fmt.Errorf("unable to store credentials for %v, cause %w", r.Username, err))
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
