package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/andrebq/doorman/credentials"
	"github.com/andrebq/doorman/internal/storeerr"
	"github.com/andrebq/doorman/passwd"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
)

const (
	lookupQuery = `(?s)^select\s+user_id,\s*verifier,\s*created_at\s+from\s+credentials\s+where\s+username\s*=\s*\$1$`
	insertQuery = `(?s)^insert\s+into\s+credentials\s*\(username,\s*verifier,\s*created_at\)\s*values\s*\(\$1,\s*\$2,\s*\$3\)\s*returning\s+user_id$`
)

func fastHasher() passwd.Hasher {
	return passwd.NewArgon2id(passwd.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32})
}

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, fastHasher()), mock
}

func TestLookupFound(t *testing.T) {
	s, mock := newStoreWithMock(t)
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(lookupQuery).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "verifier", "created_at"}).AddRow(int64(42), "$2a$10$xyz", created))

	rec, ok, err := s.Lookup(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, credentials.Record{ID: "42", Username: "alice", Verifier: "$2a$10$xyz", CreatedAt: created}, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupNotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(lookupQuery).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, ok, err := s.Lookup(context.Background(), "ghost")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLookupFailureIsUnavailable(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(lookupQuery).WithArgs("alice").WillReturnError(errors.New("connection refused"))

	_, ok, err := s.Lookup(context.Background(), "alice")
	require.False(t, ok)
	require.True(t, errors.Is(err, storeerr.Unavailable{}), "got %v", err)
}

func TestCreate(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(insertQuery).
		WithArgs("alice", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(7)))

	rec, err := s.Create(context.Background(), "alice", passwd.PlainText("s3cr3t"))
	require.NoError(t, err)
	require.Equal(t, "7", rec.ID)
	require.True(t, fastHasher().Verify(passwd.PlainText("s3cr3t"), rec.Verifier))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicate(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(insertQuery).
		WithArgs("alice", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := s.Create(context.Background(), "alice", passwd.PlainText("s3cr3t"))
	require.True(t, errors.Is(err, credentials.ErrDuplicate), "got %v", err)
}

func TestCreateFailureIsUnavailable(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(insertQuery).
		WithArgs("alice", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errors.New("db down"))

	_, err := s.Create(context.Background(), "alice", passwd.PlainText("s3cr3t"))
	require.True(t, errors.Is(err, storeerr.Unavailable{}), "got %v", err)
}

func TestCreateValidatesBeforeQuerying(t *testing.T) {
	s, mock := newStoreWithMock(t)
	_, err := s.Create(context.Background(), "bad user", passwd.PlainText("s3cr3t"))
	require.True(t, errors.Is(err, credentials.InvalidInput{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImport(t *testing.T) {
	s, mock := newStoreWithMock(t)
	mock.ExpectQuery(insertQuery).
		WithArgs("user1", "$2a$10$abc", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(1)))

	require.NoError(t, s.Import(context.Background(), credentials.Record{Username: "user1", Verifier: "$2a$10$abc"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, Migrate(context.Background(), db))
	require.Equal(t, "migrations", gotDir)

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	require.Error(t, Migrate(context.Background(), db))
}

func TestMigrationsAreEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	buf, err := fs.ReadFile(migrations, files[0])
	require.NoError(t, err)
	require.Contains(t, string(buf), "-- +goose Up")
}
