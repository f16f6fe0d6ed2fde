package kv

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// Config describes where the store lives. A `url` with a libsql:// (or
// http(s)://) scheme points at a remote libsql database, otherwise `file`
// is opened as a local sqlite database. An empty file means in-memory.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

// dsn appends the auth token to the url's query.
func (config Config) dsn() (string, error) {
	u, err := url.Parse(config.Url)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	if config.AuthToken != "" {
		query := u.Query()
		query.Set("authToken", config.AuthToken)
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// OpenDB opens the database described by the config and makes sure the
// schema exists.
func (config Config) OpenDB() (*sql.DB, error) {
	var db *sql.DB
	var err error

	switch {
	case config.Url != "":
		var dsn string
		dsn, err = config.dsn()
		if err != nil {
			return nil, err
		}
		db, err = sql.Open("libsql", dsn)
	case config.File == "" || config.File == ":memory:":
		db, err = sql.Open("sqlite", ":memory:")
		if err == nil {
			// every connection to :memory: is its own database
			db.SetMaxOpenConns(1)
		}
	default:
		err = os.MkdirAll(filepath.Dir(config.File), 0777)
		if err != nil {
			return nil, err
		}
		db, err = sql.Open("sqlite", config.File)
		if err == nil {
			db.SetMaxOpenConns(1)
			_, err = db.Exec("PRAGMA journal_mode=WAL")
		}
	}
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// SQLStore is a Store backed by a single sqlite/libsql table.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) SQLStore {
	return SQLStore{db: db}
}

func (s SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "select value from kv where key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s SQLStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(
		ctx,
		"insert into kv(key, value) values (?, ?) on conflict(key) do update set value = excluded.value",
		key, value,
	)
	return err
}

func (s SQLStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "delete from kv where key = ?", key)
	return err
}

func (s SQLStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "select key from kv order by key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		err := rows.Scan(&key)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
