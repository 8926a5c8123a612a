// Package sqlite persists HN items and users.
package sqlite

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"github.com/jdholdren/hnews/internal/hn"
)

// Ensure Repo implements the Repository interface
var _ hn.Repository = (*Repo)(nil)

// Extended result codes for the unique and primary key constraints.
const (
	codeConstraintPrimaryKey = 1555
	codeConstraintUnique     = 2067
)

// Variant tables, keyed by the item type they hold.
var tables = map[hn.ItemType]string{
	hn.TypeComment: "comments",
	hn.TypeJob:     "jobs",
	hn.TypePoll:    "polls",
	hn.TypePollOpt: "poll_options",
	hn.TypeStory:   "stories",
}

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}

// Open connects to the sqlite database at path with foreign keys on.
//
// ":memory:" gives a private in-memory database, limited to one connection
// so every query sees the same data.
func Open(path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	dbx, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %s", err)
	}
	if path == ":memory:" {
		dbx.SetMaxOpenConns(1)
	}
	if err := dbx.Ping(); err != nil {
		dbx.Close()
		return nil, fmt.Errorf("error pinging database: %s", err)
	}

	return dbx, nil
}

func table(typ hn.ItemType) (string, error) {
	t, ok := tables[typ]
	if !ok {
		return "", fmt.Errorf("%w: %q", hn.ErrUnknownType, typ)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	sqliteErr := &sqlite.Error{}
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == codeConstraintUnique || sqliteErr.Code() == codeConstraintPrimaryKey
}
