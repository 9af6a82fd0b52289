package history

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/mentor-go/internal/logger"
)

var ErrUnknownBackend = errors.New("unknown history backend")

// Log is the storage of a single session's turns.
type Log interface {
	Append(turns []Turn) error
	Turns() ([]Turn, error)
}

// Backend opens per-session logs.
type Backend interface {
	Open(sessionID string) Log
	Close() error
}

// NewBackend builds the backend named in configuration.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "sqlite":
		return NewSQLiteBackend()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}

type memoryBackend struct{}

// NewMemoryBackend keeps turns in plain slices.
func NewMemoryBackend() Backend { return memoryBackend{} }

func (memoryBackend) Open(string) Log { return &memoryLog{} }
func (memoryBackend) Close() error    { return nil }

type memoryLog struct {
	mu    sync.RWMutex
	turns []Turn
}

func (l *memoryLog) Append(turns []Turn) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, turns...)
	return nil
}

func (l *memoryLog) Turns() ([]Turn, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.turns), nil
}

// SQLiteBackend stores turns in a private in-memory SQLite database. Nothing
// outlives the process.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens the database and creates the turns table.
func NewSQLiteBackend() (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Each connection to :memory: is a separate database; pin a single one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS turns (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        role TEXT NOT NULL,
        content TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create turns table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS turns_session ON turns (session_id, id);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create turns index: %w", err)
	}
	logger.L.Debug("sqlite history backend initialized")
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Open(sessionID string) Log {
	return &sqliteLog{db: b.db, sessionID: sessionID}
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

type sqliteLog struct {
	db        *sql.DB
	sessionID string
}

func (l *sqliteLog) Append(turns []Turn) (err error) {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				logger.L.Warn("sqlite rollback failed", "session", l.sessionID, "error", rerr)
			}
		}
	}()

	now := time.Now().UTC()
	for _, t := range turns {
		if _, err = tx.Exec(`INSERT INTO turns (session_id, role, content, created_at) VALUES (?,?,?,?);`,
			l.sessionID, string(t.Role), t.Content, now); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (l *sqliteLog) Turns() ([]Turn, error) {
	rows, err := l.db.Query(`SELECT role, content FROM turns WHERE session_id = ? ORDER BY id ASC;`, l.sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, Turn{Role: Role(role), Content: content})
	}
	return out, rows.Err()
}
