// Package persistence keeps dialog progress and scoped bot data in a local
// sqlite database so that in-flight conversations survive restarts.
package persistence

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// ErrStorageUnavailable marks every failure of the underlying storage.
// Callers must abort the current dialog turn instead of advancing state they
// could not persist.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Scope selects one of the three independent data namespaces.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeChat   Scope = "chat"
	ScopeGlobal Scope = "bot"
)

// ConversationKey identifies one logical dialog instance.
type ConversationKey struct {
	ChatID int64
	UserID int64
}

func (k ConversationKey) String() string {
	return fmt.Sprintf("[%d,%d]", k.ChatID, k.UserID)
}

// ConversationState is the closed representation of dialog progress: a step
// tag plus a flat key/value payload. It is stored gob-encoded because step
// tags are program-internal markers, not operator-facing data.
type ConversationState struct {
	Step string
	Data map[string]string
}

// Store is the single source of truth for dialog and scoped state.
// One shared connection guarded by a mutex: every mutation is a single
// atomic commit, concurrent writers never interleave.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	path   string
	logger *zerolog.Logger
}

// Open opens (creating if needed) the database at path and runs migrations.
func Open(path string, logger *zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("state store initialized")
	return s, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS scoped_data (
			namespace_key TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			name TEXT NOT NULL,
			conv_key TEXT NOT NULL,
			state BLOB,
			PRIMARY KEY (name, conv_key)
		)`,
		`CREATE TABLE IF NOT EXISTS callback_cache (
			key TEXT PRIMARY KEY DEFAULT 'callback_cache',
			data BLOB NOT NULL
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Ping reports whether the underlying database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func namespaceKey(scope Scope, id int64) string {
	if scope == ScopeGlobal {
		return string(ScopeGlobal)
	}
	return fmt.Sprintf("%s:%d", scope, id)
}

func (s *Store) storageError(op string, err error) error {
	s.logger.Error().Err(err).Str("op", op).Msg("state store operation failed")
	return fmt.Errorf("%s: %w: %s", op, ErrStorageUnavailable, err)
}

// Get returns the stored value for (scope, id), or nil when absent.
func (s *Store) Get(ctx context.Context, scope Scope, id int64) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM scoped_data WHERE namespace_key = ?",
		namespaceKey(scope, id),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, s.storageError("get scoped data", err)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, s.storageError("decode scoped data", err)
	}
	return data, nil
}

// Put overwrites the value for (scope, id) wholesale.
func (s *Store) Put(ctx context.Context, scope Scope, id int64, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return s.storageError("encode scoped data", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO scoped_data (namespace_key, data) VALUES (?, ?)",
		namespaceKey(scope, id), string(raw),
	)
	if err != nil {
		return s.storageError("put scoped data", err)
	}
	return nil
}

// Drop removes the value for (scope, id). Dropping an absent key is not an
// error.
func (s *Store) Drop(ctx context.Context, scope Scope, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM scoped_data WHERE namespace_key = ?",
		namespaceKey(scope, id),
	)
	if err != nil {
		return s.storageError("drop scoped data", err)
	}
	return nil
}

// ConversationState returns the state for (name, key), or nil when the
// dialog has no active state.
func (s *Store) ConversationState(ctx context.Context, name string, key ConversationKey) (*ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM conversations WHERE name = ? AND conv_key = ?",
		name, key.String(),
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, s.storageError("get conversation", err)
	}
	if len(blob) == 0 {
		return nil, nil
	}

	var state ConversationState
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&state); err != nil {
		return nil, s.storageError("decode conversation", err)
	}
	return &state, nil
}

// SetConversationState upserts the state for (name, key); a nil state deletes
// the record. This is the only mutation path for dialog progress.
func (s *Store) SetConversationState(ctx context.Context, name string, key ConversationKey, state *ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state == nil {
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM conversations WHERE name = ? AND conv_key = ?",
			name, key.String(),
		)
		if err != nil {
			return s.storageError("clear conversation", err)
		}
		return nil
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return s.storageError("encode conversation", err)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO conversations (name, conv_key, state) VALUES (?, ?, ?)",
		name, key.String(), buf.Bytes(),
	)
	if err != nil {
		return s.storageError("set conversation", err)
	}
	return nil
}

// CallbackCache returns the process-wide callback payload cache, or nil when
// none has been stored yet.
func (s *Store) CallbackCache(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM callback_cache WHERE key = 'callback_cache'",
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, s.storageError("get callback cache", err)
	}

	var cache map[string]string
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&cache); err != nil {
		return nil, s.storageError("decode callback cache", err)
	}
	return cache, nil
}

// SetCallbackCache overwrites the callback payload cache, last write wins.
func (s *Store) SetCallbackCache(ctx context.Context, cache map[string]string) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cache); err != nil {
		return s.storageError("encode callback cache", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO callback_cache (key, data) VALUES ('callback_cache', ?)",
		buf.Bytes(),
	)
	if err != nil {
		return s.storageError("set callback cache", err)
	}
	return nil
}
