package cloud

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store provides versioned resource storage with JSON payloads.
// Resources are keyed by (kind, id) and stored as JSON blobs with version tracking.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new resource store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get retrieves payload and version for a resource.
// Returns ErrNotFound if the resource does not exist.
func (s *Store) Get(ctx context.Context, kind, id string) (payload []byte, version int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payloadStr string
	err = s.db.QueryRowContext(ctx, `
		SELECT payload, version FROM remote_resources
		WHERE kind = ? AND id = ?
	`, kind, id).Scan(&payloadStr, &version)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	return []byte(payloadStr), version, nil
}

// Insert stores a new resource at version 1.
// Returns ErrAlreadyExists if the resource exists.
func (s *Store) Insert(ctx context.Context, kind, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Unix()

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO remote_resources (kind, id, payload, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
	`, kind, id, string(payload), now)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrAlreadyExists
	}

	log.Debug().Str("kind", kind).Str("id", id).Msg("Store.Insert completed")
	return nil
}

// Replace overwrites an existing resource if it is still at version,
// incrementing the version. Returns ErrConflict if it moved on and
// ErrNotFound if it is gone.
func (s *Store) Replace(ctx context.Context, kind, id string, version int64, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Unix()

	result, err := s.db.ExecContext(ctx, `
		UPDATE remote_resources
		SET payload = ?, version = version + 1, updated_at = ?
		WHERE kind = ? AND id = ? AND version = ?
	`, string(payload), now, kind, id, version)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM remote_resources WHERE kind = ? AND id = ?`, kind, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return ErrConflict
	}

	log.Debug().
		Str("kind", kind).
		Str("id", id).
		Str("payload", string(payload)).
		Msg("Store.Replace completed")

	return nil
}

// List returns all payloads for a kind keyed by id.
func (s *Store) List(ctx context.Context, kind string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload FROM remote_resources WHERE kind = ?
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payloads := make(map[string][]byte)
	for rows.Next() {
		var id, payloadStr string
		if err := rows.Scan(&id, &payloadStr); err != nil {
			return nil, err
		}
		payloads[id] = []byte(payloadStr)
	}

	return payloads, rows.Err()
}
