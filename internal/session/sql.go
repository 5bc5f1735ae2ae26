package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/civilens/civilens/internal/civilens"
)

// SQLStore keeps records in the local_storage table as JSON documents.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) For(deviceID string) Repository {
	return &sqlRepo{db: s.db, device: deviceID}
}

type sqlRepo struct {
	db     *sql.DB
	device string
}

func (r *sqlRepo) Load(ctx context.Context) (civilens.Session, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		`SELECT data FROM local_storage WHERE device_id = ? AND key = ?`, r.device, Key,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return civilens.Session{}, ErrNotFound
	}
	if err != nil {
		return civilens.Session{}, fmt.Errorf("loading session: %w", err)
	}

	var s civilens.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return civilens.Session{}, fmt.Errorf("decoding session: %w", err)
	}
	return s, nil
}

func (r *sqlRepo) Save(ctx context.Context, s civilens.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO local_storage (device_id, key, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(device_id, key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		r.device, Key, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}
