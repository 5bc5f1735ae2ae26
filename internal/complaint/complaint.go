// Package complaint records reports whose violation the detector confirmed.
package complaint

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/civilens/civilens/internal/civilens"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record stores c with a fresh id and timestamp and returns the stored copy.
func (s *Store) Record(ctx context.Context, c civilens.Complaint) (civilens.Complaint, error) {
	c.ID = uuid.NewString()
	c.CreatedAt = s.now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO complaints (id, phone, violation_type, result, location, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Phone, string(c.ViolationType), c.Result, c.Location, c.Description,
		c.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return civilens.Complaint{}, fmt.Errorf("inserting complaint: %w", err)
	}
	return c, nil
}

// List returns all complaints, newest first.
func (s *Store) List(ctx context.Context) ([]civilens.Complaint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone, violation_type, result, location, description, created_at
		 FROM complaints ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing complaints: %w", err)
	}
	defer rows.Close()

	out := []civilens.Complaint{}
	for rows.Next() {
		var (
			c         civilens.Complaint
			vt, stamp string
		)
		if err := rows.Scan(&c.ID, &c.Phone, &vt, &c.Result, &c.Location, &c.Description, &stamp); err != nil {
			return nil, err
		}
		c.ViolationType = civilens.ViolationType(vt)
		c.CreatedAt, err = time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", stamp, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
