package site

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Repository persists site snapshots so the cache survives restarts.
type Repository interface {
	// Save inserts or replaces the snapshot of one site.
	Save(ctx context.Context, state State) error

	// List returns every stored snapshot.
	List(ctx context.Context) ([]State, error)
}

// SQLiteRepository implements Repository using the site_snapshots table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save inserts or replaces the snapshot of one site.
func (r *SQLiteRepository) Save(ctx context.Context, state State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling site %s: %w", state.SiteID, err)
	}

	var room sql.NullString
	if state.RoomName != nil {
		room = sql.NullString{String: *state.RoomName, Valid: true}
	}

	updated := state.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	query := `
		INSERT INTO site_snapshots (site_id, room_name, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(site_id) DO UPDATE SET
			room_name = excluded.room_name,
			state = excluded.state,
			updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query,
		state.SiteID, room, string(payload), updated.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("saving site %s: %w", state.SiteID, err)
	}
	return nil
}

// List returns every stored snapshot ordered by site ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]State, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT site_id, state FROM site_snapshots ORDER BY site_id`)
	if err != nil {
		return nil, fmt.Errorf("querying site snapshots: %w", err)
	}
	defer rows.Close()

	var states []State
	for rows.Next() {
		var siteID, payload string
		if err := rows.Scan(&siteID, &payload); err != nil {
			return nil, fmt.Errorf("scanning site snapshot: %w", err)
		}
		var st State
		if err := json.Unmarshal([]byte(payload), &st); err != nil {
			return nil, fmt.Errorf("decoding site %s: %w", siteID, err)
		}
		st.SiteID = siteID
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating site snapshots: %w", err)
	}
	return states, nil
}
