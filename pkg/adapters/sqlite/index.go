package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
)

// IndexStore implements ports.IndexStore over the publish_index table.
type IndexStore struct {
	db *DB
}

// IndexStore returns a publish index store backed by d.
func (d *DB) IndexStore() *IndexStore {
	return &IndexStore{db: d}
}

// Save replaces the index of server in one transaction.
func (s *IndexStore) Save(ctx context.Context, server string, entries []domain.IndexEntry) error {
	return s.db.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO index_servers (server, saved_at) VALUES (?, ?)
			 ON CONFLICT(server) DO UPDATE SET saved_at = excluded.saved_at`,
			server, time.Now().UnixMilli()); err != nil {
			return fmt.Errorf("upsert server: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM publish_index WHERE server = ?`, server); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO publish_index
			 (server, key, start_state, published_state, event, site, section, path, last_published, hits)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range entries {
			var last any
			if e.LastPublished != nil {
				last = e.LastPublished.UnixNano()
			}
			if _, err := stmt.ExecContext(ctx, server, e.Key, e.StartState, e.PublishedState, e.Event, e.Site, e.Section, e.Path, last, e.Hits); err != nil {
				return fmt.Errorf("insert entry %q: %w", e.Key, err)
			}
		}
		return nil
	})
}

// Load returns the index of server.
func (s *IndexStore) Load(ctx context.Context, server string) ([]domain.IndexEntry, error) {
	var savedAt int64
	err := s.db.db.QueryRowContext(ctx, `SELECT saved_at FROM index_servers WHERE server = ?`, server).Scan(&savedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query server: %w", err)
	}

	rows, err := s.db.db.QueryContext(ctx,
		`SELECT key, start_state, published_state, event, site, section, path, last_published, hits
		 FROM publish_index WHERE server = ? ORDER BY key`, server)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	entries := []domain.IndexEntry{}
	err = scanAll(rows, func() error {
		e := domain.IndexEntry{Server: server}
		var last sql.NullInt64
		if err := rows.Scan(&e.Key, &e.StartState, &e.PublishedState, &e.Event, &e.Site, &e.Section, &e.Path, &last, &e.Hits); err != nil {
			return err
		}
		if last.Valid {
			t := time.Unix(0, last.Int64).UTC()
			e.LastPublished = &t
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}
	return entries, nil
}
