package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// Loader implements ports.DefinitionLoader over the definition tables.
type Loader struct {
	db *DB
}

// Loader returns a definition loader reading from d.
func (d *DB) Loader() *Loader {
	return &Loader{db: d}
}

// Load reads every state, transition and group.
func (l *Loader) Load(ctx context.Context) (*domain.Definition, error) {
	def := &domain.Definition{}
	index := make(map[int64]int)

	rows, err := l.db.db.QueryContext(ctx, `SELECT id, name, type FROM states ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	err = scanAll(rows, func() error {
		var s domain.StateDef
		if err := rows.Scan(&s.ID, &s.Name, &s.Type); err != nil {
			return err
		}
		s.Attributes = make(map[string]string)
		index[s.ID] = len(def.States)
		def.States = append(def.States, s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan states: %w", err)
	}

	rows, err = l.db.db.QueryContext(ctx, `SELECT state_id, name, value FROM state_attributes`)
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", err)
	}
	err = scanAll(rows, func() error {
		var id int64
		var name, value string
		if err := rows.Scan(&id, &name, &value); err != nil {
			return err
		}
		if i, ok := index[id]; ok {
			def.States[i].Attributes[name] = value
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan attributes: %w", err)
	}

	rows, err = l.db.db.QueryContext(ctx,
		`SELECT state_id, name, start_state, start_event FROM prerequisites ORDER BY state_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query prerequisites: %w", err)
	}
	err = scanAll(rows, func() error {
		var id int64
		var p domain.PrerequisiteDef
		if err := rows.Scan(&id, &p.Name, &p.State, &p.Event); err != nil {
			return err
		}
		if i, ok := index[id]; ok {
			def.States[i].Prerequisites = append(def.States[i].Prerequisites, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan prerequisites: %w", err)
	}

	groups := make(map[string]int)
	rows, err = l.db.db.QueryContext(ctx,
		`SELECT from_id, group_name, to_id, name, publish_keys, content_provider FROM transitions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	err = scanAll(rows, func() error {
		var from sql.NullInt64
		var group sql.NullString
		var keys string
		var t domain.TransitionDef
		if err := rows.Scan(&from, &group, &t.To, &t.Name, &keys, &t.ContentProvider); err != nil {
			return err
		}
		t.PublishKeys = splitKeys(keys)
		switch {
		case group.Valid && group.String != "":
			i, ok := groups[group.String]
			if !ok {
				i = len(def.Groups)
				groups[group.String] = i
				def.Groups = append(def.Groups, domain.GroupDef{Name: group.String})
			}
			def.Groups[i].Transitions = append(def.Groups[i].Transitions, t)
		case from.Valid:
			// Sources that are not loaded are reported by the graph builder.
			t.From = from.Int64
			def.Transitions = append(def.Transitions, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan transitions: %w", err)
	}

	rows, err = l.db.db.QueryContext(ctx, `SELECT state_id, group_name FROM state_groups ORDER BY state_id, group_name`)
	if err != nil {
		return nil, fmt.Errorf("query state groups: %w", err)
	}
	err = scanAll(rows, func() error {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}
		if i, ok := index[id]; ok {
			def.States[i].Groups = append(def.States[i].Groups, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan state groups: %w", err)
	}
	return def, nil
}

// Import replaces the stored definition with def.
func (d *DB) Import(ctx context.Context, def *domain.Definition) error {
	return d.tx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"transitions", "state_groups", "prerequisites", "state_attributes", "states"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		for _, s := range def.States {
			if _, err := tx.ExecContext(ctx, `INSERT INTO states (id, name, type) VALUES (?, ?, ?)`, s.ID, s.Name, s.Type); err != nil {
				return fmt.Errorf("insert state %d: %w", s.ID, err)
			}
			for k, v := range s.Attributes {
				if _, err := tx.ExecContext(ctx, `INSERT INTO state_attributes (state_id, name, value) VALUES (?, ?, ?)`, s.ID, k, v); err != nil {
					return fmt.Errorf("insert attribute %s of state %d: %w", k, s.ID, err)
				}
			}
			for i, p := range s.Prerequisites {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO prerequisites (state_id, position, name, start_state, start_event) VALUES (?, ?, ?, ?, ?)`,
					s.ID, i, p.Name, p.State, p.Event); err != nil {
					return fmt.Errorf("insert prerequisite of state %d: %w", s.ID, err)
				}
			}
			for _, t := range s.Transitions {
				if err := insertTransition(ctx, tx, s.ID, "", t); err != nil {
					return err
				}
			}
			for _, g := range s.Groups {
				if _, err := tx.ExecContext(ctx, `INSERT INTO state_groups (state_id, group_name) VALUES (?, ?)`, s.ID, g); err != nil {
					return fmt.Errorf("insert group %s of state %d: %w", g, s.ID, err)
				}
			}
		}
		for _, t := range def.Transitions {
			if err := insertTransition(ctx, tx, t.From, "", t); err != nil {
				return err
			}
		}
		for _, g := range def.Groups {
			for _, t := range g.Transitions {
				if err := insertTransition(ctx, tx, 0, g.Name, t); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func insertTransition(ctx context.Context, tx *sql.Tx, from int64, group string, t domain.TransitionDef) error {
	var fromArg, groupArg any
	if group != "" {
		groupArg = group
	} else {
		fromArg = from
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transitions (from_id, group_name, to_id, name, publish_keys, content_provider) VALUES (?, ?, ?, ?, ?, ?)`,
		fromArg, groupArg, t.To, t.Name, strings.Join(t.PublishKeys, ","), t.ContentProvider)
	if err != nil {
		return fmt.Errorf("insert transition %q: %w", t.Name, err)
	}
	return nil
}

func splitKeys(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func scanAll(rows *sql.Rows, fn func() error) error {
	defer rows.Close()
	for rows.Next() {
		if err := fn(); err != nil {
			return err
		}
	}
	return rows.Err()
}
