package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cuemby/katalog/pkg/types"
)

// CreateActor inserts a new actor row and assigns its id. If an actor
// of the same (type, identity_key) already exists, that row is reused
// instead, so repeated bootstrap runs stay idempotent.
func (s *SQLiteStore) CreateActor(actor *types.Actor) error {
	if actor.IdentityKey != "" {
		existing, err := s.getActorByIdentity(actor.Type, actor.IdentityKey)
		if err == nil {
			*actor = *existing
			return nil
		}
		if err != ErrNotFound {
			return err
		}
	}

	cfg, err := marshalActorConfig(actor.Config)
	if err != nil {
		return err
	}
	now := nowISO()
	res, err := s.db.Exec(
		`INSERT INTO actors (name, plugin_id, type, config, identity_key, disabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		actor.Name, actor.PluginID, string(actor.Type), cfg, nullableString(actor.IdentityKey), actor.Disabled, now, now,
	)
	if err != nil {
		return fmt.Errorf("create actor: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create actor: last insert id: %w", err)
	}
	actor.ID = id
	return nil
}

// GetActor fetches a single actor by id.
func (s *SQLiteStore) GetActor(id int64) (*types.Actor, error) {
	row := s.db.QueryRow(
		`SELECT id, name, plugin_id, type, config, identity_key, disabled, created_at, updated_at FROM actors WHERE id = ?`, id)
	return scanActor(row)
}

func (s *SQLiteStore) getActorByIdentity(actorType types.ActorType, identityKey string) (*types.Actor, error) {
	row := s.db.QueryRow(
		`SELECT id, name, plugin_id, type, config, identity_key, disabled, created_at, updated_at
		 FROM actors WHERE type = ? AND identity_key = ?`, string(actorType), identityKey)
	return scanActor(row)
}

// ListActors returns every actor of actorType, enabled or not. Pass ""
// to list actors of every type.
func (s *SQLiteStore) ListActors(actorType types.ActorType) ([]*types.Actor, error) {
	query := `SELECT id, name, plugin_id, type, config, identity_key, disabled, created_at, updated_at FROM actors`
	args := []any{}
	if actorType != "" {
		query += ` WHERE type = ?`
		args = append(args, string(actorType))
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	defer rows.Close()

	var out []*types.Actor
	for rows.Next() {
		actor, err := scanActorRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, actor)
	}
	return out, rows.Err()
}

// SetActorDisabled flips an actor's disabled flag.
func (s *SQLiteStore) SetActorDisabled(id int64, disabled bool) error {
	_, err := s.db.Exec(`UPDATE actors SET disabled = ?, updated_at = ? WHERE id = ?`, disabled, nowISO(), id)
	if err != nil {
		return fmt.Errorf("set actor disabled: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActor(row *sql.Row) (*types.Actor, error) {
	return scanActorRow(row)
}

func scanActorRows(rows *sql.Rows) (*types.Actor, error) {
	return scanActorRow(rows)
}

func scanActorRow(row rowScanner) (*types.Actor, error) {
	var a types.Actor
	var actorType, config string
	var identityKey sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&a.ID, &a.Name, &a.PluginID, &actorType, &config, &identityKey, &a.Disabled, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan actor: %w", err)
	}
	a.Type = types.ActorType(actorType)
	a.IdentityKey = identityKey.String
	if config != "" {
		if err := json.Unmarshal([]byte(config), &a.Config); err != nil {
			return nil, fmt.Errorf("scan actor: decode config: %w", err)
		}
	}
	a.CreatedAt = parseISO(createdAt)
	a.UpdatedAt = parseISO(updatedAt)
	return &a, nil
}

func marshalActorConfig(cfg map[string]any) (string, error) {
	if cfg == nil {
		return "{}", nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode actor config: %w", err)
	}
	return string(b), nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
