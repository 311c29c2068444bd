package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cuemby/katalog/pkg/types"
)

// AnyInProgress reports whether a changeset with status in_progress
// already exists, enforcing the single-in-progress invariant at Begin.
func (s *SQLiteStore) AnyInProgress() (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM changesets WHERE status = ?`, string(types.ChangesetInProgress)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("any in progress: %w", err)
	}
	return count > 0, nil
}

// Begin creates a new changeset row with the given id (the caller
// assigns id = now_ms) and binds its actors. Fails if another
// changeset is already in_progress or id collides.
func (s *SQLiteStore) Begin(id int64, status types.ChangesetStatus, actorIDs []int64, message string) (*types.Changeset, error) {
	inProgress, err := s.AnyInProgress()
	if err != nil {
		return nil, err
	}
	if inProgress {
		return nil, ErrChangesetInProgress
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin changeset: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO changesets (id, status, message, running_time_ms, data) VALUES (?, ?, ?, 0, '{}')`,
		id, string(status), message,
	); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("begin changeset: insert: %w", err)
	}

	for _, actorID := range actorIDs {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO changeset_actors (changeset_id, actor_id) VALUES (?, ?)`, id, actorID,
		); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("begin changeset: bind actor %d: %w", actorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("begin changeset: commit: %w", err)
	}

	return &types.Changeset{ID: id, Status: status, Message: message, ActorIDs: actorIDs, Data: map[string]any{}}, nil
}

// Save persists the full state of cs, including its Data payload
// (stats, error traces, scan metrics).
func (s *SQLiteStore) Save(cs *types.Changeset) error {
	data, err := json.Marshal(cs.Data)
	if err != nil {
		return fmt.Errorf("save changeset: encode data: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE changesets SET status = ?, message = ?, running_time_ms = ?, data = ? WHERE id = ?`,
		string(cs.Status), cs.Message, cs.RunningTimeMS, string(data), cs.ID,
	)
	if err != nil {
		return fmt.Errorf("save changeset: %w", err)
	}
	return nil
}

// Delete removes a changeset; cascades to its metadata rows via FK.
func (s *SQLiteStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM changesets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete changeset: %w", err)
	}
	return nil
}

// LoadActorIDs returns the actor ids bound to a changeset.
func (s *SQLiteStore) LoadActorIDs(changesetID int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT actor_id FROM changeset_actors WHERE changeset_id = ?`, changesetID)
	if err != nil {
		return nil, fmt.Errorf("load actor ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("load actor ids: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListChangesetMetadataChanges paginates the metadata rows written by
// one changeset.
func (s *SQLiteStore) ListChangesetMetadataChanges(changesetID int64, offset, limit int) ([]*types.Metadata, error) {
	rows, err := s.db.Query(
		`SELECT `+metadataColumns+` FROM metadata WHERE changeset_id = ? ORDER BY id LIMIT ? OFFSET ?`,
		changesetID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list changeset metadata changes: %w", err)
	}
	defer rows.Close()
	return scanMetadataRows(rows)
}

// ListChangesets returns the most recent changesets, newest first,
// without their actor bindings (callers needing those call
// LoadActorIDs per id).
func (s *SQLiteStore) ListChangesets(limit int) ([]*types.Changeset, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, status, message, running_time_ms, data FROM changesets ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list changesets: %w", err)
	}
	defer rows.Close()

	var out []*types.Changeset
	for rows.Next() {
		var id, runningTimeMS int64
		var status, message, data string
		if err := rows.Scan(&id, &status, &message, &runningTimeMS, &data); err != nil {
			return nil, fmt.Errorf("list changesets: scan: %w", err)
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(data), &decoded); err != nil {
			return nil, fmt.Errorf("list changesets: decode data: %w", err)
		}
		out = append(out, &types.Changeset{
			ID: id, Status: types.ChangesetStatus(status), Message: message,
			RunningTimeMS: runningTimeMS, Data: decoded,
		})
	}
	return out, rows.Err()
}

// GetChangeset fetches a changeset by id, decoding its Data payload.
func (s *SQLiteStore) GetChangeset(id int64) (*types.Changeset, error) {
	var status, message, data string
	var runningTimeMS int64
	err := s.db.QueryRow(
		`SELECT status, message, running_time_ms, data FROM changesets WHERE id = ?`, id,
	).Scan(&status, &message, &runningTimeMS, &data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("changeset %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get changeset: %w", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(data), &decoded); err != nil {
		return nil, fmt.Errorf("get changeset: decode data: %w", err)
	}

	actorIDs, err := s.LoadActorIDs(id)
	if err != nil {
		return nil, err
	}

	return &types.Changeset{
		ID: id, Status: types.ChangesetStatus(status), Message: message,
		RunningTimeMS: runningTimeMS, Data: decoded, ActorIDs: actorIDs,
	}, nil
}
