package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/katalog/pkg/changes"
	"github.com/cuemby/katalog/pkg/types"
)

const metadataColumns = `id, asset_id, actor_id, changeset_id, metadata_key_id, value_type,
	value_text, value_int, value_real, value_datetime, value_json,
	value_relation_id, value_collection_id, removed, confidence`

// ForAsset returns all metadata rows for one asset, append-only
// history included.
func (s *SQLiteStore) ForAsset(assetID int64, includeRemoved bool) ([]*types.Metadata, error) {
	query := `SELECT ` + metadataColumns + ` FROM metadata WHERE asset_id = ?`
	if !includeRemoved {
		query += ` AND removed = 0`
	}
	rows, err := s.db.Query(query, assetID)
	if err != nil {
		return nil, fmt.Errorf("for asset: %w", err)
	}
	defer rows.Close()
	return scanMetadataRows(rows)
}

// ForAssets batches ForAsset across many asset ids into one query.
func (s *SQLiteStore) ForAssets(assetIDs []int64, includeRemoved bool) (map[int64][]*types.Metadata, error) {
	result := make(map[int64][]*types.Metadata, len(assetIDs))
	if len(assetIDs) == 0 {
		return result, nil
	}

	placeholders, args := inClause(assetIDs)
	query := `SELECT ` + metadataColumns + ` FROM metadata WHERE asset_id IN (` + placeholders + `)`
	if !includeRemoved {
		query += ` AND removed = 0`
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("for assets: %w", err)
	}
	defer rows.Close()

	all, err := scanMetadataRows(rows)
	if err != nil {
		return nil, err
	}
	for _, m := range all {
		result[m.AssetID] = append(result[m.AssetID], m)
	}
	return result, nil
}

// HasMetadataForActor reports whether actorID has ever written a row.
func (s *SQLiteStore) HasMetadataForActor(actorID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM metadata WHERE actor_id = ? LIMIT 1`, actorID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has metadata for actor: %w", err)
	}
	return count > 0, nil
}

// BulkCreate appends rows in one statement batch. Never an UPSERT:
// every call is a pure append, preserving the append-only invariant.
func (s *SQLiteStore) BulkCreate(rows []*types.Metadata) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("bulk create: begin: %w", err)
	}
	if err := insertMetadataRows(tx, rows); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// PersistChanges computes prepare_persist for one asset against its
// authoritative existing rows and appends the result transactionally.
func (s *SQLiteStore) PersistChanges(policy changes.KeyPolicy, changeset *types.Changeset, asset *types.Asset, staged []*types.Metadata) (*changes.PreparePersistResult, error) {
	existing, err := s.ForAsset(asset.EffectiveID(), true)
	if err != nil {
		return nil, fmt.Errorf("persist changes: load existing: %w", err)
	}

	result, err := changes.PreparePersist(policy, changeset, asset, staged, existing)
	if err != nil {
		return nil, err
	}

	if len(result.ToAppend) == 0 {
		return result, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("persist changes: begin: %w", err)
	}
	if err := insertMetadataRows(tx, result.ToAppend); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("persist changes: commit: %w", err)
	}
	return result, nil
}

// PersistChangesBatch runs prepare_persist for every item inside a
// single BEGIN/COMMIT/ROLLBACK transaction; a failure in any item
// rolls back the whole batch.
func (s *SQLiteStore) PersistChangesBatch(policy changes.KeyPolicy, changeset *types.Changeset, items []AssetStagedPair, existingByAsset map[int64][]*types.Metadata) ([]*changes.PreparePersistResult, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("persist changes batch: begin: %w", err)
	}

	results := make([]*changes.PreparePersistResult, 0, len(items))
	for _, item := range items {
		existing := existingByAsset[item.Asset.EffectiveID()]
		result, err := changes.PreparePersist(policy, changeset, item.Asset, item.Staged, existing)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("persist changes batch: asset %d: %w", item.Asset.ID, err)
		}
		if len(result.ToAppend) > 0 {
			if err := insertMetadataRows(tx, result.ToAppend); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
		results = append(results, result)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("persist changes batch: commit: %w", err)
	}
	return results, nil
}

// MarkUnseenAsLost inserts one asset/lost=1 row per actor for every
// asset that previously carried metadata from that actor but is
// absent from seenAssetIDs in this run.
func (s *SQLiteStore) MarkUnseenAsLost(changeset *types.Changeset, lostKeyID int64, actorIDs []int64, seenAssetIDs map[int64]bool) (int, error) {
	if len(actorIDs) == 0 {
		return 0, nil
	}

	placeholders, args := inClause(actorIDs)
	rows, err := s.db.Query(
		`SELECT DISTINCT asset_id, actor_id FROM metadata WHERE actor_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("mark unseen as lost: %w", err)
	}
	type pair struct{ assetID, actorID int64 }
	var candidates []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.assetID, &p.actorID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("mark unseen as lost: scan: %w", err)
		}
		if !seenAssetIDs[p.assetID] {
			candidates = append(candidates, p)
		}
	}
	rows.Close()

	if len(candidates) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("mark unseen as lost: begin: %w", err)
	}
	one := int64(1)
	lost := make([]*types.Metadata, 0, len(candidates))
	for _, c := range candidates {
		lost = append(lost, &types.Metadata{
			AssetID:       c.assetID,
			ActorID:       c.actorID,
			ChangesetID:   changeset.ID,
			MetadataKeyID: lostKeyID,
			ValueType:     types.ValueInt,
			ValueInt:      &one,
		})
	}
	if err := insertMetadataRows(tx, lost); err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mark unseen as lost: commit: %w", err)
	}
	return len(lost), nil
}

func insertMetadataRows(tx *sql.Tx, rows []*types.Metadata) error {
	stmt, err := tx.Prepare(`INSERT INTO metadata (
		asset_id, actor_id, changeset_id, metadata_key_id, value_type,
		value_text, value_int, value_real, value_datetime, value_json,
		value_relation_id, value_collection_id, removed, confidence
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("insert metadata: prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range rows {
		var valueJSON sql.NullString
		if m.ValueJSON != nil {
			b, err := json.Marshal(m.ValueJSON)
			if err != nil {
				return fmt.Errorf("insert metadata: encode json: %w", err)
			}
			valueJSON = sql.NullString{String: string(b), Valid: true}
		}
		var valueDatetime sql.NullString
		if m.ValueDatetime != nil {
			valueDatetime = sql.NullString{String: m.ValueDatetime.UTC().Format(time.RFC3339Nano), Valid: true}
		}

		res, err := stmt.Exec(
			m.AssetID, m.ActorID, m.ChangesetID, m.MetadataKeyID, string(m.ValueType),
			nullString(m.ValueText), nullInt(m.ValueInt), nullFloat(m.ValueReal), valueDatetime, valueJSON,
			nullInt(m.ValueRelationID), nullInt(m.ValueCollectionID), m.Removed, nullFloat(m.Confidence),
		)
		if err != nil {
			return fmt.Errorf("insert metadata: exec: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert metadata: last insert id: %w", err)
		}
		m.ID = id
	}
	return nil
}

func scanMetadataRows(rows *sql.Rows) ([]*types.Metadata, error) {
	var out []*types.Metadata
	for rows.Next() {
		m, err := scanMetadataRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMetadataRow(rows *sql.Rows) (*types.Metadata, error) {
	var m types.Metadata
	var valueType string
	var valueText, valueDatetime, valueJSON sql.NullString
	var valueInt, valueRelationID, valueCollectionID sql.NullInt64
	var valueReal, confidence sql.NullFloat64

	err := rows.Scan(
		&m.ID, &m.AssetID, &m.ActorID, &m.ChangesetID, &m.MetadataKeyID, &valueType,
		&valueText, &valueInt, &valueReal, &valueDatetime, &valueJSON,
		&valueRelationID, &valueCollectionID, &m.Removed, &confidence,
	)
	if err != nil {
		return nil, fmt.Errorf("scan metadata: %w", err)
	}
	m.ValueType = types.ValueType(valueType)

	if valueText.Valid {
		m.ValueText = &valueText.String
	}
	if valueInt.Valid {
		v := valueInt.Int64
		m.ValueInt = &v
	}
	if valueReal.Valid {
		v := valueReal.Float64
		m.ValueReal = &v
	}
	if valueDatetime.Valid {
		t, err := time.Parse(time.RFC3339Nano, valueDatetime.String)
		if err != nil {
			return nil, fmt.Errorf("scan metadata: parse datetime: %w", err)
		}
		m.ValueDatetime = &t
	}
	if valueJSON.Valid {
		var v any
		if err := json.Unmarshal([]byte(valueJSON.String), &v); err != nil {
			return nil, fmt.Errorf("scan metadata: decode json: %w", err)
		}
		m.ValueJSON = v
	}
	if valueRelationID.Valid {
		v := valueRelationID.Int64
		m.ValueRelationID = &v
	}
	if valueCollectionID.Valid {
		v := valueCollectionID.Int64
		m.ValueCollectionID = &v
	}
	if confidence.Valid {
		v := confidence.Float64
		m.Confidence = &v
	}
	return &m, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func inClause(ids []int64) (string, []any) {
	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	return placeholders, args
}
