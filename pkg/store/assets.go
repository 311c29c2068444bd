package store

import (
	"database/sql"
	"fmt"

	"github.com/cuemby/katalog/pkg/types"
)

// SaveRecord looks up an asset by (namespace, external_id) when it has
// no id; reuses the existing row if found, otherwise inserts a new
// one. Idempotent across repeated scans of the same asset.
func (s *SQLiteStore) SaveRecord(asset *types.Asset) (bool, error) {
	if asset.ID != 0 {
		return false, nil
	}

	var existingID int64
	var canonicalAssetID sql.NullInt64
	err := s.db.QueryRow(
		`SELECT id, canonical_asset_id FROM assets WHERE namespace = ? AND external_id = ?`,
		asset.Namespace, asset.ExternalID,
	).Scan(&existingID, &canonicalAssetID)

	switch {
	case err == nil:
		asset.ID = existingID
		if canonicalAssetID.Valid {
			v := canonicalAssetID.Int64
			asset.CanonicalAssetID = &v
		}
		return false, nil
	case err != sql.ErrNoRows:
		return false, fmt.Errorf("save asset: lookup: %w", err)
	}

	res, err := s.db.Exec(
		`INSERT INTO assets (actor_id, namespace, external_id, canonical_uri) VALUES (?, ?, ?, ?)`,
		asset.ActorID, asset.Namespace, asset.ExternalID, asset.CanonicalURI,
	)
	if err != nil {
		return false, fmt.Errorf("save asset: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("save asset: last insert id: %w", err)
	}
	asset.ID = id
	return true, nil
}

// GetAsset fetches a single asset by id.
func (s *SQLiteStore) GetAsset(id int64) (*types.Asset, error) {
	row := s.db.QueryRow(
		`SELECT id, canonical_asset_id, actor_id, namespace, external_id, canonical_uri FROM assets WHERE id = ?`, id)
	return scanAsset(row)
}

func scanAsset(row *sql.Row) (*types.Asset, error) {
	var a types.Asset
	var canonicalAssetID sql.NullInt64
	if err := row.Scan(&a.ID, &canonicalAssetID, &a.ActorID, &a.Namespace, &a.ExternalID, &a.CanonicalURI); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("asset: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan asset: %w", err)
	}
	if canonicalAssetID.Valid {
		v := canonicalAssetID.Int64
		a.CanonicalAssetID = &v
	}
	return &a, nil
}
