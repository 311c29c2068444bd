package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/cuemby/katalog/pkg/types"
)

// CreateCollection inserts a new asset collection.
func (s *SQLiteStore) CreateCollection(c *types.AssetCollection) error {
	source, err := marshalSource(c.Source)
	if err != nil {
		return err
	}
	now := nowISO()
	res, err := s.db.Exec(
		`INSERT INTO asset_collections (name, description, source, membership_key_id, asset_count, refresh_mode, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Description, source, c.MembershipKeyID, c.AssetCount, string(c.RefreshMode), now, now,
	)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create collection: last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// SaveCollection updates an existing collection's mutable fields.
func (s *SQLiteStore) SaveCollection(c *types.AssetCollection) error {
	source, err := marshalSource(c.Source)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`UPDATE asset_collections SET name = ?, description = ?, source = ?, asset_count = ?, refresh_mode = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Description, source, c.AssetCount, string(c.RefreshMode), nowISO(), c.ID,
	)
	if err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	return nil
}

// DeleteCollection removes a collection by id.
func (s *SQLiteStore) DeleteCollection(id int64) error {
	_, err := s.db.Exec(`DELETE FROM asset_collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	return nil
}

// AddCollectionMembersForQuery inserts one collection-membership
// Metadata row per matched asset id, bound to the given actor and
// changeset.
func (s *SQLiteStore) AddCollectionMembersForQuery(collectionID int64, assetIDs []int64, membershipKeyID, actorID int64, changesetID int64) error {
	if len(assetIDs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("add collection members: begin: %w", err)
	}
	rows := make([]*types.Metadata, 0, len(assetIDs))
	for _, assetID := range assetIDs {
		cid := collectionID
		rows = append(rows, &types.Metadata{
			AssetID: assetID, ActorID: actorID, ChangesetID: changesetID,
			MetadataKeyID: membershipKeyID, ValueType: types.ValueCollection, ValueCollectionID: &cid,
		})
	}
	if err := insertMetadataRows(tx, rows); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// GetCollection fetches a single collection by id, decoding its stored
// Source query if one is set.
func (s *SQLiteStore) GetCollection(id int64) (*types.AssetCollection, error) {
	row := s.db.QueryRow(
		`SELECT id, name, description, source, membership_key_id, asset_count, refresh_mode, created_at, updated_at
		 FROM asset_collections WHERE id = ?`, id)
	return scanCollection(row)
}

// ListCollections returns every collection, ordered by id.
func (s *SQLiteStore) ListCollections() ([]*types.AssetCollection, error) {
	rows, err := s.db.Query(
		`SELECT id, name, description, source, membership_key_id, asset_count, refresh_mode, created_at, updated_at
		 FROM asset_collections ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []*types.AssetCollection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCollection(row rowScanner) (*types.AssetCollection, error) {
	var c types.AssetCollection
	var description, refreshMode, createdAt, updatedAt string
	var source sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &description, &source, &c.MembershipKeyID, &c.AssetCount, &refreshMode, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan collection: %w", err)
	}
	c.Description = description
	c.RefreshMode = types.RefreshMode(refreshMode)
	if source.Valid && source.String != "" {
		if err := json.Unmarshal([]byte(source.String), &c.Source); err != nil {
			return nil, fmt.Errorf("scan collection: decode source: %w", err)
		}
	}
	c.CreatedAt = parseISO(createdAt)
	c.UpdatedAt = parseISO(updatedAt)
	return &c, nil
}

func marshalSource(source map[string]any) (string, error) {
	if source == nil {
		return "", nil
	}
	b, err := json.Marshal(source)
	if err != nil {
		return "", fmt.Errorf("encode collection source: %w", err)
	}
	return string(b), nil
}
