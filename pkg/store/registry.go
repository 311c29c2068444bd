package store

import (
	"database/sql"
	"fmt"

	"github.com/cuemby/katalog/pkg/types"
)

// UpsertMetadataKey inserts a metadata key definition by name, or
// updates its descriptive fields if it already exists, returning the
// stable id either way. Ids are never reassigned across calls.
func (s *SQLiteStore) UpsertMetadataKey(def *types.MetadataKeyDef) (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM metadata_registry WHERE name = ?`, def.Name).Scan(&id)
	switch {
	case err == nil:
		_, err = s.db.Exec(
			`UPDATE metadata_registry SET value_type = ?, title = ?, description = ?, width = ?, skip_false = ?, clear_on_false = ?, searchable = ? WHERE id = ?`,
			string(def.ValueType), def.Title, def.Description, def.Width, def.SkipFalse, def.ClearOnFalse, def.Searchable, id,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert metadata key: update: %w", err)
		}
		return id, nil
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("upsert metadata key: lookup: %w", err)
	}

	res, err := s.db.Exec(
		`INSERT INTO metadata_registry (name, value_type, title, description, width, skip_false, clear_on_false, searchable)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		def.Name, string(def.ValueType), def.Title, def.Description, def.Width, def.SkipFalse, def.ClearOnFalse, def.Searchable,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert metadata key: insert: %w", err)
	}
	return res.LastInsertId()
}
