package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InstanceRow represents a row from instances.
type InstanceRow struct {
	InstanceID uint32
	MapID      uint32
	Difficulty uint8
	ResetTime  int64 // Unix seconds
	CanReset   bool
}

// ResetTimeRow represents a row from instance_resets.
type ResetTimeRow struct {
	MapID      uint32
	Difficulty uint8
	ResetTime  int64 // Unix seconds
}

// CharacterBindRow represents a row from character_instances.
type CharacterBindRow struct {
	CharacterID int64
	InstanceID  uint32
	Permanent   bool
}

// GroupBindRow represents a row from group_instances.
type GroupBindRow struct {
	GroupID    int64
	InstanceID uint32
	Permanent  bool
}

// InstanceRepository provides CRUD for the instance save tables.
type InstanceRepository struct {
	pool *pgxpool.Pool
}

// NewInstanceRepository creates a new InstanceRepository.
func NewInstanceRepository(pool *pgxpool.Pool) *InstanceRepository {
	return &InstanceRepository{pool: pool}
}

// --- instances ---

// LoadAllInstances loads every persisted instance save.
func (r *InstanceRepository) LoadAllInstances(ctx context.Context) ([]InstanceRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, map_id, difficulty, reset_time, can_reset FROM instances ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	var result []InstanceRow
	for rows.Next() {
		var row InstanceRow
		if err := rows.Scan(&row.InstanceID, &row.MapID, &row.Difficulty, &row.ResetTime, &row.CanReset); err != nil {
			return nil, fmt.Errorf("scan instances: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// SaveInstance inserts or updates an instance save record.
func (r *InstanceRepository) SaveInstance(ctx context.Context, row InstanceRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO instances (id, map_id, difficulty, reset_time, can_reset)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   map_id     = EXCLUDED.map_id,
		   difficulty = EXCLUDED.difficulty,
		   reset_time = EXCLUDED.reset_time,
		   can_reset  = EXCLUDED.can_reset`,
		row.InstanceID, row.MapID, row.Difficulty, row.ResetTime, row.CanReset)
	if err != nil {
		return fmt.Errorf("upsert instance %d: %w", row.InstanceID, err)
	}
	return nil
}

// DeleteInstance removes an instance save and, via cascade, every
// character/group bind row referencing it.
func (r *InstanceRepository) DeleteInstance(ctx context.Context, instanceID uint32) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM instances WHERE id = $1`, instanceID)
	if err != nil {
		return fmt.Errorf("delete instance %d: %w", instanceID, err)
	}
	return nil
}

// DeleteExpiredInstances removes every instance whose reset time passed before
// the given Unix timestamp and that no character or group is bound to.
// Returns the number of deleted rows.
func (r *InstanceRepository) DeleteExpiredInstances(ctx context.Context, before int64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM instances i
		 WHERE i.reset_time > 0 AND i.reset_time < $1
		   AND NOT EXISTS (SELECT 1 FROM character_instances ci WHERE ci.instance_id = i.id)
		   AND NOT EXISTS (SELECT 1 FROM group_instances gi WHERE gi.instance_id = i.id)`,
		before)
	if err != nil {
		return 0, fmt.Errorf("delete expired instances: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PackInstances renumbers instance ids to 1..N, compacting the id space.
// Bind rows follow via ON UPDATE CASCADE. Must only be called while no
// instance save is live in memory.
// Returns the number of renumbered instances.
func (r *InstanceRepository) PackInstances(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin pack instances: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT id FROM instances ORDER BY id`)
	if err != nil {
		return 0, fmt.Errorf("query instance ids: %w", err)
	}
	var ids []uint32
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan instance id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate instance ids: %w", err)
	}

	// Ascending order guarantees the new id is always <= the old one,
	// so renumbering never collides with a not-yet-moved row.
	renumbered := 0
	for i, oldID := range ids {
		newID := uint32(i + 1)
		if newID == oldID {
			continue
		}
		if _, err := tx.Exec(ctx,
			`UPDATE instances SET id = $1 WHERE id = $2`, newID, oldID); err != nil {
			return 0, fmt.Errorf("renumber instance %d -> %d: %w", oldID, newID, err)
		}
		renumbered++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit pack instances: %w", err)
	}
	return renumbered, nil
}

// --- instance_resets ---

// LoadResetTimes loads every persisted cohort reset time.
func (r *InstanceRepository) LoadResetTimes(ctx context.Context) ([]ResetTimeRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT map_id, difficulty, reset_time FROM instance_resets`)
	if err != nil {
		return nil, fmt.Errorf("query instance_resets: %w", err)
	}
	defer rows.Close()

	var result []ResetTimeRow
	for rows.Next() {
		var row ResetTimeRow
		if err := rows.Scan(&row.MapID, &row.Difficulty, &row.ResetTime); err != nil {
			return nil, fmt.Errorf("scan instance_resets: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// SaveResetTime inserts or updates a cohort reset time.
func (r *InstanceRepository) SaveResetTime(ctx context.Context, row ResetTimeRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO instance_resets (map_id, difficulty, reset_time)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (map_id, difficulty) DO UPDATE SET
		   reset_time = EXCLUDED.reset_time`,
		row.MapID, row.Difficulty, row.ResetTime)
	if err != nil {
		return fmt.Errorf("upsert instance_resets (%d,%d): %w", row.MapID, row.Difficulty, err)
	}
	return nil
}

// DeleteResetTime removes a cohort reset time.
func (r *InstanceRepository) DeleteResetTime(ctx context.Context, mapID uint32, difficulty uint8) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM instance_resets WHERE map_id = $1 AND difficulty = $2`,
		mapID, difficulty)
	if err != nil {
		return fmt.Errorf("delete instance_resets (%d,%d): %w", mapID, difficulty, err)
	}
	return nil
}

// --- character_instances / group_instances ---

// LoadCharacterBinds loads every instance bind for a character.
func (r *InstanceRepository) LoadCharacterBinds(ctx context.Context, characterID int64) ([]CharacterBindRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT character_id, instance_id, permanent
		 FROM character_instances WHERE character_id = $1`, characterID)
	if err != nil {
		return nil, fmt.Errorf("query character_instances for %d: %w", characterID, err)
	}
	defer rows.Close()

	var result []CharacterBindRow
	for rows.Next() {
		var row CharacterBindRow
		if err := rows.Scan(&row.CharacterID, &row.InstanceID, &row.Permanent); err != nil {
			return nil, fmt.Errorf("scan character_instances: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// SaveCharacterBind inserts or updates a character instance bind.
func (r *InstanceRepository) SaveCharacterBind(ctx context.Context, row CharacterBindRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO character_instances (character_id, instance_id, permanent)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (character_id, instance_id) DO UPDATE SET
		   permanent = EXCLUDED.permanent`,
		row.CharacterID, row.InstanceID, row.Permanent)
	if err != nil {
		return fmt.Errorf("upsert character bind (%d,%d): %w", row.CharacterID, row.InstanceID, err)
	}
	return nil
}

// DeleteCharacterBind removes one character instance bind.
func (r *InstanceRepository) DeleteCharacterBind(ctx context.Context, characterID int64, instanceID uint32) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM character_instances WHERE character_id = $1 AND instance_id = $2`,
		characterID, instanceID)
	if err != nil {
		return fmt.Errorf("delete character bind (%d,%d): %w", characterID, instanceID, err)
	}
	return nil
}

// SaveGroupBind inserts or updates a group instance bind.
func (r *InstanceRepository) SaveGroupBind(ctx context.Context, row GroupBindRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO group_instances (group_id, instance_id, permanent)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (group_id, instance_id) DO UPDATE SET
		   permanent = EXCLUDED.permanent`,
		row.GroupID, row.InstanceID, row.Permanent)
	if err != nil {
		return fmt.Errorf("upsert group bind (%d,%d): %w", row.GroupID, row.InstanceID, err)
	}
	return nil
}

// DeleteGroupBind removes one group instance bind.
func (r *InstanceRepository) DeleteGroupBind(ctx context.Context, groupID int64, instanceID uint32) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM group_instances WHERE group_id = $1 AND instance_id = $2`,
		groupID, instanceID)
	if err != nil {
		return fmt.Errorf("delete group bind (%d,%d): %w", groupID, instanceID, err)
	}
	return nil
}

// CountBoundCharacters returns the number of character binds for an instance.
func (r *InstanceRepository) CountBoundCharacters(ctx context.Context, instanceID uint32) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM character_instances WHERE instance_id = $1`, instanceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count character binds for %d: %w", instanceID, err)
	}
	return n, nil
}
