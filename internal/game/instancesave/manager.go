package instancesave

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/velmor/realmgo/internal/data"
	"github.com/velmor/realmgo/internal/model"
)

// Store provides DB persistence for instance saves, bind rows and cohort
// reset times.
type Store interface {
	LoadAllInstances(ctx context.Context) ([]InstanceRow, error)
	SaveInstance(ctx context.Context, row InstanceRow) error
	DeleteInstance(ctx context.Context, instanceID uint32) error
	// DeleteExpiredInstances removes persisted saves with no bound
	// characters/groups whose reset time passed before the given Unix
	// timestamp. Returns the number of deleted rows.
	DeleteExpiredInstances(ctx context.Context, before int64) (int64, error)
	// PackInstances renumbers persisted instance ids to 1..N.
	PackInstances(ctx context.Context) (int, error)

	LoadResetTimes(ctx context.Context) ([]ResetTimeRow, error)
	SaveResetTime(ctx context.Context, row ResetTimeRow) error
	DeleteResetTime(ctx context.Context, mapID uint32, difficulty model.Difficulty) error
}

// InstanceRow mirrors db.InstanceRow for decoupling.
type InstanceRow struct {
	InstanceID uint32
	MapID      uint32
	Difficulty model.Difficulty
	ResetTime  int64 // Unix seconds
	CanReset   bool
}

// ResetTimeRow mirrors db.ResetTimeRow for decoupling.
type ResetTimeRow struct {
	MapID      uint32
	Difficulty model.Difficulty
	ResetTime  int64 // Unix seconds
}

// MapLifecycle is the collaborator owning live instanced maps. It marks saves
// used/unused via SetUsedByMap; the Manager calls back when a reset destroys
// an instance so the live map (if any) is torn down and players inside are
// expelled.
//
// OnInstanceReset is invoked with the registry lock held; implementations
// must not call back into the Manager or any InstanceSave from it.
type MapLifecycle interface {
	OnInstanceReset(mapID, instanceID uint32)
}

// Manager is the single owner of all InstanceSave objects. It maps instance
// ids to saves, creates and destroys them, drives bulk cohort resets, and
// exposes the ResetScheduler. Constructed once at process start and passed to
// all callers.
//
// Thread-safe for concurrent access.
type Manager struct {
	mu        sync.RWMutex
	store     Store
	lifecycle MapLifecycle

	savesByID map[uint32]*InstanceSave
	scheduler *ResetScheduler

	// reentrancy guard set during a bulk cohort reset so removals triggered
	// by the pass itself do not invalidate its iteration
	lockInstLists bool
}

// NewManager creates the instance save manager.
func NewManager(store Store, lifecycle MapLifecycle, cfg SchedulerConfig) *Manager {
	m := &Manager{
		store:     store,
		lifecycle: lifecycle,
		savesByID: make(map[uint32]*InstanceSave, 64),
	}
	m.scheduler = newResetScheduler(m, cfg)
	return m
}

// Scheduler returns the reset scheduler.
func (m *Manager) Scheduler() *ResetScheduler {
	return m.scheduler
}

// Init prepares the manager at startup: sweeps expired persisted saves, loads
// cohort reset times and their event ladders, and schedules individual expiry
// events for every persisted dungeon save so instances that outlived a
// restart still reset on time.
func (m *Manager) Init(ctx context.Context, now time.Time) error {
	if err := m.CleanupInstances(ctx, now); err != nil {
		return err
	}
	if err := m.scheduler.LoadResetTimes(ctx, now); err != nil {
		return err
	}
	if err := m.scheduleStoredDungeonResets(ctx, now); err != nil {
		return err
	}
	return nil
}

// CleanupInstances deletes persisted saves with no bound characters/groups
// whose reset time already passed, reclaiming rows for instances that expired
// while the server was offline.
func (m *Manager) CleanupInstances(ctx context.Context, now time.Time) error {
	return m.cleanupExpiredInstancesAtTime(ctx, now)
}

func (m *Manager) cleanupExpiredInstancesAtTime(ctx context.Context, t time.Time) error {
	n, err := m.store.DeleteExpiredInstances(ctx, t.Unix())
	if err != nil {
		return fmt.Errorf("cleanup expired instances: %w", err)
	}
	if n > 0 {
		slog.Info("cleaned up expired instances", "deleted", n)
	}
	return nil
}

// PackInstances renumbers persisted instance ids to reclaim the id space.
// Refused while any save is loaded, since live ids must not change.
func (m *Manager) PackInstances(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.savesByID) > 0 {
		return 0, ErrPackWithLiveSaves
	}
	n, err := m.store.PackInstances(ctx)
	if err != nil {
		return 0, fmt.Errorf("pack instances: %w", err)
	}
	if n > 0 {
		slog.Info("packed instance ids", "renumbered", n)
	}
	return n, nil
}

// AddInstanceSave returns the existing save for instanceID, or constructs and
// registers a new one. When not loading from storage the new save is
// persisted and, for dungeon-type instances, its individual expiry event is
// scheduled. Idempotent on repeated calls with the same instanceID.
//
// A persistence failure is returned but does not roll back the in-memory
// save; the running session remains authoritative.
func (m *Manager) AddInstanceSave(ctx context.Context, mapID, instanceID uint32, d model.Difficulty, resetTime time.Time, canReset bool, loadFromDB bool) (*InstanceSave, error) {
	if instanceID == 0 {
		return nil, ErrZeroInstanceID
	}
	if data.GetMapEntry(mapID) == nil {
		return nil, fmt.Errorf("instance %d: map %d: %w", instanceID, mapID, ErrUnknownMap)
	}
	md := data.GetMapDifficulty(mapID, d)
	if md == nil {
		return nil, fmt.Errorf("instance %d: map %d %s: %w", instanceID, mapID, d, ErrUnknownDifficulty)
	}

	m.mu.Lock()
	if s, ok := m.savesByID[instanceID]; ok {
		m.mu.Unlock()
		return s, nil
	}

	fixed := md.ResetInterval > 0
	now := time.Now()
	var persistReset *ResetTimeRow
	if fixed {
		// raid/heroic saves cache the cohort reset time
		key := cohortKey{mapID: mapID, diff: d}
		t := m.scheduler.resetTimeByMapDiff[key]
		if t.IsZero() {
			t = m.scheduler.nextResetTime(now, md.ResetInterval)
			m.scheduler.resetTimeByMapDiff[key] = t
			m.scheduler.scheduleCohortLocked(now, mapID, d, t)
			persistReset = &ResetTimeRow{MapID: mapID, Difficulty: d, ResetTime: t.Unix()}
		}
		resetTime = t
	} else {
		if loadFromDB {
			// stored dungeon deadlines are grace-adjusted, see ResetTimeForDB
			if canReset {
				resetTime = resetTime.Add(m.scheduler.cfg.DungeonGrace)
			}
		} else if resetTime.IsZero() {
			resetTime = now.Add(m.scheduler.cfg.DungeonGrace)
		}
	}

	s := newInstanceSave(m, mapID, instanceID, d, resetTime, canReset)
	m.savesByID[instanceID] = s

	if !loadFromDB && !fixed {
		m.scheduler.insertLocked(resetTime, ResetEvent{
			Type:       ResetEventDungeon,
			MapID:      mapID,
			Difficulty: d,
			InstanceID: instanceID,
		})
	}
	m.mu.Unlock()

	if persistReset != nil {
		if err := m.store.SaveResetTime(ctx, *persistReset); err != nil {
			slog.Error("persist cohort reset time",
				"mapID", mapID, "difficulty", d, "error", err)
		}
	}

	slog.Debug("instance save added",
		"instanceID", instanceID,
		"mapID", mapID,
		"difficulty", d,
		"load", loadFromDB)

	if !loadFromDB {
		if err := s.SaveToDB(ctx); err != nil {
			return s, fmt.Errorf("persist instance %d: %w", instanceID, err)
		}
	}
	return s, nil
}

// GetInstanceSave returns the save for instanceID, or nil.
func (m *Manager) GetInstanceSave(instanceID uint32) *InstanceSave {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.savesByID[instanceID]
}

// RemoveInstanceSave erases the save from the registry without touching
// durable storage. Used when a save self-reports it became empty; the row is
// reclaimed later by DeleteInstanceFromDB, by the condemned-save path of a
// cohort reset, or by the expired-row sweep at startup.
func (m *Manager) RemoveInstanceSave(instanceID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.savesByID, instanceID)
}

// DeleteInstanceFromDB permanently erases the persisted save and its bind
// rows. Usable without a live save.
func (m *Manager) DeleteInstanceFromDB(ctx context.Context, instanceID uint32) error {
	if err := m.store.DeleteInstance(ctx, instanceID); err != nil {
		return fmt.Errorf("delete instance %d: %w", instanceID, err)
	}
	return nil
}

// removeSaveLocked drops an empty, unused save from the registry. Called from
// unloadIfEmptyLocked with the registry lock held. During a bulk cohort reset
// the pass itself owns map mutation, so the removal is skipped here.
// Returns true when the save was condemned by an earlier cohort reset, so its
// persisted row must be deleted once the lock is released.
func (m *Manager) removeSaveLocked(s *InstanceSave) bool {
	if m.lockInstLists {
		return false
	}
	if s.usedByMap {
		panic(fmt.Sprintf("instancesave: destroying save %d still used by map", s.instanceID))
	}
	delete(m.savesByID, s.instanceID)
	return s.deferredReset
}

// deleteCondemnedInstance erases the persisted row of a save condemned by an
// earlier cohort reset. Must be called with the registry lock released.
func (m *Manager) deleteCondemnedInstance(instanceID uint32) {
	if err := m.store.DeleteInstance(context.Background(), instanceID); err != nil {
		slog.Error("delete condemned instance",
			"instanceID", instanceID, "error", err)
	}
}

// storeOps batches persistence calls collected while the registry lock is
// held; they are issued after it is released.
type storeOps struct {
	deleteInstances []uint32
	saveResetTimes  []ResetTimeRow
}

func (o *storeOps) flush(ctx context.Context, store Store) {
	for _, id := range o.deleteInstances {
		if err := store.DeleteInstance(ctx, id); err != nil {
			slog.Error("delete reset instance", "instanceID", id, "error", err)
		}
	}
	for _, row := range o.saveResetTimes {
		if err := store.SaveResetTime(ctx, row); err != nil {
			slog.Error("persist cohort reset time",
				"mapID", row.MapID, "difficulty", row.Difficulty, "error", err)
		}
	}
}

// resetOrWarnAllLocked is the bulk cohort pass, fired by the scheduler.
// Warning: every bound player of every live save in the cohort is told the
// remaining time. Reset: unreferenced saves are destroyed immediately, their
// row deletes collected into ops for after the lock is released; referenced
// or still-loaded saves are condemned for destruction on natural unload, with
// any loaded players expelled via the map lifecycle collaborator.
func (m *Manager) resetOrWarnAllLocked(mapID uint32, d model.Difficulty, warn bool, timeLeft time.Duration, ops *storeOps) {
	if warn {
		for _, s := range m.savesByID {
			if s.mapID != mapID || s.difficulty != d {
				continue
			}
			for _, p := range s.players {
				p.SendResetWarning(mapID, d, timeLeft)
			}
		}
		return
	}

	m.lockInstLists = true
	destroyed, condemned := 0, 0
	for id, s := range m.savesByID {
		if s.mapID != mapID || s.difficulty != d {
			continue
		}
		if s.referencedLocked() || s.usedByMap {
			s.deferredReset = true
			condemned++
			if s.usedByMap {
				m.lifecycle.OnInstanceReset(mapID, id)
			}
			continue
		}
		delete(m.savesByID, id)
		destroyed++
		ops.deleteInstances = append(ops.deleteInstances, id)
	}
	m.lockInstLists = false

	slog.Info("cohort reset",
		"mapID", mapID,
		"difficulty", d,
		"destroyed", destroyed,
		"condemned", condemned)
}

// resetInstanceLocked expires a single dungeon instance whose grace period
// ran out. Bound players and groups are unbound, the save is destroyed (its
// row delete collected into ops), and the live map (if loaded) is reset.
func (m *Manager) resetInstanceLocked(mapID, instanceID uint32, ops *storeOps) {
	if s, ok := m.savesByID[instanceID]; ok && s.mapID == mapID {
		m.lockInstLists = true
		for _, p := range s.players {
			p.UnbindInstance(mapID, s.difficulty)
		}
		s.players = nil
		for _, g := range s.groups {
			g.UnbindInstance(mapID, s.difficulty)
		}
		s.groups = nil
		m.lockInstLists = false
		delete(m.savesByID, instanceID)
	}

	ops.deleteInstances = append(ops.deleteInstances, instanceID)
	m.lifecycle.OnInstanceReset(mapID, instanceID)

	slog.Debug("dungeon instance reset", "mapID", mapID, "instanceID", instanceID)
}

// scheduleStoredDungeonResets queues an individual expiry event for every
// persisted dungeon save. Saves need not be loaded in memory for their reset
// to fire.
func (m *Manager) scheduleStoredDungeonResets(ctx context.Context, now time.Time) error {
	rows, err := m.store.LoadAllInstances(ctx)
	if err != nil {
		return fmt.Errorf("load persisted instances: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	scheduled := 0
	for _, row := range rows {
		md := data.GetMapDifficulty(row.MapID, row.Difficulty)
		if md == nil || md.ResetInterval > 0 || row.ResetTime <= 0 {
			continue
		}
		at := time.Unix(row.ResetTime, 0)
		if row.CanReset {
			at = at.Add(m.scheduler.cfg.DungeonGrace)
		}
		m.scheduler.insertLocked(at, ResetEvent{
			Type:       ResetEventDungeon,
			MapID:      row.MapID,
			Difficulty: row.Difficulty,
			InstanceID: row.InstanceID,
		})
		scheduled++
	}

	if scheduled > 0 {
		slog.Info("scheduled persisted dungeon resets", "count", scheduled)
	}
	return nil
}

// GetNumInstanceSaves returns the number of live saves.
func (m *Manager) GetNumInstanceSaves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.savesByID)
}

// GetNumBoundPlayersTotal returns the total player bind count over all saves.
func (m *Manager) GetNumBoundPlayersTotal() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, s := range m.savesByID {
		total += len(s.players)
	}
	return total
}

// GetNumBoundGroupsTotal returns the total group bind count over all saves.
func (m *Manager) GetNumBoundGroupsTotal() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, s := range m.savesByID {
		total += len(s.groups)
	}
	return total
}

// Update forwards one scheduler tick.
func (m *Manager) Update(ctx context.Context, now time.Time) {
	m.scheduler.Update(ctx, now)
}

// Run drives the scheduler at the given cadence until ctx is canceled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("instance reset loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("instance reset loop stopping")
			return ctx.Err()
		case now := <-ticker.C:
			m.Update(ctx, now)
		}
	}
}
