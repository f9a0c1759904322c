// Package instancesave tracks which players and groups hold binds to live
// dungeon/raid instances and schedules the timed expiry ("reset") of those
// instances. One InstanceSave exists per live instance; the Manager owns all
// saves and the ResetScheduler fires due reset/warning events on each tick.
package instancesave

import (
	"context"
	"fmt"
	"time"

	"github.com/velmor/realmgo/internal/data"
	"github.com/velmor/realmgo/internal/model"
)

// Participant is a live player session bound to an instance (solo or
// permanent). The save keeps a non-owning back-reference so the link can be
// broken at reset time.
//
// Methods are invoked with the registry lock held; implementations must not
// call back into the Manager or any InstanceSave from them.
type Participant interface {
	// SendResetWarning notifies the player of the remaining time before the
	// instance cohort resets.
	SendResetWarning(mapID uint32, d model.Difficulty, timeLeft time.Duration)
	// UnbindInstance tells the player side to drop its reference to the
	// instance. The registry clears its own back-reference itself.
	UnbindInstance(mapID uint32, d model.Difficulty)
}

// PartyGroup is a live group whose leader's bind is cached on the save.
// Same callback contract as Participant.
type PartyGroup interface {
	UnbindInstance(mapID uint32, d model.Difficulty)
}

// InstanceSave holds the information necessary for recreating the map of an
// existing instance. It is referenced by solo player binds, permanent
// raid/heroic binds, and group binds caching the leader's bind.
//
// Created when a new instance is generated, when a player bound to the
// instance logs in and no save is loaded yet, or when a bound group loads.
// Unloaded when the player and group lists become empty and the live map is
// not loaded.
type InstanceSave struct {
	mgr *Manager

	mapID      uint32
	instanceID uint32
	difficulty model.Difficulty
	resetTime  time.Time
	canReset   bool

	// true while the live instance map is loaded
	usedByMap bool

	// set by a cohort reset that found the save still referenced or still
	// loaded; the save is destroyed (and its row deleted) on natural unload
	deferredReset bool

	players []Participant
	groups  []PartyGroup
}

func newInstanceSave(mgr *Manager, mapID, instanceID uint32, d model.Difficulty, resetTime time.Time, canReset bool) *InstanceSave {
	return &InstanceSave{
		mgr:        mgr,
		mapID:      mapID,
		instanceID: instanceID,
		difficulty: d,
		resetTime:  resetTime,
		canReset:   canReset,
	}
}

// InstanceID returns the unique instance identifier.
func (s *InstanceSave) InstanceID() uint32 { return s.instanceID }

// MapID returns the map this save belongs to.
func (s *InstanceSave) MapID() uint32 { return s.mapID }

// Difficulty returns the save's difficulty.
func (s *InstanceSave) Difficulty() model.Difficulty { return s.difficulty }

// Template returns the instance template for the save's map, or nil.
func (s *InstanceSave) Template() *data.InstanceTemplate {
	return data.GetInstanceTemplate(s.mapID)
}

// MapEntry returns the static map entry for the save's map, or nil.
func (s *InstanceSave) MapEntry() *data.MapEntry {
	return data.GetMapEntry(s.mapID)
}

// ResetTime returns the timestamp after which the instance is eligible for
// destruction. For raid/heroic saves this caches the cohort reset time.
func (s *InstanceSave) ResetTime() time.Time {
	s.mgr.mu.RLock()
	defer s.mgr.mu.RUnlock()
	return s.resetTime
}

// SetResetTime overwrites the in-memory reset time.
func (s *InstanceSave) SetResetTime(t time.Time) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	s.resetTime = t
}

// CanReset reports whether the instance may be reset before the global reset
// time. False while any player holds a permanent bind, cached here so offline
// players' records need not be queried.
func (s *InstanceSave) CanReset() bool {
	s.mgr.mu.RLock()
	defer s.mgr.mu.RUnlock()
	return s.canReset
}

// SetCanReset updates the cached permanent-bind flag.
func (s *InstanceSave) SetCanReset(v bool) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	s.canReset = v
}

// PlayerCount returns the number of bound players.
func (s *InstanceSave) PlayerCount() int {
	s.mgr.mu.RLock()
	defer s.mgr.mu.RUnlock()
	return len(s.players)
}

// GroupCount returns the number of bound groups.
func (s *InstanceSave) GroupCount() int {
	s.mgr.mu.RLock()
	defer s.mgr.mu.RUnlock()
	return len(s.groups)
}

// UsedByMap reports whether the live instance map is currently loaded.
func (s *InstanceSave) UsedByMap() bool {
	s.mgr.mu.RLock()
	defer s.mgr.mu.RUnlock()
	return s.usedByMap
}

// AddPlayer binds a player to the save. No-op if already bound.
func (s *InstanceSave) AddPlayer(p Participant) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	for _, bound := range s.players {
		if bound == p {
			return
		}
	}
	s.players = append(s.players, p)
}

// RemovePlayer unbinds a player. Removing a player that is not bound is a
// no-op. Returns true if the save became empty and was unloaded.
func (s *InstanceSave) RemovePlayer(p Participant) bool {
	s.mgr.mu.Lock()
	unloaded, condemned := s.removePlayerLocked(p)
	s.mgr.mu.Unlock()
	if condemned {
		s.mgr.deleteCondemnedInstance(s.instanceID)
	}
	return unloaded
}

func (s *InstanceSave) removePlayerLocked(p Participant) (unloaded, condemned bool) {
	for i, bound := range s.players {
		if bound == p {
			s.players = append(s.players[:i], s.players[i+1:]...)
			break
		}
	}
	return s.unloadIfEmptyLocked()
}

// AddGroup binds a group to the save. No-op if already bound.
func (s *InstanceSave) AddGroup(g PartyGroup) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	for _, bound := range s.groups {
		if bound == g {
			return
		}
	}
	s.groups = append(s.groups, g)
}

// RemoveGroup unbinds a group. Removing a group that is not bound is a no-op.
// Returns true if the save became empty and was unloaded.
func (s *InstanceSave) RemoveGroup(g PartyGroup) bool {
	s.mgr.mu.Lock()
	unloaded, condemned := s.removeGroupLocked(g)
	s.mgr.mu.Unlock()
	if condemned {
		s.mgr.deleteCondemnedInstance(s.instanceID)
	}
	return unloaded
}

func (s *InstanceSave) removeGroupLocked(g PartyGroup) (unloaded, condemned bool) {
	for i, bound := range s.groups {
		if bound == g {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			break
		}
	}
	return s.unloadIfEmptyLocked()
}

// SetUsedByMap records whether the live instance map is loaded. Called only
// by the map lifecycle collaborator. Marking a save that is no longer in the
// registry panics: a map loaded through such a stale handle would be
// invisible to cohort resets. Transitioning to false re-runs the emptiness
// check; returns true if the save was unloaded.
func (s *InstanceSave) SetUsedByMap(state bool) bool {
	s.mgr.mu.Lock()
	if state {
		if s.mgr.savesByID[s.instanceID] != s {
			s.mgr.mu.Unlock()
			panic(fmt.Sprintf("instancesave: marking unloaded save %d used by map", s.instanceID))
		}
		s.usedByMap = true
		s.mgr.mu.Unlock()
		return false
	}
	s.usedByMap = false
	unloaded, condemned := s.unloadIfEmptyLocked()
	s.mgr.mu.Unlock()
	if condemned {
		s.mgr.deleteCondemnedInstance(s.instanceID)
	}
	return unloaded
}

func (s *InstanceSave) referencedLocked() bool {
	return len(s.players) > 0 || len(s.groups) > 0
}

// unloadIfEmptyLocked destroys the save once nothing references it and the
// live map is unloaded. Reports whether the save was (or is being) removed
// from the registry, and whether its condemned row must be deleted once the
// registry lock is released.
func (s *InstanceSave) unloadIfEmptyLocked() (unloaded, condemned bool) {
	if s.referencedLocked() || s.usedByMap {
		return false, false
	}
	return true, s.mgr.removeSaveLocked(s)
}

// SaveToDB persists the save. Called once, when the instance is generated for
// the first time; bind lists and the map-loaded flag are transient and are
// rebuilt from the player/group side at load time.
func (s *InstanceSave) SaveToDB(ctx context.Context) error {
	return s.mgr.store.SaveInstance(ctx, s.row())
}

// DeleteFromDB permanently removes the persisted save and every bind row
// referencing it.
func (s *InstanceSave) DeleteFromDB(ctx context.Context) error {
	return s.mgr.store.DeleteInstance(ctx, s.instanceID)
}

// ResetTimeForDB returns the reset time to persist. For resettable dungeon
// saves the grace window is subtracted, since loading re-adds it; storing the
// live value would grow the deadline on every restart.
func (s *InstanceSave) ResetTimeForDB() time.Time {
	s.mgr.mu.RLock()
	defer s.mgr.mu.RUnlock()
	return s.resetTimeForDBLocked()
}

func (s *InstanceSave) resetTimeForDBLocked() time.Time {
	if s.canReset && !s.hasFixedSchedule() {
		return s.resetTime.Add(-s.mgr.scheduler.cfg.DungeonGrace)
	}
	return s.resetTime
}

// hasFixedSchedule reports whether the save's cohort resets on a global
// schedule (raid/heroic) rather than per instance.
func (s *InstanceSave) hasFixedSchedule() bool {
	md := data.GetMapDifficulty(s.mapID, s.difficulty)
	return md != nil && md.ResetInterval > 0
}

func (s *InstanceSave) row() InstanceRow {
	s.mgr.mu.RLock()
	defer s.mgr.mu.RUnlock()
	return InstanceRow{
		InstanceID: s.instanceID,
		MapID:      s.mapID,
		Difficulty: s.difficulty,
		ResetTime:  s.resetTimeForDBLocked().Unix(),
		CanReset:   s.canReset,
	}
}
