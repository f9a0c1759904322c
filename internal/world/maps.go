// Package world tracks the live instanced maps of the world server and owns
// the used-by-map flag on instance saves.
package world

import (
	"log/slog"
	"sync"

	"github.com/velmor/realmgo/internal/game/instancesave"
	"github.com/velmor/realmgo/internal/model"
)

// InstanceMap is one loaded copy of an instanceable map.
// Thread-safe for concurrent access.
type InstanceMap struct {
	mapID      uint32
	instanceID uint32
	difficulty model.Difficulty
	save       *instancesave.InstanceSave

	mu sync.RWMutex
	// players currently inside (objectID set); distinct from the save's bind
	// lists, which track binds rather than presence
	players map[uint32]struct{}
}

// MapID returns the static map id.
func (im *InstanceMap) MapID() uint32 { return im.mapID }

// InstanceID returns the instance id.
func (im *InstanceMap) InstanceID() uint32 { return im.instanceID }

// Difficulty returns the map difficulty.
func (im *InstanceMap) Difficulty() model.Difficulty { return im.difficulty }

// Save returns the instance save backing this map.
func (im *InstanceMap) Save() *instancesave.InstanceSave { return im.save }

// AddPlayer records a player entering the map.
func (im *InstanceMap) AddPlayer(objectID uint32) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.players[objectID] = struct{}{}
}

// RemovePlayer records a player leaving the map. Returns true if the map is
// now empty.
func (im *InstanceMap) RemovePlayer(objectID uint32) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	delete(im.players, objectID)
	return len(im.players) == 0
}

// HasPlayer returns true if the player is inside this map.
func (im *InstanceMap) HasPlayer(objectID uint32) bool {
	im.mu.RLock()
	defer im.mu.RUnlock()
	_, ok := im.players[objectID]
	return ok
}

// PlayerCount returns the number of players inside.
func (im *InstanceMap) PlayerCount() int {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return len(im.players)
}

// Players returns a copy of all player objectIDs inside.
func (im *InstanceMap) Players() []uint32 {
	im.mu.RLock()
	defer im.mu.RUnlock()
	ids := make([]uint32, 0, len(im.players))
	for id := range im.players {
		ids = append(ids, id)
	}
	return ids
}

// expelAll drops the map's population. Returns the expelled objectIDs so the
// session layer can relocate them to their bind points.
func (im *InstanceMap) expelAll() []uint32 {
	im.mu.Lock()
	defer im.mu.Unlock()
	ids := make([]uint32, 0, len(im.players))
	for id := range im.players {
		ids = append(ids, id)
	}
	im.players = make(map[uint32]struct{}, 8)
	return ids
}

// ExpelHandler relocates players expelled from a reset instance. Injected by
// the session layer.
type ExpelHandler func(objectIDs []uint32, mapID, instanceID uint32)

// MapRegistry tracks loaded instance maps. Loading a map marks its save used;
// unloading clears the flag, which may destroy an otherwise unreferenced
// save.
//
// MapRegistry implements instancesave.MapLifecycle: a reset arriving for a
// loaded map is queued and torn down on the next ProcessResets call, because
// OnInstanceReset runs under the save registry lock and must not call back
// into it.
type MapRegistry struct {
	mu   sync.Mutex
	maps map[uint32]*InstanceMap // instanceID → map

	pendingMu     sync.Mutex
	pendingResets []uint32 // instanceIDs condemned by the save manager

	expel ExpelHandler
}

// NewMapRegistry creates an empty map registry.
func NewMapRegistry(expel ExpelHandler) *MapRegistry {
	return &MapRegistry{
		maps:  make(map[uint32]*InstanceMap, 32),
		expel: expel,
	}
}

// LoadInstanceMap registers a freshly loaded instance map and marks its save
// used. Returns the existing map if the instance is already loaded.
func (r *MapRegistry) LoadInstanceMap(save *instancesave.InstanceSave) *InstanceMap {
	r.mu.Lock()
	if im, ok := r.maps[save.InstanceID()]; ok {
		r.mu.Unlock()
		return im
	}
	im := &InstanceMap{
		mapID:      save.MapID(),
		instanceID: save.InstanceID(),
		difficulty: save.Difficulty(),
		save:       save,
		players:    make(map[uint32]struct{}, 8),
	}
	r.maps[im.instanceID] = im
	r.mu.Unlock()

	save.SetUsedByMap(true)

	slog.Debug("instance map loaded",
		"mapID", im.mapID,
		"instanceID", im.instanceID,
		"difficulty", im.difficulty)
	return im
}

// UnloadInstanceMap removes a loaded instance map and clears the used flag on
// its save. No-op if the instance is not loaded.
func (r *MapRegistry) UnloadInstanceMap(instanceID uint32) {
	r.mu.Lock()
	im, ok := r.maps[instanceID]
	if ok {
		delete(r.maps, instanceID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	im.save.SetUsedByMap(false)

	slog.Debug("instance map unloaded",
		"mapID", im.mapID,
		"instanceID", im.instanceID)
}

// GetInstanceMap returns the loaded map for instanceID, or nil.
func (r *MapRegistry) GetInstanceMap(instanceID uint32) *InstanceMap {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maps[instanceID]
}

// LoadedCount returns the number of loaded instance maps.
func (r *MapRegistry) LoadedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.maps)
}

// OnInstanceReset implements instancesave.MapLifecycle. The teardown itself
// is deferred to ProcessResets.
func (r *MapRegistry) OnInstanceReset(mapID, instanceID uint32) {
	r.pendingMu.Lock()
	r.pendingResets = append(r.pendingResets, instanceID)
	r.pendingMu.Unlock()

	slog.Debug("instance reset requested", "mapID", mapID, "instanceID", instanceID)
}

// ProcessResets tears down every instance map condemned since the last call:
// players inside are expelled and the map is unloaded. Called once per world
// tick.
func (r *MapRegistry) ProcessResets() int {
	r.pendingMu.Lock()
	pending := r.pendingResets
	r.pendingResets = nil
	r.pendingMu.Unlock()

	processed := 0
	for _, instanceID := range pending {
		r.mu.Lock()
		im, ok := r.maps[instanceID]
		r.mu.Unlock()
		if !ok {
			// never loaded, nothing to tear down
			continue
		}
		expelled := im.expelAll()
		if len(expelled) > 0 {
			slog.Info("expelled players from reset instance",
				"mapID", im.mapID,
				"instanceID", im.instanceID,
				"players", len(expelled))
			if r.expel != nil {
				r.expel(expelled, im.mapID, im.instanceID)
			}
		}
		r.UnloadInstanceMap(instanceID)
		processed++
	}
	return processed
}
