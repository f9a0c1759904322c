package data

import (
	"log/slog"
	"time"

	"github.com/velmor/realmgo/internal/model"
)

// MapEntry describes one instanceable map.
type MapEntry struct {
	ID   uint32
	Name string
	Raid bool
}

// InstanceTemplate holds per-map instance parameters.
type InstanceTemplate struct {
	MapID      uint32
	LevelMin   int32
	MaxPlayers int32
}

// MapDifficulty holds per-(map,difficulty) instance policy.
// ResetInterval > 0 means the cohort resets on a fixed global schedule
// (raid/heroic); zero means each instance expires individually.
type MapDifficulty struct {
	MapID         uint32
	Difficulty    model.Difficulty
	ResetInterval time.Duration
	MaxPlayers    int32
}

type mapDiffKey struct {
	mapID uint32
	diff  model.Difficulty
}

// MapTable — global registry of all instanceable maps.
var MapTable map[uint32]*MapEntry

// InstanceTemplateTable — global registry of instance templates.
var InstanceTemplateTable map[uint32]*InstanceTemplate

var mapDifficultyTable map[mapDiffKey]*MapDifficulty

// GetMapEntry returns the map entry for mapID, or nil.
func GetMapEntry(mapID uint32) *MapEntry {
	if MapTable == nil {
		return nil
	}
	return MapTable[mapID]
}

// GetInstanceTemplate returns the instance template for mapID, or nil.
func GetInstanceTemplate(mapID uint32) *InstanceTemplate {
	if InstanceTemplateTable == nil {
		return nil
	}
	return InstanceTemplateTable[mapID]
}

// GetMapDifficulty returns the policy for (mapID, difficulty), or nil if the
// map does not support that difficulty.
func GetMapDifficulty(mapID uint32, d model.Difficulty) *MapDifficulty {
	if mapDifficultyTable == nil {
		return nil
	}
	return mapDifficultyTable[mapDiffKey{mapID: mapID, diff: d}]
}

// AllMapDifficulties returns every registered (map,difficulty) policy.
// Order is unspecified.
func AllMapDifficulties() []*MapDifficulty {
	if mapDifficultyTable == nil {
		return nil
	}
	result := make([]*MapDifficulty, 0, len(mapDifficultyTable))
	for _, md := range mapDifficultyTable {
		result = append(result, md)
	}
	return result
}

// LoadMapData builds the map registries from Go literals (mapDefs,
// instanceTemplateDefs, mapDifficultyDefs).
func LoadMapData() error {
	MapTable = make(map[uint32]*MapEntry, len(mapDefs))
	for i := range mapDefs {
		def := &mapDefs[i]
		MapTable[def.ID] = def
	}

	InstanceTemplateTable = make(map[uint32]*InstanceTemplate, len(instanceTemplateDefs))
	for i := range instanceTemplateDefs {
		def := &instanceTemplateDefs[i]
		InstanceTemplateTable[def.MapID] = def
	}

	mapDifficultyTable = make(map[mapDiffKey]*MapDifficulty, len(mapDifficultyDefs))
	for i := range mapDifficultyDefs {
		def := &mapDifficultyDefs[i]
		mapDifficultyTable[mapDiffKey{mapID: def.MapID, diff: def.Difficulty}] = def
	}

	slog.Info("loaded map data",
		"maps", len(MapTable),
		"templates", len(InstanceTemplateTable),
		"difficulties", len(mapDifficultyTable))
	return nil
}
