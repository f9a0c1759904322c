package data

import (
	"time"

	"github.com/velmor/realmgo/internal/model"
)

// mapDefs — instanceable map definitions (generated from Map.dbc extract).
var mapDefs = []MapEntry{
	{ID: 33, Name: "Shadowfang Keep", Raid: false},
	{ID: 34, Name: "The Stockade", Raid: false},
	{ID: 189, Name: "Scarlet Monastery", Raid: false},
	{ID: 229, Name: "Blackrock Spire", Raid: false},
	{ID: 249, Name: "Onyxia's Lair", Raid: true},
	{ID: 289, Name: "Scholomance", Raid: false},
	{ID: 309, Name: "Zul'Gurub", Raid: true},
	{ID: 409, Name: "Molten Core", Raid: true},
	{ID: 469, Name: "Blackwing Lair", Raid: true},
	{ID: 509, Name: "Ruins of Ahn'Qiraj", Raid: true},
	{ID: 531, Name: "Temple of Ahn'Qiraj", Raid: true},
	{ID: 532, Name: "Karazhan", Raid: true},
	{ID: 533, Name: "Naxxramas", Raid: true},
	{ID: 540, Name: "The Shattered Halls", Raid: false},
	{ID: 543, Name: "Hellfire Ramparts", Raid: false},
	{ID: 544, Name: "Magtheridon's Lair", Raid: true},
	{ID: 548, Name: "Serpentshrine Cavern", Raid: true},
	{ID: 550, Name: "Tempest Keep", Raid: true},
	{ID: 585, Name: "Magisters' Terrace", Raid: false},
}

// instanceTemplateDefs — per-map instance parameters.
var instanceTemplateDefs = []InstanceTemplate{
	{MapID: 33, LevelMin: 14, MaxPlayers: 5},
	{MapID: 34, LevelMin: 15, MaxPlayers: 5},
	{MapID: 189, LevelMin: 21, MaxPlayers: 5},
	{MapID: 229, LevelMin: 48, MaxPlayers: 10},
	{MapID: 249, LevelMin: 50, MaxPlayers: 40},
	{MapID: 289, LevelMin: 45, MaxPlayers: 5},
	{MapID: 309, LevelMin: 50, MaxPlayers: 20},
	{MapID: 409, LevelMin: 50, MaxPlayers: 40},
	{MapID: 469, LevelMin: 55, MaxPlayers: 40},
	{MapID: 509, LevelMin: 50, MaxPlayers: 20},
	{MapID: 531, LevelMin: 55, MaxPlayers: 40},
	{MapID: 532, LevelMin: 68, MaxPlayers: 10},
	{MapID: 533, LevelMin: 58, MaxPlayers: 40},
	{MapID: 540, LevelMin: 67, MaxPlayers: 5},
	{MapID: 543, LevelMin: 58, MaxPlayers: 5},
	{MapID: 544, LevelMin: 68, MaxPlayers: 25},
	{MapID: 548, LevelMin: 68, MaxPlayers: 25},
	{MapID: 550, LevelMin: 68, MaxPlayers: 25},
	{MapID: 585, LevelMin: 68, MaxPlayers: 5},
}

// mapDifficultyDefs — per-(map,difficulty) reset policy.
// ResetInterval zero = per-instance expiry (ordinary dungeons).
var mapDifficultyDefs = []MapDifficulty{
	{MapID: 33, Difficulty: model.DifficultyNormal, MaxPlayers: 5},
	{MapID: 34, Difficulty: model.DifficultyNormal, MaxPlayers: 5},
	{MapID: 189, Difficulty: model.DifficultyNormal, MaxPlayers: 5},
	{MapID: 229, Difficulty: model.DifficultyNormal, MaxPlayers: 10},
	{MapID: 249, Difficulty: model.DifficultyRaid10, ResetInterval: 120 * time.Hour, MaxPlayers: 40},
	{MapID: 289, Difficulty: model.DifficultyNormal, MaxPlayers: 5},
	{MapID: 309, Difficulty: model.DifficultyRaid10, ResetInterval: 72 * time.Hour, MaxPlayers: 20},
	{MapID: 409, Difficulty: model.DifficultyRaid10, ResetInterval: 168 * time.Hour, MaxPlayers: 40},
	{MapID: 469, Difficulty: model.DifficultyRaid10, ResetInterval: 168 * time.Hour, MaxPlayers: 40},
	{MapID: 509, Difficulty: model.DifficultyRaid10, ResetInterval: 72 * time.Hour, MaxPlayers: 20},
	{MapID: 531, Difficulty: model.DifficultyRaid10, ResetInterval: 168 * time.Hour, MaxPlayers: 40},
	{MapID: 531, Difficulty: model.DifficultyRaid10H, ResetInterval: 168 * time.Hour, MaxPlayers: 40},
	{MapID: 532, Difficulty: model.DifficultyRaid10, ResetInterval: 168 * time.Hour, MaxPlayers: 10},
	{MapID: 533, Difficulty: model.DifficultyRaid10, ResetInterval: 168 * time.Hour, MaxPlayers: 40},
	{MapID: 540, Difficulty: model.DifficultyNormal, MaxPlayers: 5},
	{MapID: 540, Difficulty: model.DifficultyHeroic, ResetInterval: 24 * time.Hour, MaxPlayers: 5},
	{MapID: 543, Difficulty: model.DifficultyNormal, MaxPlayers: 5},
	{MapID: 543, Difficulty: model.DifficultyHeroic, ResetInterval: 24 * time.Hour, MaxPlayers: 5},
	{MapID: 544, Difficulty: model.DifficultyRaid25, ResetInterval: 168 * time.Hour, MaxPlayers: 25},
	{MapID: 548, Difficulty: model.DifficultyRaid25, ResetInterval: 168 * time.Hour, MaxPlayers: 25},
	{MapID: 550, Difficulty: model.DifficultyRaid25, ResetInterval: 168 * time.Hour, MaxPlayers: 25},
	{MapID: 585, Difficulty: model.DifficultyNormal, MaxPlayers: 5},
	{MapID: 585, Difficulty: model.DifficultyHeroic, ResetInterval: 24 * time.Hour, MaxPlayers: 5},
}
