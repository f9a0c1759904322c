package model

// Difficulty identifies which variant of an instanced map a binding refers to.
// Dungeon and raid maps use disjoint subsets of the enum; the pairing with a
// map is defined by the static map-difficulty table in internal/data.
type Difficulty uint8

const (
	DifficultyNormal   Difficulty = iota // 0: 5-man normal
	DifficultyHeroic                     // 1: 5-man heroic
	DifficultyRaid10                     // 2: 10-man raid
	DifficultyRaid25                     // 3: 25-man raid
	DifficultyRaid10H                    // 4: 10-man heroic raid
	DifficultyRaid25H                    // 5: 25-man heroic raid
)

// MaxDifficulty is the number of defined difficulty values.
const MaxDifficulty = 6

// String returns a human-readable difficulty name.
func (d Difficulty) String() string {
	switch d {
	case DifficultyNormal:
		return "NORMAL"
	case DifficultyHeroic:
		return "HEROIC"
	case DifficultyRaid10:
		return "RAID_10"
	case DifficultyRaid25:
		return "RAID_25"
	case DifficultyRaid10H:
		return "RAID_10_HEROIC"
	case DifficultyRaid25H:
		return "RAID_25_HEROIC"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether d is one of the defined difficulty values.
func (d Difficulty) Valid() bool {
	return d < MaxDifficulty
}
