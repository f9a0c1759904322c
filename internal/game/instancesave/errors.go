package instancesave

import "errors"

// Sentinel errors for the instance save system.
var (
	ErrUnknownMap        = errors.New("unknown map")
	ErrUnknownDifficulty = errors.New("map does not support difficulty")
	ErrZeroInstanceID    = errors.New("instance id must be nonzero")
	ErrPackWithLiveSaves = errors.New("cannot pack instances while saves are loaded")
)
