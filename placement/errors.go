package placement

import "errors"

var (
	// ErrInfeasiblePlacement is returned when no OSD has enough free
	// capacity for a folder, or when the OSDs together cannot hold
	// the total folder volume.
	ErrInfeasiblePlacement = errors.New("infeasible placement")
	// ErrConfigurationMismatch is returned when a capacity or bandwidth
	// map does not describe exactly the known OSDs, or holds values
	// that are not allowed.
	ErrConfigurationMismatch = errors.New("configuration does not match the known osds")
	// ErrUnknownFolder is returned when an operation refers to
	// a folder that is not assigned to any OSD.
	ErrUnknownFolder = errors.New("folder is not assigned to any osd")
	// ErrUnknownOSD is returned when an operation refers to an OSD
	// that is not part of the distribution.
	ErrUnknownOSD = errors.New("osd is not part of the distribution")
	// ErrInvalidFolder is returned for folders with a negative
	// or undefined size.
	ErrInvalidFolder = errors.New("invalid folder")
	// ErrUnknownMode is returned when parsing an assignment mode fails
	ErrUnknownMode = errors.New("unknown assignment mode")
	// ErrUnknownAlgorithm is returned when parsing a rebalance algorithm fails
	ErrUnknownAlgorithm = errors.New("unknown rebalance algorithm")
)
