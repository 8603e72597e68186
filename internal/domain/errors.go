package domain

import "errors"

// Request-level errors are returned synchronously with no partial state
// committed. ErrInvalidMethodology is also used at load time, where it is
// fatal: the process refuses to start with a broken methodology.
var (
	ErrInvalidMethodology  = errors.New("invalid methodology")
	ErrUnknownComponent    = errors.New("unknown component")
	ErrMissingComponent    = errors.New("missing component")
	ErrSubScoreOutOfRange  = errors.New("sub-score out of range")
	ErrUnknownEvidenceType = errors.New("unknown evidence type")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrNotFound            = errors.New("not found")
)
