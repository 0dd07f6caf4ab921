package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: write collided with an existing row
// - ErrUnsupportedFormat: caller asked for an export format we do not produce
// - ErrUnavailable: service or resource temporarily unavailable
//
// Integrity failures (hash-chain or Merkle mismatches) are deliberately NOT
// errors: verification reports them as values so compliance tooling can
// consume them as normal outcomes.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrUnavailable       = errors.New("unavailable")
)
