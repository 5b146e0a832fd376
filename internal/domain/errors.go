package domain

import "errors"

// Failure classes. Stage code wraps one of these around the underlying error
// so callers can classify with errors.Is.
var (
	// ErrNotFound marks a source raster that neither an override nor the year
	// pattern search could resolve.
	ErrNotFound = errors.New("not found")

	// ErrReprojection marks a secondary raster that could not be opened or
	// resampled onto the reference grid.
	ErrReprojection = errors.New("reprojection failure")

	// ErrShapeMismatch marks bands that reached an elementwise operation
	// without being congruent.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrIO marks a stale output that could not be deleted or a new output
	// that could not be created.
	ErrIO = errors.New("io failure")

	// ErrPrecondition marks a missing catalog group or upstream ledger. It is
	// the only failure that aborts a whole run.
	ErrPrecondition = errors.New("precondition failure")
)

// FailureKind is the reportable category of a per-combination failure.
type FailureKind string

const (
	FailureNotFound      FailureKind = "not_found"
	FailureReprojection  FailureKind = "reprojection"
	FailureShapeMismatch FailureKind = "shape_mismatch"
	FailureIO            FailureKind = "io"
	FailureInvalid       FailureKind = "invalid"
)

// ClassifyError maps a wrapped stage error onto its FailureKind.
func ClassifyError(err error) FailureKind {
	switch {
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	case errors.Is(err, ErrReprojection):
		return FailureReprojection
	case errors.Is(err, ErrShapeMismatch):
		return FailureShapeMismatch
	case errors.Is(err, ErrIO):
		return FailureIO
	default:
		return FailureInvalid
	}
}
