package engine

import "github.com/zeebo/errs"

var (
	// OutputAlreadyExists is returned when a generative run would reuse an
	// existing folder name.
	OutputAlreadyExists = errs.Class("output already exists")

	// MissingFile is returned when a required file is absent and cannot be
	// derived.
	MissingFile = errs.Class("missing file")

	// HookError wraps failures of pre- and post-processing hooks.
	HookError = errs.Class("hook")

	// WrongFolderType is returned when an algorithm is run on a folder of
	// another type.
	WrongFolderType = errs.Class("wrong folder type")

	// ErrOutsideDataRoot is returned for paths outside the data root.
	ErrOutsideDataRoot = errs.Class("outside data root")

	// Error is the class of other engine failures.
	Error = errs.Class("engine")
)
