package gtt

import "github.com/pkg/errors"

var (
	// ErrNoResources is returned from Gtt.AllocRegion when no free range of GPU
	// address space can satisfy the requested size and alignment. The caller can
	// recover by destroying other regions and retrying.
	ErrNoResources error = errors.New("no gpu address space available for the requested region")

	// ErrInvalidArgs is returned when the caller violates a precondition, such as
	// populating a region with more bytes than it owns. Calls failing this way are
	// never retried automatically.
	ErrInvalidArgs error = errors.New("invalid argument")

	// ErrAlreadyBound is returned from Region.PopulateRegion when the region
	// already has a populated mapping. A region binds once; it must be cleared
	// before it can be populated again.
	ErrAlreadyBound error = errors.New("region already has a populated mapping")

	// ErrInternal is returned when a collaborator capability fails in a way that
	// leaves the Gtt unusable, such as the bus refusing to report its minimum
	// contiguity during Init.
	ErrInternal error = errors.New("internal gtt failure")
)
