// Package errtypes defines the typed error taxonomy surfaced by the
// VOSpace service and its mapping onto HTTP status codes.
package errtypes

import (
	"errors"
	"net/http"
)

// InvalidURI is the error for bad paths, bad property URIs and missing
// XML attributes.
type InvalidURI string

func (e InvalidURI) Error() string { return "invalid URI: " + string(e) }

// IsInvalidURI implements the IsInvalidURI interface.
func (e InvalidURI) IsInvalidURI() {}

// InvalidArgument is the error for bad query parameters and empty or
// malformed request bodies.
type InvalidArgument string

func (e InvalidArgument) Error() string { return "invalid argument: " + string(e) }

// IsInvalidArgument implements the IsInvalidArgument interface.
func (e InvalidArgument) IsInvalidArgument() {}

// PermissionDenied is the error for absent or unauthorized identities.
type PermissionDenied string

func (e PermissionDenied) Error() string { return "permission denied: " + string(e) }

// IsPermissionDenied implements the IsPermissionDenied interface.
func (e PermissionDenied) IsPermissionDenied() {}

// NodeNotFound is the error for a lookup miss.
type NodeNotFound string

func (e NodeNotFound) Error() string { return "node does not exist: " + string(e) }

// IsNodeNotFound implements the IsNodeNotFound interface.
func (e NodeNotFound) IsNodeNotFound() {}

// ContainerNotFound is the error for a missing parent container on
// create.
type ContainerNotFound string

func (e ContainerNotFound) Error() string { return "container does not exist: " + string(e) }

// IsContainerNotFound implements the IsContainerNotFound interface.
func (e ContainerNotFound) IsContainerNotFound() {}

// DuplicateNode is the error for creating a node on an occupied path.
type DuplicateNode string

func (e DuplicateNode) Error() string { return "duplicate node: " + string(e) }

// IsDuplicateNode implements the IsDuplicateNode interface.
func (e DuplicateNode) IsDuplicateNode() {}

// LinkFound is the error for traversal through a LinkNode.
type LinkFound string

func (e LinkFound) Error() string { return "link found in path: " + string(e) }

// IsLinkFound implements the IsLinkFound interface.
func (e LinkFound) IsLinkFound() {}

// NodeBusy is the error for mutating a node leased by an in-flight
// transfer.
type NodeBusy string

func (e NodeBusy) Error() string { return "node is busy: " + string(e) }

// IsNodeBusy implements the IsNodeBusy interface.
func (e NodeBusy) IsNodeBusy() {}

// InvalidJobState is the error for illegal phase transitions or
// observations.
type InvalidJobState string

func (e InvalidJobState) Error() string { return "invalid job state: " + string(e) }

// IsInvalidJobState implements the IsInvalidJobState interface.
func (e InvalidJobState) IsInvalidJobState() {}

// Conflict is the error surfaced after a serialization conflict that
// did not resolve on retry.
type Conflict string

func (e Conflict) Error() string { return "conflict: " + string(e) }

// IsConflict implements the IsConflict interface.
func (e Conflict) IsConflict() {}

// InternalError is the error for storage or database failures.
type InternalError string

func (e InternalError) Error() string { return "internal error: " + string(e) }

// IsInternalError implements the IsInternalError interface.
func (e InternalError) IsInternalError() {}

// Status maps a typed error to its HTTP status code. Unrecognized
// errors are treated as internal.
func Status(err error) int {
	var (
		invalidURI   InvalidURI
		invalidArg   InvalidArgument
		denied       PermissionDenied
		notFound     NodeNotFound
		noContainer  ContainerNotFound
		duplicate    DuplicateNode
		linkFound    LinkFound
		busy         NodeBusy
		invalidState InvalidJobState
		conflict     Conflict
	)
	switch {
	case errors.As(err, &invalidURI), errors.As(err, &invalidArg),
		errors.As(err, &linkFound), errors.As(err, &invalidState):
		return http.StatusBadRequest
	case errors.As(err, &denied):
		return http.StatusForbidden
	case errors.As(err, &notFound), errors.As(err, &noContainer):
		return http.StatusNotFound
	case errors.As(err, &duplicate), errors.As(err, &busy), errors.As(err, &conflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
