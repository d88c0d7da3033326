// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a conflicting operation (e.g. a cycle already in flight).
var ErrConflict = errors.New("conflict")

// ErrValidation indicates malformed or out-of-range input, rejected locally.
var ErrValidation = errors.New("validation failed")

// ErrPaused indicates a cycle-advancing operation was attempted while the loop is paused.
var ErrPaused = errors.New("loop is paused")

// ErrStorage indicates an I/O failure persisting state or artifacts.
// The last known-good file is left intact; the caller may retry.
var ErrStorage = errors.New("storage failure")

// ErrCollaborator indicates an external agent or implementer failed or timed out.
var ErrCollaborator = errors.New("collaborator failure")

// ErrForbidden indicates an operation rejected by policy, such as a shell
// command outside the read-only allowlist.
var ErrForbidden = errors.New("forbidden")

// ErrUnavailable indicates a collaborator binary is not installed or not on PATH.
var ErrUnavailable = errors.New("collaborator unavailable")
