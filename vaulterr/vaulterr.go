// Package vaulterr defines the typed error taxonomy shared by every
// package in this module. Every fallible operation that can fail for a
// reason a caller might branch on returns (or wraps) one of these Kinds,
// so a CLI or other front end can map kinds to user-facing messages
// without parsing error strings.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kind identifies why an operation failed.
type Kind string

// Category groups related Kinds into the five top-level failure buckets:
// input, integrity, external, resource, and precondition.
type Category string

const (
	CategoryInput        Category = "input"
	CategoryIntegrity    Category = "integrity"
	CategoryExternal     Category = "external"
	CategoryResource     Category = "resource"
	CategoryPrecondition Category = "precondition"
)

const (
	// Input errors: something the caller supplied was invalid.
	NotFound         Kind = "not_found"
	NotADirectory    Kind = "not_a_directory"
	BadUid           Kind = "bad_uid"
	UnsupportedCipher Kind = "unsupported_cipher"
	MissingServer    Kind = "missing_server"
	BadRecovery      Kind = "bad_recovery"
	BadKey           Kind = "bad_key"
	BadLength        Kind = "bad_length"

	// Integrity errors: on-disk or wire state failed a cryptographic or
	// structural check.
	CorruptMetadata      Kind = "corrupt_metadata"
	IncompatibleVersion  Kind = "incompatible_version"
	AuthenticationFailed Kind = "authentication_failed"

	// External errors: a collaborator (network, escrow server) failed.
	NetworkError Kind = "network_error"
	AuthFailed   Kind = "auth_failed"
	IoError      Kind = "io_error"

	// Resource errors: the local process could not obtain a resource it
	// needed.
	OutOfMemory Kind = "out_of_memory"
	RngFailure  Kind = "rng_failure"
	KdfFailure  Kind = "kdf_failure"

	// Precondition errors: the operation's precondition did not hold.
	AlreadyExists Kind = "already_exists"
)

var categories = map[Kind]Category{
	NotFound:          CategoryInput,
	NotADirectory:     CategoryInput,
	BadUid:            CategoryInput,
	UnsupportedCipher: CategoryInput,
	MissingServer:     CategoryInput,
	BadRecovery:       CategoryInput,
	BadKey:            CategoryInput,
	BadLength:         CategoryInput,

	CorruptMetadata:      CategoryIntegrity,
	IncompatibleVersion:  CategoryIntegrity,
	AuthenticationFailed: CategoryIntegrity,

	NetworkError: CategoryExternal,
	AuthFailed:   CategoryExternal,
	IoError:      CategoryExternal,

	OutOfMemory: CategoryResource,
	RngFailure:  CategoryResource,
	KdfFailure:  CategoryResource,

	AlreadyExists: CategoryPrecondition,
}

// Category reports which of the five top-level buckets a Kind belongs to.
func (k Kind) Category() Category {
	return categories[k]
}

// Error is the concrete error type carried across package boundaries. Op
// names the failing operation (e.g. "vault.Open"); Err, when present, is
// the underlying cause and is reachable via errors.Unwrap.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(kind Kind, op, msg string) *Error {
	var err error
	if msg != "" {
		err = errors.New(msg)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap builds an Error carrying an underlying cause.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a *Error of the given Kind, unwrapping as
// needed. It is the idiomatic way for a caller to branch on failure
// reason: `if vaulterr.Is(err, vaulterr.AuthenticationFailed) { ... }`.
func Is(err error, kind Kind) bool {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Kind == kind
	}
	return false
}
