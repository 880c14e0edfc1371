// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

package mls

import (
	"errors"
	"fmt"
)

// errShortRead is returned by the canonical-encoding unmarshalers when a
// cryptobyte.String runs out of bytes mid-structure.
var errShortRead = errors.New("mls: short read decoding wire structure")

// Creation errors, returned by FromNodes and FromExternal. ErrParentHashMismatch
// is returned only by verifyParentHashChain, which FromNodes does not call.
var (
	ErrUnknownSender          = errors.New("mls: signer leaf not found in tree")
	ErrInvalidGroupInfoSig    = errors.New("mls: group info signature verification failed")
	ErrTreeHashMismatch       = errors.New("mls: tree hash does not match group info")
	ErrUnsupportedMlsVersion  = errors.New("mls: unsupported protocol version")
	ErrMalformedTree          = errors.New("mls: malformed node list")
	ErrParentHashMismatch     = errors.New("mls: parent hash chain is inconsistent")
)

// Commit-stage errors.
var (
	ErrAttemptedSelfRemoval    = errors.New("mls: commit removes its own sender")
	ErrRequiredPathNotFound    = errors.New("mls: update path required but absent")
	ErrConfirmationTagMismatch = errors.New("mls: confirmation tag does not verify")
	ErrProposalNotFound        = errors.New("mls: referenced proposal not in store")
	ErrInvalidSignature        = errors.New("mls: signature verification failed")
	ErrMembershipTagMismatch   = errors.New("mls: membership tag does not verify")
	ErrWrongEpoch              = errors.New("mls: commit epoch does not match group epoch")
	ErrWrongGroupID            = errors.New("mls: commit group id does not match")
	ErrSenderNotMember         = errors.New("mls: sender leaf is blank")
	ErrCiphersuiteMismatch     = errors.New("mls: commit ciphersuite does not match group")
	ErrConflictingProposals    = errors.New("mls: proposals target the same leaf in conflicting ways")
	ErrInvalidKeyPackage       = errors.New("mls: key package failed validation")
	ErrDuplicateCredential     = errors.New("mls: add proposal duplicates an existing credential")
	ErrExternalCommitLeafIndex = errors.New("mls: external commit sender leaf does not match the free_leaf_index resync rule")
)

// UpdatePathErrorKind distinguishes the ways an UpdatePath can fail to
// validate, mirroring the source's UpdatePathError enum.
type UpdatePathErrorKind int

const (
	PathLengthMismatch UpdatePathErrorKind = iota + 1
	UnableToDecrypt
	PathMismatch
)

func (k UpdatePathErrorKind) String() string {
	switch k {
	case PathLengthMismatch:
		return "path length mismatch"
	case UnableToDecrypt:
		return "unable to decrypt"
	case PathMismatch:
		return "path mismatch"
	default:
		return "unknown update path error"
	}
}

// UpdatePathError reports a failure validating an UpdatePath (ValSem202-204).
type UpdatePathError struct {
	Kind UpdatePathErrorKind
	Err  error
}

func (e *UpdatePathError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mls: update path: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("mls: update path: %s", e.Kind)
}

func (e *UpdatePathError) Unwrap() error { return e.Err }

func newUpdatePathError(kind UpdatePathErrorKind, err error) *UpdatePathError {
	return &UpdatePathError{Kind: kind, Err: err}
}

// ErrPublicKeyMismatch reports that a path's published encryption key differs
// from the key derived from its path secret; the commit pipeline returns it
// wrapped in an UpdatePathError of kind PathMismatch. TreeSync.DerivePathSecrets
// does not compare derived keys against the tree and does not return it.
var ErrPublicKeyMismatch = errors.New("mls: derived public key does not match published path")

// LibraryError indicates an internal invariant was violated. It is always a
// bug in the caller or in this package, never a consequence of adversarial
// input; callers should treat it as fatal for the affected group.
type LibraryError struct {
	Op  string
	Err error
}

func (e *LibraryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mls: internal invariant violated in %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("mls: internal invariant violated in %s", e.Op)
}

func (e *LibraryError) Unwrap() error { return e.Err }

func libraryError(op string, err error) *LibraryError {
	return &LibraryError{Op: op, Err: err}
}

// InvalidCommitError wraps the ValSem violation (or other commit-stage
// error) that caused ValidateCommit to reject a commit, so callers can match on the
// underlying sentinel/typed error with errors.As/errors.Is while still
// knowing "this was a rejected commit, not a transport failure".
type InvalidCommitError struct {
	Err error
}

func (e *InvalidCommitError) Error() string {
	return fmt.Sprintf("mls: invalid commit: %v", e.Err)
}

func (e *InvalidCommitError) Unwrap() error { return e.Err }

func invalidCommit(err error) *InvalidCommitError {
	return &InvalidCommitError{Err: err}
}
