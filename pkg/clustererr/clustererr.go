// Package clustererr defines the error kinds shared across clustercore
// components, so callers can errors.As/errors.Is against a stable set
// instead of matching on message text.
package clustererr

import (
	"errors"
	"fmt"
)

// Kind discriminates the error families named in the runtime's error
// handling design: transport failures, auth failures, missing
// paths/peers, conflicting operations, integrity mismatches, dependency
// cycles, remote-side errors, and malformed requests.
type Kind string

const (
	KindTransport  Kind = "transport"
	KindAuth       Kind = "auth"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindIntegrity  Kind = "integrity"
	KindDependency Kind = "dependency"
	KindRemote     Kind = "remote"
	KindValidation Kind = "validation"
)

// Error is the concrete error type carried by every clustererr constructor.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on Kind alone (ignoring Op/Msg/Err) when the
// target is a bare &Error{Kind: ...}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Transport wraps connect/timeout/TLS/non-2xx failures from pkg/transport.
func Transport(op, msg string, err error) *Error { return newErr(KindTransport, op, msg, err) }

// Auth wraps a bad, expired or revoked bearer token.
func Auth(op, msg string) *Error { return newErr(KindAuth, op, msg, nil) }

// NotFound wraps a missing registry path or unknown peer.
func NotFound(op, msg string) *Error { return newErr(KindNotFound, op, msg, nil) }

// Conflict wraps a double-install or in-progress update.
func Conflict(op, msg string) *Error { return newErr(KindConflict, op, msg, nil) }

// Integrity wraps a hash or signature mismatch.
func Integrity(op, msg string, err error) *Error { return newErr(KindIntegrity, op, msg, err) }

// Dependency wraps a service dependency cycle or missing dependency.
func Dependency(op, msg string) *Error { return newErr(KindDependency, op, msg, nil) }

// Remote wraps an error a peer returned for an RPC we issued, carrying
// the original message and the identity of the peer that returned it.
type RemoteError struct {
	PeerID string
	Msg    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error from %s: %s", e.PeerID, e.Msg)
}

// Remote constructs a RemoteError.
func Remote(peerID, msg string) *RemoteError { return &RemoteError{PeerID: peerID, Msg: msg} }

// Validation wraps a malformed request shape or out-of-range parameter.
func Validation(op, msg string) *Error { return newErr(KindValidation, op, msg, nil) }

// HasKind reports whether err is a clustererr *Error of the given kind.
func HasKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
