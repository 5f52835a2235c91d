// Package goerr defines the error taxonomy shared by every core package:
// bencode, metainfo, tracker, peer and client all return errors wrapped
// with a Kind so a caller can tell a short read from a bad hash from a
// malformed dictionary without string-matching messages.
package goerr

import (
	"errors"
	"fmt"
)

// Kind identifies which class of failure an Error represents.
type Kind uint8

const (
	// Malformed marks a bencode decoding failure: unknown prefix byte,
	// missing ':' or 'e', truncated length prefix, bad dictionary key.
	Malformed Kind = iota
	// InvalidMetainfo marks a missing or ill-typed required field in a
	// .torrent file (announce, info, piece length, pieces, length).
	InvalidMetainfo
	// Tracker marks an HTTP failure, a bencode decode failure of the
	// tracker's response, or an explicit "failure reason" from it.
	Tracker
	// Handshake marks a short read or malformed response during the
	// 68-byte peer handshake.
	Handshake
	// ConnClosed marks a peer socket closed mid-operation (EOF on read).
	ConnClosed
	// Protocol marks malformed wire framing: impossible length, wrong
	// message id where one is required, truncated PIECE payload.
	Protocol
	// HashMismatch marks a piece whose SHA-1 does not match info.pieces.
	HashMismatch
	// Usage marks a CLI argument problem.
	Usage
)

func (k Kind) String() string {
	switch k {
	case Malformed:
		return "MalformedInput"
	case InvalidMetainfo:
		return "InvalidMetainfo"
	case Tracker:
		return "TrackerError"
	case Handshake:
		return "HandshakeFailed"
	case ConnClosed:
		return "ConnectionClosed"
	case Protocol:
		return "ProtocolViolation"
	case HashMismatch:
		return "PieceHashMismatch"
	case Usage:
		return "Usage"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by the core packages.
type Error struct {
	Kind       Kind
	Msg        string
	PieceIndex int // valid only when Kind == HashMismatch
	Cause      error
}

func (e *Error) Error() string {
	if e.Kind == HashMismatch {
		if e.Cause != nil {
			return fmt.Sprintf("%s: piece %d: %s: %v", e.Kind, e.PieceIndex, e.Msg, e.Cause)
		}
		return fmt.Sprintf("%s: piece %d: %s", e.Kind, e.PieceIndex, e.Msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, &goerr.Error{Kind: k}) match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

func wrapf(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Malformedf builds a MalformedInput error.
func Malformedf(format string, args ...any) error { return newf(Malformed, format, args...) }

// InvalidMetainfof builds an InvalidMetainfo error.
func InvalidMetainfof(format string, args ...any) error {
	return newf(InvalidMetainfo, format, args...)
}

// Trackerf builds a TrackerError.
func Trackerf(format string, args ...any) error { return newf(Tracker, format, args...) }

// TrackerWrap builds a TrackerError around a lower-level cause.
func TrackerWrap(cause error, format string, args ...any) error {
	return wrapf(Tracker, cause, format, args...)
}

// Handshakef builds a HandshakeFailed error.
func Handshakef(format string, args ...any) error { return newf(Handshake, format, args...) }

// HandshakeWrap builds a HandshakeFailed error around a lower-level cause.
func HandshakeWrap(cause error, format string, args ...any) error {
	return wrapf(Handshake, cause, format, args...)
}

// ConnClosedf builds a ConnectionClosed error.
func ConnClosedf(format string, args ...any) error { return newf(ConnClosed, format, args...) }

// Protocolf builds a ProtocolViolation error.
func Protocolf(format string, args ...any) error { return newf(Protocol, format, args...) }

// ProtocolWrap builds a ProtocolViolation error around a lower-level cause.
func ProtocolWrap(cause error, format string, args ...any) error {
	return wrapf(Protocol, cause, format, args...)
}

// HashMismatchf builds a PieceHashMismatch error for piece index i.
func HashMismatchf(i int, format string, args ...any) error {
	return &Error{Kind: HashMismatch, PieceIndex: i, Msg: fmt.Sprintf(format, args...)}
}

// Usagef builds a Usage error.
func Usagef(format string, args ...any) error { return newf(Usage, format, args...) }

// KindOf reports the Kind of err if it (or something it wraps) is an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
