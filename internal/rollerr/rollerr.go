// Package rollerr defines the four error kinds the STF pipeline recognizes
// and the scope at which each is handled: Transient (slot-fatal, retry from
// pre-state), TransactionFatal (revert the tx, keep nonce/gas), BlobFatal
// (revert the blob, slash the sequencer), and ProofFatal (reject the proof,
// no state change). Every error raised above L0 is wrapped with one of these
// kinds so callers can dispatch on Kind() instead of string-matching.
package rollerr

import (
	"github.com/cockroachdb/errors"
)

// ErrorKind classifies where an error's blast radius is contained.
type ErrorKind int

const (
	// KindUnknown is the zero value; Kind() should never return it for an
	// error produced by this package's constructors.
	KindUnknown ErrorKind = iota
	// KindTransient aborts the whole slot; the caller retries from
	// pre-state. Examples: L0 I/O failure, module-local codec decode error.
	KindTransient
	// KindTransactionFatal reverts only the failing transaction's writes;
	// nonce increment and gas debit survive. Examples: bad nonce, bad
	// signature, insufficient gas, module-returned error.
	KindTransactionFatal
	// KindBlobFatal reverts the whole blob's writes and slashes the
	// sequencer that submitted it. Examples: unparseable batch, disallowed
	// sequencer.
	KindBlobFatal
	// KindProofFatal rejects a proof outright with no state change.
	// Examples: witness exhausted, root mismatch, invalid DA proof.
	KindProofFatal
)

// String renders the kind for logs and error messages.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindTransactionFatal:
		return "transaction-fatal"
	case KindBlobFatal:
		return "blob-fatal"
	case KindProofFatal:
		return "proof-fatal"
	default:
		return "unknown"
	}
}

// kindedError pairs an error kind with the underlying wrapped error so
// errors.Is/errors.As from cockroachdb/errors continue to work across the
// wrap boundary.
type kindedError struct {
	kind ErrorKind
	err  error
}

func (e *kindedError) Error() string { return e.err.Error() }
func (e *kindedError) Cause() error  { return e.err }
func (e *kindedError) Unwrap() error { return e.err }

// Kind reports the classification of e. Errors not produced by this
// package's constructors report KindUnknown.
func (e *kindedError) Kind() ErrorKind { return e.kind }

// Kinder is implemented by errors this package produces (and by anything
// that wants to participate in the same dispatch convention).
type Kinder interface {
	Kind() ErrorKind
}

// Transient wraps err as a slot-fatal error.
func Transient(err error) error { return wrap(KindTransient, err) }

// TransactionFatal wraps err as a per-transaction error.
func TransactionFatal(err error) error { return wrap(KindTransactionFatal, err) }

// BlobFatal wraps err as a per-blob error.
func BlobFatal(err error) error { return wrap(KindBlobFatal, err) }

// ProofFatal wraps err as a proof-rejection error.
func ProofFatal(err error) error { return wrap(KindProofFatal, err) }

// Transientf, TransactionFatalf, BlobFatalf, and ProofFatalf build a new
// formatted error directly at the given kind, analogous to errors.Newf.
func Transientf(format string, args ...interface{}) error {
	return wrap(KindTransient, errors.Newf(format, args...))
}

func TransactionFatalf(format string, args ...interface{}) error {
	return wrap(KindTransactionFatal, errors.Newf(format, args...))
}

func BlobFatalf(format string, args ...interface{}) error {
	return wrap(KindBlobFatal, errors.Newf(format, args...))
}

func ProofFatalf(format string, args ...interface{}) error {
	return wrap(KindProofFatal, errors.Newf(format, args...))
}

func wrap(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &kindedError{kind: kind, err: err}
}

// KindOf extracts the ErrorKind of err, walking the error chain. Errors that
// never passed through one of this package's constructors report
// KindUnknown.
func KindOf(err error) ErrorKind {
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
