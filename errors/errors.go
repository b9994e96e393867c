// Package errors declares the typed error kinds surfaced by the codec,
// model, storage and bulk layers: a faults.Type sentinel per internal
// failure class, paired with exported structs that carry enough context
// (tag, key, cause) for callers to errors.As against without reaching
// into internal packages.
package errors

import (
	"errors"
	"fmt"

	"github.com/fogfish/faults"
)

const (
	errCodecMismatch = faults.Type("no matching codec for property")
	errServiceIO     = faults.Type("store i/o failed")
	errChunkIO       = faults.Type("chunk i/o failed")
)

// ValidationError is returned when a codec rejects a raw value during
// decode/from. Issues holds one entry per structural failure.
type ValidationError struct {
	Tag    string
	Issues []string
	err    error
}

func NewValidation(tag string, issues []string, cause error) *ValidationError {
	return &ValidationError{Tag: tag, Issues: issues, err: cause}
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("validation failed for %q", e.Tag)
	}
	return fmt.Sprintf("validation failed for %q: %v", e.Tag, e.Issues)
}

func (e *ValidationError) Unwrap() error { return e.err }

// KeyExistsError is returned by Put's default attribute_not_exists(PK)
// precondition.
type KeyExistsError struct {
	PK, SK string
	err    error
}

func NewKeyExists(pk, sk string, cause error) *KeyExistsError {
	return &KeyExistsError{PK: pk, SK: sk, err: cause}
}

func (e *KeyExistsError) Error() string {
	return fmt.Sprintf("key already exists (%s, %s)", e.PK, e.SK)
}

func (e *KeyExistsError) Unwrap() error { return e.err }

// ItemNotFoundError is returned by Get on a missing row, and by UpdateRaw
// when its default attribute_exists(PK) precondition fails.
type ItemNotFoundError struct {
	PK, SK string
	err    error
}

func NewItemNotFound(pk, sk string, cause error) *ItemNotFoundError {
	return &ItemNotFoundError{PK: pk, SK: sk, err: cause}
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item not found (%s, %s)", e.PK, e.SK)
}

func (e *ItemNotFoundError) Unwrap() error { return e.err }

// ConditionalCheckFailedError is returned when a caller-supplied condition
// expression fails. It is distinct from KeyExistsError, which only covers
// the default put precondition.
type ConditionalCheckFailedError struct {
	PK, SK    string
	Condition string
	err       error
}

func NewConditionalCheckFailed(pk, sk, condition string, cause error) *ConditionalCheckFailedError {
	return &ConditionalCheckFailedError{PK: pk, SK: sk, Condition: condition, err: cause}
}

func (e *ConditionalCheckFailedError) Error() string {
	return fmt.Sprintf("conditional check failed (%s, %s): %s", e.PK, e.SK, e.Condition)
}

func (e *ConditionalCheckFailedError) Unwrap() error { return e.err }

// RaceConditionError is returned by Update when the stored _docVersion no
// longer matches the pre-image version the caller started from.
type RaceConditionError struct {
	PK, SK             string
	Expected, Observed int64
	err                error
}

func NewRaceCondition(pk, sk string, expected, observed int64, cause error) *RaceConditionError {
	return &RaceConditionError{PK: pk, SK: sk, Expected: expected, Observed: observed, err: cause}
}

func (e *RaceConditionError) Error() string {
	return fmt.Sprintf("race condition on (%s, %s): expected version %d, store has moved on", e.PK, e.SK, e.Expected)
}

func (e *RaceConditionError) Unwrap() error { return e.err }

// PaginationError is returned for invalid pagination arguments or an
// undecodable cursor.
type PaginationError struct {
	Reason string
	err    error
}

func NewPagination(reason string, cause error) *PaginationError {
	return &PaginationError{Reason: reason, err: cause}
}

func (e *PaginationError) Error() string { return "pagination error: " + e.Reason }

func (e *PaginationError) Unwrap() error { return e.err }

// BulkWriteTransactionError wraps a deterministic TransactWriteItems
// cancellation, raised after any rollback has completed (or was not
// needed).
type BulkWriteTransactionError struct {
	CallID string
	Chunk  int
	err    error
}

func NewBulkWriteTransaction(callID string, chunk int, cause error) *BulkWriteTransactionError {
	return &BulkWriteTransactionError{CallID: callID, Chunk: chunk, err: cause}
}

func (e *BulkWriteTransactionError) Error() string {
	return fmt.Sprintf("bulk write %s: transaction cancelled at chunk %d: %s", e.CallID, e.Chunk, e.err)
}

func (e *BulkWriteTransactionError) Unwrap() error { return e.err }

// BulkWriteRollbackError is raised when compensation itself fails. Pending
// lists the operations (by Describe()) that still need manual repair.
type BulkWriteRollbackError struct {
	CallID  string
	Pending []string
	err     error
}

func NewBulkWriteRollback(callID string, pending []string, cause error) *BulkWriteRollbackError {
	return &BulkWriteRollbackError{CallID: callID, Pending: pending, err: cause}
}

func (e *BulkWriteRollbackError) Error() string {
	return fmt.Sprintf("bulk write %s: rollback failed, %d operation(s) need manual compensation: %s", e.CallID, len(e.Pending), e.err)
}

func (e *BulkWriteRollbackError) Unwrap() error { return e.err }

// ErrBatchGetExhausted is returned by BatchGet when the store keeps
// returning unprocessed keys across every retry. This can legitimately
// happen under sustained throttling; treat it as retryable at a higher
// level rather than a programming error.
type ErrBatchGetExhausted struct {
	Remaining int
}

func (e *ErrBatchGetExhausted) Error() string {
	return fmt.Sprintf("batch get exhausted retries with %d key(s) still unprocessed", e.Remaining)
}

// ServiceIO wraps a raw transport/SDK error that isn't one of the typed
// kinds above.
func ServiceIO(err error) error {
	if err == nil {
		return nil
	}
	return errServiceIO.New(err)
}

// ChunkIO wraps a failure specific to one chunk of a bulk write.
func ChunkIO(err error) error {
	if err == nil {
		return nil
	}
	return errChunkIO.New(err)
}

// CodecMismatch wraps the "no matching codec" internal failure. No code path
// in this module returns it: a property that no sub-codec recognizes is
// reported through EncodeProp's false second result instead.
func CodecMismatch(property string) error {
	return errCodecMismatch.New(fmt.Errorf("property %q", property))
}

// awsErrorCode is implemented by smithy API errors (and the AWS SDK v2's
// generated service errors); recognizing it structurally lets callers
// avoid importing the smithy package directly.
type awsErrorCode interface{ ErrorCode() string }

// IsConditionalCheckFailed reports whether err (or anything it wraps) is a
// DynamoDB ConditionalCheckFailedException, the single transport signal
// that distinguishes KeyExistsError/ConditionalCheckFailedError/
// ItemNotFoundError/RaceConditionError from a generic transport failure.
func IsConditionalCheckFailed(err error) bool {
	var ce awsErrorCode
	if errors.As(err, &ce) {
		return ce.ErrorCode() == "ConditionalCheckFailedException"
	}
	return false
}

// IsTransactionCancelled reports whether err is a DynamoDB
// TransactionCanceledException, the deterministic cancellation bulk must
// stop retrying on.
func IsTransactionCancelled(err error) bool {
	var ce awsErrorCode
	if errors.As(err, &ce) {
		return ce.ErrorCode() == "TransactionCanceledException"
	}
	return false
}
