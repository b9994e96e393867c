// Package bulk implements a multi-chunk transaction engine: a flat sequence
// of operations (op.WriteOp, including op.Pair transaction-pairs) is
// chunked to DynamoDB's 25-item transactWrite limit and committed chunk by
// chunk, with compensating rollback via each transaction-pair's Rollback
// operation when a later chunk fails.
package bulk

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	tserrors "github.com/ticketbro/tablestore/errors"
	"github.com/ticketbro/tablestore/op"
	"golang.org/x/sync/errgroup"
)

// DynamoDB is the one capability bulk needs from a transport.
type DynamoDB interface {
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Operations is a flat, caller-ordered sequence of writes. Chunk order
// follows this order; operations within one chunk are unordered as far as
// the store is concerned.
type Operations []op.WriteOp

// State is one node of the bulk state machine.
type State int

const (
	Initial State = iota
	Writing
	Done
	Failed // first chunk never committed; nothing to roll back
	Rollback
	RollbackDone
	RollbackFailed
)

const chunkSize = 25

// retryPolicy is the fixed 50ms x3 policy applied only to non-cancellation
// transactWrite errors.
func retryPolicy() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 3)
}

// Run executes ops as one logical transaction and returns the state reached
// plus, on failure, a typed error: BulkWriteTransactionError (state Failed
// or RollbackDone) or BulkWriteRollbackError (state RollbackFailed). A
// non-cancellation error that outlasts the retries is returned as a service
// I/O error with state Writing, and no rollback is attempted for it.
func Run(ctx context.Context, service DynamoDB, ops Operations) (State, error) {
	callID := uuid.NewString()

	chunks := chunkOf(ops)
	var committed []Operations

	state := Initial
	for i, chunk := range chunks {
		state = Writing
		if err := writeChunk(ctx, service, chunk); err != nil {
			if !tserrors.IsTransactionCancelled(err) {
				// Non-deterministic transport error: surface directly,
				// no rollback bookkeeping (retries already exhausted).
				return Writing, tserrors.ServiceIO(err)
			}

			txErr := tserrors.NewBulkWriteTransaction(callID, i, err)
			if len(committed) == 0 {
				return Failed, txErr // first chunk failed, nothing to undo
			}

			state = Rollback
			if rbErr := rollback(ctx, service, committed); rbErr != nil {
				return RollbackFailed, rbErr
			}
			return RollbackDone, txErr
		}
		committed = append(committed, chunk)
	}

	return Done, nil
}

func chunkOf(ops Operations) []Operations {
	var chunks []Operations
	for len(ops) > 0 {
		n := chunkSize
		if n > len(ops) {
			n = len(ops)
		}
		chunks = append(chunks, ops[:n])
		ops = ops[n:]
	}
	return chunks
}

// writeChunk issues one transactWrite, retrying only non-cancellation
// errors under the fixed policy.
func writeChunk(ctx context.Context, service DynamoDB, chunk Operations) error {
	items := make([]types.TransactWriteItem, len(chunk))
	for i, o := range chunk {
		item, err := o.ToTransactItem()
		if err != nil {
			return err
		}
		items[i] = item
	}

	operation := func() error {
		_, err := service.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		})
		if err != nil && tserrors.IsTransactionCancelled(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, retryPolicy())
	if perm, ok := err.(*backoff.PermanentError); ok {
		return perm.Err
	}
	return err
}

// rollback compensates every previously-committed chunk using each
// transaction-pair's Rollback operation; plain operations (no Pair, or a
// Pair with no Rollback) are skipped. The compensation chunks are dispatched
// concurrently, so no order between them is guaranteed; on failure, Pending
// lists the operations of every compensation chunk that did not succeed.
func rollback(ctx context.Context, service DynamoDB, committed []Operations) error {
	var pending []string

	g, gctx := errgroup.WithContext(ctx)
	var compensations []Operations
	for i := len(committed) - 1; i >= 0; i-- {
		var chunk Operations
		for _, o := range committed[i] {
			if pair, ok := o.(op.Pair); ok && pair.HasRollback() {
				chunk = append(chunk, pair.Rollback)
			}
		}
		if len(chunk) > 0 {
			compensations = append(compensations, chunk)
		}
	}

	errs := make([]error, len(compensations))
	for i, chunk := range compensations {
		i, chunk := i, chunk
		g.Go(func() error {
			errs[i] = writeChunk(gctx, service, chunk)
			return errs[i]
		})
	}

	if err := g.Wait(); err != nil {
		for i, chunk := range compensations {
			if errs[i] == nil {
				continue
			}
			for _, o := range chunk {
				pending = append(pending, o.Describe())
			}
		}
		return tserrors.NewBulkWriteRollback(uuid.NewString(), pending, err)
	}

	return nil
}
