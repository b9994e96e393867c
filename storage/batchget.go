package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	tserrors "github.com/ticketbro/tablestore/errors"
	"github.com/ticketbro/tablestore/model"
)

// GetOp is one requested row of a BatchGet call.
type GetOp struct {
	PK, SK         string
	ConsistentRead bool
}

// BatchGetOption customizes one BatchGet call.
type BatchGetOption func(*batchGetConfig)

type batchGetConfig struct {
	individualErrors bool
}

// IndividualErrors replaces BatchGet's default all-or-nothing failure mode:
// a missing row becomes an *errors.ItemNotFoundError value at that name
// instead of failing the whole call.
func IndividualErrors() BatchGetOption {
	return func(c *batchGetConfig) { c.individualErrors = true }
}

// BatchGetSlot is one named result of a BatchGet call.
type BatchGetSlot[T any] struct {
	Instance *model.Instance[T]
	Err      error
}

const batchGetRetries = 3

// BatchGet resolves up to 100 named GetOps in one logical call. Distinct
// names sharing a (PK, SK) resolve to the same decoded instance.
// UnprocessedKeys are re-requested until empty or until batchGetRetries
// consecutive empty-progress rounds occur, at which point the remainder is
// fatal (ErrBatchGetExhausted) rather than silently dropped, since the
// store can legitimately keep returning nothing but unprocessed keys under
// sustained throttling.
func (c *Client[T]) BatchGet(ctx context.Context, ops map[string]GetOp, options ...BatchGetOption) (map[string]BatchGetSlot[T], error) {
	var cfg batchGetConfig
	for _, o := range options {
		o(&cfg)
	}

	consistent := false
	byKey := map[string][]string{}
	var keys []map[string]types.AttributeValue
	seen := map[string]bool{}
	for name, op := range ops {
		if op.ConsistentRead {
			consistent = true
		}
		k := op.PK + "::" + op.SK
		byKey[k] = append(byKey[k], name)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, keyItem(op.PK, op.SK))
		}
	}

	decoded := map[string]map[string]types.AttributeValue{}
	remaining := keys
	stalled := 0
	for len(remaining) > 0 {
		if stalled >= batchGetRetries {
			return nil, &tserrors.ErrBatchGetExhausted{Remaining: len(remaining)}
		}

		out, err := c.opts.service.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: map[string]types.KeysAndAttributes{
				c.opts.table: {Keys: remaining, ConsistentRead: &consistent},
			},
		})
		if err != nil {
			return nil, tserrors.ServiceIO(err)
		}

		for _, item := range out.Responses[c.opts.table] {
			decoded[keyOfItem(item)] = item
		}
		if len(out.Responses[c.opts.table]) == 0 {
			stalled++
		} else {
			stalled = 0
		}

		var next []map[string]types.AttributeValue
		if ku, ok := out.UnprocessedKeys[c.opts.table]; ok {
			next = ku.Keys
		}
		remaining = next
	}

	result := make(map[string]BatchGetSlot[T], len(ops))
	slots := map[string]BatchGetSlot[T]{}
	var anyMissing bool
	for name, op := range ops {
		k := op.PK + "::" + op.SK
		raw, ok := decoded[k]
		if !ok {
			anyMissing = true
			if cfg.individualErrors {
				result[name] = BatchGetSlot[T]{Err: tserrors.NewItemNotFound(op.PK, op.SK, nil)}
			}
			continue
		}
		slot, done := slots[k]
		if !done {
			inst, err := c.decode(raw)
			slot = BatchGetSlot[T]{Instance: inst, Err: err}
			slots[k] = slot
		}
		result[name] = slot
	}

	if anyMissing && !cfg.individualErrors {
		return nil, tserrors.NewItemNotFound("", "", nil)
	}

	return result, nil
}
