package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	tserrors "github.com/ticketbro/tablestore/errors"
	"github.com/ticketbro/tablestore/model"
)

// BatchPut and BatchRemove are the non-atomic BatchWriteItem-based
// alternative to bulk. Unlike bulk, which is all-or-nothing across a
// transaction, a partial failure here returns the items DynamoDB left
// unprocessed rather than rolling anything back; callers that need
// atomicity must use bulk instead.

// BatchPut writes every instance with one BatchWriteItem call, returning the
// instances that came back as unprocessed (if any) alongside a non-nil
// error.
func (c *Client[T]) BatchPut(ctx context.Context, insts []*model.Instance[T]) ([]*model.Instance[T], error) {
	if len(insts) == 0 {
		return nil, nil
	}

	reqs := make([]types.WriteRequest, len(insts))
	for i, inst := range insts {
		item, err := c.itemOf(inst, inst.DocVersion())
		if err != nil {
			return nil, err
		}
		reqs[i] = types.WriteRequest{PutRequest: &types.PutRequest{Item: item}}
	}

	unprocessed, err := c.batchWrite(ctx, reqs)
	if err != nil {
		return nil, err
	}
	if len(unprocessed) == 0 {
		return nil, nil
	}

	fails := make([]*model.Instance[T], 0, len(unprocessed))
	for _, r := range unprocessed {
		if r.PutRequest == nil {
			continue
		}
		if inst, err := c.decode(r.PutRequest.Item); err == nil {
			fails = append(fails, inst)
		}
	}
	return fails, tserrors.ChunkIO(errPartialBatch)
}

// BatchRemove deletes every (pk, sk) pair with one BatchWriteItem call,
// returning the keys that came back unprocessed as (pk, sk) pairs.
func (c *Client[T]) BatchRemove(ctx context.Context, keys [][2]string) ([][2]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	reqs := make([]types.WriteRequest, len(keys))
	for i, k := range keys {
		reqs[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: keyItem(k[0], k[1])}}
	}

	unprocessed, err := c.batchWrite(ctx, reqs)
	if err != nil {
		return nil, err
	}
	if len(unprocessed) == 0 {
		return nil, nil
	}

	fails := make([][2]string, 0, len(unprocessed))
	for _, r := range unprocessed {
		if r.DeleteRequest == nil {
			continue
		}
		k := keyOfItem(r.DeleteRequest.Key)
		pk, sk, ok := splitKey(k)
		if ok {
			fails = append(fails, [2]string{pk, sk})
		}
	}
	return fails, tserrors.ChunkIO(errPartialBatch)
}

func (c *Client[T]) batchWrite(ctx context.Context, reqs []types.WriteRequest) ([]types.WriteRequest, error) {
	out, err := c.opts.service.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{c.opts.table: reqs},
	})
	if err != nil {
		return nil, tserrors.ServiceIO(err)
	}
	return out.UnprocessedItems[c.opts.table], nil
}

func splitKey(k string) (pk, sk string, ok bool) {
	for i := 0; i+1 < len(k); i++ {
		if k[i] == ':' && k[i+1] == ':' {
			return k[:i], k[i+2:], true
		}
	}
	return "", "", false
}

var errPartialBatch = tserrors.NewValidation("", []string{"one or more items were not processed by the batch write"}, nil)
