package storage

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	tserrors "github.com/ticketbro/tablestore/errors"
	"github.com/ticketbro/tablestore/model"
)

// coalescer batches Load calls that land within one scheduling tick into a
// single BatchGetItem request, keyed by "${PK}::${SK}". Two Load calls for
// the same key within the same tick share one decoded result; the
// coalescer never caches across ticks.
type coalescer[T any] struct {
	client *Client[T]

	mu      sync.Mutex
	pending map[string]*loadWaiters[T]
	tick    *time.Timer
}

type loadWaiters[T any] struct {
	pk, sk  string
	waiters []chan loadResult[T]
}

type loadResult[T any] struct {
	inst *model.Instance[T]
	err  error
}

func newCoalescer[T any](c *Client[T]) *coalescer[T] {
	return &coalescer[T]{client: c, pending: map[string]*loadWaiters[T]{}}
}

// Load enqueues a get for (pk, sk) and blocks until the coalescer's tick
// dispatches it. allowMissing: a missing row resolves to (nil, nil) instead
// of ItemNotFoundError.
func (co *coalescer[T]) Load(ctx context.Context, pk, sk string, allowMissing bool) (*model.Instance[T], error) {
	key := pk + "::" + sk
	result := make(chan loadResult[T], 1)

	co.mu.Lock()
	w, exists := co.pending[key]
	if !exists {
		w = &loadWaiters[T]{pk: pk, sk: sk}
		co.pending[key] = w
		co.scheduleTick()
	}
	w.waiters = append(w.waiters, result)
	co.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-result:
		if r.err != nil {
			if allowMissing {
				if _, ok := r.err.(*tserrors.ItemNotFoundError); ok {
					return nil, nil
				}
			}
			return nil, r.err
		}
		return r.inst, nil
	}
}

// scheduleTick arms a near-immediate timer so every Load call issued
// before the runtime next schedules this goroutine collapses into the same
// batch. Caller holds co.mu.
func (co *coalescer[T]) scheduleTick() {
	if co.tick != nil {
		return
	}
	co.tick = time.AfterFunc(time.Millisecond, co.flush)
}

func (co *coalescer[T]) flush() {
	co.mu.Lock()
	batch := co.pending
	co.pending = map[string]*loadWaiters[T]{}
	co.tick = nil
	co.mu.Unlock()

	ctx := context.Background()
	keys := make([]string, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}

	remaining := keys
	decoded := map[string]rawItem{}
	for len(remaining) > 0 {
		group := remaining
		if len(group) > 100 {
			group = group[:100]
		}
		remaining = remaining[len(group):]

		items, unprocessed, err := co.batchGetRaw(ctx, group, batch)
		if err != nil {
			for _, k := range group {
				settle(batch[k], loadResult[T]{err: err})
			}
			continue
		}
		for k, item := range items {
			decoded[k] = item
		}
		remaining = append(remaining, unprocessed...)
	}

	for k, w := range batch {
		item, found := decoded[k]
		if !found || item.raw == nil {
			settle(w, loadResult[T]{err: tserrors.NewItemNotFound(w.pk, w.sk, nil)})
			continue
		}
		inst, err := co.client.decode(item.raw)
		settle(w, loadResult[T]{inst: inst, err: err})
	}
}

type rawItem struct{ raw map[string]types.AttributeValue }

func settle[T any](w *loadWaiters[T], r loadResult[T]) {
	for _, ch := range w.waiters {
		ch <- r
	}
}

// batchGetRaw issues one BatchGetItem for the given keys and returns a
// decoded-per-key raw map plus the keys DynamoDB left unprocessed.
func (co *coalescer[T]) batchGetRaw(ctx context.Context, keys []string, batch map[string]*loadWaiters[T]) (map[string]rawItem, []string, error) {
	reqKeys := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		w := batch[k]
		reqKeys[i] = keyItem(w.pk, w.sk)
	}

	out, err := co.client.opts.service.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
		RequestItems: map[string]types.KeysAndAttributes{
			co.client.opts.table: {Keys: reqKeys},
		},
	})
	if err != nil {
		return nil, nil, tserrors.ServiceIO(err)
	}

	result := make(map[string]rawItem, len(keys))
	for _, item := range out.Responses[co.client.opts.table] {
		k := keyOfItem(item)
		result[k] = rawItem{raw: item}
	}

	var unprocessed []string
	if ku, ok := out.UnprocessedKeys[co.client.opts.table]; ok {
		for _, item := range ku.Keys {
			unprocessed = append(unprocessed, keyOfItem(item))
		}
	}

	return result, unprocessed, nil
}

func keyOfItem(item map[string]types.AttributeValue) string {
	pk, _ := item["PK"].(*types.AttributeValueMemberS)
	sk, _ := item["SK"].(*types.AttributeValueMemberS)
	p, s := "", ""
	if pk != nil {
		p = pk.Value
	}
	if sk != nil {
		s = sk.Value
	}
	return p + "::" + s
}

// Load is the Client-facing entry point for a coalesced get.
func (c *Client[T]) Load(ctx context.Context, pk, sk string, allowMissing bool) (*model.Instance[T], error) {
	return c.coalescer.Load(ctx, pk, sk, allowMissing)
}

// LoadMany loads a set of keys and returns one result slot per request,
// preserving the caller's order; a slot holds either a decoded instance or
// the error that occurred resolving it.
func (c *Client[T]) LoadMany(ctx context.Context, keys [][2]string) []LoadManyResult[T] {
	out := make([]LoadManyResult[T], len(keys))

	var wg sync.WaitGroup
	wg.Add(len(keys))
	for i, k := range keys {
		i, k := i, k
		go func() {
			defer wg.Done()
			inst, err := c.Load(ctx, k[0], k[1], false)
			out[i] = LoadManyResult[T]{Instance: inst, Err: err}
		}()
	}
	wg.Wait()

	return out
}

// LoadManyResult is one slot of a LoadMany response.
type LoadManyResult[T any] struct {
	Instance *model.Instance[T]
	Err      error
}
