// Package sandbox is an in-memory DynamoDB-compatible fake, the in-process
// collaborator the storage and bulk tests run against instead of mocking
// each AWS SDK call individually. It implements the same method surface
// storage.DynamoDB/bulk.DynamoDB call, backed by a plain
// map[string]map[string]types.AttributeValue guarded by a mutex, plus a
// registry of each GSI's key attribute names; there is no separate per-GSI
// row map.
//
// Table accepts an optional *slog.Logger: this is the one place in the
// whole module that logs, since it stands in for a real store whose own
// operational logging would otherwise be invisible to a test run.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// GSI describes one secondary index's key attribute names.
type GSI struct{ PKAttr, SKAttr string }

// Table is the fake store. Zero value is not usable; use New.
type Table struct {
	mu      sync.Mutex
	name    string
	items   map[string]map[string]types.AttributeValue
	indexes map[string]GSI // index name -> key attributes
	log     *slog.Logger
}

// Option configures a Table at construction.
type Option func(*Table)

// WithIndex registers a GSI by name so Query's IndexName can resolve it.
func WithIndex(name string, gsi GSI) Option {
	return func(t *Table) { t.indexes[name] = gsi }
}

// WithLogger attaches a structured logger tracing every operation; nil (the
// default) disables logging entirely.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) { t.log = l }
}

// New constructs an empty table named name.
func New(name string, opts ...Option) *Table {
	t := &Table{name: name, items: map[string]map[string]types.AttributeValue{}, indexes: map[string]GSI{}}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Table) logf(op string, args ...any) {
	if t.log == nil {
		return
	}
	t.log.Info(op, args...)
}

func rowKey(item map[string]types.AttributeValue) string {
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

func cloneItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// GetItem implements storage.DynamoDB.
func (t *Table) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logf("GetItem", "key", rowKey(in.Key))
	item, ok := t.items[rowKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: cloneItem(item)}, nil
}

// PutItem implements storage.DynamoDB, evaluating a condition expression
// built only from the forms this module ever generates: attribute_exists,
// attribute_not_exists, "name = :value", joined by " and "/" or ".
func (t *Table) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := rowKey(in.Item)
	existing := t.items[key]

	if in.ConditionExpression != nil {
		ok, err := evalCondition(*in.ConditionExpression, existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, conditionalCheckFailed()
		}
	}

	t.items[key] = cloneItem(in.Item)
	t.logf("PutItem", "key", key)
	return &dynamodb.PutItemOutput{}, nil
}

// DeleteItem implements storage.DynamoDB.
func (t *Table) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := rowKey(in.Key)
	existing := t.items[key]

	if in.ConditionExpression != nil {
		ok, err := evalCondition(*in.ConditionExpression, existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, conditionalCheckFailed()
		}
	}

	out := &dynamodb.DeleteItemOutput{}
	if existing != nil {
		out.Attributes = cloneItem(existing)
	}
	delete(t.items, key)
	t.logf("DeleteItem", "key", key)
	return out, nil
}

// UpdateItem implements storage.DynamoDB: it applies a SET/REMOVE
// expression against the existing (or, if absent, an empty) item.
func (t *Table) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := rowKey(in.Key)
	existing := t.items[key]

	if in.ConditionExpression != nil {
		ok, err := evalCondition(*in.ConditionExpression, existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, conditionalCheckFailed()
		}
	}

	item := cloneItem(existing)
	if item == nil {
		item = map[string]types.AttributeValue{}
		for k, v := range in.Key {
			item[k] = v
		}
	}
	applyUpdateExpression(item, aws(in.UpdateExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)

	t.items[key] = item
	t.logf("UpdateItem", "key", key)
	return &dynamodb.UpdateItemOutput{Attributes: cloneItem(item)}, nil
}

func aws(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Query implements storage.DynamoDB: a linear scan filtered by key
// condition, filter expression, and (if IndexName is set) the registered
// GSI's key attributes instead of PK/SK.
func (t *Table) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pkAttr, skAttr := "PK", "SK"
	if in.IndexName != nil {
		if gsi, ok := t.indexes[*in.IndexName]; ok {
			pkAttr, skAttr = gsi.PKAttr, gsi.SKAttr
		}
	}

	pk, skPrefix, hasSK := parseKeyCondition(aws(in.KeyConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues, pkAttr, skAttr)

	var rows []map[string]types.AttributeValue
	for _, item := range t.items {
		pkVal, ok := item[pkAttr].(*types.AttributeValueMemberS)
		if !ok || pkVal.Value != pk {
			continue
		}
		if hasSK {
			skVal, ok := item[skAttr].(*types.AttributeValueMemberS)
			if !ok || !strings.HasPrefix(skVal.Value, skPrefix) {
				continue
			}
		}
		if in.FilterExpression != nil {
			ok, err := evalCondition(*in.FilterExpression, item, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		rows = append(rows, item)
	}

	sort.Slice(rows, func(i, j int) bool {
		si, _ := rows[i][skAttr].(*types.AttributeValueMemberS)
		sj, _ := rows[j][skAttr].(*types.AttributeValueMemberS)
		vi, vj := "", ""
		if si != nil {
			vi = si.Value
		}
		if sj != nil {
			vj = sj.Value
		}
		return vi < vj
	})
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}

	start := 0
	if in.ExclusiveStartKey != nil {
		esk := rowKey(in.ExclusiveStartKey)
		for i, r := range rows {
			if rowKey(r) == esk {
				start = i + 1
				break
			}
		}
	}
	if start > len(rows) {
		start = len(rows)
	}
	rows = rows[start:]

	out := &dynamodb.QueryOutput{}
	if in.Limit != nil && int(*in.Limit) < len(rows) {
		limit := int(*in.Limit)
		out.Items = cloneAll(rows[:limit])
		out.LastEvaluatedKey = keyOf(rows[limit-1])
	} else {
		out.Items = cloneAll(rows)
	}
	if in.ProjectionExpression != nil {
		applyProjection(out.Items, *in.ProjectionExpression, in.ExpressionAttributeNames)
	}
	out.Count = int32(len(out.Items))

	t.logf("Query", "pk", pk, "count", out.Count)
	return out, nil
}

// applyProjection trims each item in place to the columns named by expr, a
// comma-separated list of attribute names or "#alias" placeholders
// resolved through names.
func applyProjection(items []map[string]types.AttributeValue, expr string, names map[string]string) {
	var cols []string
	for _, part := range strings.Split(expr, ",") {
		col := strings.TrimSpace(part)
		if resolved, ok := names[col]; ok {
			col = resolved
		}
		cols = append(cols, col)
	}

	for _, item := range items {
		for k := range item {
			keep := false
			for _, c := range cols {
				if k == c {
					keep = true
					break
				}
			}
			if !keep {
				delete(item, k)
			}
		}
	}
}

func keyOf(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := map[string]types.AttributeValue{}
	for _, k := range []string{"PK", "SK", "GSI2PK", "GSI2SK", "GSI3PK", "GSI3SK", "GSI4PK", "GSI4SK", "GSI5PK", "GSI5SK"} {
		if v, ok := item[k]; ok {
			out[k] = v
		}
	}
	return out
}

func cloneAll(rows []map[string]types.AttributeValue) []map[string]types.AttributeValue {
	out := make([]map[string]types.AttributeValue, len(rows))
	for i, r := range rows {
		out[i] = cloneItem(r)
	}
	return out
}

// BatchGetItem implements storage.DynamoDB; unlike the real service it
// never reports a key as unprocessed.
func (t *Table) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := &dynamodb.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{}}
	for table, ka := range in.RequestItems {
		var found []map[string]types.AttributeValue
		for _, k := range ka.Keys {
			if item, ok := t.items[rowKey(k)]; ok {
				found = append(found, cloneItem(item))
			}
		}
		out.Responses[table] = found
	}
	return out, nil
}

// BatchWriteItem implements storage.DynamoDB; every request is always
// processed (UnprocessedItems is always empty), matching a fake that has no
// throughput limits to enforce.
func (t *Table) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, reqs := range in.RequestItems {
		for _, r := range reqs {
			switch {
			case r.PutRequest != nil:
				t.items[rowKey(r.PutRequest.Item)] = cloneItem(r.PutRequest.Item)
			case r.DeleteRequest != nil:
				delete(t.items, rowKey(r.DeleteRequest.Key))
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

// TransactWriteItems implements bulk.DynamoDB: every item's condition is
// checked before anything is written (all-or-nothing), mirroring real
// DynamoDB transactWrite semantics.
func (t *Table) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, item := range in.TransactItems {
		switch {
		case item.Put != nil:
			if item.Put.ConditionExpression != nil {
				existing := t.items[rowKey(item.Put.Item)]
				ok, err := evalCondition(*item.Put.ConditionExpression, existing, item.Put.ExpressionAttributeNames, item.Put.ExpressionAttributeValues)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, transactionCancelled()
				}
			}
		case item.Delete != nil:
			if item.Delete.ConditionExpression != nil {
				existing := t.items[rowKey(item.Delete.Key)]
				ok, err := evalCondition(*item.Delete.ConditionExpression, existing, item.Delete.ExpressionAttributeNames, item.Delete.ExpressionAttributeValues)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, transactionCancelled()
				}
			}
		case item.Update != nil:
			if item.Update.ConditionExpression != nil {
				existing := t.items[rowKey(item.Update.Key)]
				ok, err := evalCondition(*item.Update.ConditionExpression, existing, item.Update.ExpressionAttributeNames, item.Update.ExpressionAttributeValues)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, transactionCancelled()
				}
			}
		}
	}

	for _, item := range in.TransactItems {
		switch {
		case item.Put != nil:
			t.items[rowKey(item.Put.Item)] = cloneItem(item.Put.Item)
		case item.Delete != nil:
			delete(t.items, rowKey(item.Delete.Key))
		case item.Update != nil:
			key := rowKey(item.Update.Key)
			row := cloneItem(t.items[key])
			if row == nil {
				row = cloneItem(item.Update.Key)
			}
			applyUpdateExpression(row, aws(item.Update.UpdateExpression), item.Update.ExpressionAttributeNames, item.Update.ExpressionAttributeValues)
			t.items[key] = row
		}
	}

	t.logf("TransactWriteItems", "items", len(in.TransactItems))
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

// fakeAWSError carries the same ErrorCode() contract that
// errors.IsConditionalCheckFailed / errors.IsTransactionCancelled recognize.
type fakeAWSError struct{ code, msg string }

func (e *fakeAWSError) Error() string     { return fmt.Sprintf("%s: %s", e.code, e.msg) }
func (e *fakeAWSError) ErrorCode() string { return e.code }

func conditionalCheckFailed() error {
	return &fakeAWSError{code: "ConditionalCheckFailedException", msg: "the conditional request failed"}
}

func transactionCancelled() error {
	return &fakeAWSError{code: "TransactionCanceledException", msg: "transaction cancelled"}
}
