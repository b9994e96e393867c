package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fogfish/opts"
	"github.com/ticketbro/tablestore/codec"
	tserrors "github.com/ticketbro/tablestore/errors"
	"github.com/ticketbro/tablestore/model"
	"golang.org/x/sync/singleflight"
)

// Client is the storage-bound handle for one model. It owns one transport
// (Options.service) and one load coalescer; the same Client may be shared
// by goroutines without external locking - every method either is a single
// suspend point or, for Load, delegates to the per-tick coalescer.
type Client[T any] struct {
	model *model.Model[T]
	opts  Options

	coalescer *coalescer[T]
	inflight  singleflight.Group
}

// New builds a Client bound to m. WithTable is required; everything else
// defaults (no GSIs registered, no cursor encryption, and, unless
// WithService/WithDefaultDDB is given, a service built by New from the
// process's default AWS config).
func New[T any](m *model.Model[T], option ...Option) (*Client[T], error) {
	var o Options
	if err := opts.Apply(&o, option); err != nil {
		return nil, err
	}
	if err := o.checkRequired(); err != nil {
		return nil, err
	}
	if o.service == nil {
		if err := optsDefaultDDB(&o); err != nil {
			return nil, err
		}
	}

	c := &Client[T]{model: m, opts: o}
	c.coalescer = newCoalescer(c)
	return c, nil
}

// PutOption customizes a single Put call.
type PutOption func(*putConfig)

type putConfig struct {
	ignoreExistence bool
	condition       string
	names           map[string]string
	values          map[string]types.AttributeValue
}

// IgnoreExistence suppresses Put's default attribute_not_exists(PK)
// precondition, allowing an unconditional overwrite.
func IgnoreExistence() PutOption { return func(c *putConfig) { c.ignoreExistence = true } }

// WithCondition replaces Put's default precondition with an arbitrary
// condition expression; its failure surfaces as ConditionalCheckFailedError
// rather than KeyExistsError.
func WithCondition(expr string, names map[string]string, values map[string]types.AttributeValue) PutOption {
	return func(c *putConfig) {
		c.condition = expr
		c.names = names
		c.values = values
	}
}

// Put writes inst's encoded item plus its derived key attributes and
// _docVersion:0, defaulting to attribute_not_exists(PK). On success it
// returns a new Instance carrying the durable _docVersion.
func (c *Client[T]) Put(ctx context.Context, inst *model.Instance[T], options ...PutOption) (*model.Instance[T], error) {
	var cfg putConfig
	for _, o := range options {
		o(&cfg)
	}

	item, err := c.itemOf(inst, 0)
	if err != nil {
		return nil, err
	}

	req := &dynamodb.PutItemInput{
		TableName: tableName(&c.opts),
		Item:      item,
	}

	switch {
	case cfg.condition != "":
		req.ConditionExpression = aws.String(cfg.condition)
		req.ExpressionAttributeNames = cfg.names
		req.ExpressionAttributeValues = cfg.values
	case !cfg.ignoreExistence:
		req.ConditionExpression = aws.String("attribute_not_exists(PK)")
	}

	_, err = c.opts.service.PutItem(ctx, req)
	if err != nil {
		if tserrors.IsConditionalCheckFailed(err) {
			keys := inst.Keys()
			if cfg.condition != "" {
				return nil, tserrors.NewConditionalCheckFailed(keys.PK, keys.SK, cfg.condition, err)
			}
			return nil, tserrors.NewKeyExists(keys.PK, keys.SK, err)
		}
		return nil, tserrors.ServiceIO(err)
	}

	return inst.WithDocVersion(0), nil
}

// Get fetches the row at (pk, sk) and decodes it through the client's
// model, failing with ItemNotFoundError when absent. Concurrent Get calls
// for the same key collapse into a single GetItem via the client's
// singleflight group, distinct from Load's per-tick batching.
func (c *Client[T]) Get(ctx context.Context, pk, sk string) (*model.Instance[T], error) {
	v, err, _ := c.inflight.Do(pk+"::"+sk, func() (any, error) {
		req := &dynamodb.GetItemInput{
			TableName: tableName(&c.opts),
			Key:       keyItem(pk, sk),
		}

		out, err := c.opts.service.GetItem(ctx, req)
		if err != nil {
			return nil, tserrors.ServiceIO(err)
		}
		if out.Item == nil {
			return nil, tserrors.NewItemNotFound(pk, sk, nil)
		}

		return c.decode(out.Item)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Instance[T]), nil
}

// Delete unconditionally removes the row at (pk, sk).
func (c *Client[T]) Delete(ctx context.Context, pk, sk string) error {
	_, err := c.opts.service.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: tableName(&c.opts),
		Key:       keyItem(pk, sk),
	})
	if err != nil {
		return tserrors.ServiceIO(err)
	}
	return nil
}

func (c *Client[T]) decode(raw codec.RawObject) (*model.Instance[T], error) {
	if c.opts.useStrictType {
		if err := rejectUnknownAttributes(c.model.Codec(), raw); err != nil {
			return nil, err
		}
	}
	return c.model.Decode(raw)
}

// itemOf renders inst's full stored item: schema attributes, _tag, derived
// keys, and _docVersion.
func (c *Client[T]) itemOf(inst *model.Instance[T], docVersion int64) (codec.RawObject, error) {
	item, err := inst.Encode()
	if err != nil {
		return nil, err
	}

	keys := inst.Keys()
	item["PK"] = &types.AttributeValueMemberS{Value: keys.PK}
	item["SK"] = &types.AttributeValueMemberS{Value: keys.SK}
	for n, gsi := range map[int]model.GSI{2: keys.GSI2, 3: keys.GSI3, 4: keys.GSI4, 5: keys.GSI5} {
		if gsi.PK == "" {
			continue
		}
		item[fmt.Sprintf("GSI%dPK", n)] = &types.AttributeValueMemberS{Value: gsi.PK}
		item[fmt.Sprintf("GSI%dSK", n)] = &types.AttributeValueMemberS{Value: gsi.SK}
	}
	item["_docVersion"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(docVersion, 10)}

	return item, nil
}

func keyItem(pk, sk string) codec.RawObject {
	return codec.RawObject{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

const deletedPrefix = "$$DELETED$$"

// wireMeta is every attribute the wire layout adds beyond the codec's
// declared properties; strict mode only objects to attributes outside
// both sets.
var wireMeta = map[string]bool{
	"_tag": true, "_docVersion": true, "_deletedAt": true,
	"PK": true, "SK": true,
	"GSI2PK": true, "GSI2SK": true, "GSI3PK": true, "GSI3SK": true,
	"GSI4PK": true, "GSI4SK": true, "GSI5PK": true, "GSI5SK": true,
}

// rejectUnknownAttributes implements WithStrictType: decode fails if raw
// carries a key outside the schema's declared properties and the fixed
// wire metadata set.
func rejectUnknownAttributes[T any](schema codec.Schema[T], raw codec.RawObject) error {
	declared := make(map[string]bool, len(schema.Props()))
	for _, p := range schema.Props() {
		declared[p] = true
	}

	var issues []string
	for k := range raw {
		if !declared[k] && !wireMeta[k] {
			issues = append(issues, fmt.Sprintf("unexpected attribute %q under strict schema mode", k))
		}
	}
	if len(issues) > 0 {
		return tserrors.NewValidation("", issues, nil)
	}
	return nil
}

// clockNow is indirected so tests can stub "now" for soft-delete
// timestamps without depending on wall-clock time.
var clockNow = time.Now
