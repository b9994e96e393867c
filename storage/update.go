package storage

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ticketbro/tablestore/bulk"
	tserrors "github.com/ticketbro/tablestore/errors"
	"github.com/ticketbro/tablestore/model"
	"github.com/ticketbro/tablestore/op"
)

// UpdateRawOption customizes a single UpdateRaw call.
type UpdateRawOption func(*updateRawConfig)

type updateRawConfig struct {
	condition string
	names     map[string]string
	values    map[string]types.AttributeValue
}

// WithUpdateCondition replaces UpdateRaw's default attribute_exists(PK)
// precondition.
func WithUpdateCondition(expr string, names map[string]string, values map[string]types.AttributeValue) UpdateRawOption {
	return func(c *updateRawConfig) {
		c.condition = expr
		c.names = names
		c.values = values
	}
}

// UpdateRaw issues a store-level update using caller-supplied attributes,
// scoped by attribute_exists(PK) by default. attrs maps schema-or-GSI
// attribute names to new values; a nil value is dropped, a NULL value
// (types.AttributeValueMemberNULL) on a key starting with "GSI" is placed
// in a REMOVE clause, and everything else goes in SET. Names are sanitized
// to placeholder aliases ("#name", with the value under ":name"), with
// "x{n}" disambiguation on collision after stripping non-alphanumerics.
//
// UpdateRaw never recomputes derived key attributes even when the schema
// fields they depend on change: the returned instance's Keys() reflect its
// in-memory value, but the stored row's PK/SK/GSI attributes are left
// untouched.
func (c *Client[T]) UpdateRaw(ctx context.Context, pk, sk string, attrs map[string]types.AttributeValue, options ...UpdateRawOption) (*model.Instance[T], error) {
	var cfg updateRawConfig
	for _, o := range options {
		o(&cfg)
	}

	setExpr, removeExpr, names, values := sanitizedUpdateExpression(attrs)
	var expr []string
	if len(setExpr) > 0 {
		expr = append(expr, "SET "+strings.Join(setExpr, ", "))
	}
	if len(removeExpr) > 0 {
		expr = append(expr, "REMOVE "+strings.Join(removeExpr, ", "))
	}

	req := &dynamodb.UpdateItemInput{
		TableName:                 tableName(&c.opts),
		Key:                       keyItem(pk, sk),
		UpdateExpression:          aws.String(strings.Join(expr, " ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if cfg.condition != "" {
		req.ConditionExpression = aws.String(cfg.condition)
		for k, v := range cfg.names {
			req.ExpressionAttributeNames[k] = v
		}
		for k, v := range cfg.values {
			req.ExpressionAttributeValues[k] = v
		}
	} else {
		req.ConditionExpression = aws.String("attribute_exists(PK)")
	}

	out, err := c.opts.service.UpdateItem(ctx, req)
	if err != nil {
		if tserrors.IsConditionalCheckFailed(err) {
			if cfg.condition != "" {
				return nil, tserrors.NewConditionalCheckFailed(pk, sk, cfg.condition, err)
			}
			return nil, tserrors.NewItemNotFound(pk, sk, err)
		}
		return nil, tserrors.ServiceIO(err)
	}

	return c.decode(out.Attributes)
}

// nonAlnum matches what sanitizedUpdateExpression strips from every
// attribute name. Collisions
// among distinct source names are disambiguated by appending "x{n}" where
// n is the current count of names already sanitized to the same base.
var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

func sanitizedUpdateExpression(attrs map[string]types.AttributeValue) (set, remove []string, names map[string]string, values map[string]types.AttributeValue) {
	names = map[string]string{}
	values = map[string]types.AttributeValue{}
	seen := map[string]int{}

	for k, v := range attrs {
		if v == nil {
			continue // undefined values are dropped
		}

		base := nonAlnum.ReplaceAllString(k, "")
		alias := base
		if n, dup := seen[base]; dup {
			alias = base + "x" + strconv.Itoa(n)
		}
		seen[base]++

		nameKey := "#" + alias
		names[nameKey] = k

		if strings.HasPrefix(k, "GSI") {
			if _, isNull := v.(*types.AttributeValueMemberNULL); isNull {
				remove = append(remove, nameKey)
				continue
			}
		}

		valueKey := ":" + alias
		values[valueKey] = v
		set = append(set, nameKey+" = "+valueKey)
	}

	if len(values) == 0 {
		values = nil
	}
	return
}

// Update replaces item's value with patch using optimistic concurrency.
// patch is the complete new value: it is not merged with item's current
// value, so every field of patch, zero values included, is written. If the
// patch does not change the instance's derived PK/SK,
// it issues a single conditional Put keyed on the pre-image's
// _docVersion. If the patch changes PK or SK, it performs the two-step
// relocation (put new row, delete old row) as a bulk call with
// compensating rollbacks.
func (c *Client[T]) Update(ctx context.Context, item *model.Instance[T], patch T) (*model.Instance[T], error) {
	updated := c.model.NewWithVersion(patch, item.DocVersion()+1)

	oldKeys := item.Keys()
	newKeys := updated.Keys()

	if oldKeys.PK == newKeys.PK && oldKeys.SK == newKeys.SK {
		return c.updateInPlace(ctx, item, updated)
	}
	return c.relocate(ctx, item, updated)
}

func (c *Client[T]) updateInPlace(ctx context.Context, item, updated *model.Instance[T]) (*model.Instance[T], error) {
	raw, err := c.itemOf(updated, updated.DocVersion())
	if err != nil {
		return nil, err
	}

	req := &dynamodb.PutItemInput{
		TableName: tableName(&c.opts),
		Item:      raw,
	}
	if item.DocVersion() == 0 {
		req.ConditionExpression = aws.String("attribute_not_exists(_docVersion) OR _docVersion = :v")
	} else {
		req.ConditionExpression = aws.String("_docVersion = :v")
	}
	req.ExpressionAttributeValues = map[string]types.AttributeValue{
		":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(item.DocVersion(), 10)},
	}

	_, err = c.opts.service.PutItem(ctx, req)
	if err != nil {
		if tserrors.IsConditionalCheckFailed(err) {
			keys := item.Keys()
			return nil, tserrors.NewRaceCondition(keys.PK, keys.SK, item.DocVersion(), -1, err)
		}
		return nil, tserrors.ServiceIO(err)
	}

	return updated, nil
}

func (c *Client[T]) relocate(ctx context.Context, item, updated *model.Instance[T]) (*model.Instance[T], error) {
	newItem, err := c.itemOf(updated, updated.DocVersion())
	if err != nil {
		return nil, err
	}
	oldItem, err := c.itemOf(item, item.DocVersion())
	if err != nil {
		return nil, err
	}

	table := c.opts.table
	putNew := op.Put{Table: table, Item: newItem, Condition: "attribute_not_exists(PK)"}
	deleteNew := op.Delete{Table: table, Key: keyItem(updated.Keys().PK, updated.Keys().SK)}
	deleteOld := op.Delete{Table: table, Key: keyItem(item.Keys().PK, item.Keys().SK)}
	putOld := op.Put{Table: table, Item: oldItem}

	_, err = bulk.Run(ctx, c.opts.service, bulk.Operations{
		op.Pair{Action: putNew, Rollback: deleteNew},
		op.Pair{Action: deleteOld, Rollback: putOld},
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}
