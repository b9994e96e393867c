package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fogfish/golem/hseq"
	tserrors "github.com/ticketbro/tablestore/errors"
	"github.com/ticketbro/tablestore/model"
)

// UpdateClause is UpdateFor's per-field builder, the update-expression
// counterpart of Clause.
type UpdateClause[T, A any] struct{ key string }

// UpdateFor resolves attr (or, with no argument, T's sole field of type A) to
// its wire attribute name.
func UpdateFor[T, A any](attr ...string) UpdateClause[T, A] {
	var seq hseq.Seq[T]
	if len(attr) == 0 {
		seq = hseq.New1[T, A]()
	} else {
		seq = hseq.New[T](attr[0])
	}
	return hseq.FMap1(seq, newUpdateClause[T, A])
}

func newUpdateClause[T, A any](t hseq.Type[T]) UpdateClause[T, A] {
	tag := t.Tag.Get("dynamodbav")
	if tag == "" {
		panic(fmt.Sprintf("field %s of type %T has no dynamodbav tag", t.Name, *new(T)))
	}
	return UpdateClause[T, A]{key: strings.Split(tag, ",")[0]}
}

// UpdateOp is one field mutation; UpdateExpr compiles a sequence of these
// into a single UpdateItem expression.
type UpdateOp interface {
	apply(expression.UpdateBuilder) expression.UpdateBuilder
}

type updateOpFn func(expression.UpdateBuilder) expression.UpdateBuilder

func (f updateOpFn) apply(b expression.UpdateBuilder) expression.UpdateBuilder { return f(b) }

func (c UpdateClause[T, A]) Set(val A) UpdateOp {
	return updateOpFn(func(b expression.UpdateBuilder) expression.UpdateBuilder {
		return b.Set(expression.Name(c.key), expression.Value(val))
	})
}

func (c UpdateClause[T, A]) SetNotExists(val A) UpdateOp {
	return updateOpFn(func(b expression.UpdateBuilder) expression.UpdateBuilder {
		return b.Set(expression.Name(c.key), expression.IfNotExists(expression.Name(c.key), expression.Value(val)))
	})
}

func (c UpdateClause[T, A]) Add(val A) UpdateOp {
	return updateOpFn(func(b expression.UpdateBuilder) expression.UpdateBuilder {
		return b.Add(expression.Name(c.key), expression.Value(val))
	})
}

func (c UpdateClause[T, A]) Inc(val A) UpdateOp {
	return updateOpFn(func(b expression.UpdateBuilder) expression.UpdateBuilder {
		return b.Set(expression.Name(c.key), expression.Name(c.key).Plus(expression.Value(val)))
	})
}

func (c UpdateClause[T, A]) Dec(val A) UpdateOp {
	return updateOpFn(func(b expression.UpdateBuilder) expression.UpdateBuilder {
		return b.Set(expression.Name(c.key), expression.Name(c.key).Minus(expression.Value(val)))
	})
}

func (c UpdateClause[T, A]) Append(val A) UpdateOp {
	return updateOpFn(func(b expression.UpdateBuilder) expression.UpdateBuilder {
		return b.Set(expression.Name(c.key), expression.ListAppend(expression.Name(c.key), expression.Value(val)))
	})
}

func (c UpdateClause[T, A]) Prepend(val A) UpdateOp {
	return updateOpFn(func(b expression.UpdateBuilder) expression.UpdateBuilder {
		return b.Set(expression.Name(c.key), expression.ListAppend(expression.Value(val), expression.Name(c.key)))
	})
}

func (c UpdateClause[T, A]) Remove() UpdateOp {
	return updateOpFn(func(b expression.UpdateBuilder) expression.UpdateBuilder {
		return b.Remove(expression.Name(c.key))
	})
}

// compileUpdate folds ops into one expression.UpdateBuilder and renders the
// (expression, names, values) triple UpdateItem needs.
func compileUpdate(ops []UpdateOp) (string, map[string]string, map[string]types.AttributeValue, error) {
	var b expression.UpdateBuilder
	for _, op := range ops {
		b = op.apply(b)
	}

	expr, err := expression.NewBuilder().WithUpdate(b).Build()
	if err != nil {
		return "", nil, nil, tserrors.NewValidation("", []string{err.Error()}, err)
	}
	return *expr.Update(), expr.Names(), expr.Values(), nil
}

// UpdateExpr is UpdateRaw's typed-DSL sibling: it issues the same
// attribute_exists(PK)-scoped UpdateItem, but built from a composed
// UpdateFor expression instead of a raw {name: value} map.
func (c *Client[T]) UpdateExpr(ctx context.Context, pk, sk string, ops []UpdateOp, options ...UpdateRawOption) (*model.Instance[T], error) {
	var cfg updateRawConfig
	for _, o := range options {
		o(&cfg)
	}

	updateExpr, names, values, err := compileUpdate(ops)
	if err != nil {
		return nil, err
	}

	req := &dynamodb.UpdateItemInput{
		TableName:                 tableName(&c.opts),
		Key:                       keyItem(pk, sk),
		UpdateExpression:          aws.String(updateExpr),
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
