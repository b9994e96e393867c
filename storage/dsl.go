// ClauseFor and UpdateFor are the typed condition/update-expression DSLs:
// rather than hand-building "#__x__"/":__x__" placeholder names, these
// builders compile down through
// github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression, which already
// owns placeholder aliasing; UpdateRaw's raw-attribute path (update.go)
// keeps a hand-rolled sanitized-alias convention instead, because it has no
// statically known field name to hand expression.Name.
package storage

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fogfish/golem/hseq"
	tserrors "github.com/ticketbro/tablestore/errors"
)

// Clause is a typed condition-expression fragment bound to field A of
// struct T, built from the struct's `dynamodbav` tag the same way the
// model/codec package resolves property names.
type Clause[T, A any] struct{ key string }

// ClauseFor resolves attr (or, with no argument, the sole field of type A in
// T) to its wire attribute name and returns a builder for conditions against
// it, mirroring service/ddb/constraint.go's ClauseFor.
func ClauseFor[T, A any](attr ...string) Clause[T, A] {
	var seq hseq.Seq[T]
	if len(attr) == 0 {
		seq = hseq.New1[T, A]()
	} else {
		seq = hseq.New[T](attr[0])
	}
	return hseq.FMap1(seq, newClause[T, A])
}

func newClause[T, A any](t hseq.Type[T]) Clause[T, A] {
	tag := t.Tag.Get("dynamodbav")
	if tag == "" {
		panic(fmt.Sprintf("field %s of type %T has no dynamodbav tag", t.Name, *new(T)))
	}
	return Clause[T, A]{key: strings.Split(tag, ",")[0]}
}

// Condition is one built condition-expression fragment; ClauseFor/OneOf/
// AllOf all produce these, compiled lazily so OneOf/AllOf can combine them.
type Condition interface {
	build() expression.ConditionBuilder
}

type condFn func() expression.ConditionBuilder

func (f condFn) build() expression.ConditionBuilder { return f() }

func (c Clause[T, A]) Eq(val A) Condition {
	return condFn(func() expression.ConditionBuilder {
		return expression.Name(c.key).Equal(expression.Value(val))
	})
}

func (c Clause[T, A]) Ne(val A) Condition {
	return condFn(func() expression.ConditionBuilder {
		return expression.Name(c.key).NotEqual(expression.Value(val))
	})
}

func (c Clause[T, A]) Lt(val A) Condition {
	return condFn(func() expression.ConditionBuilder {
		return expression.Name(c.key).LessThan(expression.Value(val))
	})
}

func (c Clause[T, A]) Le(val A) Condition {
	return condFn(func() expression.ConditionBuilder {
		return expression.Name(c.key).LessThanEqual(expression.Value(val))
	})
}

func (c Clause[T, A]) Gt(val A) Condition {
	return condFn(func() expression.ConditionBuilder {
		return expression.Name(c.key).GreaterThan(expression.Value(val))
	})
}

func (c Clause[T, A]) Ge(val A) Condition {
	return condFn(func() expression.ConditionBuilder {
		return expression.Name(c.key).GreaterThanEqual(expression.Value(val))
	})
}

func (c Clause[T, A]) Between(a, b A) Condition {
	return condFn(func() expression.ConditionBuilder {
		return expression.Name(c.key).Between(expression.Value(a), expression.Value(b))
	})
}

func (c Clause[T, A]) In(seq ...A) Condition {
	return condFn(func() expression.ConditionBuilder {
		if len(seq) == 0 {
			return expression.Name(c.key).Equal(expression.Value(nil))
		}
		rest := make([]expression.OperandBuilder, len(seq)-1)
		for i, v := range seq[1:] {
			rest[i] = expression.Value(v)
		}
		return expression.Name(c.key).In(expression.Value(seq[0]), rest...)
	})
}

func (c Clause[T, A]) HasPrefix(val A) Condition {
	return condFn(func() expression.ConditionBuilder {
		return expression.Name(c.key).BeginsWith(fmt.Sprintf("%v", val))
	})
}

func (c Clause[T, A]) Contains(val A) Condition {
	return condFn(func() expression.ConditionBuilder {
		return expression.Name(c.key).Contains(fmt.Sprintf("%v", val))
	})
}

func (c Clause[T, A]) Exists() Condition {
	return condFn(func() expression.ConditionBuilder {
		return expression.Name(c.key).AttributeExists()
	})
}

func (c Clause[T, A]) NotExists() Condition {
	return condFn(func() expression.ConditionBuilder {
		return expression.Name(c.key).AttributeNotExists()
	})
}

// Optimistic is the put-or-match-version condition "this field is absent,
// or it currently equals val" - the form Update's in-place path writes
// directly against _docVersion for an instance that has version 0.
func (c Clause[T, A]) Optimistic(val A) Condition {
	return OneOf[T](c.NotExists(), c.Eq(val))
}

// OneOf joins clauses with OR.
func OneOf[T any](seq ...Condition) Condition {
	return condFn(func() expression.ConditionBuilder {
		return joinConditions(seq, expression.Or)
	})
}

// AllOf joins clauses with AND.
func AllOf[T any](seq ...Condition) Condition {
	return condFn(func() expression.ConditionBuilder {
		return joinConditions(seq, expression.And)
	})
}

func joinConditions(seq []Condition, join func(expression.ConditionBuilder, expression.ConditionBuilder, ...expression.ConditionBuilder) expression.ConditionBuilder) expression.ConditionBuilder {
	built := make([]expression.ConditionBuilder, len(seq))
	for i, c := range seq {
		built[i] = c.build()
	}
	switch len(built) {
	case 0:
		return expression.ConditionBuilder{}
	case 1:
		return built[0]
	default:
		return join(built[0], built[1], built[2:]...)
	}
}

// CompileCondition renders cond to the wire-level (expression string, names,
// values) triple that WithCondition (Put) and WithUpdateCondition consume -
// the seam between this typed DSL and the raw-string primitive.
func CompileCondition(cond Condition) (string, map[string]string, map[string]types.AttributeValue, error) {
	expr, err := expression.NewBuilder().WithCondition(cond.build()).Build()
	if err != nil {
		return "", nil, nil, tserrors.NewValidation("", []string{err.Error()}, err)
	}
	return *expr.Condition(), expr.Names(), expr.Values(), nil
}
