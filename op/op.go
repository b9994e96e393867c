// Package op describes write operations as data: the same put/updateRaw/
// delete/condition vocabulary storage.Client executes directly, but here
// rendered as TransactWriteItem-producing values so bulk can chunk a flat
// sequence of heterogeneous operations and dispatch each chunk as one
// transactWrite call.
package op

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// WriteOp is one entry in a bulk call: anything that can render itself as a
// native TransactWriteItem and describe itself for diagnostics/rollback
// reporting.
type WriteOp interface {
	ToTransactItem() (types.TransactWriteItem, error)
	Describe() string
}

// Put writes Item under table. A non-empty Condition (with Names and
// Values) is sent as the put's condition expression; an empty Condition
// makes the put unconditional, with no attribute_not_exists(PK) default.
type Put struct {
	Table     string
	Item      map[string]types.AttributeValue
	Condition string
	Names     map[string]string
	Values    map[string]types.AttributeValue
}

func (p Put) ToTransactItem() (types.TransactWriteItem, error) {
	put := &types.Put{
		TableName: aws.String(p.Table),
		Item:      p.Item,
	}
	if p.Condition != "" {
		put.ConditionExpression = aws.String(p.Condition)
		put.ExpressionAttributeNames = p.Names
		put.ExpressionAttributeValues = p.Values
	}
	return types.TransactWriteItem{Put: put}, nil
}

func (p Put) Describe() string { return fmt.Sprintf("put %s", keyOf(p.Item)) }

// UpdateRaw issues a raw update-expression against Key. A non-empty
// Condition is sent as the update's condition expression; an empty
// Condition makes the update unconditional, with no attribute_exists(PK)
// default.
type UpdateRaw struct {
	Table      string
	Key        map[string]types.AttributeValue
	Expression string
	Condition  string
	Names      map[string]string
	Values     map[string]types.AttributeValue
}

func (u UpdateRaw) ToTransactItem() (types.TransactWriteItem, error) {
	upd := &types.Update{
		TableName:                 aws.String(u.Table),
		Key:                       u.Key,
		UpdateExpression:          aws.String(u.Expression),
		ExpressionAttributeNames:  u.Names,
		ExpressionAttributeValues: u.Values,
	}
	if u.Condition != "" {
		upd.ConditionExpression = aws.String(u.Condition)
	}
	return types.TransactWriteItem{Update: upd}, nil
}

func (u UpdateRaw) Describe() string { return fmt.Sprintf("updateRaw %s", keyOf(u.Key)) }

// Delete unconditionally removes Key unless Condition is set.
type Delete struct {
	Table     string
	Key       map[string]types.AttributeValue
	Condition string
	Names     map[string]string
	Values    map[string]types.AttributeValue
}

func (d Delete) ToTransactItem() (types.TransactWriteItem, error) {
	del := &types.Delete{
		TableName: aws.String(d.Table),
		Key:       d.Key,
	}
	if d.Condition != "" {
		del.ConditionExpression = aws.String(d.Condition)
		del.ExpressionAttributeNames = d.Names
		del.ExpressionAttributeValues = d.Values
	}
	return types.TransactWriteItem{Delete: del}, nil
}

func (d Delete) Describe() string { return fmt.Sprintf("delete %s", keyOf(d.Key)) }

// Condition is a bare ConditionCheck: it contributes no write of its own,
// only a pass/fail gate on the transaction.
type Condition struct {
	Table     string
	Key       map[string]types.AttributeValue
	Condition string
	Names     map[string]string
	Values    map[string]types.AttributeValue
}

func (c Condition) ToTransactItem() (types.TransactWriteItem, error) {
	return types.TransactWriteItem{
		ConditionCheck: &types.ConditionCheck{
			TableName:                 aws.String(c.Table),
			Key:                       c.Key,
			ConditionExpression:       aws.String(c.Condition),
			ExpressionAttributeNames:  c.Names,
			ExpressionAttributeValues: c.Values,
		},
	}, nil
}

func (c Condition) Describe() string { return fmt.Sprintf("condition %s", keyOf(c.Key)) }

// Pair is a transaction-pair: Action is what bulk executes on the forward
// pass, Rollback (optional) is what bulk executes during compensation if a
// later chunk in the same logical call fails.
type Pair struct {
	Action   WriteOp
	Rollback WriteOp // nil: plain operation, skipped during rollback
}

func (p Pair) ToTransactItem() (types.TransactWriteItem, error) { return p.Action.ToTransactItem() }
func (p Pair) Describe() string                                 { return p.Action.Describe() }

// HasRollback reports whether p carries a compensating operation.
func (p Pair) HasRollback() bool { return p.Rollback != nil }

func keyOf(m map[string]types.AttributeValue) string {
	pk, _ := m["PK"].(*types.AttributeValueMemberS)
	sk, _ := m["SK"].(*types.AttributeValueMemberS)
	if pk == nil {
		return "?"
	}
	if sk == nil {
		return pk.Value
	}
	return pk.Value + "::" + sk.Value
}
