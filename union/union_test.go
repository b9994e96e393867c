package union_test

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fogfish/it/v2"
	"github.com/ticketbro/tablestore/codec"
	"github.com/ticketbro/tablestore/model"
	"github.com/ticketbro/tablestore/union"
)

type memberA struct {
	A string `dynamodbav:"a"`
}

type memberB struct {
	B int `dynamodbav:"b"`
}

func rawOf(t *testing.T, v any) codec.RawObject {
	t.Helper()
	raw, err := attributevalue.MarshalMap(v)
	it.Then(t).Should(it.Nil(err))
	return raw
}

func withTag(raw codec.RawObject, tag string) codec.RawObject {
	raw["_tag"] = &types.AttributeValueMemberS{Value: tag}
	return raw
}

func newFixture() (*model.Model[memberA], *model.Model[memberB], *union.Union) {
	a := model.New[memberA]("A", codec.Of[memberA](), func(v memberA) model.Keys {
		return model.Keys{PK: "a", SK: v.A}
	})
	b := model.New[memberB]("B", codec.Of[memberB](), func(v memberB) model.Keys {
		return model.Keys{PK: "b"}
	})
	return a, b, union.New(a, b)
}

// S3 — Union decode-by-tag: a row tagged "B" decodes as B even though its
// attributes would also satisfy A's structural shape.
func TestUnionDecodeByTag(t *testing.T) {
	_, b, u := newFixture()

	raw := withTag(rawOf(t, memberA{A: "x"}), "B")
	raw["b"] = &types.AttributeValueMemberN{Value: "42"}

	inst, err := u.From(raw)
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(inst.Tag(), b.Tag()))
}

// An unrecognized tag falls through to declaration order: the first member
// that can decode the row wins.
func TestUnionDecodeByDeclarationOrder(t *testing.T) {
	a, _, u := newFixture()

	raw := withTag(rawOf(t, memberA{A: "s"}), "x")
	raw["b"] = &types.AttributeValueMemberN{Value: "42"}

	inst, err := u.From(raw)
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(inst.Tag(), a.Tag()))
}

func TestUnionDecodeFailsWhenNoMemberMatches(t *testing.T) {
	_, _, u := newFixture()

	_, err := u.From(codec.RawObject{})
	it.Then(t).ShouldNot(it.Nil(err))
}

func TestUnionIsAcceptsAnyMember(t *testing.T) {
	a, b, u := newFixture()

	instA, err := a.Decode(rawOf(t, memberA{A: "x"}))
	it.Then(t).Should(it.Nil(err))
	instB, err := b.Decode(rawOf(t, memberB{B: 1}))
	it.Then(t).Should(it.Nil(err))

	it.Then(t).
		Should(it.Equal(u.Is(instA), true)).
		Should(it.Equal(u.Is(instB), true)).
		Should(it.Equal(u.Is("not an instance"), false))
}
