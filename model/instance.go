package model

import (
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ticketbro/tablestore/codec"
)

// Instance is an immutable, observationally-opaque value produced either by
// construction (NewInstance, no validation) or by decoding (Decode/From,
// validated). Updates never mutate an Instance in place; they produce a new
// one carrying an incremented _docVersion.
type Instance[T any] struct {
	model      *Model[T]
	value      T
	docVersion int64
}

// Any is the interface every Instance[T], regardless of T, satisfies. A
// Union holds its members behind this interface so it can return "an
// instance of one of its members" without knowing every member's concrete
// type ahead of time.
type Any interface {
	Tag() string
	Encode() (codec.RawObject, error)
}

var _ Any = (*Instance[struct{}])(nil)

func (i *Instance[T]) Tag() string { return i.model.tag }

// Model returns the model that produced this instance.
func (i *Instance[T]) Model() *Model[T] { return i.model }

// Values returns only the schema-declared attributes - in this rendering
// that is simply the wrapped T, since T never carries the derived key
// properties (those live in Keys()).
func (i *Instance[T]) Values() T { return i.value }

// Keys computes the derived index attributes for this instance.
func (i *Instance[T]) Keys() Keys { return i.model.keys(i.value) }

// DocVersion is the last known optimistic-concurrency version. Zero before
// the instance has ever been successfully written.
func (i *Instance[T]) DocVersion() int64 { return i.docVersion }

// WithDocVersion returns a new Instance with the same schema value under a
// different recorded version; storage.Client uses this after a successful
// Put to reflect the version that is now durable.
func (i *Instance[T]) WithDocVersion(version int64) *Instance[T] {
	return &Instance[T]{model: i.model, value: i.value, docVersion: version}
}

// Encode renders the schema attributes plus _tag. It never includes PK, SK,
// any GSI attribute, or _docVersion - those belong to the stored item, not
// the codec-declared record.
func (i *Instance[T]) Encode() (codec.RawObject, error) {
	raw, err := i.model.schema.Encode(i.value)
	if err != nil {
		return nil, err
	}
	out := make(codec.RawObject, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}
	out["_tag"] = &types.AttributeValueMemberS{Value: i.model.tag}
	return out, nil
}

// EncodeProp best-effort encodes one attribute of this instance.
func (i *Instance[T]) EncodeProp(key string) (types.AttributeValue, bool) {
	return i.model.EncodeProp(i.value, key)
}

func docVersionOf(av types.AttributeValue) (int64, bool) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
