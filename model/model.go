// Package model binds a validated record schema (codec.Schema) to a named
// type ("tag") whose instances carry their schema attributes plus derived
// key attributes. Key derivation is an explicit function supplied by the
// caller rather than a pair of interface methods, which lets one model
// derive up to four GSI pairs (GSI2..GSI5) alongside its primary PK/SK.
//
// Model deliberately does not know about storage: class-level operations
// and instance-level capabilities are supplied by storage.Client, whose
// methods take and return *Instance[T] values - composition, not
// inheritance.
package model

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ticketbro/tablestore/codec"
	tserrors "github.com/ticketbro/tablestore/errors"
)

// GSI is one secondary index key pair. A zero value means "not indexed".
type GSI struct{ PK, SK string }

// Keys collects every key attribute an instance derives: the mandatory
// primary pair plus up to four secondary pairs (GSI2..GSI5 - GSI1 is
// reserved for the primary index's implicit projection in query/paginate).
type Keys struct {
	PK, SK                     string
	GSI2, GSI3, GSI4, GSI5 GSI
}

// KeyFn derives an instance's stored key attributes from its schema value.
type KeyFn[T any] func(T) Keys

// Model is a named constructible: a stable tag, an exact codec, and a key
// derivation function.
type Model[T any] struct {
	tag    string
	schema codec.Schema[T]
	keys   KeyFn[T]
}

// New constructs a Model. tag must be unique within any Union the model
// later joins.
func New[T any](tag string, schema codec.Schema[T], keys KeyFn[T]) *Model[T] {
	return &Model[T]{tag: tag, schema: schema, keys: keys}
}

// Pipe composes the model's codec with an additional wrapper, returning a
// new Model under the same tag and key function.
func (m *Model[T]) Pipe(wrap func(codec.Schema[T]) codec.Schema[T]) *Model[T] {
	return &Model[T]{tag: m.tag, schema: wrap(m.schema), keys: m.keys}
}

func (m *Model[T]) Tag() string           { return m.tag }
func (m *Model[T]) Codec() codec.Schema[T] { return m.schema }

// NewInstance constructs an instance from a typed input without validation -
// construction, not decoding.
func (m *Model[T]) NewInstance(value T) *Instance[T] {
	return &Instance[T]{model: m, value: value}
}

// NewWithVersion constructs an instance carrying an explicit _docVersion,
// used by storage.Client.Update when it builds the updated instance
// returned to the caller.
func (m *Model[T]) NewWithVersion(value T, version int64) *Instance[T] {
	return &Instance[T]{model: m, value: value, docVersion: version}
}

// Decode exact-decodes raw into an instance, or fails with a ValidationError
// tagged with the model's tag. This is the codec-compatible, error-returning
// contract a Union relies on to implement its tag-then-fallback algorithm.
func (m *Model[T]) Decode(raw codec.RawObject) (*Instance[T], error) {
	value, err := m.schema.Decode(raw)
	if err != nil {
		return nil, tagValidation(m.tag, err)
	}

	inst := &Instance[T]{model: m, value: value}
	if v, ok := raw["_docVersion"]; ok {
		if n, ok := docVersionOf(v); ok {
			inst.docVersion = n
		}
	}
	return inst, nil
}

// Validate is Decode with an attached diagnostic context.
func (m *Model[T]) Validate(raw codec.RawObject, context string) (*Instance[T], error) {
	inst, err := m.Decode(raw)
	if err != nil {
		if ve, ok := err.(*tserrors.ValidationError); ok {
			ve.Issues = append(ve.Issues, "context: "+context)
		}
		return nil, err
	}
	return inst, nil
}

// From is the ergonomic decode entry point; it is Decode under the name
// callers typically reach for.
func (m *Model[T]) From(raw codec.RawObject) (*Instance[T], error) {
	return m.Decode(raw)
}

// MustFrom decodes raw or panics.
func (m *Model[T]) MustFrom(raw codec.RawObject) *Instance[T] {
	inst, err := m.From(raw)
	if err != nil {
		panic(err)
	}
	return inst
}

// TryDecode is Decode boxed behind the Any interface, so a Model[T] can
// serve as a union.Member without that package importing T.
func (m *Model[T]) TryDecode(raw codec.RawObject) (Any, error) {
	inst, err := m.Decode(raw)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Is reports whether v is an instance produced by this model.
func (m *Model[T]) Is(v any) bool {
	inst, ok := v.(*Instance[T])
	return ok && inst != nil && inst.model == m
}

// Encode renders an instance's schema attributes plus _tag, delegating to
// the model's codec. It never emits the derived key attributes or
// _docVersion - those are added by storage.Client when it builds the item
// actually written to the table.
func (m *Model[T]) Encode(inst *Instance[T]) (codec.RawObject, error) {
	return inst.Encode()
}

// EncodeProp best-effort encodes a single attribute of value. If no
// sub-codec in the model's composed schema recognizes key, the caller
// should fall back to treating the value unchanged.
func (m *Model[T]) EncodeProp(value T, key string) (types.AttributeValue, bool) {
	return m.schema.EncodeProp(value, key)
}

func tagValidation(tag string, err error) error {
	if ve, ok := err.(*tserrors.ValidationError); ok {
		ve.Tag = tag
		return ve
	}
	return tserrors.NewValidation(tag, []string{err.Error()}, err)
}
