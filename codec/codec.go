// Package codec validates, encodes and decodes a record against a
// structural schema derived from a Go struct.
//
// A codec is "exact": Encode discards any key not declared by the schema.
// Codecs compose through a small sealed hierarchy of wrappers (Intersection,
// Exact, Partial, Refine, Readonly); the engine walks this hierarchy through
// EncodeProp to resolve the sub-codec responsible for a single attribute,
// built on dynamodbav-tag reflection via github.com/fogfish/golem/hseq.
package codec

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fogfish/golem/hseq"
)

// RawObject is the wire representation a codec encodes to and decodes
// from: a DynamoDB item in its native attribute-value form.
type RawObject = map[string]types.AttributeValue

// Schema is the contract every codec and codec wrapper implements. The
// engine only needs Encode/Decode/Is plus the introspection pair
// Props/EncodeProp to locate the codec for a single attribute.
type Schema[T any] interface {
	// Decode validates a raw item into T, or fails with Issues.
	Decode(raw RawObject) (T, error)
	// Encode renders T into a raw item restricted to declared properties
	// ("exact").
	Encode(value T) (RawObject, error)
	// Is reports whether raw looks like a valid T without allocating one.
	Is(raw RawObject) bool
	// Props lists the declared property names, in struct-declaration order.
	Props() []string
	// EncodeProp best-effort encodes a single named property of value. The
	// second return is false when no sub-codec recognizes the property;
	// callers fall back to the value's attributevalue-marshaled form
	// unchanged.
	EncodeProp(value T, key string) (types.AttributeValue, bool)
}

// field describes one struct field recognized by the codec, keyed by its
// dynamodbav tag name.
type field struct {
	name      string // dynamodbav attribute name
	omitempty bool
}

// Struct is the base codec: a direct reflection of T's exported fields and
// their `dynamodbav` tags, built once via hseq (mirrors
// service/ddb/codec.go's genCodec/mkCodecOf and schema.go's NewSchema).
type Struct[T any] struct {
	fields []field
	byName map[string]field
}

// Of builds the base structural codec for T by walking its dynamodbav tags.
func Of[T any]() *Struct[T] {
	seq := hseq.New[T]()

	fields := make([]field, 0, len(seq))
	byName := make(map[string]field, len(seq))

	for _, t := range seq {
		tag := t.Tag.Get("dynamodbav")
		if tag == "" {
			continue
		}
		parts := strings.Split(tag, ",")
		name := parts[0]
		if name == "" || name == "-" {
			continue
		}

		f := field{
			name:      name,
			omitempty: hasOption(parts[1:], "omitempty"),
		}
		fields = append(fields, f)
		byName[name] = f
	}

	return &Struct[T]{fields: fields, byName: byName}
}

func hasOption(opts []string, want string) bool {
	for _, o := range opts {
		if o == want {
			return true
		}
	}
	return false
}

func (s *Struct[T]) Props() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.name
	}
	return out
}

// Decode validates raw against the declared fields, then unmarshals it into
// T. Unknown keys in raw are ignored (exactness only restricts what Encode
// emits); missing required (non-omitempty) keys are reported as issues.
func (s *Struct[T]) Decode(raw RawObject) (T, error) {
	var zero T

	var issues []string
	for _, f := range s.fields {
		if _, ok := raw[f.name]; !ok && !f.omitempty {
			issues = append(issues, fmt.Sprintf("missing required property %q", f.name))
		}
	}
	if len(issues) > 0 {
		return zero, newValidation(issues, nil)
	}

	var value T
	if err := attributevalue.UnmarshalMap(raw, &value); err != nil {
		return zero, newValidation([]string{err.Error()}, err)
	}
	return value, nil
}

func (s *Struct[T]) Is(raw RawObject) bool {
	_, err := s.Decode(raw)
	return err == nil
}

// DecodeLoose decodes raw without enforcing required (non-omitempty)
// properties. It backs the Partial wrapper.
func (s *Struct[T]) DecodeLoose(raw RawObject) (T, error) {
	var value T
	if err := attributevalue.UnmarshalMap(raw, &value); err != nil {
		var zero T
		return zero, newValidation([]string{err.Error()}, err)
	}
	return value, nil
}

// Encode renders value, keeping only declared properties.
func (s *Struct[T]) Encode(value T) (RawObject, error) {
	full, err := attributevalue.MarshalMap(value)
	if err != nil {
		return nil, err
	}

	exact := make(RawObject, len(s.fields))
	for _, f := range s.fields {
		if v, ok := full[f.name]; ok {
			if f.omitempty {
				if _, isNull := v.(*types.AttributeValueMemberNULL); isNull {
					continue
				}
			}
			exact[f.name] = v
		}
	}
	return exact, nil
}

// EncodeProp re-encodes the whole value and projects out the single
// property; the base codec always recognizes every declared property.
func (s *Struct[T]) EncodeProp(value T, key string) (types.AttributeValue, bool) {
	if _, ok := s.byName[key]; !ok {
		return nil, false
	}

	full, err := attributevalue.MarshalMap(value)
	if err != nil {
		return nil, false
	}
	v, ok := full[key]
	return v, ok
}
