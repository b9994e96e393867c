package codec

import "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

// The wrappers below form a small sealed hierarchy: Intersection, Exact,
// Partial, Refine and Readonly each embed an inner Schema[T] and compose by
// delegation. EncodeProp resolution is therefore ordinary method dispatch
// walking down Inner() until a base Struct answers - no separate
// reflection-based resolver is needed.

// wrapped is implemented by the single-inner wrappers (Exact, Partial,
// Refine, Readonly), each exposing its inner codec through Inner().
// Intersection holds several members and does not implement it.
type wrapped[T any] interface {
	Schema[T]
	Inner() Schema[T]
}

// Exact marks that encode of the wrapped codec must omit properties
// outside its declared schema. The base Struct codec already behaves this
// way; Exact exists so codecs built by composition can be tagged explicitly.
type Exact[T any] struct{ inner Schema[T] }

func MakeExact[T any](inner Schema[T]) *Exact[T] { return &Exact[T]{inner: inner} }

func (e *Exact[T]) Inner() Schema[T] { return e.inner }
func (e *Exact[T]) Props() []string  { return e.inner.Props() }
func (e *Exact[T]) Is(raw RawObject) bool {
	return e.inner.Is(raw)
}
func (e *Exact[T]) Decode(raw RawObject) (T, error) { return e.inner.Decode(raw) }
func (e *Exact[T]) Encode(value T) (RawObject, error) {
	return e.inner.Encode(value)
}
func (e *Exact[T]) EncodeProp(value T, key string) (types.AttributeValue, bool) {
	return e.inner.EncodeProp(value, key)
}

// Partial loosens decode: every property becomes optional regardless of the
// inner schema's omitempty declarations. Encode/EncodeProp are unaffected -
// values that are present still encode the same way.
type Partial[T any] struct{ inner Schema[T] }

func MakePartial[T any](inner Schema[T]) *Partial[T] { return &Partial[T]{inner: inner} }

func (p *Partial[T]) Inner() Schema[T] { return p.inner }
func (p *Partial[T]) Props() []string  { return p.inner.Props() }
func (p *Partial[T]) Is(raw RawObject) bool {
	_, err := p.Decode(raw)
	return err == nil
}

func (p *Partial[T]) Decode(raw RawObject) (T, error) {
	if loose, ok := p.inner.(interface {
		DecodeLoose(RawObject) (T, error)
	}); ok {
		return loose.DecodeLoose(raw)
	}
	return p.inner.Decode(raw)
}

func (p *Partial[T]) Encode(value T) (RawObject, error) { return p.inner.Encode(value) }
func (p *Partial[T]) EncodeProp(value T, key string) (types.AttributeValue, bool) {
	return p.inner.EncodeProp(value, key)
}

// Refine attaches an additional validation predicate evaluated after the
// inner schema successfully decodes.
type Refine[T any] struct {
	inner Schema[T]
	check func(T) error
}

func MakeRefine[T any](inner Schema[T], check func(T) error) *Refine[T] {
	return &Refine[T]{inner: inner, check: check}
}

func (r *Refine[T]) Inner() Schema[T] { return r.inner }
func (r *Refine[T]) Props() []string  { return r.inner.Props() }

func (r *Refine[T]) Decode(raw RawObject) (T, error) {
	value, err := r.inner.Decode(raw)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := r.check(value); err != nil {
		var zero T
		return zero, newValidation([]string{err.Error()}, err)
	}
	return value, nil
}

func (r *Refine[T]) Is(raw RawObject) bool {
	_, err := r.Decode(raw)
	return err == nil
}
func (r *Refine[T]) Encode(value T) (RawObject, error) { return r.inner.Encode(value) }
func (r *Refine[T]) EncodeProp(value T, key string) (types.AttributeValue, bool) {
	return r.inner.EncodeProp(value, key)
}

// Readonly is a documentation-only wrapper: Go has no const-correctness
// enforcement for struct values, so Readonly behaves identically to its
// inner schema. It exists purely so the composed codec's type signature
// communicates the same intent the source schema's readonly() combinator
// does.
type Readonly[T any] struct{ inner Schema[T] }

func MakeReadonly[T any](inner Schema[T]) *Readonly[T] { return &Readonly[T]{inner: inner} }

func (r *Readonly[T]) Inner() Schema[T]                { return r.inner }
func (r *Readonly[T]) Props() []string                 { return r.inner.Props() }
func (r *Readonly[T]) Is(raw RawObject) bool           { return r.inner.Is(raw) }
func (r *Readonly[T]) Decode(raw RawObject) (T, error) { return r.inner.Decode(raw) }
func (r *Readonly[T]) Encode(value T) (RawObject, error) {
	return r.inner.Encode(value)
}
func (r *Readonly[T]) EncodeProp(value T, key string) (types.AttributeValue, bool) {
	return r.inner.EncodeProp(value, key)
}

// Intersection combines multiple schemas over the same T. Decode requires
// every member to accept raw and returns the last member's result; Encode
// merges the output of every member; EncodeProp tries members in
// declaration order and uses the first one that recognizes the property.
type Intersection[T any] struct{ members []Schema[T] }

func MakeIntersection[T any](members ...Schema[T]) *Intersection[T] {
	return &Intersection[T]{members: members}
}

func (i *Intersection[T]) Props() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range i.members {
		for _, p := range m.Props() {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

func (i *Intersection[T]) Decode(raw RawObject) (T, error) {
	var value T
	var err error
	for _, m := range i.members {
		value, err = m.Decode(raw)
		if err != nil {
			return value, err
		}
	}
	return value, nil
}

func (i *Intersection[T]) Is(raw RawObject) bool {
	for _, m := range i.members {
		if !m.Is(raw) {
			return false
		}
	}
	return true
}

func (i *Intersection[T]) Encode(value T) (RawObject, error) {
	out := make(RawObject)
	for _, m := range i.members {
		part, err := m.Encode(value)
		if err != nil {
			return nil, err
		}
		for k, v := range part {
			out[k] = v
		}
	}
	return out, nil
}

func (i *Intersection[T]) EncodeProp(value T, key string) (types.AttributeValue, bool) {
	for _, m := range i.members {
		if v, ok := m.EncodeProp(value, key); ok {
			return v, ok
		}
	}
	return nil, false
}
