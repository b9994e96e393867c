// Package union composes N≥2 models into a single polymorphic decoder: a
// Union has no constructor of its own and produces a model.Any boxing
// whichever member actually decoded the value.
package union

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ticketbro/tablestore/codec"
	tserrors "github.com/ticketbro/tablestore/errors"
	"github.com/ticketbro/tablestore/model"
)

// Member is the subset of *model.Model[T] a Union needs: enough to try a
// decode and report the tag it would land under, without the union package
// importing model's generic parameter T anywhere.
type Member interface {
	Tag() string
	TryDecode(raw codec.RawObject) (model.Any, error)
}

// Union holds an ordered list of member models, reachable either by a
// direct `_tag` match or by declaration-order trial.
type Union struct {
	members []Member
	byTag   map[string]Member
}

// New composes members into a Union. Panics if fewer than two members are
// given, or if two members share a tag.
func New(members ...Member) *Union {
	if len(members) < 2 {
		panic("union: requires at least two members")
	}

	byTag := make(map[string]Member, len(members))
	for _, m := range members {
		if _, dup := byTag[m.Tag()]; dup {
			panic("union: duplicate member tag " + m.Tag())
		}
		byTag[m.Tag()] = m
	}

	return &Union{members: members, byTag: byTag}
}

// From decodes raw using a tag-first, declaration-order-fallback,
// first-success-wins algorithm. The tag lookup is tried first only when raw
// actually carries a matching `_tag`; every other case, including a `_tag`
// that matches no member, falls through to declaration order.
func (u *Union) From(raw codec.RawObject) (model.Any, error) {
	if tag, ok := stringTag(raw); ok {
		if m, found := u.byTag[tag]; found {
			if inst, err := m.TryDecode(raw); err == nil {
				return inst, nil
			}
		}
	}

	for _, m := range u.members {
		inst, err := m.TryDecode(raw)
		if err == nil {
			return inst, nil
		}
	}

	return nil, tserrors.NewValidation("", []string{"Couldn't decode using any of the provided union types."}, nil)
}

// Decode is From under the codec-compatible name, for Unions composed
// inside another codec.
func (u *Union) Decode(raw codec.RawObject) (model.Any, error) { return u.From(raw) }

// Validate is From with an attached diagnostic context.
func (u *Union) Validate(raw codec.RawObject, context string) (model.Any, error) {
	inst, err := u.From(raw)
	if err != nil {
		if ve, ok := err.(*tserrors.ValidationError); ok {
			ve.Issues = append(ve.Issues, "context: "+context)
		}
		return nil, err
	}
	return inst, nil
}

// Is reports whether v is an instance of any member.
func (u *Union) Is(v any) bool {
	inst, ok := v.(model.Any)
	if !ok {
		return false
	}
	_, known := u.byTag[inst.Tag()]
	return known
}

// Encode delegates to the instance's own Encode.
func Encode(inst model.Any) (codec.RawObject, error) {
	return inst.Encode()
}

func stringTag(raw codec.RawObject) (string, bool) {
	v, ok := raw["_tag"]
	if !ok {
		return "", false
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}
