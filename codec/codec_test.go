package codec_test

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fogfish/it/v2"
	"github.com/ticketbro/tablestore/codec"
)

type account struct {
	ID    string `dynamodbav:"id"`
	Email string `dynamodbav:"email"`
	Note  string `dynamodbav:"note,omitempty"`
}

func TestStructEncodeIsExact(t *testing.T) {
	s := codec.Of[account]()

	raw, err := s.Encode(account{ID: "a1", Email: "a@example.com"})
	it.Then(t).Should(it.Nil(err))

	_, hasID := raw["id"]
	_, hasEmail := raw["email"]
	_, hasNote := raw["note"]
	it.Then(t).Should(it.Equal(hasID, true)).Should(it.Equal(hasEmail, true))
	it.Then(t).Should(it.Equal(hasNote, false))
}

func TestStructDecodeRequiresNonOmitemptyFields(t *testing.T) {
	s := codec.Of[account]()

	_, err := s.Decode(codec.RawObject{
		"id": &types.AttributeValueMemberS{Value: "a1"},
	})
	it.Then(t).ShouldNot(it.Nil(err))
}

func TestStructDecodeRoundTrips(t *testing.T) {
	s := codec.Of[account]()

	raw, err := s.Encode(account{ID: "a1", Email: "a@example.com", Note: "vip"})
	it.Then(t).Should(it.Nil(err))

	decoded, err := s.Decode(raw)
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(decoded.ID, "a1")).Should(it.Equal(decoded.Note, "vip"))
}

func TestStructEncodePropUnknownKeyFails(t *testing.T) {
	s := codec.Of[account]()

	_, ok := s.EncodeProp(account{ID: "a1"}, "nonexistent")
	it.Then(t).Should(it.Equal(ok, false))
}

func TestPartialAllowsMissingRequiredFields(t *testing.T) {
	s := codec.MakePartial[account](codec.Of[account]())

	decoded, err := s.Decode(codec.RawObject{
		"id": &types.AttributeValueMemberS{Value: "a1"},
	})
	it.Then(t).Should(it.Nil(err)).Should(it.Equal(decoded.ID, "a1"))
}

func TestRefineRejectsFailingPredicate(t *testing.T) {
	s := codec.MakeRefine[account](codec.Of[account](), func(a account) error {
		if a.Email == "" {
			return errors.New("email required")
		}
		return nil
	})

	raw, err := codec.Of[account]().Encode(account{ID: "a1"})
	it.Then(t).Should(it.Nil(err))

	_, err = s.Decode(raw)
	it.Then(t).ShouldNot(it.Nil(err))
}

func TestRefineAcceptsPassingPredicate(t *testing.T) {
	s := codec.MakeRefine[account](codec.Of[account](), func(a account) error {
		if a.Email == "" {
			return errors.New("email required")
		}
		return nil
	})

	raw, err := codec.Of[account]().Encode(account{ID: "a1", Email: "a@example.com"})
	it.Then(t).Should(it.Nil(err))

	decoded, err := s.Decode(raw)
	it.Then(t).Should(it.Nil(err)).Should(it.Equal(decoded.Email, "a@example.com"))
}

type extra struct {
	ID     string `dynamodbav:"id"`
	Bucket string `dynamodbav:"bucket"`
}

func TestIntersectionMergesEncodedAttributes(t *testing.T) {
	type combined struct {
		ID     string `dynamodbav:"id"`
		Bucket string `dynamodbav:"bucket"`
	}

	a := codec.Of[combined]()
	b := codec.Of[combined]()
	i := codec.MakeIntersection[combined](a, b)

	raw, err := i.Encode(combined{ID: "x", Bucket: "y"})
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(len(raw), 2))
}
