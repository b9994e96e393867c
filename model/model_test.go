package model_test

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fogfish/it/v2"
	"github.com/ticketbro/tablestore/codec"
	"github.com/ticketbro/tablestore/model"
)

type widget struct {
	WidgetID string `dynamodbav:"widgetId"`
	Owner    string `dynamodbav:"owner"`
}

func widgetKeys(w widget) model.Keys {
	return model.Keys{
		PK: "owner:" + w.Owner,
		SK: "widget:" + w.WidgetID,
		GSI2: model.GSI{
			PK: "widget:" + w.WidgetID,
			SK: "owner:" + w.Owner,
		},
	}
}

func newWidgetModel() *model.Model[widget] {
	return model.New("widget", codec.Of[widget](), widgetKeys)
}

func TestNewInstanceCarriesZeroVersion(t *testing.T) {
	m := newWidgetModel()
	inst := m.NewInstance(widget{WidgetID: "w1", Owner: "u1"})

	it.Then(t).Should(it.Equal(inst.DocVersion(), int64(0)))
	it.Then(t).Should(it.Equal(inst.Tag(), "widget"))
}

func TestInstanceKeysDeriveFromValue(t *testing.T) {
	m := newWidgetModel()
	inst := m.NewInstance(widget{WidgetID: "w1", Owner: "u1"})

	keys := inst.Keys()
	it.Then(t).Should(it.Equal(keys.PK, "owner:u1")).Should(it.Equal(keys.SK, "widget:w1"))
	it.Then(t).Should(it.Equal(keys.GSI2.PK, "widget:w1")).Should(it.Equal(keys.GSI2.SK, "owner:u1"))
}

func TestEncodeOmitsKeysAndVersion(t *testing.T) {
	m := newWidgetModel()
	inst := m.NewInstance(widget{WidgetID: "w1", Owner: "u1"})

	raw, err := inst.Encode()
	it.Then(t).Should(it.Nil(err))

	for _, key := range []string{"PK", "SK", "GSI2PK", "GSI2SK", "_docVersion"} {
		_, ok := raw[key]
		it.Then(t).Should(it.Equal(ok, false))
	}
	_, hasTag := raw["_tag"]
	it.Then(t).Should(it.Equal(hasTag, true))
}

func TestDecodeRoundTripsThroughEncode(t *testing.T) {
	m := newWidgetModel()
	inst := m.NewInstance(widget{WidgetID: "w1", Owner: "u1"})

	raw, err := inst.Encode()
	it.Then(t).Should(it.Nil(err))

	decoded, err := m.Decode(raw)
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(decoded.Values().WidgetID, "w1"))
	it.Then(t).Should(it.Equal(decoded.Values().Owner, "u1"))
}

func TestDecodeRestoresDocVersionWhenPresent(t *testing.T) {
	m := newWidgetModel()
	inst := m.NewInstance(widget{WidgetID: "w1", Owner: "u1"})

	raw, err := inst.Encode()
	it.Then(t).Should(it.Nil(err))
	raw["_docVersion"] = &types.AttributeValueMemberN{Value: "3"}

	decoded, err := m.Decode(raw)
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(decoded.DocVersion(), int64(3)))
}

func TestDecodeFailsOnMissingRequiredField(t *testing.T) {
	m := newWidgetModel()

	_, err := m.Decode(codec.RawObject{
		"widgetId": &types.AttributeValueMemberS{Value: "w1"},
	})
	it.Then(t).ShouldNot(it.Nil(err))
}

func TestIsDistinguishesInstancesFromDifferentModels(t *testing.T) {
	m1 := newWidgetModel()
	m2 := newWidgetModel()

	inst := m1.NewInstance(widget{WidgetID: "w1", Owner: "u1"})
	it.Then(t).Should(it.Equal(m1.Is(inst), true))
	it.Then(t).Should(it.Equal(m2.Is(inst), false))
}

func TestWithDocVersionIsImmutable(t *testing.T) {
	m := newWidgetModel()
	inst := m.NewInstance(widget{WidgetID: "w1", Owner: "u1"})

	bumped := inst.WithDocVersion(5)
	it.Then(t).Should(it.Equal(inst.DocVersion(), int64(0)))
	it.Then(t).Should(it.Equal(bumped.DocVersion(), int64(5)))
}
