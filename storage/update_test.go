package storage_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fogfish/it/v2"
	"github.com/ticketbro/tablestore/storage"
)

func TestUpdateInPlace(t *testing.T) {
	c, m := newTestClient(t)
	ctx := context.Background()

	put, err := c.Put(ctx, m.NewInstance(profile{UserID: "u1", Name: "Alice", Age: 30}))
	it.Then(t).Should(it.Nil(err))

	updated, err := c.Update(ctx, put, profile{UserID: "u1", Name: "Alice", Age: 31})
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(updated.Values().Age, 31))
	it.Then(t).Should(it.Equal(updated.DocVersion(), int64(1)))

	got, err := c.Get(ctx, "user:u1", "profile")
	it.Then(t).Should(it.Nil(err)).Should(it.Equal(got.Values().Age, 31))
}

func TestUpdateStaleVersionFails(t *testing.T) {
	c, m := newTestClient(t)
	ctx := context.Background()

	put, err := c.Put(ctx, m.NewInstance(profile{UserID: "u1", Name: "Alice", Age: 30}))
	it.Then(t).Should(it.Nil(err))

	_, err = c.Update(ctx, put, profile{UserID: "u1", Name: "Alice", Age: 31})
	it.Then(t).Should(it.Nil(err))

	// put is stale now (still _docVersion:0); updating from it again must
	// fail the optimistic-concurrency check.
	_, err = c.Update(ctx, put, profile{UserID: "u1", Name: "Alice", Age: 32})
	it.Then(t).ShouldNot(it.Nil(err))
}

func TestUpdateRelocatesOnKeyChange(t *testing.T) {
	c, m := newTestClient(t)
	ctx := context.Background()

	put, err := c.Put(ctx, m.NewInstance(profile{UserID: "u1", Name: "Alice", Age: 30}))
	it.Then(t).Should(it.Nil(err))

	_, err = c.Update(ctx, put, profile{UserID: "u2", Name: "Alice", Age: 30})
	it.Then(t).Should(it.Nil(err))

	_, err = c.Get(ctx, "user:u1", "profile")
	it.Then(t).ShouldNot(it.Nil(err))

	got, err := c.Get(ctx, "user:u2", "profile")
	it.Then(t).Should(it.Nil(err)).Should(it.Equal(got.Values().UserID, "u2"))
}

func TestUpdateRaw(t *testing.T) {
	c, m := newTestClient(t)
	ctx := context.Background()

	_, err := c.Put(ctx, m.NewInstance(profile{UserID: "u1", Name: "Alice", Age: 30}))
	it.Then(t).Should(it.Nil(err))

	updated, err := c.UpdateRaw(ctx, "user:u1", "profile", map[string]types.AttributeValue{
		"age": &types.AttributeValueMemberN{Value: "99"},
	})
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(updated.Values().Age, 99))
}

func TestUpdateRawMissingItemFails(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.UpdateRaw(context.Background(), "user:missing", "profile", map[string]types.AttributeValue{
		"age": &types.AttributeValueMemberN{Value: "1"},
	})
	it.Then(t).ShouldNot(it.Nil(err))
}

func TestUpdateExprTyped(t *testing.T) {
	c, m := newTestClient(t)
	ctx := context.Background()

	_, err := c.Put(ctx, m.NewInstance(profile{UserID: "u1", Name: "Alice", Age: 30}))
	it.Then(t).Should(it.Nil(err))

	ageClause := storage.UpdateFor[profile, int]("age")
	updated, err := c.UpdateExpr(ctx, "user:u1", "profile", []storage.UpdateOp{ageClause.Set(40)})
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(updated.Values().Age, 40))
}
