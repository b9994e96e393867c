package storage_test

import (
	"context"
	"testing"

	"github.com/fogfish/it/v2"
	"github.com/ticketbro/tablestore/storage"
)

func TestPutWithOptimisticCondition(t *testing.T) {
	c, m := newTestClient(t)
	ctx := context.Background()

	ageClause := storage.ClauseFor[profile, int]("age")

	inst := m.NewInstance(profile{UserID: "u1", Name: "Alice", Age: 30})
	_, err := c.Put(ctx, inst, storage.IgnoreExistence())
	it.Then(t).Should(it.Nil(err))

	cond := ageClause.Optimistic(30)
	expr, names, values, err := storage.CompileCondition(cond)
	it.Then(t).Should(it.Nil(err))

	updated := m.NewInstance(profile{UserID: "u1", Name: "Alice", Age: 31})
	_, err = c.Put(ctx, updated, storage.WithCondition(expr, names, values))
	it.Then(t).Should(it.Nil(err))

	got, err := c.Get(ctx, "user:u1", "profile")
	it.Then(t).Should(it.Nil(err)).Should(it.Equal(got.Values().Age, 31))

	// retrying the same stale precondition (age was 30, now 31) must fail.
	stale := m.NewInstance(profile{UserID: "u1", Name: "Alice", Age: 99})
	_, err = c.Put(ctx, stale, storage.WithCondition(expr, names, values))
	it.Then(t).ShouldNot(it.Nil(err))
}

type untagged struct{ X int }

func TestClauseForPanicsWithoutTag(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for a field with no dynamodbav tag")
		}
	}()
	storage.ClauseFor[untagged, int]()
}
