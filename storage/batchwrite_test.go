package storage_test

import (
	"context"
	"testing"

	"github.com/fogfish/it/v2"
	"github.com/ticketbro/tablestore/model"
)

func TestBatchPutWritesAll(t *testing.T) {
	c, m := newTestClient(t)
	ctx := context.Background()

	insts := []*model.Instance[profile]{
		m.NewInstance(profile{UserID: "a", Name: "Alice", Age: 1}),
		m.NewInstance(profile{UserID: "b", Name: "Bob", Age: 2}),
	}

	fails, err := c.BatchPut(ctx, insts)
	it.Then(t).Should(it.Nil(err)).Should(it.Equal(len(fails), 0))

	got, err := c.Get(ctx, "user:a", "profile")
	it.Then(t).Should(it.Nil(err)).Should(it.Equal(got.Values().Name, "Alice"))
	got, err = c.Get(ctx, "user:b", "profile")
	it.Then(t).Should(it.Nil(err)).Should(it.Equal(got.Values().Name, "Bob"))
}

func TestBatchRemoveDeletesAll(t *testing.T) {
	c, m := newTestClient(t)
	ctx := context.Background()

	_, err := c.BatchPut(ctx, []*model.Instance[profile]{
		m.NewInstance(profile{UserID: "a", Name: "Alice"}),
		m.NewInstance(profile{UserID: "b", Name: "Bob"}),
	})
	it.Then(t).Should(it.Nil(err))

	fails, err := c.BatchRemove(ctx, [][2]string{
		{"user:a", "profile"},
		{"user:b", "profile"},
	})
	it.Then(t).Should(it.Nil(err)).Should(it.Equal(len(fails), 0))

	_, err = c.Get(ctx, "user:a", "profile")
	it.Then(t).ShouldNot(it.Nil(err))
	_, err = c.Get(ctx, "user:b", "profile")
	it.Then(t).ShouldNot(it.Nil(err))
}

func TestBatchPutEmptyIsNoop(t *testing.T) {
	c, _ := newTestClient(t)

	fails, err := c.BatchPut(context.Background(), nil)
	it.Then(t).Should(it.Nil(err)).Should(it.Equal(len(fails), 0))
}
