package storage_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fogfish/it/v2"
	"github.com/ticketbro/tablestore/codec"
	"github.com/ticketbro/tablestore/internal/sandbox"
	"github.com/ticketbro/tablestore/model"
	"github.com/ticketbro/tablestore/storage"
	"github.com/ticketbro/tablestore/union"
)

type comment struct {
	ThreadID string `dynamodbav:"threadId"`
	Seq      string `dynamodbav:"seq"`
	Body     string `dynamodbav:"body"`
}

func commentKeys(c comment) model.Keys {
	return model.Keys{PK: "thread:" + c.ThreadID, SK: "comment:" + c.Seq}
}

type reaction struct {
	ThreadID string `dynamodbav:"threadId"`
	Seq      string `dynamodbav:"seq"`
	Emoji    string `dynamodbav:"emoji"`
}

func reactionKeys(r reaction) model.Keys {
	return model.Keys{PK: "thread:" + r.ThreadID, SK: "reaction:" + r.Seq}
}

func pkValues(pk, skPrefix string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pk},
		":sk": &types.AttributeValueMemberS{Value: skPrefix},
	}
}

func TestQueryRoutesByUnionMember(t *testing.T) {
	commentModel := model.New("comment", codec.Of[comment](), commentKeys)
	reactionModel := model.New("reaction", codec.Of[reaction](), reactionKeys)
	u := union.New(commentModel, reactionModel)

	table := sandbox.New("thread")
	commentClient, err := storage.New(commentModel, storage.WithTable("thread"), storage.WithService(table))
	it.Then(t).Should(it.Nil(err))
	reactionClient, err := storage.New(reactionModel, storage.WithTable("thread"), storage.WithService(table))
	it.Then(t).Should(it.Nil(err))

	ctx := context.Background()
	_, err = commentClient.Put(ctx, commentModel.NewInstance(comment{ThreadID: "t1", Seq: "1", Body: "hi"}))
	it.Then(t).Should(it.Nil(err))
	_, err = reactionClient.Put(ctx, reactionModel.NewInstance(reaction{ThreadID: "t1", Seq: "1", Emoji: "+1"}))
	it.Then(t).Should(it.Nil(err))

	result, err := commentClient.Query(ctx, "PK = :pk", u,
		storage.WithQueryValues(nil, pkValues("thread:t1", "")))
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(len(result.Buckets["comment"]), 1))
	it.Then(t).Should(it.Equal(len(result.Buckets["reaction"]), 1))
	it.Then(t).Should(it.Equal(len(result.Unknown), 0))
}

func TestQueryExcludesLegacyRows(t *testing.T) {
	commentModel := model.New("comment", codec.Of[comment](), commentKeys)
	reactionModel := model.New("reaction", codec.Of[reaction](), reactionKeys)
	u := union.New(commentModel, reactionModel)

	table := sandbox.New("thread")
	client, err := storage.New(commentModel, storage.WithTable("thread"), storage.WithService(table))
	it.Then(t).Should(it.Nil(err))

	ctx := context.Background()
	_, err = client.Put(ctx, commentModel.NewInstance(comment{ThreadID: "t1", Seq: "1", Body: "hi"}))
	it.Then(t).Should(it.Nil(err))

	legacy := map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: "thread:t1"},
		"SK":              &types.AttributeValueMemberS{Value: "comment:2"},
		"_tag":            &types.AttributeValueMemberS{Value: "comment"},
		"threadId":        &types.AttributeValueMemberS{Value: "t1"},
		"seq":             &types.AttributeValueMemberS{Value: "2"},
		"body":            &types.AttributeValueMemberS{Value: "legacy row"},
		"dynamotorLegacy": &types.AttributeValueMemberBOOL{Value: true},
	}
	_, err = table.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String("thread"), Item: legacy})
	it.Then(t).Should(it.Nil(err))

	result, err := client.Query(ctx, "PK = :pk", u,
		storage.WithQueryValues(nil, pkValues("thread:t1", "")))
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(len(result.Buckets["comment"]), 1))
}

func TestPaginateFirstAndAfter(t *testing.T) {
	commentModel := model.New("comment", codec.Of[comment](), commentKeys)
	table := sandbox.New("thread")
	client, err := storage.New(commentModel, storage.WithTable("thread"), storage.WithService(table))
	it.Then(t).Should(it.Nil(err))

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		seq := string(rune('0' + i))
		_, err := client.Put(ctx, commentModel.NewInstance(comment{ThreadID: "t1", Seq: seq, Body: "msg " + seq}))
		it.Then(t).Should(it.Nil(err))
	}

	page1, err := client.Paginate(ctx, "PK = :pk AND begins_with(SK, :sk)",
		storage.PaginateArgs{First: 2}, 0,
		storage.WithQueryValues(nil, pkValues("thread:t1", "comment:")))
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(len(page1.Edges), 2)).Should(it.Equal(page1.HasNextPage, true))

	page2, err := client.Paginate(ctx, "PK = :pk AND begins_with(SK, :sk)",
		storage.PaginateArgs{First: 2, After: page1.Edges[len(page1.Edges)-1].Cursor}, 0,
		storage.WithQueryValues(nil, pkValues("thread:t1", "comment:")))
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(len(page2.Edges), 2)).Should(it.Equal(page2.HasPreviousPage, true))
}

func TestPaginateProjectionOmitsUnlistedAttributes(t *testing.T) {
	commentModel := model.New("comment", codec.Of[comment](), commentKeys)
	table := sandbox.New("thread")
	client, err := storage.New(commentModel, storage.WithTable("thread"), storage.WithService(table))
	it.Then(t).Should(it.Nil(err))

	ctx := context.Background()
	_, err = client.Put(ctx, commentModel.NewInstance(comment{ThreadID: "t1", Seq: "1", Body: "hi"}))
	it.Then(t).Should(it.Nil(err))

	page, err := client.Paginate(ctx, "PK = :pk AND begins_with(SK, :sk)",
		storage.PaginateArgs{First: 10}, 0,
		storage.WithQueryValues(nil, pkValues("thread:t1", "comment:")),
		storage.WithProjection("body"))
	it.Then(t).Should(it.Nil(err))
	it.Then(t).Should(it.Equal(len(page.Edges), 1))

	item := page.Edges[0].Item
	_, hasBody := item["body"]
	_, hasThreadID := item["threadId"]
	_, hasPK := item["PK"]
	it.Then(t).Should(it.Equal(hasBody, true)).
		Should(it.Equal(hasThreadID, false)).
		Should(it.Equal(hasPK, true))
}

func TestQueryProjectionRejectsUnknownAttribute(t *testing.T) {
	commentModel := model.New("comment", codec.Of[comment](), commentKeys)
	reactionModel := model.New("reaction", codec.Of[reaction](), reactionKeys)
	u := union.New(commentModel, reactionModel)

	table := sandbox.New("thread")
	client, err := storage.New(commentModel, storage.WithTable("thread"), storage.WithService(table))
	it.Then(t).Should(it.Nil(err))

	ctx := context.Background()
	_, err = client.Query(ctx, "PK = :pk", u,
		storage.WithQueryValues(nil, pkValues("thread:t1", "")),
		storage.WithProjection("notAField"))
	it.Then(t).ShouldNot(it.Nil(err))
}
