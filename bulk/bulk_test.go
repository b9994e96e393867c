package bulk_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/fogfish/it/v2"
	"github.com/ticketbro/tablestore/bulk"
	"github.com/ticketbro/tablestore/internal/sandbox"
	"github.com/ticketbro/tablestore/op"
)

func itemOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func keyOf(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func TestRunCommitsAllChunks(t *testing.T) {
	table := sandbox.New("t")
	ctx := context.Background()

	ops := bulk.Operations{
		op.Pair{Action: op.Put{Table: "t", Item: itemOf("a", "1"), Condition: "attribute_not_exists(PK)"}},
		op.Pair{Action: op.Put{Table: "t", Item: itemOf("a", "2"), Condition: "attribute_not_exists(PK)"}},
	}

	state, err := bulk.Run(ctx, table, ops)
	it.Then(t).Should(it.Nil(err)).Should(it.Equal(state, bulk.Done))

	out, err := table.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String("t"), Key: keyOf("a", "1")})
	it.Then(t).Should(it.Nil(err)).Should(it.Equal(len(out.Item) > 0, true))
}

func TestRunFailsFirstChunkWithNoRollback(t *testing.T) {
	table := sandbox.New("t")
	ctx := context.Background()

	_, err := table.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String("t"), Item: itemOf("a", "1")})
	it.Then(t).Should(it.Nil(err))

	ops := bulk.Operations{
		op.Pair{Action: op.Put{Table: "t", Item: itemOf("a", "1"), Condition: "attribute_not_exists(PK)"}},
	}

	state, err := bulk.Run(ctx, table, ops)
	it.Then(t).ShouldNot(it.Nil(err)).Should(it.Equal(state, bulk.Failed))
}

func TestRunRollsBackOnLaterChunkFailure(t *testing.T) {
	table := sandbox.New("t")
	ctx := context.Background()

	// seed "b"/"1" so the second chunk's lone put fails its precondition,
	// forcing rollback of the first (already-committed, 25-item) chunk.
	_, err := table.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String("t"), Item: itemOf("b", "1")})
	it.Then(t).Should(it.Nil(err))

	var ops bulk.Operations
	for i := 0; i < 25; i++ {
		sk := fmt.Sprintf("%d", i)
		ops = append(ops, op.Pair{
			Action:   op.Put{Table: "t", Item: itemOf("a", sk), Condition: "attribute_not_exists(PK)"},
			Rollback: op.Delete{Table: "t", Key: keyOf("a", sk)},
		})
	}
	ops = append(ops, op.Pair{Action: op.Put{Table: "t", Item: itemOf("b", "1"), Condition: "attribute_not_exists(PK)"}})

	state, err := bulk.Run(ctx, table, ops)
	it.Then(t).ShouldNot(it.Nil(err)).Should(it.Equal(state, bulk.RollbackDone))

	out, err := table.GetItem(ctx, &dynamodb.GetItemInput{TableName: aws.String("t"), Key: keyOf("a", "0")})
	it.Then(t).Should(it.Nil(err)).Should(it.Equal(len(out.Item), 0))
}
