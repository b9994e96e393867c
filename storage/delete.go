package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ticketbro/tablestore/bulk"
	"github.com/ticketbro/tablestore/model"
	"github.com/ticketbro/tablestore/op"
)

// SoftDelete is a bulk of (a) delete the original row, (b) put the same
// encoded item back with every key attribute prefixed "$$DELETED$$" and a
// fresh _deletedAt timestamp. It returns the original instance. Calling
// SoftDelete twice on the same item fails the second time with
// BulkWriteTransactionError, since the original row no longer exists to
// delete.
func (c *Client[T]) SoftDelete(ctx context.Context, item *model.Instance[T]) (*model.Instance[T], error) {
	raw, err := c.itemOf(item, item.DocVersion())
	if err != nil {
		return nil, err
	}

	keys := item.Keys()
	tombstone := applySoftDeletionFields(raw, keys)

	table := c.opts.table
	deleteOriginal := op.Delete{
		Table:     table,
		Key:       keyItem(keys.PK, keys.SK),
		Condition: "attribute_exists(PK)",
	}
	putTombstone := op.Put{Table: table, Item: tombstone}

	_, err = bulk.Run(ctx, c.opts.service, bulk.Operations{
		op.Pair{Action: deleteOriginal},
		op.Pair{Action: putTombstone},
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

// applySoftDeletionFields returns a shallow clone of encoded where every
// present key attribute becomes "$$DELETED$$"+original and _deletedAt is
// set to now (ISO-8601). Missing GSI attributes remain absent.
func applySoftDeletionFields(encoded map[string]types.AttributeValue, keys model.Keys) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(encoded)+1)
	for k, v := range encoded {
		out[k] = v
	}

	out["PK"] = &types.AttributeValueMemberS{Value: deletedPrefix + keys.PK}
	out["SK"] = &types.AttributeValueMemberS{Value: deletedPrefix + keys.SK}
	for n, gsi := range map[int]model.GSI{2: keys.GSI2, 3: keys.GSI3, 4: keys.GSI4, 5: keys.GSI5} {
		if gsi.PK == "" {
			continue
		}
		out[gsiPKName(n)] = &types.AttributeValueMemberS{Value: deletedPrefix + gsi.PK}
		out[gsiSKName(n)] = &types.AttributeValueMemberS{Value: deletedPrefix + gsi.SK}
	}
	out["_deletedAt"] = &types.AttributeValueMemberS{Value: clockNow().UTC().Format(isoLayout)}

	return out
}

const isoLayout = "2006-01-02T15:04:05.000Z"

func gsiPKName(n int) string { return fmt.Sprintf("GSI%dPK", n) }
func gsiSKName(n int) string { return fmt.Sprintf("GSI%dSK", n) }
