package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ticketbro/tablestore/codec"
	"github.com/ticketbro/tablestore/cursor"
	tserrors "github.com/ticketbro/tablestore/errors"
)

// PaginateArgs carries Paginate's connection-style cursor arguments. At
// most one of First/Last, and at most one of Before/After, may be
// non-zero; Before+First and Last+After are rejected.
type PaginateArgs struct {
	First, Last   int
	Before, After string
}

// Edge is one row of a Page, paired with the opaque cursor resuming the
// query just after it.
type Edge struct {
	Item   codec.RawObject
	Cursor string
}

// Page is Paginate's result.
type Page struct {
	Edges           []Edge
	HasNextPage     bool
	HasPreviousPage bool
}

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Paginate runs keyCondition as a cursor-paginated query. gsi is 0 for the
// primary index, or 2..5 for a registered secondary index; it controls
// which key pair a cursor carries and which index is queried.
func (c *Client[T]) Paginate(ctx context.Context, keyCondition string, args PaginateArgs, gsi int, options ...QueryOption) (*Page, error) {
	if args.First != 0 && args.Last != 0 {
		return nil, tserrors.NewPagination("at most one of first/last may be given", nil)
	}
	if args.Before != "" && args.After != "" {
		return nil, tserrors.NewPagination("at most one of before/after may be given", nil)
	}
	if args.Before != "" && args.First != 0 {
		return nil, tserrors.NewPagination("before and first cannot be combined", nil)
	}
	if args.Last != 0 && args.After != "" {
		return nil, tserrors.NewPagination("last and after cannot be combined", nil)
	}

	limit := args.First
	if limit == 0 {
		limit = args.Last
	}
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	backward := args.Before != "" || args.Last != 0

	var cfg queryConfig
	for _, o := range options {
		o(&cfg)
	}
	cfg.gsi = gsi
	if err := c.validateProjection(cfg.projection); err != nil {
		return nil, err
	}

	var startKey codec.RawObject
	cursorToken := args.After
	if args.Before != "" {
		cursorToken = args.Before
	}
	if cursorToken != "" {
		keys, err := cursor.Decode(cursorToken, c.opts.cursorKey)
		if err != nil {
			return nil, err
		}
		startKey = startKeyOf(keys, gsi)
	}

	req := c.buildQuery(keyCondition, &cfg, startKey)
	req.Limit = aws.Int32(int32(limit + 1))
	req.ScanIndexForward = aws.Bool(!backward)

	out, err := c.opts.service.Query(ctx, req)
	if err != nil {
		return nil, tserrors.ServiceIO(err)
	}

	items := out.Items
	hasExtra := len(items) > limit
	if hasExtra {
		items = items[:limit]
	}

	page := &Page{}
	if backward {
		page.HasPreviousPage = hasExtra
		page.HasNextPage = args.Before != ""
		reverse(items)
	} else {
		page.HasNextPage = hasExtra
		page.HasPreviousPage = args.After != ""
	}

	page.Edges = make([]Edge, len(items))
	for i, item := range items {
		tok, err := cursor.Encode(keysOf(item, gsi), c.opts.cursorKey)
		if err != nil {
			return nil, err
		}
		page.Edges[i] = Edge{Item: item, Cursor: tok}
	}

	return page, nil
}

func startKeyOf(keys cursor.Keys, gsi int) map[string]types.AttributeValue {
	out := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: keys.PK},
		"SK": &types.AttributeValueMemberS{Value: keys.SK},
	}
	if gsi != 0 && keys.GSIPK != "" {
		out[gsiPKName(gsi)] = &types.AttributeValueMemberS{Value: keys.GSIPK}
		out[gsiSKName(gsi)] = &types.AttributeValueMemberS{Value: keys.GSISK}
	}
	return out
}

func keysOf(item map[string]types.AttributeValue, gsi int) cursor.Keys {
	var keys cursor.Keys
	if pk, ok := item["PK"].(*types.AttributeValueMemberS); ok {
		keys.PK = pk.Value
	}
	if sk, ok := item["SK"].(*types.AttributeValueMemberS); ok {
		keys.SK = sk.Value
	}
	if gsi != 0 {
		if pk, ok := item[gsiPKName(gsi)].(*types.AttributeValueMemberS); ok {
			keys.GSIPK = pk.Value
		}
		if sk, ok := item[gsiSKName(gsi)].(*types.AttributeValueMemberS); ok {
			keys.GSISK = sk.Value
		}
	}
	return keys
}

func reverse(items []map[string]types.AttributeValue) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
