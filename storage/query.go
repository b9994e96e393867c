package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ticketbro/tablestore/codec"
	tserrors "github.com/ticketbro/tablestore/errors"
	"github.com/ticketbro/tablestore/model"
	"github.com/ticketbro/tablestore/union"
)

// legacyMarker is the attribute Query's implicit filter excludes, scoping
// a query to live rows via an always-on expression alongside the caller's
// key condition.
const legacyMarker = "dynamotorLegacy"

// QueryOption customizes one Query/Paginate call.
type QueryOption func(*queryConfig)

type queryConfig struct {
	names         map[string]string
	values        map[string]types.AttributeValue
	index         string
	gsi           int
	fetchAllPages bool
	projection    []string
}

// WithQueryIndex scopes the query to GSI number n (2..5), resolved through
// WithGlobalSecondaryIndex at Client construction.
func WithQueryIndex(n int) QueryOption {
	return func(c *queryConfig) { c.gsi = n }
}

// WithQueryValues supplies the key-condition expression's placeholder
// attribute names/values.
func WithQueryValues(names map[string]string, values map[string]types.AttributeValue) QueryOption {
	return func(c *queryConfig) { c.names, c.values = names, values }
}

// FetchAllPages follows LastEvaluatedKey until the store reports none,
// preserving sort order across pages.
func FetchAllPages() QueryOption {
	return func(c *queryConfig) { c.fetchAllPages = true }
}

// WithProjection restricts Query/Paginate to the named attributes, cutting
// the read's item size when only a handful of fields are needed. Names
// outside the model's declared schema are rejected; the key attributes
// (PK, SK, and the GSI pair backing the query, when any) are implied and
// need not be listed, since Paginate's cursor encoding depends on them
// being present in every returned item.
func WithProjection(names ...string) QueryOption {
	return func(c *queryConfig) { c.projection = names }
}

// QueryResult is Query's polymorphic row-routing result: every returned
// row is decoded through the union, which tries the member named by the
// row's _tag first and then each member in declaration order; the first
// successful decode claims the row, and rows no member decodes fall into
// Unknown. A row whose _tag member decodes it goes to that member even
// when an earlier-declared member would also decode it.
type QueryResult struct {
	Buckets          map[string][]model.Any
	Unknown          []codec.RawObject
	LastEvaluatedKey codec.RawObject
}

// Query runs a key-condition query scoped by the client's table (and, with
// WithQueryIndex, one of its registered GSIs), then routes every row through
// u's members. keyCondition may reference expression attribute names/values
// supplied via WithQueryValues.
func (c *Client[T]) Query(ctx context.Context, keyCondition string, u *union.Union, options ...QueryOption) (*QueryResult, error) {
	var cfg queryConfig
	for _, o := range options {
		o(&cfg)
	}
	if err := c.validateProjection(cfg.projection); err != nil {
		return nil, err
	}

	result := &QueryResult{Buckets: map[string][]model.Any{}}

	var startKey codec.RawObject
	for {
		req := c.buildQuery(keyCondition, &cfg, startKey)
		out, err := c.opts.service.Query(ctx, req)
		if err != nil {
			return nil, tserrors.ServiceIO(err)
		}

		for _, item := range out.Items {
			inst, err := u.Decode(item)
			if err != nil {
				result.Unknown = append(result.Unknown, item)
				continue
			}
			tag := inst.Tag()
			result.Buckets[tag] = append(result.Buckets[tag], inst)
		}

		result.LastEvaluatedKey = out.LastEvaluatedKey
		if !cfg.fetchAllPages || len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return result, nil
}

func (c *Client[T]) buildQuery(keyCondition string, cfg *queryConfig, startKey codec.RawObject) *dynamodb.QueryInput {
	filter := "attribute_not_exists(" + legacyMarker + ")"

	req := &dynamodb.QueryInput{
		TableName:                 tableName(&c.opts),
		KeyConditionExpression:    aws.String(keyCondition),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeNames:  cfg.names,
		ExpressionAttributeValues: cfg.values,
		ExclusiveStartKey:         startKey,
	}
	if cfg.gsi != 0 {
		if name, ok := c.opts.gsi[cfg.gsi]; ok {
			req.IndexName = aws.String(name)
		}
	}
	if len(cfg.projection) > 0 {
		req.ProjectionExpression, req.ExpressionAttributeNames = projectionExpression(cfg, req.ExpressionAttributeNames)
	}
	return req
}

// validateProjection rejects any requested attribute outside the model's
// declared schema and the fixed wire metadata set.
func (c *Client[T]) validateProjection(names []string) error {
	if len(names) == 0 {
		return nil
	}

	declared := make(map[string]bool, len(c.model.Codec().Props()))
	for _, p := range c.model.Codec().Props() {
		declared[p] = true
	}

	var issues []string
	for _, n := range names {
		if !declared[n] && !wireMeta[n] {
			issues = append(issues, fmt.Sprintf("projection attribute %q is not declared by the model's schema", n))
		}
	}
	if len(issues) > 0 {
		return tserrors.NewValidation("", issues, nil)
	}
	return nil
}

// projectionExpression renders cfg.projection to a ProjectionExpression,
// always including PK, SK, and the queried GSI's key pair, since Paginate's
// cursor encoding depends on those surviving the projection.
func projectionExpression(cfg *queryConfig, base map[string]string) (string, map[string]string) {
	cols := map[string]bool{"PK": true, "SK": true}
	if cfg.gsi != 0 {
		cols[gsiPKName(cfg.gsi)] = true
		cols[gsiSKName(cfg.gsi)] = true
	}
	for _, n := range cfg.projection {
		cols[n] = true
	}

	sorted := make([]string, 0, len(cols))
	for c := range cols {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)

	names := make(map[string]string, len(base)+len(sorted))
	for k, v := range base {
		names[k] = v
	}

	exprs := make([]string, len(sorted))
	for i, col := range sorted {
		alias := fmt.Sprintf("#pj%d", i)
		names[alias] = col
		exprs[i] = alias
	}

	return strings.Join(exprs, ", "), names
}
