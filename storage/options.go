// Package storage implements Client, a per-model handle bound to one
// DynamoDB table that exposes put, get, load, loadMany, updateRaw, delete,
// softDelete, query, paginate and batchGet against a table keyed by
// (PK, SK) plus up to four GSIs (GSI2..GSI5). Multi-operation transactions
// are run by package bulk.
package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/fogfish/opts"
)

// DynamoDB is the subset of the AWS SDK v2 client this package calls,
// extended with TransactWriteItems (bulk) and DeleteItem's sibling reads.
type DynamoDB interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchGetItem(context.Context, *dynamodb.BatchGetItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(context.Context, *dynamodb.BatchWriteItemInput, ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Option configures a Client.
type Option = opts.Option[Options]

// Options holds everything a Client needs beyond the model it serves.
type Options struct {
	table         string
	gsi           map[int]string // secondary index number (2..5) -> index name
	cursorKey     []byte
	useStrictType bool
	service       DynamoDB
}

func (o *Options) checkRequired() error {
	return opts.Required(o, WithTable(""))
}

var (
	// WithTable sets the DynamoDB table name. Required.
	WithTable = opts.ForName[Options, string]("table")

	// WithCursorEncryptionKey enables AES-256-CTR cursor encryption; key
	// must be exactly 32 bytes.
	WithCursorEncryptionKey = opts.ForName[Options, []byte]("cursorKey")

	// WithStrictType rejects, at decode time, any raw attribute the
	// model's schema does not declare.
	WithStrictType = opts.ForName[Options, bool]("useStrictType")

	// WithService sets the DynamoDB client directly, e.g. a test double.
	WithService = opts.ForType[Options, DynamoDB]()

	// WithDefaultDDB loads the process's default AWS config and
	// constructs a dynamodb.Client from it.
	WithDefaultDDB = opts.From(optsDefaultDDB)
)

// gsiArg bundles WithGlobalSecondaryIndex's two parameters so it can be
// built on top of opts.FMap, which maps one argument type to one Option.
type gsiArg struct {
	N     int
	Index string
}

var withGSI = opts.FMap(func(o *Options, a gsiArg) error {
	if o.gsi == nil {
		o.gsi = map[int]string{}
	}
	o.gsi[a.N] = a.Index
	return nil
})

// WithGlobalSecondaryIndex registers the DynamoDB index name backing GSI
// number n (2..5, per model.Keys). Query/Paginate use this to resolve
// IndexName from the GSI number a caller queries by.
func WithGlobalSecondaryIndex(n int, indexName string) Option {
	return withGSI(gsiArg{N: n, Index: indexName})
}

func optsDefaultDDB(o *Options) error {
	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		return err
	}
	if o.service == nil {
		o.service = dynamodb.NewFromConfig(cfg)
	}
	return nil
}

func tableName(o *Options) *string { return aws.String(o.table) }
