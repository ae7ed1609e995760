// Package dynamocache stores cache entries in a DynamoDB table.
package dynamocache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goforj/cachemaster/cachecore"
)

const (
	defaultRegion = "us-east-1"
	defaultTable  = "cache_entries"

	maxBatchWrite = 25
	maxBatchGet   = 100
	casAttempts   = 16

	ensureTableMaxAttempts = 20
	ensureTableRetryDelay  = 150 * time.Millisecond
	unprocessedRetries     = 5
)

// DynamoAPI captures the subset of DynamoDB client methods used by the client.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Config configures a DynamoDB-backed client.
type Config struct {
	// Client is created from Region and Endpoint when nil.
	Client   DynamoAPI
	Endpoint string
	Region   string
	Table    string
}

// Client implements cachecore.RemoteClient. Items carry k (string key),
// v (binary value) and ea (expiry in unix millis, 0 for never).
type Client struct {
	api   DynamoAPI
	table string
	now   func() time.Time
}

var _ cachecore.RemoteClient = (*Client)(nil)

// New builds a client. The table is verified or created by Start.
//
// Defaults:
// - Region: "us-east-1" when empty
// - Table: "cache_entries" when empty
// - Client: auto-created when nil (uses Region and optional Endpoint)
//
// Example: DynamoDB Local
//
//	client, err := dynamocache.New(ctx, dynamocache.Config{
//		Endpoint: "http://localhost:8000",
//		Table:    "cache_entries",
//	})
//	if err != nil {
//		return err
//	}
//	err = client.Start(ctx)
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	if cfg.Client == nil {
		api, err := newDynamoClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", cachecore.ErrConfiguration, err)
		}
		cfg.Client = api
	}
	return &Client{api: cfg.Client, table: cfg.Table, now: time.Now}, nil
}

// Open parses dynamodb://table?region=...&endpoint=... and calls New.
func Open(ctx context.Context, rawURL string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse dynamodb url: %w", cachecore.ErrConfiguration, err)
	}
	if u.Scheme != "dynamodb" {
		return nil, fmt.Errorf("%w: unsupported dynamodb scheme %q", cachecore.ErrConfiguration, u.Scheme)
	}
	q := u.Query()
	return New(ctx, Config{
		Endpoint: q.Get("endpoint"),
		Region:   q.Get("region"),
		Table:    u.Host,
	})
}

// newDynamoClient uses static dummy credentials when an endpoint is set,
// which is what DynamoDB Local expects.
func newDynamoClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: cfg.Endpoint, HostnameImmutable: true}, nil
		})
		awsCfg.EndpointResolverWithOptions = resolver
	}
	return dynamodb.NewFromConfig(awsCfg), nil
}

// Handle returns the DynamoDB API client.
func (c *Client) Handle() any { return c.api }

// Start makes sure the table exists, creating it on demand.
func (c *Client) Start(ctx context.Context) error {
	return ensureTable(ctx, c.api, c.table)
}

// Close is a no-op; the SDK client holds no connection state to release.
func (c *Client) Close() error { return nil }

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.table),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, err
	}
	if out.Item == nil {
		return nil, false, nil
	}
	ea := expiresAt(out.Item)
	if cachecore.Expired(c.now(), ea) {
		c.purge(ctx, key, ea)
		return nil, false, nil
	}
	v, err := itemValue(out.Item)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      c.item(key, value, ttl),
	})
	return err
}

func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	out, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(c.table),
		Key:          itemKey(key),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, err
	}
	if len(out.Attributes) == 0 {
		return false, nil
	}
	return !cachecore.Expired(c.now(), expiresAt(out.Attributes)), nil
}

func (c *Client) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, batch := range chunk(dedupe(keys), maxBatchGet) {
		pending := make([]map[string]types.AttributeValue, 0, len(batch))
		for _, key := range batch {
			pending = append(pending, itemKey(key))
		}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt > unprocessedRetries {
				return nil, errors.New("dynamodb batch get left unprocessed keys")
			}
			res, err := c.api.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{
					c.table: {Keys: pending, ConsistentRead: aws.Bool(true)},
				},
			})
			if err != nil {
				return nil, err
			}
			now := c.now()
			for _, item := range res.Responses[c.table] {
				if cachecore.Expired(now, expiresAt(item)) {
					continue
				}
				k, ok := item["k"].(*types.AttributeValueMemberS)
				if !ok {
					continue
				}
				v, err := itemValue(item)
				if err != nil {
					return nil, err
				}
				out[k.Value] = v
			}
			pending = res.UnprocessedKeys[c.table].Keys
		}
	}
	return out, nil
}

func (c *Client) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	writes := make([]types.WriteRequest, 0, len(items))
	for key, value := range items {
		writes = append(writes, types.WriteRequest{PutRequest: &types.PutRequest{Item: c.item(key, value, ttl)}})
	}
	return c.batchWrite(ctx, writes)
}

func (c *Client) DeleteMany(ctx context.Context, keys []string) error {
	keys = dedupe(keys)
	writes := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		writes = append(writes, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: itemKey(key)}})
	}
	return c.batchWrite(ctx, writes)
}

func (c *Client) batchWrite(ctx context.Context, writes []types.WriteRequest) error {
	for _, batch := range chunk(writes, maxBatchWrite) {
		pending := batch
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt > unprocessedRetries {
				return errors.New("dynamodb batch write left unprocessed items")
			}
			res, err := c.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{c.table: pending},
			})
			if err != nil {
				return err
			}
			pending = res.UnprocessedItems[c.table]
		}
	}
	return nil
}

func (c *Client) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

// Touch rewrites ea only when the item exists and is live.
func (c *Client) Touch(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := c.now()
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.table),
		Key:                 itemKey(key),
		UpdateExpression:    aws.String("SET ea = :ea"),
		ConditionExpression: aws.String("attribute_exists(k) AND (ea = :zero OR ea > :now)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ea":   number(cachecore.ExpiresAt(now, ttl)),
			":zero": number(0),
			":now":  number(now.UnixMilli()),
		},
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Increment rewrites the value with a condition on the previous value, so
// concurrent writers retry instead of losing updates. The expiry is kept.
func (c *Client) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		cur, ok, err := c.Get(ctx, key)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%w: %q", cachecore.ErrKeyNotFound, key)
		}
		n, err := cachecore.ParseCounter(cur)
		if err != nil {
			return 0, fmt.Errorf("cache key %q: %w", key, err)
		}
		next, err := cachecore.AddCounter(n, delta)
		if err != nil {
			return 0, fmt.Errorf("cache key %q: %w", key, err)
		}
		_, err = c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:           aws.String(c.table),
			Key:                 itemKey(key),
			UpdateExpression:    aws.String("SET v = :next"),
			ConditionExpression: aws.String("v = :cur"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":next": &types.AttributeValueMemberB{Value: cachecore.FormatCounter(next)},
				":cur":  &types.AttributeValueMemberB{Value: cur},
			},
		})
		if isConditionFailed(err) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return next, nil
	}
	return 0, errors.New("dynamodb increment exceeded retry limit")
}

// Clear scans for keys starting with prefix and deletes them in batches.
func (c *Client) Clear(ctx context.Context, prefix string) error {
	var start map[string]types.AttributeValue
	for {
		in := &dynamodb.ScanInput{
			TableName:            aws.String(c.table),
			ProjectionExpression: aws.String("k"),
			ExclusiveStartKey:    start,
		}
		if prefix != "" {
			in.FilterExpression = aws.String("begins_with(k, :p)")
			in.ExpressionAttributeValues = map[string]types.AttributeValue{
				":p": &types.AttributeValueMemberS{Value: prefix},
			}
		}
		out, err := c.api.Scan(ctx, in)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(out.Items))
		for _, item := range out.Items {
			if k, ok := item["k"].(*types.AttributeValueMemberS); ok && strings.HasPrefix(k.Value, prefix) {
				keys = append(keys, k.Value)
			}
		}
		if err := c.DeleteMany(ctx, keys); err != nil {
			return err
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		start = out.LastEvaluatedKey
	}
}

func (c *Client) item(key string, value []byte, ttl time.Duration) map[string]types.AttributeValue {
	if value == nil {
		value = []byte{}
	}
	return map[string]types.AttributeValue{
		"k":  &types.AttributeValueMemberS{Value: key},
		"v":  &types.AttributeValueMemberB{Value: value},
		"ea": number(cachecore.ExpiresAt(c.now(), ttl)),
	}
}

// purge removes an expired item unless it was rewritten in the meantime.
func (c *Client) purge(ctx context.Context, key string, ea int64) {
	_, _ = c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(c.table),
		Key:                       itemKey(key),
		ConditionExpression:       aws.String("ea = :ea"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":ea": number(ea)},
	})
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: key}}
}

func itemValue(item map[string]types.AttributeValue) ([]byte, error) {
	v, ok := item["v"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, errors.New("dynamodb item missing binary value")
	}
	return v.Value, nil
}

// expiresAt returns 0 when the attribute is missing or malformed.
func expiresAt(item map[string]types.AttributeValue) int64 {
	av, ok := item["ea"].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	ea, err := strconv.ParseInt(av.Value, 10, 64)
	if err != nil {
		return 0
	}
	return ea
}

func number(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func isConditionFailed(err error) bool {
	var cce *types.ConditionalCheckFailedException
	return errors.As(err, &cce)
}

// dedupe drops repeated keys; BatchGetItem and BatchWriteItem reject them.
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func ensureTable(ctx context.Context, api DynamoAPI, table string) error {
	var lastErr error
	for attempt := 1; attempt <= ensureTableMaxAttempts; attempt++ {
		_, err := api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
		if err == nil {
			return nil
		}

		var rnfe *types.ResourceNotFoundException
		if errors.As(err, &rnfe) {
			_, createErr := api.CreateTable(ctx, &dynamodb.CreateTableInput{
				TableName: aws.String(table),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("k"), KeyType: types.KeyTypeHash},
				},
				AttributeDefinitions: []types.AttributeDefinition{
					{AttributeName: aws.String("k"), AttributeType: types.ScalarAttributeTypeS},
				},
				BillingMode: types.BillingModePayPerRequest,
			})
			if createErr == nil {
				return nil
			}
			var inUse *types.ResourceInUseException
			if errors.As(createErr, &inUse) {
				return nil
			}
			if !isStartupRetryable(createErr) {
				return createErr
			}
			lastErr = createErr
		} else {
			if !isStartupRetryable(err) {
				return err
			}
			lastErr = err
		}

		if attempt == ensureTableMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ensureTableRetryDelay):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("dynamo table ensure failed")
	}
	return fmt.Errorf("ensure dynamo table %q: %w", table, lastErr)
}

// isStartupRetryable matches the errors DynamoDB Local returns while it is
// still booting.
func isStartupRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "request send failed") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof")
}
