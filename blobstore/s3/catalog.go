package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/ndb/blobstore"
)

// DDBClient is the subset of the DynamoDB API used by Catalog.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ DDBClient = (*dynamodb.Client)(nil)

// Catalog implements blobstore.Catalog on a DynamoDB table.
//
// Table schema:
//   - Partition key: key (string), the archived store's UUID
//   - Sort key: version (number), increasing by one per commit
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name ndb-archives \
//	  --attribute-definitions AttributeName=key,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=key,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type Catalog struct {
	client DDBClient
	table  string
}

var _ blobstore.Catalog = (*Catalog)(nil)

// NewCatalog creates a catalog stored in table.
func NewCatalog(client DDBClient, table string) *Catalog {
	return &Catalog{client: client, table: table}
}

const (
	attrKey      = "key"
	attrVersion  = "version"
	attrName     = "name"
	attrSize     = "size"
	attrChecksum = "checksum"
	attrCreated  = "created"
)

// Commit writes e as the next version of e.Key with a conditional put.
// A concurrent commit of the same version returns blobstore.ErrConflict.
func (c *Catalog) Commit(ctx context.Context, e Entry) (Entry, error) {
	latest, err := c.Latest(ctx, e.Key)
	var current uint64
	switch {
	case err == nil:
		current = latest.Version
	case errors.Is(err, blobstore.ErrNotFound):
	default:
		return Entry{}, err
	}

	next := current + 1
	if e.Version != 0 && e.Version != next {
		return Entry{}, blobstore.ErrConflict
	}
	e.Version = next
	if e.Created.IsZero() {
		e.Created = time.Now().UTC()
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.table),
		Item:                marshalEntry(e),
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return Entry{}, blobstore.ErrConflict
		}
		return Entry{}, fmt.Errorf("failed to commit version to DynamoDB: %w", err)
	}
	return e, nil
}

// Latest returns the newest entry of key.
func (c *Catalog) Latest(ctx context.Context, key string) (Entry, error) {
	entries, err := c.History(ctx, key, 1)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, blobstore.ErrNotFound
	}
	return entries[0], nil
}

// History returns up to limit entries of key, newest first.
func (c *Catalog) History(ctx context.Context, key string, limit int) ([]Entry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("#k = :key"),
		ExpressionAttributeNames: map[string]string{
			"#k": attrKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":key": &types.AttributeValueMemberS{Value: key},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(min(limit, 1<<30)))
	}

	var out []Entry
	paginator := dynamodb.NewQueryPaginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query DynamoDB: %w", err)
		}
		for _, item := range page.Items {
			e, err := unmarshalEntry(item)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Entry is an alias kept so callers of this package need not import
// blobstore for the common case.
type Entry = blobstore.Entry

func marshalEntry(e Entry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrKey:      &types.AttributeValueMemberS{Value: e.Key},
		attrVersion:  &types.AttributeValueMemberN{Value: strconv.FormatUint(e.Version, 10)},
		attrName:     &types.AttributeValueMemberS{Value: e.Name},
		attrSize:     &types.AttributeValueMemberN{Value: strconv.FormatInt(e.Size, 10)},
		attrChecksum: &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(e.Checksum), 10)},
		attrCreated:  &types.AttributeValueMemberS{Value: e.Created.UTC().Format(time.RFC3339Nano)},
	}
}

func unmarshalEntry(item map[string]types.AttributeValue) (Entry, error) {
	var (
		e   Entry
		err error
	)
	str := func(name string) string {
		if err != nil {
			return ""
		}
		v, ok := item[name].(*types.AttributeValueMemberS)
		if !ok {
			err = fmt.Errorf("invalid %s attribute in DynamoDB", name)
			return ""
		}
		return v.Value
	}
	num := func(name string, bits int) uint64 {
		if err != nil {
			return 0
		}
		v, ok := item[name].(*types.AttributeValueMemberN)
		if !ok {
			err = fmt.Errorf("invalid %s attribute in DynamoDB", name)
			return 0
		}
		n, perr := strconv.ParseUint(v.Value, 10, bits)
		if perr != nil {
			err = fmt.Errorf("failed to parse %s: %w", name, perr)
		}
		return n
	}

	e.Key = str(attrKey)
	e.Version = num(attrVersion, 64)
	e.Name = str(attrName)
	e.Size = int64(num(attrSize, 63))
	e.Checksum = uint32(num(attrChecksum, 32))
	created := str(attrCreated)
	if err != nil {
		return Entry{}, err
	}
	if e.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Entry{}, fmt.Errorf("failed to parse created: %w", err)
	}
	return e, nil
}
