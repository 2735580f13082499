package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/johnwmail/pasta/internal/common"
	"github.com/johnwmail/pasta/models"
)

var _ MetadataIndex = (*DynamoMetadataIndex)(nil)

// dynamoAPI is the subset of the DynamoDB client used by DynamoMetadataIndex.
type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoMetadataIndex implements MetadataIndex using a DynamoDB table whose
// partition key is the string attribute "identifier".
type DynamoMetadataIndex struct {
	client    dynamoAPI
	tableName string
	seq       atomic.Int64
}

// NewDynamoMetadataIndex creates an index using the default AWS credential chain.
func NewDynamoMetadataIndex(ctx context.Context, tableName string) (*DynamoMetadataIndex, error) {
	if tableName == "" {
		return nil, fmt.Errorf("dynamodb table name must not be empty")
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newDynamoMetadataIndex(dynamodb.NewFromConfig(cfg), tableName), nil
}

func newDynamoMetadataIndex(client dynamoAPI, tableName string) *DynamoMetadataIndex {
	d := &DynamoMetadataIndex{client: client, tableName: tableName}
	d.seq.Store(time.Now().UnixNano())
	return d
}

func (d *DynamoMetadataIndex) keyOf(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"identifier": &types.AttributeValueMemberS{Value: id},
	}
}

func (d *DynamoMetadataIndex) Insert(ctx context.Context, a *models.Artifact) error {
	a.Seq = d.seq.Add(1)
	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.tableName),
		Item:                artifactToItem(a),
		ConditionExpression: aws.String("attribute_not_exists(identifier)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("insert artifact %s: %w", a.Identifier, ErrDuplicateIdentifier)
		}
		return fmt.Errorf("insert artifact %s: %w", a.Identifier, err)
	}
	return nil
}

func (d *DynamoMetadataIndex) Get(ctx context.Context, id string) (*models.Artifact, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.keyOf(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", id, err)
	}

	if result.Item == nil {
		return nil, nil // Not found
	}

	return itemToArtifact(result.Item), nil
}

func (d *DynamoMetadataIndex) Exists(ctx context.Context, id string) (bool, error) {
	a, err := d.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return a != nil, nil
}

func (d *DynamoMetadataIndex) Update(ctx context.Context, a *models.Artifact) error {
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 d.keyOf(a.Identifier),
		UpdateExpression:    aws.String("SET filename = :f, extension = :e, updated_at = :u"),
		ConditionExpression: aws.String("attribute_exists(identifier)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":f": &types.AttributeValueMemberS{Value: a.Filename},
			":e": &types.AttributeValueMemberS{Value: a.Extension},
			":u": &types.AttributeValueMemberN{Value: strconv.FormatInt(a.UpdatedAt.UnixNano(), 10)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("update artifact %s: %w", a.Identifier, common.ErrNotFound)
		}
		return fmt.Errorf("update artifact %s: %w", a.Identifier, err)
	}
	return nil
}

func (d *DynamoMetadataIndex) Delete(ctx context.Context, id string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(d.tableName),
		Key:                 d.keyOf(id),
		ConditionExpression: aws.String("attribute_exists(identifier)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("delete artifact %s: %w", id, common.ErrNotFound)
		}
		return fmt.Errorf("delete artifact %s: %w", id, err)
	}
	return nil
}

// List scans the whole table and orders the rows in memory; the table has no
// sort key to query by.
func (d *DynamoMetadataIndex) List(ctx context.Context) ([]models.Artifact, error) {
	artifacts := []models.Artifact{}
	var startKey map[string]types.AttributeValue
	for {
		out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(d.tableName),
			ExclusiveStartKey: startKey,
			ConsistentRead:    aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("list artifacts: %w", err)
		}
		for _, item := range out.Items {
			artifacts = append(artifacts, *itemToArtifact(item))
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	sortArtifacts(artifacts)
	return artifacts, nil
}

// Close is a no-op for DynamoDB
func (d *DynamoMetadataIndex) Close() error {
	return nil
}

// sortArtifacts orders newest first, ties by insertion sequence.
func sortArtifacts(artifacts []models.Artifact) {
	sort.SliceStable(artifacts, func(i, j int) bool {
		if !artifacts[i].CreatedAt.Equal(artifacts[j].CreatedAt) {
			return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
		}
		return artifacts[i].Seq < artifacts[j].Seq
	})
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func artifactToItem(a *models.Artifact) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"identifier": &types.AttributeValueMemberS{Value: a.Identifier},
		"filename":   &types.AttributeValueMemberS{Value: a.Filename},
		"extension":  &types.AttributeValueMemberS{Value: a.Extension},
		"created_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(a.CreatedAt.UnixNano(), 10)},
		"updated_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(a.UpdatedAt.UnixNano(), 10)},
		"seq":        &types.AttributeValueMemberN{Value: strconv.FormatInt(a.Seq, 10)},
	}
}

// itemToArtifact converts a DynamoDB item to an Artifact model
func itemToArtifact(item map[string]types.AttributeValue) *models.Artifact {
	a := &models.Artifact{}

	if v, ok := item["identifier"].(*types.AttributeValueMemberS); ok {
		a.Identifier = v.Value
	}
	if v, ok := item["filename"].(*types.AttributeValueMemberS); ok {
		a.Filename = v.Value
	}
	if v, ok := item["extension"].(*types.AttributeValueMemberS); ok {
		a.Extension = v.Value
	}
	if v, ok := item["created_at"].(*types.AttributeValueMemberN); ok {
		if ns, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			a.CreatedAt = time.Unix(0, ns).UTC()
		}
	}
	if v, ok := item["updated_at"].(*types.AttributeValueMemberN); ok {
		if ns, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			a.UpdatedAt = time.Unix(0, ns).UTC()
		}
	}
	if v, ok := item["seq"].(*types.AttributeValueMemberN); ok {
		if seq, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			a.Seq = seq
		}
	}
	if a.Extension == "" {
		a.Extension = models.DefaultExtension
	}
	return a
}
