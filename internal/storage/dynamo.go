package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

const (
	dynamoPKPrefix   = "INSTANCE#"
	dynamoSnapshotSK = "SNAPSHOT"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoItem is one snapshot row. The snapshot itself is kept as a JSON
// document in Data.
type DynamoItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
}

// DynamoStore keeps snapshots in a single DynamoDB table keyed by
// PK=INSTANCE#<name>, SK=SNAPSHOT.
type DynamoStore struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

// NewDynamoStore creates a store on an existing client.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table, now: time.Now}
}

// NewDynamoStoreFromConfig creates a store with a client built from cfg.
func NewDynamoStoreFromConfig(cfg aws.Config, table string) *DynamoStore {
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), table)
}

func dynamoKey(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: dynamoPKPrefix + name},
		"SK": &types.AttributeValueMemberS{Value: dynamoSnapshotSK},
	}
}

// Save writes the snapshot, replacing the previous one.
func (s *DynamoStore) Save(ctx context.Context, snap warmup.InstanceSnapshot) error {
	name := snap.Config.InstanceName
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot %s: %w", name, err)
	}
	item, err := attributevalue.MarshalMap(DynamoItem{
		PK:        dynamoPKPrefix + name,
		SK:        dynamoSnapshotSK,
		Data:      string(data),
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshaling dynamodb item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("putting snapshot %s: %w", name, err)
	}
	return nil
}

// Load reads one snapshot.
func (s *DynamoStore) Load(ctx context.Context, name string) (warmup.InstanceSnapshot, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       dynamoKey(name),
	})
	if err != nil {
		return warmup.InstanceSnapshot{}, fmt.Errorf("getting snapshot %s: %w", name, err)
	}
	if len(out.Item) == 0 {
		return warmup.InstanceSnapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}
	return decodeItem(out.Item)
}

// LoadAll scans the table for snapshot rows, ordered by instance name.
func (s *DynamoStore) LoadAll(ctx context.Context) ([]warmup.InstanceSnapshot, error) {
	var out []warmup.InstanceSnapshot
	var startKey map[string]types.AttributeValue
	for {
		page, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.table),
			FilterExpression: aws.String("SK = :sk AND begins_with(PK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":sk":     &types.AttributeValueMemberS{Value: dynamoSnapshotSK},
				":prefix": &types.AttributeValueMemberS{Value: dynamoPKPrefix},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scanning snapshots: %w", err)
		}
		for _, item := range page.Items {
			snap, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, snap)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		startKey = page.LastEvaluatedKey
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Config.InstanceName < out[j].Config.InstanceName
	})
	return out, nil
}

func decodeItem(av map[string]types.AttributeValue) (warmup.InstanceSnapshot, error) {
	var item DynamoItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return warmup.InstanceSnapshot{}, fmt.Errorf("unmarshaling dynamodb item: %w", err)
	}
	var snap warmup.InstanceSnapshot
	if err := json.Unmarshal([]byte(item.Data), &snap); err != nil {
		return warmup.InstanceSnapshot{}, fmt.Errorf("unmarshaling snapshot %s: %w",
			strings.TrimPrefix(item.PK, dynamoPKPrefix), err)
	}
	return snap, nil
}
