package snapshot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lilletrafic/subway-monitor/internal/disruptions"
)

// DynamoAPI is the part of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) TableName() string {
	return s.tableName
}

// Put writes rec with a single PutItem. Failures are returned, never retried.
func (s *DynamoStore) Put(ctx context.Context, rec Record) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      Item(rec),
	})
	if err != nil {
		return fmt.Errorf("error putting snapshot %s into dynamo: %w", rec.RequestID, err)
	}
	return nil
}

// Latest scans the table and returns the most recent record, or nil on an empty table.
func (s *DynamoStore) Latest(ctx context.Context) (*Record, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	})

	var latest *Record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error scanning snapshots from dynamo: %w", err)
		}
		for _, item := range page.Items {
			rec, err := RecordFromItem(item)
			if err != nil {
				return nil, err
			}
			if latest == nil || newer(rec, *latest) {
				latest = &rec
			}
		}
	}
	return latest, nil
}

// Item maps a record to its DynamoDB attribute layout. Both monitored lines are always
// written as lists, empty ones included.
func Item(rec Record) map[string]types.AttributeValue {
	perLine := make(map[string]types.AttributeValue, len(disruptions.MonitoredLines))
	for _, lineID := range disruptions.MonitoredLines {
		messages := rec.Disruptions[lineID]
		values := make([]types.AttributeValue, 0, len(messages))
		for _, text := range messages {
			values = append(values, &types.AttributeValueMemberS{Value: text})
		}
		perLine[lineID] = &types.AttributeValueMemberL{Value: values}
	}

	return map[string]types.AttributeValue{
		"RequestId":       &types.AttributeValueMemberS{Value: rec.RequestID},
		"RequestDatetime": &types.AttributeValueMemberS{Value: rec.RequestDatetime},
		"Disruptions":     &types.AttributeValueMemberM{Value: perLine},
		"ExpirationTime":  &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.ExpirationTime, 10)},
	}
}

// RecordFromItem decodes a stored item back into a Record.
func RecordFromItem(item map[string]types.AttributeValue) (Record, error) {
	var rec Record
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return Record{}, fmt.Errorf("error unmarshalling dynamo item: %w", err)
	}
	if rec.Disruptions == nil {
		rec.Disruptions = map[string][]string{}
	}
	for _, lineID := range disruptions.MonitoredLines {
		if rec.Disruptions[lineID] == nil {
			rec.Disruptions[lineID] = []string{}
		}
	}
	return rec, nil
}
