// Package ledger records delivered incident events in DynamoDB so operators
// can audit what was sent for each alarm.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"incidentbridge/src/pagerduty/types"
)

// Retention is how long ledger items live before DynamoDB expires them.
const Retention = 90 * 24 * time.Hour

type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Entry is one delivered event.
type Entry struct {
	DedupKey    string
	Action      types.EventAction
	AlarmName   string
	ServiceKey  string
	State       types.AlarmState
	Priority    string
	Status      string
	Message     string
	RequestID   string
	DeliveredAt time.Time
}

type Ledger struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

func New(client DynamoAPI, tableName string) *Ledger {
	return &Ledger{client: client, tableName: tableName, now: time.Now}
}

func (l *Ledger) TableName() string {
	return l.tableName
}

func (l *Ledger) Record(ctx context.Context, entry Entry) error {
	if entry.DeliveredAt.IsZero() {
		entry.DeliveredAt = l.now()
	}

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.tableName),
		Item:      buildItem(entry),
	})
	if err != nil {
		return fmt.Errorf("failed to record %s for %s in %s: %w", entry.Action, entry.DedupKey, l.tableName, err)
	}
	return nil
}

// PartitionKey groups every event sent for one dedup key.
func PartitionKey(dedupKey string) string {
	return fmt.Sprintf("INCIDENT#%s", dedupKey)
}

// SortKey orders a dedup key's events by delivery time.
func SortKey(deliveredAt time.Time, action types.EventAction) string {
	return fmt.Sprintf("%s#%s", deliveredAt.UTC().Format(time.RFC3339Nano), action)
}

func buildItem(entry Entry) map[string]ddbtypes.AttributeValue {
	item := map[string]ddbtypes.AttributeValue{
		"pk":           &ddbtypes.AttributeValueMemberS{Value: PartitionKey(entry.DedupKey)},
		"sk":           &ddbtypes.AttributeValueMemberS{Value: SortKey(entry.DeliveredAt, entry.Action)},
		"dedup_key":    &ddbtypes.AttributeValueMemberS{Value: entry.DedupKey},
		"event_action": &ddbtypes.AttributeValueMemberS{Value: string(entry.Action)},
		"alarm_state":  &ddbtypes.AttributeValueMemberS{Value: string(entry.State)},
		"status":       &ddbtypes.AttributeValueMemberS{Value: entry.Status},
		"delivered_at": &ddbtypes.AttributeValueMemberS{Value: entry.DeliveredAt.UTC().Format(time.RFC3339)},
		"ttl":          &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(entry.DeliveredAt.Add(Retention).Unix(), 10)},
	}

	optional := map[string]string{
		"alarm_name":  entry.AlarmName,
		"service_key": entry.ServiceKey,
		"priority":    entry.Priority,
		"message":     entry.Message,
		"request_id":  entry.RequestID,
	}
	for name, value := range optional {
		if value != "" {
			item[name] = &ddbtypes.AttributeValueMemberS{Value: value}
		}
	}
	return item
}
