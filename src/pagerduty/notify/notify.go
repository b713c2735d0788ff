// Package notify publishes forwarder failures to an SNS topic.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"incidentbridge/src/pagerduty/types"
)

const maxSubjectBytes = 100

// SNSAPI is the subset of the SNS client used for failure notifications.
type SNSAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Failure describes one failed invocation.
type Failure struct {
	Kind       types.ErrorKind `json:"kind"`
	Retryable  bool            `json:"retryable"`
	AlarmName  string          `json:"alarmName,omitempty"`
	AlarmID    string          `json:"alarmId,omitempty"`
	ServiceKey string          `json:"serviceKey,omitempty"`
	Error      string          `json:"error"`
	RequestID  string          `json:"requestId,omitempty"`
	OccurredAt string          `json:"occurredAt"`
}

// NewFailure classifies err. Errors that did not come from the forwarder are
// reported with an empty kind.
func NewFailure(err error, md types.RoutingMetadata, requestID string, at time.Time) Failure {
	kind := types.KindOf(err)
	return Failure{
		Kind:       kind,
		Retryable:  kind.Retryable(),
		AlarmName:  md.AlarmName,
		AlarmID:    md.AlarmID,
		ServiceKey: md.ServiceKey,
		Error:      err.Error(),
		RequestID:  requestID,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
}

type Notifier struct {
	client   SNSAPI
	topicARN string
}

func New(client SNSAPI, topicARN string) *Notifier {
	return &Notifier{client: client, topicARN: topicARN}
}

func (n *Notifier) TopicARN() string {
	return n.topicARN
}

func (n *Notifier) Notify(ctx context.Context, failure Failure) error {
	body, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("failed to encode failure notification: %w", err)
	}

	kind := string(failure.Kind)
	if kind == "" {
		kind = "Unknown"
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject(kind, failure.AlarmName)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String(kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish failure notification to %s: %w", n.topicARN, err)
	}
	return nil
}

// subject stays within the SNS 100 character subject limit. SNS rejects
// control characters and invalid UTF-8, so those are dropped and the cut
// falls on a rune boundary.
func subject(kind, alarmName string) string {
	s := fmt.Sprintf("alarm forwarder %s failure", kind)
	if alarmName != "" {
		s += ": " + alarmName
	}

	var b strings.Builder
	for _, r := range s {
		if r == utf8.RuneError || unicode.IsControl(r) {
			continue
		}
		if b.Len()+utf8.RuneLen(r) > maxSubjectBytes {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}
