package types

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/samber/lo"
)

// InboundEvent is the EventBridge delivery of a CloudWatch "Alarm State Change"
// with the rule's static routing block attached as pdConfig.
type InboundEvent struct {
	events.CloudWatchEvent
	PDConfig RoutingMetadata `json:"pdConfig"`
}

// AlarmDetail is the detail block of a CloudWatch alarm state change.
type AlarmDetail struct {
	AlarmName     string             `json:"alarmName"`
	State         AlarmDetailState   `json:"state"`
	PreviousState AlarmDetailState   `json:"previousState"`
	Configuration AlarmConfiguration `json:"configuration"`
}

type AlarmDetailState struct {
	Value     AlarmState `json:"value"`
	Reason    string     `json:"reason"`
	Timestamp string     `json:"timestamp"`
}

type AlarmConfiguration struct {
	Description string        `json:"description"`
	Metrics     []AlarmMetric `json:"metrics"`
}

type AlarmMetric struct {
	ID         string `json:"id"`
	ReturnData bool   `json:"returnData"`
	MetricStat *struct {
		Metric struct {
			Namespace string `json:"namespace"`
			Name      string `json:"name"`
		} `json:"metric"`
	} `json:"metricStat,omitempty"`
}

// ParseDetail decodes the envelope detail. An absent detail yields a zero
// AlarmDetail so the validator reports the missing states.
func (e InboundEvent) ParseDetail() (AlarmDetail, error) {
	var detail AlarmDetail
	if len(e.Detail) == 0 || string(e.Detail) == "null" {
		return detail, nil
	}
	if err := json.Unmarshal(e.Detail, &detail); err != nil {
		return AlarmDetail{}, InvalidEventError(fmt.Sprintf("detail is not a valid alarm state change: %v", err), "detail")
	}
	return detail, nil
}

// Normalize flattens the envelope into an AlarmStateChangeEvent. Explicit
// pdConfig values win over values derived from the envelope and detail.
func (e InboundEvent) Normalize() (AlarmStateChangeEvent, error) {
	detail, err := e.ParseDetail()
	if err != nil {
		return AlarmStateChangeEvent{}, err
	}

	metadata := e.PDConfig
	metric := firstMetric(detail.Configuration.Metrics)

	metadata.AlarmName = coalesce(metadata.AlarmName, detail.AlarmName)
	metadata.AlarmID = coalesce(metadata.AlarmID, lo.FirstOrEmpty(e.Resources))
	metadata.Region = coalesce(metadata.Region, e.Region)
	metadata.Account = coalesce(metadata.Account, e.AccountID)
	metadata.Description = coalesce(metadata.Description, detail.Configuration.Description)
	metadata.MetricNamespace = coalesce(metadata.MetricNamespace, metric.namespace)
	metadata.MetricName = coalesce(metadata.MetricName, metric.name)

	return AlarmStateChangeEvent{
		Source:          coalesce(e.Source, DefaultSource),
		CurrentState:    detail.State.Value,
		PreviousState:   detail.PreviousState.Value,
		StateReason:     detail.State.Reason,
		StateTimestamp:  coalesce(detail.State.Timestamp, formatEventTime(e)),
		RoutingMetadata: metadata,
	}, nil
}

type metricRef struct {
	namespace string
	name      string
}

func firstMetric(metrics []AlarmMetric) metricRef {
	m, ok := lo.Find(metrics, func(m AlarmMetric) bool {
		return m.MetricStat != nil && m.MetricStat.Metric.Name != ""
	})
	if !ok {
		return metricRef{}
	}
	return metricRef{namespace: m.MetricStat.Metric.Namespace, name: m.MetricStat.Metric.Name}
}

func formatEventTime(e InboundEvent) string {
	if e.Time.IsZero() {
		return ""
	}
	return e.Time.UTC().Format("2006-01-02T15:04:05.000Z")
}

func coalesce(values ...string) string {
	v, _ := lo.Coalesce(values...)
	return v
}
