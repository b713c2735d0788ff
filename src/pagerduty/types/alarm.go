// Package types provides the data structures shared by the alarm forwarder:
// inbound alarm events, routing configuration and PagerDuty Events API v2 payloads.
package types

import (
	"bytes"
	"encoding/json"
)

// AlarmState is a CloudWatch alarm state value.
type AlarmState string

const (
	StateAlarm            AlarmState = "ALARM"
	StateOK               AlarmState = "OK"
	StateInsufficientData AlarmState = "INSUFFICIENT_DATA"
)

// AlarmStates lists every legal state.
var AlarmStates = []AlarmState{StateAlarm, StateOK, StateInsufficientData}

func (s AlarmState) Valid() bool {
	switch s {
	case StateAlarm, StateOK, StateInsufficientData:
		return true
	}
	return false
}

// DefaultSource is used when an event does not name its source.
const DefaultSource = "aws.cloudwatch"

// AlarmStateChangeEvent is one normalized alarm transition. It is built fresh
// per invocation and never mutated afterwards.
type AlarmStateChangeEvent struct {
	Source          string          `json:"source"`
	CurrentState    AlarmState      `json:"currentState"`
	PreviousState   AlarmState      `json:"previousState"`
	StateReason     string          `json:"stateReason"`
	StateTimestamp  string          `json:"stateTimestamp"`
	RoutingMetadata RoutingMetadata `json:"routingMetadata"`
}

// RoutingMetadata is the static per-alarm block attached by the alarm's
// EventBridge rule (the "pdConfig" input).
type RoutingMetadata struct {
	AlarmName       string     `json:"alarmName"`
	AlarmID         string     `json:"alarmId"`
	Region          string     `json:"region"`
	Account         string     `json:"account"`
	Description     string     `json:"description,omitempty"`
	MetricNamespace string     `json:"metricNamespace,omitempty"`
	MetricName      string     `json:"metricName,omitempty"`
	Threshold       FlexString `json:"threshold,omitempty"`
	Priority        string     `json:"priority,omitempty"`
	Severity        string     `json:"severity"`
	Component       string     `json:"component,omitempty"`
	Group           string     `json:"group,omitempty"`
	ServiceKey      string     `json:"serviceKey"`
}

// FlexString accepts a JSON string or a bare JSON number, keeping the
// number's literal text. Alarm rules emit thresholds both ways.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}
