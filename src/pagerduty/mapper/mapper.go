// Package mapper turns a validated alarm state change into a PagerDuty Events
// API v2 request. Everything here is a pure function of its inputs.
package mapper

import (
	"fmt"
	"net/url"

	"github.com/samber/lo"

	"incidentbridge/src/pagerduty/types"
	"incidentbridge/src/pagerduty/validation"
)

// ClientName identifies this integration in the PagerDuty UI.
const ClientName = "alarm-forwarder"

var stateActions = map[types.AlarmState]types.EventAction{
	types.StateAlarm:            types.ActionTrigger,
	types.StateOK:               types.ActionResolve,
	types.StateInsufficientData: types.ActionAcknowledge,
}

// ActionFor maps an alarm state to its event action. The previous state
// plays no part in the decision.
func ActionFor(state types.AlarmState) (types.EventAction, error) {
	action, ok := stateActions[state]
	if !ok {
		return "", types.InvalidEventError(fmt.Sprintf("no event action for state %q", state), "currentState")
	}
	return action, nil
}

func Summary(event types.AlarmStateChangeEvent) string {
	return fmt.Sprintf("%s: %s - %s", source(event), event.RoutingMetadata.AlarmName, event.CurrentState)
}

func source(event types.AlarmStateChangeEvent) string {
	return lo.Ternary(event.Source != "", event.Source, types.DefaultSource)
}

// MapToIncidentRequest builds the request for event using the service entry
// named by its serviceKey.
func MapToIncidentRequest(event types.AlarmStateChangeEvent, table types.RoutingTable) (types.IncidentEventRequest, error) {
	md := event.RoutingMetadata

	svc, err := table.Lookup(md.ServiceKey)
	if err != nil {
		return types.IncidentEventRequest{}, err
	}

	action, err := ActionFor(event.CurrentState)
	if err != nil {
		return types.IncidentEventRequest{}, err
	}

	severity, err := validation.NormalizeSeverity(md.Severity)
	if err != nil {
		return types.IncidentEventRequest{}, err
	}

	priority := lo.Ternary(md.Priority != "", md.Priority, svc.DefaultPriorityID)

	return types.IncidentEventRequest{
		RoutingKey:  svc.RoutingKey,
		EventAction: action,
		DedupKey:    md.AlarmID,
		Payload: &types.IncidentPayload{
			Summary:       Summary(event),
			Source:        source(event),
			Severity:      severity,
			Timestamp:     event.StateTimestamp,
			Component:     md.Component,
			Group:         md.Group,
			Class:         md.MetricNamespace,
			CustomDetails: customDetails(event, svc, priority),
		},
		Links:    consoleLinks(md),
		Client:   ClientName,
		Priority: priority,
	}, nil
}

func customDetails(event types.AlarmStateChangeEvent, svc types.ServiceRoutingConfig, priority string) map[string]string {
	md := event.RoutingMetadata
	return map[string]string{
		"alarm_name":           md.AlarmName,
		"alarm_id":             md.AlarmID,
		"description":          md.Description,
		"metric_namespace":     md.MetricNamespace,
		"metric_name":          md.MetricName,
		"threshold":            string(md.Threshold),
		"current_state":        string(event.CurrentState),
		"previous_state":       string(event.PreviousState),
		"state_reason":         event.StateReason,
		"state_timestamp":      event.StateTimestamp,
		"account":              md.Account,
		"region":               md.Region,
		"priority":             priority,
		"team":                 svc.Team,
		"service_id":           svc.ServiceID,
		"escalation_policy_id": svc.EscalationPolicyID,
		"service_key":          md.ServiceKey,
	}
}

// ConsoleURL links to the alarm in the CloudWatch console of its region.
func ConsoleURL(region, alarmName string) string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/cloudwatch/home?region=%s#alarmsV2:alarm/%s",
		region, region, url.PathEscape(alarmName))
}

func consoleLinks(md types.RoutingMetadata) []types.Link {
	if md.Region == "" || md.AlarmName == "" {
		return nil
	}
	return []types.Link{{
		Href: ConsoleURL(md.Region, md.AlarmName),
		Text: "CloudWatch alarm",
	}}
}
