package types

// EventAction is the PagerDuty Events API v2 event_action.
type EventAction string

const (
	ActionTrigger     EventAction = "trigger"
	ActionAcknowledge EventAction = "acknowledge"
	ActionResolve     EventAction = "resolve"
)

// PagerDuty severities accepted by the Events API v2.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

var Severities = []string{SeverityCritical, SeverityError, SeverityWarning, SeverityInfo}

// IncidentPayload is the PD-CEF payload block.
type IncidentPayload struct {
	Summary       string            `json:"summary"`
	Source        string            `json:"source"`
	Severity      string            `json:"severity"`
	Timestamp     string            `json:"timestamp,omitempty"`
	Component     string            `json:"component,omitempty"`
	Group         string            `json:"group,omitempty"`
	Class         string            `json:"class,omitempty"`
	CustomDetails map[string]string `json:"custom_details"`
}

type Link struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// IncidentEventRequest is the body posted to the Events API v2 enqueue endpoint.
// DedupKey always equals the alarm identifier so trigger, acknowledge and
// resolve for one alarm land on the same incident.
type IncidentEventRequest struct {
	RoutingKey  string           `json:"routing_key"`
	EventAction EventAction      `json:"event_action"`
	DedupKey    string           `json:"dedup_key"`
	Payload     *IncidentPayload `json:"payload"`
	Links       []Link           `json:"links,omitempty"`
	Client      string           `json:"client,omitempty"`
	ClientURL   string           `json:"client_url,omitempty"`

	// Priority is the resolved PagerDuty priority id. The Events API has no
	// top-level priority, so it travels in custom_details.
	Priority string `json:"-"`
}

// IncidentEventResponse is the normalized Events API reply.
type IncidentEventResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	DedupKey string `json:"dedup_key,omitempty"`
}
