package types

// ServiceRoutingConfig is one service entry of the routing secret.
type ServiceRoutingConfig struct {
	RoutingKey         string `json:"routingKey"`
	Team               string `json:"team"`
	ServiceID          string `json:"serviceId"`
	EscalationPolicyID string `json:"escalationPolicyId"`
	DefaultPriorityID  string `json:"defaultPriorityId"`
}

// RoutingTable is the parsed routing secret. It is read-only once loaded.
type RoutingTable struct {
	APIToken string                          `json:"apiToken"`
	Services map[string]ServiceRoutingConfig `json:"services"`
}

// Lookup returns the entry for serviceKey or a ServiceNotFound error.
func (t RoutingTable) Lookup(serviceKey string) (ServiceRoutingConfig, error) {
	svc, ok := t.Services[serviceKey]
	if !ok {
		return ServiceRoutingConfig{}, ServiceNotFoundError(serviceKey)
	}
	return svc, nil
}
