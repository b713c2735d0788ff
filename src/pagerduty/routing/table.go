package routing

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"incidentbridge/src/pagerduty/types"
)

// ParseRoutingTable decodes and validates a routing secret payload. Every
// service entry is checked up front, so one bad entry fails the whole table
// and the error lists each offending serviceKey.field.
func ParseRoutingTable(data []byte) (types.RoutingTable, error) {
	var table types.RoutingTable
	if err := json.Unmarshal(data, &table); err != nil {
		return types.RoutingTable{}, types.MalformedSecretError("routing secret is not valid JSON", err)
	}

	var problems []string
	if table.APIToken == "" {
		problems = append(problems, "apiToken")
	}
	if len(table.Services) == 0 {
		problems = append(problems, "services")
	}

	keys := lo.Keys(table.Services)
	sort.Strings(keys)
	for _, key := range keys {
		problems = append(problems, missingServiceFields(key, table.Services[key])...)
	}

	if len(problems) > 0 {
		return types.RoutingTable{}, types.MalformedSecretError(
			fmt.Sprintf("routing secret has %d invalid field(s)", len(problems)), nil, problems...)
	}
	return table, nil
}

func missingServiceFields(key string, svc types.ServiceRoutingConfig) []string {
	fields := []struct {
		name  string
		value string
	}{
		{"routingKey", svc.RoutingKey},
		{"team", svc.Team},
		{"serviceId", svc.ServiceID},
		{"escalationPolicyId", svc.EscalationPolicyID},
		{"defaultPriorityId", svc.DefaultPriorityID},
	}

	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, key+"."+f.name)
		}
	}
	return missing
}
