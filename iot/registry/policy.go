package registry

import (
	"fmt"

	"github.com/goccy/go-json"
)

// DefaultPolicyName is the name of the policy attached to every device certificate
const DefaultPolicyName = "infn-device-policy"

// MetricsTopicPrefix is the basic-ingest topic devices publish their metrics to, followed by the thing name
const MetricsTopicPrefix = "$aws/rules/redirect_metrics/infn/dev/"

type policyStatement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

// DevicePolicy renders the device policy for region and account. A device may connect with its
// own thing name as client id and publish to its own metrics topic, nothing else.
func DevicePolicy(region, account string) (string, error) {
	prefix := fmt.Sprintf("arn:aws:iot:%s:%s:", region, account)
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			{
				Effect:   "Allow",
				Action:   []string{"iot:Publish"},
				Resource: []string{prefix + "topic/" + MetricsTopicPrefix + "${iot:Connection.Thing.ThingName}"},
			},
			{
				Effect:   "Allow",
				Action:   []string{"iot:Connect"},
				Resource: []string{prefix + "client/${iot:Connection.Thing.ThingName}"},
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
