package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
)

// DefaultStackName is the CloudFormation stack of the realtime dashboard
const DefaultStackName = "InfineonKitRealtime"

// KibanaURLOutput is the stack output carrying the Kibana base url
const KibanaURLOutput = "KibanaUrl"

// ErrNoKibanaURL is returned when the stack does not publish a Kibana url
var ErrNoKibanaURL = errors.New("stack has no Kibana url")

// CloudFormationAPI is the part of the CloudFormation client needed to discover Kibana
type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
}

// KibanaURL reads the Kibana base url from the outputs of stack
func KibanaURL(ctx context.Context, api CloudFormationAPI, stack string) (string, error) {
	out, err := api.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(stack)})
	if err != nil {
		return "", fmt.Errorf("cannot describe stack %s: %w", stack, err)
	}
	for _, s := range out.Stacks {
		for _, o := range s.Outputs {
			if aws.ToString(o.OutputKey) == KibanaURLOutput && aws.ToString(o.OutputValue) != "" {
				return aws.ToString(o.OutputValue), nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoKibanaURL, stack)
}
