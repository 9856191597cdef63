package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/iot/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/relabs-tech/provisioning/core/logger"
)

// IoTAPI is the part of the AWS IoT client used by AWS
type IoTAPI interface {
	DescribeThing(ctx context.Context, params *iot.DescribeThingInput, optFns ...func(*iot.Options)) (*iot.DescribeThingOutput, error)
	CreateThing(ctx context.Context, params *iot.CreateThingInput, optFns ...func(*iot.Options)) (*iot.CreateThingOutput, error)
	DeleteThing(ctx context.Context, params *iot.DeleteThingInput, optFns ...func(*iot.Options)) (*iot.DeleteThingOutput, error)
	GetPolicy(ctx context.Context, params *iot.GetPolicyInput, optFns ...func(*iot.Options)) (*iot.GetPolicyOutput, error)
	CreatePolicy(ctx context.Context, params *iot.CreatePolicyInput, optFns ...func(*iot.Options)) (*iot.CreatePolicyOutput, error)
	RegisterCertificateWithoutCA(ctx context.Context, params *iot.RegisterCertificateWithoutCAInput, optFns ...func(*iot.Options)) (*iot.RegisterCertificateWithoutCAOutput, error)
	UpdateCertificate(ctx context.Context, params *iot.UpdateCertificateInput, optFns ...func(*iot.Options)) (*iot.UpdateCertificateOutput, error)
	DeleteCertificate(ctx context.Context, params *iot.DeleteCertificateInput, optFns ...func(*iot.Options)) (*iot.DeleteCertificateOutput, error)
	AttachPolicy(ctx context.Context, params *iot.AttachPolicyInput, optFns ...func(*iot.Options)) (*iot.AttachPolicyOutput, error)
	DetachPolicy(ctx context.Context, params *iot.DetachPolicyInput, optFns ...func(*iot.Options)) (*iot.DetachPolicyOutput, error)
	AttachThingPrincipal(ctx context.Context, params *iot.AttachThingPrincipalInput, optFns ...func(*iot.Options)) (*iot.AttachThingPrincipalOutput, error)
	DetachThingPrincipal(ctx context.Context, params *iot.DetachThingPrincipalInput, optFns ...func(*iot.Options)) (*iot.DetachThingPrincipalOutput, error)
	ListThingPrincipals(ctx context.Context, params *iot.ListThingPrincipalsInput, optFns ...func(*iot.Options)) (*iot.ListThingPrincipalsOutput, error)
	ListPrincipalThings(ctx context.Context, params *iot.ListPrincipalThingsInput, optFns ...func(*iot.Options)) (*iot.ListPrincipalThingsOutput, error)
	ListAttachedPolicies(ctx context.Context, params *iot.ListAttachedPoliciesInput, optFns ...func(*iot.Options)) (*iot.ListAttachedPoliciesOutput, error)
}

// STSAPI is the part of the AWS STS client used to look up the account
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// AWS is the Registry implementation for AWS IoT Core
type AWS struct {
	client IoTAPI
}

var _ Registry = (*AWS)(nil)

// NewAWS creates a registry for the given IoT client
func NewAWS(client IoTAPI) *AWS {
	return &AWS{client: client}
}

// NewAWSFromConfig creates a registry from an AWS configuration
func NewAWSFromConfig(cfg aws.Config) *AWS {
	return NewAWS(iot.NewFromConfig(cfg))
}

// AccountID returns the account of the caller
func AccountID(ctx context.Context, client STSAPI) (string, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("cannot get caller identity: %w", err)
	}
	return aws.ToString(out.Account), nil
}

// classify maps service errors to ErrNotFound and ErrAlreadyExists
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ResourceNotFoundException":
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case "ResourceAlreadyExistsException":
			return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
		}
	}
	return err
}

// Describe returns the thing with the given name
func (a *AWS) Describe(ctx context.Context, name string) (*Thing, error) {
	out, err := a.client.DescribeThing(ctx, &iot.DescribeThingInput{ThingName: aws.String(name)})
	if err != nil {
		return nil, classify(err)
	}
	return &Thing{
		Name:       aws.ToString(out.ThingName),
		ARN:        aws.ToString(out.ThingArn),
		ID:         aws.ToString(out.ThingId),
		Attributes: out.Attributes,
	}, nil
}

// Create creates a thing
func (a *AWS) Create(ctx context.Context, name string) (*Thing, error) {
	out, err := a.client.CreateThing(ctx, &iot.CreateThingInput{ThingName: aws.String(name)})
	if err != nil {
		return nil, classify(err)
	}
	logger.FromContext(ctx).Infof("Created thing %s", name)
	return &Thing{
		Name: aws.ToString(out.ThingName),
		ARN:  aws.ToString(out.ThingArn),
		ID:   aws.ToString(out.ThingId),
	}, nil
}

// Delete deletes a thing
func (a *AWS) Delete(ctx context.Context, name string) error {
	_, err := a.client.DeleteThing(ctx, &iot.DeleteThingInput{ThingName: aws.String(name)})
	if err != nil {
		return classify(err)
	}
	logger.FromContext(ctx).Infof("Deleted thing %s", name)
	return nil
}

// GetPolicy returns the document of the named policy
func (a *AWS) GetPolicy(ctx context.Context, name string) (string, error) {
	out, err := a.client.GetPolicy(ctx, &iot.GetPolicyInput{PolicyName: aws.String(name)})
	if err != nil {
		return "", classify(err)
	}
	return aws.ToString(out.PolicyDocument), nil
}

// CreatePolicy creates a policy
func (a *AWS) CreatePolicy(ctx context.Context, name, document string) error {
	_, err := a.client.CreatePolicy(ctx, &iot.CreatePolicyInput{
		PolicyName:     aws.String(name),
		PolicyDocument: aws.String(document),
	})
	if err != nil {
		return classify(err)
	}
	logger.FromContext(ctx).Infof("Created policy %s", name)
	return nil
}

// RegisterCertificate registers an active certificate without CA. If the certificate exists
// already, a *CertificateExistsError with the owning things is returned.
func (a *AWS) RegisterCertificate(ctx context.Context, pem string) (string, error) {
	out, err := a.client.RegisterCertificateWithoutCA(ctx, &iot.RegisterCertificateWithoutCAInput{
		CertificatePem: aws.String(pem),
		Status:         types.CertificateStatusActive,
	})
	if err != nil {
		var exists *types.ResourceAlreadyExistsException
		if !errors.As(err, &exists) {
			return "", classify(err)
		}
		arn := aws.ToString(exists.ResourceArn)
		things, lerr := a.ListPrincipalThings(ctx, arn)
		if lerr != nil {
			return "", fmt.Errorf("certificate %s exists already, cannot list its things: %w", arn, lerr)
		}
		return "", &CertificateExistsError{ARN: arn, Things: things}
	}
	arn := aws.ToString(out.CertificateArn)
	logger.FromContext(ctx).Infof("Registered certificate %s", arn)
	return arn, nil
}

// UpdateCertificateStatus activates or deactivates a certificate
func (a *AWS) UpdateCertificateStatus(ctx context.Context, certificateID string, status CertificateStatus) error {
	_, err := a.client.UpdateCertificate(ctx, &iot.UpdateCertificateInput{
		CertificateId: aws.String(certificateID),
		NewStatus:     types.CertificateStatus(status),
	})
	return classify(err)
}

// DeleteCertificate force-deletes a certificate
func (a *AWS) DeleteCertificate(ctx context.Context, certificateID string) error {
	_, err := a.client.DeleteCertificate(ctx, &iot.DeleteCertificateInput{
		CertificateId: aws.String(certificateID),
		ForceDelete:   true,
	})
	return classify(err)
}

// AttachPolicy attaches a policy to a target, usually a certificate ARN
func (a *AWS) AttachPolicy(ctx context.Context, policy, target string) error {
	_, err := a.client.AttachPolicy(ctx, &iot.AttachPolicyInput{
		PolicyName: aws.String(policy),
		Target:     aws.String(target),
	})
	return classify(err)
}

// DetachPolicy detaches a policy from a target
func (a *AWS) DetachPolicy(ctx context.Context, policy, target string) error {
	_, err := a.client.DetachPolicy(ctx, &iot.DetachPolicyInput{
		PolicyName: aws.String(policy),
		Target:     aws.String(target),
	})
	return classify(err)
}

// AttachPrincipal attaches a principal to a thing
func (a *AWS) AttachPrincipal(ctx context.Context, thing, principal string) error {
	_, err := a.client.AttachThingPrincipal(ctx, &iot.AttachThingPrincipalInput{
		ThingName: aws.String(thing),
		Principal: aws.String(principal),
	})
	return classify(err)
}

// DetachPrincipal detaches a principal from a thing
func (a *AWS) DetachPrincipal(ctx context.Context, thing, principal string) error {
	_, err := a.client.DetachThingPrincipal(ctx, &iot.DetachThingPrincipalInput{
		ThingName: aws.String(thing),
		Principal: aws.String(principal),
	})
	return classify(err)
}

// ListPrincipals lists the principals attached to a thing
func (a *AWS) ListPrincipals(ctx context.Context, thing string) ([]string, error) {
	var principals []string
	var nextToken *string
	for {
		out, err := a.client.ListThingPrincipals(ctx, &iot.ListThingPrincipalsInput{
			ThingName: aws.String(thing),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, classify(err)
		}
		principals = append(principals, out.Principals...)
		nextToken = out.NextToken
		if nextToken == nil {
			break
		}
	}
	return principals, nil
}

// ListPrincipalThings lists the things a principal is attached to
func (a *AWS) ListPrincipalThings(ctx context.Context, principal string) ([]string, error) {
	var things []string
	var nextToken *string
	for {
		out, err := a.client.ListPrincipalThings(ctx, &iot.ListPrincipalThingsInput{
			Principal: aws.String(principal),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, classify(err)
		}
		things = append(things, out.Things...)
		nextToken = out.NextToken
		if nextToken == nil {
			break
		}
	}
	return things, nil
}

// ListPolicies lists the names of the policies attached to a principal
func (a *AWS) ListPolicies(ctx context.Context, principal string) ([]string, error) {
	var policies []string
	var marker *string
	for {
		out, err := a.client.ListAttachedPolicies(ctx, &iot.ListAttachedPoliciesInput{
			Target: aws.String(principal),
			Marker: marker,
		})
		if err != nil {
			return nil, classify(err)
		}
		for _, p := range out.Policies {
			policies = append(policies, aws.ToString(p.PolicyName))
		}
		marker = out.NextMarker
		if marker == nil {
			break
		}
	}
	return policies, nil
}
