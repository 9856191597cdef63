package registry

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iot"
	"github.com/aws/aws-sdk-go-v2/service/iot/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIoT implements the calls exercised below, everything else panics through the nil interface
type fakeIoT struct {
	IoTAPI

	things          map[string]bool
	certificateErr  error
	principalThings map[string][][]string
	thingPrincipals map[string][][]string
	policyPages     [][]string
	updated         map[string]types.CertificateStatus
	forceDeleted    []string
}

func (f *fakeIoT) DescribeThing(ctx context.Context, in *iot.DescribeThingInput, _ ...func(*iot.Options)) (*iot.DescribeThingOutput, error) {
	name := aws.ToString(in.ThingName)
	if !f.things[name] {
		return nil, &types.ResourceNotFoundException{Message: aws.String("no thing " + name)}
	}
	return &iot.DescribeThingOutput{
		ThingName:  in.ThingName,
		ThingArn:   aws.String("arn:aws:iot:eu-central-1:123456789012:thing/" + name),
		ThingId:    aws.String("id-" + name),
		Attributes: map[string]string{"kit": "xmc"},
	}, nil
}

func (f *fakeIoT) CreateThing(ctx context.Context, in *iot.CreateThingInput, _ ...func(*iot.Options)) (*iot.CreateThingOutput, error) {
	name := aws.ToString(in.ThingName)
	if f.things[name] {
		return nil, &types.ResourceAlreadyExistsException{Message: aws.String("exists")}
	}
	f.things[name] = true
	return &iot.CreateThingOutput{ThingName: in.ThingName, ThingArn: aws.String("arn:thing/" + name)}, nil
}

func (f *fakeIoT) RegisterCertificateWithoutCA(ctx context.Context, in *iot.RegisterCertificateWithoutCAInput, _ ...func(*iot.Options)) (*iot.RegisterCertificateWithoutCAOutput, error) {
	if f.certificateErr != nil {
		return nil, f.certificateErr
	}
	return &iot.RegisterCertificateWithoutCAOutput{
		CertificateArn: aws.String("arn:aws:iot:eu-central-1:123456789012:cert/abc"),
		CertificateId:  aws.String("abc"),
	}, nil
}

func (f *fakeIoT) ListPrincipalThings(ctx context.Context, in *iot.ListPrincipalThingsInput, _ ...func(*iot.Options)) (*iot.ListPrincipalThingsOutput, error) {
	pages := f.principalThings[aws.ToString(in.Principal)]
	page := 0
	if in.NextToken != nil {
		page = len(aws.ToString(in.NextToken))
	}
	out := &iot.ListPrincipalThingsOutput{Things: pages[page]}
	if page+1 < len(pages) {
		// the token encodes the next page index as its length
		next := make([]byte, page+1)
		for i := range next {
			next[i] = 'x'
		}
		out.NextToken = aws.String(string(next))
	}
	return out, nil
}

func (f *fakeIoT) ListThingPrincipals(ctx context.Context, in *iot.ListThingPrincipalsInput, _ ...func(*iot.Options)) (*iot.ListThingPrincipalsOutput, error) {
	pages, ok := f.thingPrincipals[aws.ToString(in.ThingName)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("no thing")}
	}
	page := 0
	if in.NextToken != nil {
		page, _ = strconv.Atoi(aws.ToString(in.NextToken))
	}
	out := &iot.ListThingPrincipalsOutput{Principals: pages[page]}
	if page+1 < len(pages) {
		out.NextToken = aws.String(strconv.Itoa(page + 1))
	}
	return out, nil
}

func (f *fakeIoT) ListAttachedPolicies(ctx context.Context, in *iot.ListAttachedPoliciesInput, _ ...func(*iot.Options)) (*iot.ListAttachedPoliciesOutput, error) {
	page := 0
	if in.Marker != nil {
		page = 1
	}
	out := &iot.ListAttachedPoliciesOutput{}
	for _, name := range f.policyPages[page] {
		out.Policies = append(out.Policies, types.Policy{PolicyName: aws.String(name)})
	}
	if page+1 < len(f.policyPages) {
		out.NextMarker = aws.String("next")
	}
	return out, nil
}

func (f *fakeIoT) UpdateCertificate(ctx context.Context, in *iot.UpdateCertificateInput, _ ...func(*iot.Options)) (*iot.UpdateCertificateOutput, error) {
	f.updated[aws.ToString(in.CertificateId)] = in.NewStatus
	return &iot.UpdateCertificateOutput{}, nil
}

func (f *fakeIoT) DeleteCertificate(ctx context.Context, in *iot.DeleteCertificateInput, _ ...func(*iot.Options)) (*iot.DeleteCertificateOutput, error) {
	if in.ForceDelete {
		f.forceDeleted = append(f.forceDeleted, aws.ToString(in.CertificateId))
	}
	return &iot.DeleteCertificateOutput{}, nil
}

func newFakeIoT() *fakeIoT {
	return &fakeIoT{
		things:          map[string]bool{"device-001": true},
		principalThings: map[string][][]string{},
		thingPrincipals: map[string][][]string{},
		updated:         map[string]types.CertificateStatus{},
	}
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()
	r := NewAWS(newFakeIoT())

	thing, err := r.Describe(ctx, "device-001")
	require.NoError(t, err)
	assert.Equal(t, "device-001", thing.Name)
	assert.Equal(t, "id-device-001", thing.ID)
	assert.Equal(t, "xmc", thing.Attributes["kit"])

	_, err = r.Describe(ctx, "device-002")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestCreateExisting(t *testing.T) {
	ctx := context.Background()
	r := NewAWS(newFakeIoT())

	_, err := r.Create(ctx, "device-001")
	assert.True(t, errors.Is(err, ErrAlreadyExists), "got %v", err)

	thing, err := r.Create(ctx, "device-002")
	require.NoError(t, err)
	assert.Equal(t, "device-002", thing.Name)
}

func TestRegisterCertificate(t *testing.T) {
	ctx := context.Background()
	f := newFakeIoT()
	r := NewAWS(f)

	arn, err := r.RegisterCertificate(ctx, "-----BEGIN CERTIFICATE-----")
	require.NoError(t, err)
	id, err := CertificateIDFromARN(arn)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	existing := "arn:aws:iot:eu-central-1:123456789012:cert/old"
	f.certificateErr = &types.ResourceAlreadyExistsException{
		Message:     aws.String("certificate exists"),
		ResourceArn: aws.String(existing),
	}
	f.principalThings[existing] = [][]string{{"device-001"}, {"device-007"}}

	_, err = r.RegisterCertificate(ctx, "-----BEGIN CERTIFICATE-----")
	var exists *CertificateExistsError
	require.True(t, errors.As(err, &exists), "got %v", err)
	assert.Equal(t, existing, exists.ARN)
	assert.Equal(t, []string{"device-001", "device-007"}, exists.Things)
	assert.True(t, errors.Is(err, ErrAlreadyExists))
	assert.Contains(t, err.Error(), "device-007")

	f.certificateErr = errors.New("throttled")
	_, err = r.RegisterCertificate(ctx, "-----BEGIN CERTIFICATE-----")
	assert.EqualError(t, err, "throttled")
}

func TestListPrincipals(t *testing.T) {
	ctx := context.Background()
	f := newFakeIoT()
	f.thingPrincipals["device-001"] = [][]string{{"arn:cert/a", "arn:cert/b"}, {"arn:cert/c"}}
	r := NewAWS(f)

	principals, err := r.ListPrincipals(ctx, "device-001")
	require.NoError(t, err)
	assert.Equal(t, []string{"arn:cert/a", "arn:cert/b", "arn:cert/c"}, principals)

	_, err = r.ListPrincipals(ctx, "device-404")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestListPolicies(t *testing.T) {
	f := newFakeIoT()
	f.policyPages = [][]string{{"a", "b"}, {"c"}}
	policies, err := NewAWS(f).ListPolicies(context.Background(), "arn:cert/abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, policies)
}

func TestCertificateLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFakeIoT()
	r := NewAWS(f)

	require.NoError(t, r.UpdateCertificateStatus(ctx, "abc", CertificateInactive))
	assert.Equal(t, types.CertificateStatusInactive, f.updated["abc"])

	require.NoError(t, r.DeleteCertificate(ctx, "abc"))
	assert.Equal(t, []string{"abc"}, f.forceDeleted)
}

func TestCertificateIDFromARN(t *testing.T) {
	_, err := CertificateIDFromARN("arn:aws:iot:eu-central-1:123456789012:cert/")
	assert.Error(t, err)
	_, err = CertificateIDFromARN("nonsense")
	assert.Error(t, err)
}

type fakeSTS struct {
	account string
	err     error
}

func (f fakeSTS) GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String(f.account)}, nil
}

func TestAccountID(t *testing.T) {
	account, err := AccountID(context.Background(), fakeSTS{account: "123456789012"})
	require.NoError(t, err)
	assert.Equal(t, "123456789012", account)

	_, err = AccountID(context.Background(), fakeSTS{err: errors.New("expired token")})
	assert.ErrorContains(t, err, "expired token")
}

func TestDevicePolicy(t *testing.T) {
	doc, err := DevicePolicy("eu-central-1", "123456789012")
	require.NoError(t, err)

	var parsed policyDocument
	require.NoError(t, json.Unmarshal([]byte(doc), &parsed))
	require.Len(t, parsed.Statement, 2)
	assert.Equal(t, []string{"iot:Publish"}, parsed.Statement[0].Action)
	assert.Equal(t,
		"arn:aws:iot:eu-central-1:123456789012:topic/$aws/rules/redirect_metrics/infn/dev/${iot:Connection.Thing.ThingName}",
		parsed.Statement[0].Resource[0])
	assert.Equal(t, []string{"iot:Connect"}, parsed.Statement[1].Action)
	assert.Equal(t,
		"arn:aws:iot:eu-central-1:123456789012:client/${iot:Connection.Thing.ThingName}",
		parsed.Statement[1].Resource[0])
}
