package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a thing, policy or certificate does not exist
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists is returned when a resource to be created exists already
	ErrAlreadyExists = errors.New("resource already exists")
)

// CertificateExistsError reports that a certificate is registered already
type CertificateExistsError struct {
	ARN string
	// Things lists the things the certificate is attached to
	Things []string
}

func (e *CertificateExistsError) Error() string {
	return fmt.Sprintf("certificate %s is registered already and attached to things: %s", e.ARN, strings.Join(e.Things, ", "))
}

// Is makes errors.Is(err, ErrAlreadyExists) work
func (e *CertificateExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// Thing is a registered device
type Thing struct {
	Name       string
	ARN        string
	ID         string
	Attributes map[string]string
}

// CertificateStatus is the activation status of a certificate
type CertificateStatus string

// Certificate states
const (
	CertificateActive   CertificateStatus = "ACTIVE"
	CertificateInactive CertificateStatus = "INACTIVE"
)

// Registry is the thing registry
type Registry interface {
	Describe(ctx context.Context, name string) (*Thing, error)
	Create(ctx context.Context, name string) (*Thing, error)
	Delete(ctx context.Context, name string) error

	GetPolicy(ctx context.Context, name string) (string, error)
	CreatePolicy(ctx context.Context, name, document string) error

	// RegisterCertificate registers an active certificate without CA and returns its ARN
	RegisterCertificate(ctx context.Context, pem string) (string, error)
	UpdateCertificateStatus(ctx context.Context, certificateID string, status CertificateStatus) error
	DeleteCertificate(ctx context.Context, certificateID string) error

	AttachPolicy(ctx context.Context, policy, target string) error
	DetachPolicy(ctx context.Context, policy, target string) error
	AttachPrincipal(ctx context.Context, thing, principal string) error
	DetachPrincipal(ctx context.Context, thing, principal string) error

	ListPrincipals(ctx context.Context, thing string) ([]string, error)
	ListPrincipalThings(ctx context.Context, principal string) ([]string, error)
	ListPolicies(ctx context.Context, principal string) ([]string, error)
}

// CertificateIDFromARN extracts the certificate id from a certificate ARN like
// arn:aws:iot:eu-central-1:123456789012:cert/<id>
func CertificateIDFromARN(arn string) (string, error) {
	i := strings.LastIndex(arn, "/")
	if i < 0 || i == len(arn)-1 {
		return "", fmt.Errorf("not a certificate arn: %s", arn)
	}
	return arn[i+1:], nil
}
