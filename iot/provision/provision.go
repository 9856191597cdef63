/*
Package provision registers and deregisters devices

A Provisioner composes the thing registry, the dashboard and the credentials directory. Register
creates a thing with its certificate and device policy, adds the thing's saved query to the
dashboard and writes the thing name into the credentials directory, ready to be packed into
the device patch. Deregister undoes all of that except the credentials directory.

Every step fails fast. Nothing is retried and nothing is rolled back, except the freshly
created thing when its certificate turns out to be registered already.
*/
package provision

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/relabs-tech/provisioning/core/kss"
	"github.com/relabs-tech/provisioning/core/logger"
	"github.com/relabs-tech/provisioning/iot/dashboard"
	"github.com/relabs-tech/provisioning/iot/patch"
	"github.com/relabs-tech/provisioning/iot/registry"
)

var (
	// ErrThingExists is returned by Register when the thing is registered already
	ErrThingExists = errors.New("thing exists already")
	// ErrInvalidThingName is returned for empty or malformed thing names
	ErrInvalidThingName = errors.New("invalid thing name")
)

var thingNamePattern = regexp.MustCompile(`^[a-zA-Z0-9:_-]{1,128}$`)

// Config configures a Provisioner
type Config struct {
	Registry registry.Registry
	// Dashboard is optional, without it no saved queries are maintained
	Dashboard dashboard.QueryRegistry
	// CredentialsDir receives thing_name.txt on registration. Empty means no file is written.
	CredentialsDir string
	// PolicyName defaults to registry.DefaultPolicyName
	PolicyName string
	Region     string
	Account    string
}

// Provisioner runs the provisioning workflows
type Provisioner struct {
	registry       registry.Registry
	dashboard      dashboard.QueryRegistry
	credentialsDir string
	policyName     string
	region         string
	account        string
}

// New creates a Provisioner
func New(cfg Config) (*Provisioner, error) {
	if cfg.Registry == nil {
		return nil, errors.New("a thing registry is required")
	}
	p := &Provisioner{
		registry:       cfg.Registry,
		dashboard:      cfg.Dashboard,
		credentialsDir: cfg.CredentialsDir,
		policyName:     cfg.PolicyName,
		region:         cfg.Region,
		account:        cfg.Account,
	}
	if p.policyName == "" {
		p.policyName = registry.DefaultPolicyName
	}
	return p, nil
}

// ValidateThingName checks thing against the naming rules of the registry
func ValidateThingName(thing string) error {
	if thing == "" {
		return fmt.Errorf("%w: thing name should be provided", ErrInvalidThingName)
	}
	if !thingNamePattern.MatchString(thing) {
		return fmt.Errorf("%w: %q may only contain letters, digits, ':', '_' and '-' and at most 128 characters", ErrInvalidThingName, thing)
	}
	return nil
}

// Register creates thing with the certificate certPEM
func (p *Provisioner) Register(ctx context.Context, thing, certPEM string) error {
	ctx, log := logger.ContextWithThing(ctx, thing)

	if err := ValidateThingName(thing); err != nil {
		return err
	}
	if err := ValidateCertificate(certPEM); err != nil {
		return err
	}

	log.Infof("Started creating %s", thing)
	_, err := p.registry.Describe(ctx, thing)
	if err == nil {
		return fmt.Errorf("%w: %s, deregister it first", ErrThingExists, thing)
	}
	if !errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("cannot look up thing %s: %w", thing, err)
	}

	if _, err := p.registry.Create(ctx, thing); err != nil {
		return fmt.Errorf("cannot create thing %s: %w", thing, err)
	}

	if err := p.ensurePolicy(ctx); err != nil {
		return err
	}

	certARN, err := p.registry.RegisterCertificate(ctx, certPEM)
	if err != nil {
		var exists *registry.CertificateExistsError
		if errors.As(err, &exists) {
			if derr := p.registry.Delete(ctx, thing); derr != nil {
				log.WithError(derr).Errorf("Cannot delete thing %s again", thing)
			}
		}
		return fmt.Errorf("cannot register certificate: %w", err)
	}

	if err := p.registry.AttachPolicy(ctx, p.policyName, certARN); err != nil {
		return fmt.Errorf("cannot attach policy %s to certificate %s: %w", p.policyName, certARN, err)
	}
	log.Infof("Attached policy %s to certificate %s", p.policyName, certARN)

	if err := p.registry.AttachPrincipal(ctx, thing, certARN); err != nil {
		return fmt.Errorf("cannot attach certificate %s to thing %s: %w", certARN, thing, err)
	}
	log.Infof("Attached certificate %s to thing", certARN)

	if err := p.ensureQuery(ctx, thing); err != nil {
		return err
	}

	return p.writeThingName(ctx, thing)
}

func (p *Provisioner) ensurePolicy(ctx context.Context) error {
	_, err := p.registry.GetPolicy(ctx, p.policyName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("cannot get policy %s: %w", p.policyName, err)
	}
	if p.region == "" || p.account == "" {
		return fmt.Errorf("cannot create policy %s: region and account are required", p.policyName)
	}
	doc, err := registry.DevicePolicy(p.region, p.account)
	if err != nil {
		return err
	}
	if err := p.registry.CreatePolicy(ctx, p.policyName, doc); err != nil {
		return fmt.Errorf("cannot create policy %s: %w", p.policyName, err)
	}
	return nil
}

func (p *Provisioner) ensureQuery(ctx context.Context, thing string) error {
	if p.dashboard == nil {
		logger.FromContext(ctx).Debug("No dashboard configured")
		return nil
	}
	return dashboard.EnsureQuery(ctx, p.dashboard, thing)
}

func (p *Provisioner) writeThingName(ctx context.Context, thing string) error {
	if p.credentialsDir == "" {
		return nil
	}
	slot, _ := patch.SlotByName(patch.SlotThingName)
	path := filepath.Join(p.credentialsDir, slot.File)
	if err := kss.WriteFileAtomic(path, []byte(thing), 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	logger.FromContext(ctx).Infof("Wrote %s", path)
	return nil
}

// Deregister deletes thing together with its certificates and removes its saved query
func (p *Provisioner) Deregister(ctx context.Context, thing string) error {
	ctx, log := logger.ContextWithThing(ctx, thing)

	if err := ValidateThingName(thing); err != nil {
		return err
	}
	log.Infof("Started clearing thing %s", thing)

	principals, err := p.registry.ListPrincipals(ctx, thing)
	if err != nil {
		return fmt.Errorf("cannot get thing %s: %w", thing, err)
	}

	for _, arn := range principals {
		certID, err := registry.CertificateIDFromARN(arn)
		if err != nil {
			return err
		}
		if err := p.registry.DetachPrincipal(ctx, thing, arn); err != nil {
			return fmt.Errorf("cannot detach certificate %s: %w", arn, err)
		}
		log.Infof("Detached certificate %s", arn)

		if err := p.registry.UpdateCertificateStatus(ctx, certID, registry.CertificateInactive); err != nil {
			return fmt.Errorf("cannot deactivate certificate %s: %w", arn, err)
		}

		policies, err := p.registry.ListPolicies(ctx, arn)
		if err != nil {
			return fmt.Errorf("cannot list policies of certificate %s: %w", arn, err)
		}
		for _, policy := range policies {
			if err := p.registry.DetachPolicy(ctx, policy, arn); err != nil {
				return fmt.Errorf("cannot detach policy %s: %w", policy, err)
			}
			log.Infof("Detached policy %s", policy)
		}

		if err := p.registry.DeleteCertificate(ctx, certID); err != nil {
			return fmt.Errorf("cannot delete certificate %s: %w", arn, err)
		}
		log.Infof("Deleted certificate %s", arn)
	}

	if err := p.registry.Delete(ctx, thing); err != nil {
		return fmt.Errorf("cannot delete thing %s: %w", thing, err)
	}

	if p.dashboard == nil {
		return nil
	}
	return dashboard.RemoveQuery(ctx, p.dashboard, thing)
}

// Check verifies that thing exists and ensures its saved query
func (p *Provisioner) Check(ctx context.Context, thing string) error {
	ctx, _ = logger.ContextWithThing(ctx, thing)
	if err := ValidateThingName(thing); err != nil {
		return err
	}
	if _, err := p.registry.ListPrincipals(ctx, thing); err != nil {
		return fmt.Errorf("cannot get thing %s: %w", thing, err)
	}
	return p.ensureQuery(ctx, thing)
}
