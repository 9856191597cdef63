// Command provision registers devices with AWS IoT and the realtime dashboard
//
// Usage:
//
//	provision register   [--thing name] [--cert file]
//	provision deregister [--thing name]
//	provision dashboard  [--thing name]
//
// Missing thing names and certificates are prompted for on stdin. register writes the thing
// name into the credentials directory, ready for the patch tool.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/relabs-tech/provisioning/core/client"
	"github.com/relabs-tech/provisioning/core/logger"
	"github.com/relabs-tech/provisioning/iot/dashboard"
	"github.com/relabs-tech/provisioning/iot/provision"
	"github.com/relabs-tech/provisioning/iot/registry"
	"github.com/spf13/pflag"
)

// Service holds the configuration for this tool
type Service struct {
	LogLevel       string `env:"LOG_LEVEL,default=info" description:"trace, debug, info, warn or error"`
	CredentialsDir string `env:"CREDENTIALS_DIR,default=../credentials" description:"receives thing_name.txt on registration"`
	PolicyName     string `env:"POLICY_NAME,default=infn-device-policy" description:"the policy attached to device certificates"`
	StackName      string `env:"STACK_NAME,default=InfineonKitRealtime" description:"the stack publishing the Kibana url"`
	KibanaURL      string `env:"KIBANA_URL" description:"skips the stack lookup if set"`
	NoDashboard    bool   `env:"NO_DASHBOARD,default=false" description:"do not maintain saved queries"`
}

// backends are the external systems the workflows talk to
type backends struct {
	registry  registry.Registry
	dashboard dashboard.QueryRegistry
	region    string
	account   string
}

type connectFunc func(ctx context.Context, service *Service) (*backends, error)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: cannot load .env: %v\n", err)
	}
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, connectAWS); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `Usage:
  provision register   [flags]   create a thing with its certificate and saved query
  provision deregister [flags]   delete a thing, its certificates and its saved query
  provision dashboard  [flags]   ensure the saved query of an existing thing

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, connect connectFunc) error {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return err
	}

	var thing, certFile string
	flagSet := pflag.NewFlagSet("provision", pflag.ContinueOnError)
	flagSet.StringVarP(&thing, "thing", "t", "", "the thing name, prompted for if empty")
	flagSet.StringVar(&certFile, "cert", "", "the device certificate PEM file for register, prompted for if empty")
	flagSet.StringVar(&service.CredentialsDir, "credentials", service.CredentialsDir, "receives thing_name.txt on registration")
	flagSet.BoolVar(&service.NoDashboard, "no-dashboard", service.NoDashboard, "do not maintain saved queries")
	flagSet.SetOutput(stdout)
	flagSet.Usage = func() { usage(stdout, flagSet) }

	if len(args) == 0 {
		usage(stdout, flagSet)
		return errors.New("missing command")
	}
	command := args[0]
	if err := flagSet.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	switch command {
	case "register", "deregister", "dashboard":
	default:
		usage(stdout, flagSet)
		return fmt.Errorf("unknown command %q", command)
	}

	logger.InitLogger(logger.ParseLevel(service.LogLevel))
	ctx, _ = logger.ContextWithLogger(ctx)

	in := bufio.NewReader(stdin)
	if thing == "" {
		fmt.Fprint(stdout, "Enter thing name: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		thing = strings.TrimSpace(line)
	}
	if err := provision.ValidateThingName(thing); err != nil {
		return err
	}

	var certPEM string
	if command == "register" {
		var err error
		if certPEM, err = readCertificate(in, stdout, certFile); err != nil {
			return err
		}
	}

	b, err := connect(ctx, service)
	if err != nil {
		return err
	}
	p, err := provision.New(provision.Config{
		Registry:       b.registry,
		Dashboard:      b.dashboard,
		CredentialsDir: service.CredentialsDir,
		PolicyName:     service.PolicyName,
		Region:         b.region,
		Account:        b.account,
	})
	if err != nil {
		return err
	}

	switch command {
	case "register":
		err = p.Register(ctx, thing, certPEM)
	case "deregister":
		err = p.Deregister(ctx, thing)
	case "dashboard":
		err = p.Check(ctx, thing)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %s done\n", thing, command)
	return nil
}

func readCertificate(in io.Reader, stdout io.Writer, certFile string) (string, error) {
	if certFile != "" {
		data, err := os.ReadFile(certFile)
		if err != nil {
			return "", err
		}
		pem := string(data)
		return pem, provision.ValidateCertificate(pem)
	}
	fmt.Fprintf(stdout, "Please, enter device certificate's text (starts with '%s' and ends with '%s'):\n",
		provision.CertificateBegin, provision.CertificateEnd)
	return provision.ReadCertificate(in)
}

// connectAWS connects to AWS IoT and, unless disabled, to the Kibana of the realtime stack.
// Credentials and region come from the default AWS configuration chain.
func connectAWS(ctx context.Context, service *Service) (*backends, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot load AWS configuration: %w", err)
	}
	if cfg.Region == "" {
		return nil, errors.New("no AWS region configured, set AWS_REGION or a profile region")
	}
	account, err := registry.AccountID(ctx, sts.NewFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	b := &backends{
		registry: registry.NewAWSFromConfig(cfg),
		region:   cfg.Region,
		account:  account,
	}
	if service.NoDashboard {
		return b, nil
	}

	url := service.KibanaURL
	if url == "" {
		url, err = dashboard.KibanaURL(ctx, cloudformation.NewFromConfig(cfg), service.StackName)
		if err != nil {
			return nil, fmt.Errorf("kibana url is unknown: %w", err)
		}
	}
	c := client.NewWithURL(url).WithSigner(client.NewSigner(cfg.Credentials, cfg.Region, "es"))
	kibana, err := dashboard.NewKibana(c)
	if err != nil {
		return nil, err
	}
	b.dashboard = kibana
	return b, nil
}
