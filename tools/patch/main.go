// Command patch packs the device credentials into patch.bin
//
// The credentials directory must contain endpoint.txt, thing_name.txt, wifi_ssid.txt and
// wifi_pass.txt. The image is written atomically, so a failed run never leaves a partial
// patch.bin behind. With --upload the image is also published to the configured storage under
// patches/<thing name>/patch.bin.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/relabs-tech/provisioning/core/kss"
	"github.com/relabs-tech/provisioning/core/logger"
	"github.com/relabs-tech/provisioning/iot/patch"
	"github.com/relabs-tech/provisioning/iot/provision"
	"github.com/spf13/pflag"
)

// Service holds the configuration for this tool
type Service struct {
	LogLevel       string `env:"LOG_LEVEL,default=info" description:"trace, debug, info, warn or error"`
	CredentialsDir string `env:"CREDENTIALS_DIR,default=../credentials" description:"the directory with the credential files"`

	KSSDriver    string `env:"KSS_DRIVER" description:"storage for --upload, Local or AWSS3"`
	KSSLocalPath string `env:"KSS_LOCAL_PATH,default=published" description:"base folder of the Local storage"`
	KSSBucket    string `env:"KSS_S3_BUCKET" description:"bucket of the AWSS3 storage"`
	KSSPrefix    string `env:"KSS_S3_PREFIX" description:"key prefix inside the bucket"`
	KSSRegion    string `env:"AWS_REGION" description:"region of the bucket"`
	KSSAccessID  string `env:"KSS_S3_ACCESS_ID" description:"static credentials, the default chain is used if empty"`
	KSSAccessKey string `env:"KSS_S3_ACCESS_KEY" description:"static credentials secret"`
}

func (s *Service) kssConfiguration() kss.Configuration {
	return kss.Configuration{
		DriverType:         kss.DriverType(s.KSSDriver),
		LocalConfiguration: &kss.LocalConfiguration{BasePath: s.KSSLocalPath},
		S3Configuration: &kss.S3Configuration{
			AWSBucketName: s.KSSBucket,
			AWSRegion:     s.KSSRegion,
			AccessID:      s.KSSAccessID,
			AccessKey:     s.KSSAccessKey,
			KeyPrefix:     s.KSSPrefix,
		},
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: cannot load .env: %v\n", err)
	}
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadService() (*Service, error) {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, err
	}
	return service, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	service, err := loadService()
	if err != nil {
		return err
	}

	var credentialsDir, out string
	var verify, upload bool
	flagSet := pflag.NewFlagSet("patch", pflag.ContinueOnError)
	flagSet.StringVarP(&credentialsDir, "credentials", "c", service.CredentialsDir, "the directory with the credential files")
	flagSet.StringVarP(&out, "out", "o", patch.DefaultOutputName, "the image to write")
	flagSet.BoolVar(&verify, "verify", false, "read the written image back and compare it")
	flagSet.BoolVar(&upload, "upload", false, "publish the image to the configured storage")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	logger.InitLogger(logger.ParseLevel(service.LogLevel))
	ctx, log := logger.ContextWithLogger(ctx)

	img, err := patch.BuildFile(credentialsDir, out)
	if err != nil {
		var missing *patch.MissingCredentialFileError
		if errors.As(err, &missing) {
			return fmt.Errorf("%w. Create %s before building the patch", err, missing.Path)
		}
		return err
	}
	log.Infof("Wrote %s (%d bytes)", out, img.Len())

	if verify {
		if err := verifyImage(out, img); err != nil {
			return err
		}
		log.Infof("Verified %s", out)
	}

	if upload {
		if err := uploadImage(ctx, service, img); err != nil {
			return err
		}
	}

	thing, _ := img.Value(patch.SlotThingName)
	fmt.Fprintf(stdout, "%s written for %s\n", out, thing)
	return nil
}

func verifyImage(path string, img *patch.Image) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !bytes.Equal(data, img.Bytes()) {
		return fmt.Errorf("%s does not match the built image", path)
	}
	parsed, err := patch.Parse(data)
	if err != nil {
		return err
	}
	for _, s := range patch.Slots() {
		want, _ := img.Value(s.Name)
		got, _ := parsed.Value(s.Name)
		if !bytes.Equal(want, got) {
			return fmt.Errorf("%s: slot %s reads back differently", path, s.Name)
		}
	}
	return nil
}

func uploadImage(ctx context.Context, service *Service, img *patch.Image) error {
	cfg := service.kssConfiguration()
	if cfg.DriverType == kss.None {
		return errors.New("--upload needs KSS_DRIVER to be set to Local or AWSS3")
	}
	thing, _ := img.Value(patch.SlotThingName)
	if err := provision.ValidateThingName(string(thing)); err != nil {
		return fmt.Errorf("cannot upload, thing_name.txt does not hold a plain thing name: %w", err)
	}
	driver, err := kss.NewDriver(ctx, cfg)
	if err != nil {
		return err
	}
	key := "patches/" + string(thing) + "/" + patch.DefaultOutputName
	if err := driver.Put(ctx, key, img.Bytes()); err != nil {
		return fmt.Errorf("cannot upload %s: %w", key, err)
	}
	logger.FromContext(ctx).Infof("Uploaded %s", key)
	return nil
}
