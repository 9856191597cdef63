package kss

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// kss package provides storage for produced artifacts such as patch images.
// There are currently two possible backends: a local file system and AWS S3

// Driver defines the interface for the KSS service
type Driver interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("kss: key not found")

// DriverType represents the different type of KSS Drivers
type DriverType string

// DriverTypeLocal is the local filesystem implementation of the KSS service
const DriverTypeLocal DriverType = "Local"

// DriverTypeAWSS3 is the AWS S3 implementation of the KSS service
const DriverTypeAWSS3 DriverType = "AWSS3"

// None is used when there is no KSS implementation
const None DriverType = ""

// Configuration contains the configuration for the KSS service
type Configuration struct {
	DriverType         DriverType
	LocalConfiguration *LocalConfiguration
	S3Configuration    *S3Configuration
}

// LocalConfiguration contains the configuration for the local filesystem KSS service
type LocalConfiguration struct {
	BasePath string
}

// S3Configuration contains the configuration for the AWS S3 KSS service.
// If AccessID is empty, the default AWS credential chain is used.
type S3Configuration struct {
	AWSBucketName string
	AWSRegion     string
	AccessID      string
	AccessKey     string
	KeyPrefix     string
}

// NewDriver returns the driver selected by the configuration, or nil for None
func NewDriver(ctx context.Context, cfg Configuration) (Driver, error) {
	switch cfg.DriverType {
	case None:
		return nil, nil
	case DriverTypeLocal:
		if cfg.LocalConfiguration == nil {
			return nil, fmt.Errorf("kss: local configuration missing")
		}
		return NewLocalFilesystem(*cfg.LocalConfiguration)
	case DriverTypeAWSS3:
		if cfg.S3Configuration == nil {
			return nil, fmt.Errorf("kss: S3 configuration missing")
		}
		return NewS3(ctx, *cfg.S3Configuration)
	}
	return nil, fmt.Errorf("kss: unknown driver type '%s'", cfg.DriverType)
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("kss: empty key")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("kss: '..' is not allowed in a key")
	}
	return nil
}
