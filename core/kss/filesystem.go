package kss

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/relabs-tech/provisioning/core/logger"
)

// LocalFilesystem stores keys as files below a base folder
type LocalFilesystem struct {
	baseFolder string
}

// NewLocalFilesystem returns a new LocalFilesystem. The base folder is created if needed.
func NewLocalFilesystem(cfg LocalConfiguration) (*LocalFilesystem, error) {
	if cfg.BasePath == "" {
		return nil, errors.New("kss: BasePath must not be empty")
	}
	if err := os.MkdirAll(cfg.BasePath, 0700); err != nil {
		return nil, err
	}
	logger.Default().Debugln("KSS local filesystem enabled at", cfg.BasePath)
	return &LocalFilesystem{baseFolder: cfg.BasePath}, nil
}

// Put stores data under key, replacing the previous content atomically
func (f LocalFilesystem) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	filePath := filepath.Join(f.baseFolder, key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return err
	}
	logger.FromContext(ctx).Infof("Filesystem: [PUT] key: '%s'", key)
	return WriteFileAtomic(filePath, data, 0644)
}

// Get returns the data stored under key
func (f LocalFilesystem) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(f.baseFolder, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Delete deletes the key file. Deleting a missing key is not an error.
func (f LocalFilesystem) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	logger.FromContext(ctx).Infof("Filesystem: [DELETE] key: '%s'", key)
	return os.RemoveAll(filepath.Join(f.baseFolder, key))
}

// WriteFileAtomic replaces path with data. The data goes to a temporary file in the directory of
// path first, which is synced and renamed over path, so readers see either the old or the new
// content. perm is applied as given, the umask is ignored.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm, renameio.IgnoreUmask())
}
