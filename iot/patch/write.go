package patch

import (
	"github.com/relabs-tech/provisioning/core/kss"
	"github.com/relabs-tech/provisioning/core/logger"
)

// DefaultOutputName is the name of the image file produced by the build tooling
const DefaultOutputName = "patch.bin"

// WriteFile writes the encoded image to path. The image is written to a temporary file in the
// same directory first and then renamed over path, so path either keeps its previous content
// or holds the complete new image.
func WriteFile(path string, img *Image) error {
	if err := kss.WriteFileAtomic(path, img.Bytes(), 0644); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// BuildFile builds the image from the credentials in dir and writes it to out.
// If the build fails, out is not touched.
func BuildFile(dir, out string) (*Image, error) {
	img, err := Build(dir)
	if err != nil {
		return nil, err
	}
	if err := WriteFile(out, img); err != nil {
		return nil, err
	}
	logger.Default().Debugf("patch: wrote %d bytes to %s", img.Len(), out)
	return img, nil
}
