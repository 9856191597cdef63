package patch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Image holds the four credential values of a patch
type Image struct {
	values [NumSlots][]byte
}

// NewImage creates an image from values keyed by slot name. All slots must be present.
func NewImage(values map[string][]byte) (*Image, error) {
	img := &Image{}
	for _, s := range slots {
		v, ok := values[s.Name]
		if !ok {
			return nil, fmt.Errorf("no value for slot %s", s.Name)
		}
		if err := img.set(s, v); err != nil {
			return nil, err
		}
	}
	for name := range values {
		if _, ok := SlotByName(name); !ok {
			return nil, fmt.Errorf("unknown slot %s", name)
		}
	}
	return img, nil
}

func (img *Image) set(s Slot, value []byte) error {
	if len(value) > MaxValueSize {
		return &CredentialTooLargeError{Slot: s.Name, Size: len(value), Max: MaxValueSize}
	}
	img.values[s.Index] = append(make([]byte, 0, len(value)), value...)
	return nil
}

// Build reads the credential files from dir in slot order and returns the image.
//
// The first missing file aborts the build with a *MissingCredentialFileError.
func Build(dir string) (*Image, error) {
	img := &Image{}
	for _, s := range slots {
		path := filepath.Join(dir, s.File)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingCredentialFileError{Slot: s.Name, Path: path}
		}
		if err != nil {
			return nil, &IOError{Op: "read", Path: path, Err: err}
		}
		if err := img.set(s, data); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// Value returns the raw value of the named slot, without terminator
func (img *Image) Value(name string) ([]byte, bool) {
	s, ok := SlotByName(name)
	if !ok {
		return nil, false
	}
	return img.values[s.Index], true
}

// Len returns the size of the encoded image
func (img *Image) Len() int {
	last := slots[NumSlots-1]
	return last.Offset() + len(img.values[last.Index]) + 1
}

// Bytes encodes the image. Bytes between a terminator and the next slot are zero.
func (img *Image) Bytes() []byte {
	buf := make([]byte, img.Len())
	for _, s := range slots {
		n := copy(buf[s.Offset():], img.values[s.Index])
		buf[s.Offset()+n] = 0
	}
	return buf
}

// WriteTo writes the encoded image to w
func (img *Image) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(img.Bytes())
	return int64(n), err
}

// Parse decodes an encoded image. Each value ends at the first NUL byte of its slot.
func Parse(data []byte) (*Image, error) {
	if len(data) < MinImageSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedImage, len(data), MinImageSize)
	}
	img := &Image{}
	for _, s := range slots {
		end := s.Offset() + SlotSize
		if end > len(data) {
			end = len(data)
		}
		window := data[s.Offset():end]
		n := bytes.IndexByte(window, 0)
		if n < 0 {
			return nil, fmt.Errorf("%w: slot %s has no terminator", ErrMalformedImage, s.Name)
		}
		img.values[s.Index] = append(make([]byte, 0, n), window[:n]...)
	}
	return img, nil
}
