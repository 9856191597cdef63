package patch

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentialFile is matched by *MissingCredentialFileError
	ErrMissingCredentialFile = errors.New("missing credential file")
	// ErrIO is matched by *IOError
	ErrIO = errors.New("i/o failure")
	// ErrCredentialTooLarge is matched by *CredentialTooLargeError
	ErrCredentialTooLarge = errors.New("credential too large")
	// ErrMalformedImage is returned by Parse
	ErrMalformedImage = errors.New("malformed patch image")
)

// MissingCredentialFileError reports that the source file of a slot does not exist
type MissingCredentialFileError struct {
	Slot string
	Path string
}

func (e *MissingCredentialFileError) Error() string {
	return fmt.Sprintf("missing credential file for %s: %s", e.Slot, e.Path)
}

// Is makes errors.Is(err, ErrMissingCredentialFile) work
func (e *MissingCredentialFileError) Is(target error) bool {
	return target == ErrMissingCredentialFile
}

// IOError wraps a filesystem error that happened while reading inputs or writing the image
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrIO) work
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// CredentialTooLargeError reports a value that does not fit into its slot
type CredentialTooLargeError struct {
	Slot string
	Size int
	Max  int
}

func (e *CredentialTooLargeError) Error() string {
	return fmt.Sprintf("credential %s is %d bytes, at most %d bytes fit into a slot", e.Slot, e.Size, e.Max)
}

// Is makes errors.Is(err, ErrCredentialTooLarge) work
func (e *CredentialTooLargeError) Is(target error) bool {
	return target == ErrCredentialTooLarge
}
