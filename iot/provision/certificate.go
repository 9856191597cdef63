package provision

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// PEM markers of a device certificate
const (
	CertificateBegin = "-----BEGIN CERTIFICATE-----"
	CertificateEnd   = "-----END CERTIFICATE-----"
)

// ErrInvalidCertificate is returned for certificate text without both PEM markers
var ErrInvalidCertificate = errors.New("invalid certificate")

// ValidateCertificate checks that pem contains both PEM markers
func ValidateCertificate(pem string) error {
	if strings.TrimSpace(pem) == "" {
		return fmt.Errorf("%w: certificate text should be provided", ErrInvalidCertificate)
	}
	if !strings.Contains(pem, CertificateBegin) || !strings.Contains(pem, CertificateEnd) {
		return fmt.Errorf("%w: should include '%s' and '%s'", ErrInvalidCertificate, CertificateBegin, CertificateEnd)
	}
	return nil
}

// ReadCertificate reads a pasted certificate from r. Reading stops after the END marker, at an
// empty line or at the end of input. Anything before the BEGIN marker is dropped.
func ReadCertificate(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			break
		}
		if strings.Contains(line, CertificateBegin) {
			lines = lines[:0]
		}
		lines = append(lines, line)
		if strings.Contains(line, CertificateEnd) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("cannot read certificate: %w", err)
	}
	pem := strings.Join(lines, "\n")
	if err := ValidateCertificate(pem); err != nil {
		return "", err
	}
	return pem + "\n", nil
}
