package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// Signer signs requests with AWS Signature Version 4
type Signer struct {
	credentials aws.CredentialsProvider
	region      string
	service     string
	signer      *v4.Signer
	now         func() time.Time
}

// NewSigner creates a signer for the given AWS service in region, e.g. "es"
func NewSigner(credentials aws.CredentialsProvider, region, service string) *Signer {
	return &Signer{
		credentials: credentials,
		region:      region,
		service:     service,
		signer:      v4.NewSigner(),
		now:         time.Now,
	}
}

// Sign adds the SigV4 authorization headers to r. body must be the request payload.
func (s *Signer) Sign(ctx context.Context, r *http.Request, body []byte) error {
	creds, err := s.credentials.Retrieve(ctx)
	if err != nil {
		return err
	}
	hash := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(hash[:])
	return s.signer.SignHTTP(ctx, creds, r, payloadHash, s.service, s.region, s.now())
}
