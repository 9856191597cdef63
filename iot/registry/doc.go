/*
Package registry manages things, certificates and policies in a thing registry

The Registry interface covers the registry operations used by the provisioning workflows.
AWS implements it on top of AWS IoT Core. Not-found and already-exists conditions reported by
the service are mapped to ErrNotFound and ErrAlreadyExists, so callers never need to look at
service specific error codes.

Duplicate certificate registrations are reported as *CertificateExistsError, which carries the
ARN of the existing certificate and the things it is attached to.
*/
package registry
