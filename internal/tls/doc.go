// Package tls builds the TLS configuration of the validation API listener.
//
// The serving certificate is held by a CertificateManager that can be reloaded
// from disk while the server runs; handshakes always see the last certificate
// that loaded and validated successfully.
package tls
