// Package certbundle reads certificate metadata out of issued PKCS#12 bundles.
package certbundle

import (
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// ErrNoCertificate is returned when the bundle carries no certificate
var ErrNoCertificate = errors.New("bundle contains no certificate")

// Info is the metadata of the end-entity certificate in a bundle
type Info struct {
	Serial     string
	Subject    string
	ValidFrom  time.Time
	ValidUntil time.Time
}

// Inspect decodes a base64 PKCS#12 bundle and returns its leaf certificate details
func Inspect(pfxBase64, password string) (*Info, error) {
	raw, err := decodeBase64(pfxBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}

	blocks, err := pkcs12.ToPEM(raw, password)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}

	var certs []*x509.Certificate
	for _, b := range blocks {
		if b.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(b.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, c)
	}

	return fromCertificates(certs)
}

func fromCertificates(certs []*x509.Certificate) (*Info, error) {
	if len(certs) == 0 {
		return nil, ErrNoCertificate
	}

	// Chains may include the issuing CAs; prefer the end-entity certificate.
	leaf := certs[0]
	for _, c := range certs {
		if !c.IsCA {
			leaf = c
			break
		}
	}

	return &Info{
		Serial:     strings.ToUpper(leaf.SerialNumber.Text(16)),
		Subject:    leaf.Subject.CommonName,
		ValidFrom:  leaf.NotBefore.UTC(),
		ValidUntil: leaf.NotAfter.UTC(),
	}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
