package certbundle

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"errors"
	"math/big"
	"testing"
	"time"
)

func makeCert(t *testing.T, cn string, serial int64, isCA bool, notBefore time.Time) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             notBefore,
		NotAfter:              notBefore.AddDate(1, 0, 0),
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	c, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	return c
}

func TestFromCertificatesPrefersLeaf(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	ca := makeCert(t, "AC Test", 1, true, start.AddDate(-1, 0, 0))
	leaf := makeCert(t, "JANE DOE:12345678909", 0xBEEF, false, start)

	info, err := fromCertificates([]*x509.Certificate{ca, leaf})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if info.Serial != "BEEF" || info.Subject != "JANE DOE:12345678909" {
		t.Fatalf("unexpected leaf info %+v", info)
	}
	if !info.ValidFrom.Equal(start) || !info.ValidUntil.Equal(start.AddDate(1, 0, 0)) {
		t.Fatalf("unexpected validity %s - %s", info.ValidFrom, info.ValidUntil)
	}
}

func TestFromCertificatesEmpty(t *testing.T) {
	if _, err := fromCertificates(nil); !errors.Is(err, ErrNoCertificate) {
		t.Fatalf("expected ErrNoCertificate, got %v", err)
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	if _, err := Inspect("%%%not-base64", "pw"); err == nil {
		t.Fatalf("expected base64 error")
	}
	if _, err := Inspect(base64.StdEncoding.EncodeToString([]byte("not a pfx")), "pw"); err == nil {
		t.Fatalf("expected pkcs12 error")
	}
}
