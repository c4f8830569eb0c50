// Package tlscert provides the API server's TLS serving certificate.
//
// A self-signed certificate is generated on first start and reused from its
// PEM files afterwards. Operators who have a real certificate point the
// config at it instead and nothing is generated.
package tlscert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"clinical-deid/internal/logger"
)

// validity of generated certificates.
const validity = 365 * 24 * time.Hour

// renewBefore is how close to expiry a generated certificate is replaced.
const renewBefore = 24 * time.Hour

// DefaultHosts are the names a generated certificate is valid for.
var DefaultHosts = []string{"localhost", "127.0.0.1", "::1"}

// LoadOrGenerate loads a certificate from PEM files, or generates a
// self-signed one for hosts if the files don't exist or the stored
// certificate is about to expire. If the files exist but are invalid, an
// error is returned.
func LoadOrGenerate(certFile, keyFile string, hosts []string, log *logger.Logger) (*tls.Certificate, error) {
	if log == nil {
		log = logger.Nop()
	}
	cert, err := Load(certFile, keyFile)
	switch {
	case err == nil && time.Until(cert.Leaf.NotAfter) > renewBefore:
		log.Infof("tls_load", "loaded certificate from %s (expires %s)", certFile, cert.Leaf.NotAfter.Format(time.RFC3339))
		return cert, nil
	case err == nil:
		log.Warnf("tls_load", "certificate %s expires %s, regenerating", certFile, cert.Leaf.NotAfter.Format(time.RFC3339))
	case errors.Is(err, os.ErrNotExist):
		log.Info("tls_load", "certificate files not found, generating self-signed certificate")
	default:
		return nil, fmt.Errorf("load certificate: %w", err)
	}

	if err := Generate(certFile, keyFile, hosts); err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}
	cert, err = Load(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load generated certificate: %w", err)
	}
	log.Infof("tls_load", "generated self-signed certificate %s / %s", certFile, keyFile)
	return cert, nil
}

// Load reads a certificate and private key from PEM files. The returned
// certificate has Leaf populated.
func Load(certFile, keyFile string) (*tls.Certificate, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse key pair: %w", err)
	}
	if cert.Leaf == nil {
		if cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return nil, fmt.Errorf("parse leaf: %w", err)
		}
	}
	return &cert, nil
}

// Generate creates a self-signed serving certificate for hosts and writes
// it and its key to the given PEM files. Hosts that parse as IP addresses
// become IP SANs; the rest become DNS SANs.
func Generate(certFile, keyFile string, hosts []string) error {
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   hosts[0],
			Organization: []string{"Clinical De-identification Service"},
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create cert: %w", err)
	}

	if err := writePEM(certFile, "CERTIFICATE", derBytes); err != nil {
		return err
	}
	return writePEM(keyFile, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))
}

func writePEM(path, blockType string, der []byte) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := pem.Encode(out, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		out.Close() //nolint:errcheck // already failing
		return fmt.Errorf("write %s: %w", path, err)
	}
	return out.Close()
}

// Config returns a server *tls.Config presenting cert, with H2 and
// HTTP/1.1 ALPN support.
func Config(cert *tls.Certificate) *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{*cert},
		NextProtos:   []string{"h2", "http/1.1"},
	}
}
