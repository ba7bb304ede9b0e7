package cnxn

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/concave-dev/ensemble/internal/quorum"
)

// storeTypePEM is the only key and trust store format understood.
const storeTypePEM = "PEM"

// LoadServerTLS builds a server TLS configuration from PEM key and trust
// stores. The key store holds the certificate chain and private key; a
// legacy encrypted key is decrypted with the key store password. Clients must
// present a certificate signed by the trust store.
func LoadServerTLS(s quorum.TLS) (*tls.Config, error) {
	if !s.Enabled() {
		return nil, errors.New("secure client connections need a key store and a trust store with passwords")
	}
	for _, typ := range []string{s.KeyStoreType, s.TrustStoreType} {
		if typ != "" && !strings.EqualFold(typ, storeTypePEM) {
			return nil, fmt.Errorf("unsupported store type %q, only %s is supported", typ, storeTypePEM)
		}
	}

	cert, err := loadKeyStore(s.KeyStoreLocation, s.KeyStorePassword)
	if err != nil {
		return nil, err
	}
	pool, err := loadTrustStore(s.TrustStoreLocation)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func loadKeyStore(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read key store: %w", err)
	}

	var cert tls.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			cert.Certificate = append(cert.Certificate, block.Bytes)
		case strings.HasSuffix(block.Type, "PRIVATE KEY"):
			if cert.PrivateKey != nil {
				return tls.Certificate{}, fmt.Errorf("key store %s holds more than one private key", path)
			}
			key, err := parsePrivateKey(block, password)
			if err != nil {
				return tls.Certificate{}, fmt.Errorf("key store %s: %w", path, err)
			}
			cert.PrivateKey = key
		}
	}

	if len(cert.Certificate) == 0 {
		return tls.Certificate{}, fmt.Errorf("key store %s holds no certificate", path)
	}
	if cert.PrivateKey == nil {
		return tls.Certificate{}, fmt.Errorf("key store %s holds no private key", path)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("key store %s: invalid certificate: %w", path, err)
	}
	cert.Leaf = leaf
	return cert, nil
}

func parsePrivateKey(block *pem.Block, password string) (crypto.PrivateKey, error) {
	der := block.Bytes
	//nolint:staticcheck // existing key stores use legacy PEM encryption
	if x509.IsEncryptedPEMBlock(block) {
		var err error
		//nolint:staticcheck
		der, err = x509.DecryptPEMBlock(block, []byte(password))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt private key: %w", err)
		}
	}

	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("unsupported private key in %s block", block.Type)
}

func loadTrustStore(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust store: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("trust store %s holds no certificates", path)
	}
	return pool, nil
}
