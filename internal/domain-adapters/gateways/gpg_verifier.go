package gateways

import (
	"fmt"

	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
	"github.com/ochairo/prgate/internal/external-adapters/gpg"
)

// gpgVerifier adapts the OpenPGP keyring verifier to the installer's SignatureVerifier
type gpgVerifier struct {
	verifier *gpg.Verifier
}

// NewGPGVerifier loads the release signing keys from keyPath
func NewGPGVerifier(keyPath string) (gateways.SignatureVerifier, error) {
	v := gpg.NewVerifier()
	if err := v.ImportKeyFromFile(keyPath); err != nil {
		return nil, fmt.Errorf("failed to import signing key: %w", err)
	}
	return &gpgVerifier{verifier: v}, nil
}

// VerifyDetached checks a detached signature over filePath
func (g *gpgVerifier) VerifyDetached(filePath string, signature []byte) error {
	if err := g.verifier.VerifyDetached(filePath, signature); err != nil {
		return fmt.Errorf("GPG signature verification failed: %w", err)
	}
	return nil
}
