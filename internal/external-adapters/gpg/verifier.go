// Package gpg verifies detached OpenPGP signatures on downloaded scanner releases.
package gpg

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

const armoredSignaturePrefix = "-----BEGIN PGP SIGNATURE-----"

// maxSignatureSize bounds signature files; real detached signatures are well under 1KB
const maxSignatureSize = 10 * 1024

// Verifier checks detached signatures against an in-memory keyring
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier creates a verifier with an empty keyring
func NewVerifier() *Verifier {
	return &Verifier{keyring: make(openpgp.EntityList, 0)}
}

// ImportArmored adds every key in an armored keyring
func (v *Verifier) ImportArmored(r io.Reader) error {
	entities, err := openpgp.ReadArmoredKeyRing(r)
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	if len(entities) == 0 {
		return fmt.Errorf("no keys found")
	}
	v.keyring = append(v.keyring, entities...)
	return nil
}

// ImportKeyFromFile imports an armored or binary keyring file
func (v *Verifier) ImportKeyFromFile(keyPath string) error {
	//nolint:gosec // G304: keyPath comes from the signing-key input
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("failed to open key file: %w", err)
	}

	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		entities, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
	}
	if len(entities) == 0 {
		return fmt.Errorf("no keys found in file")
	}

	v.keyring = append(v.keyring, entities...)
	return nil
}

// VerifyDetached checks signature (armored or binary) against the file at filePath
func (v *Verifier) VerifyDetached(filePath string, signature []byte) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("no signing keys imported")
	}
	if len(signature) > maxSignatureSize {
		return fmt.Errorf("signature too large (%d bytes)", len(signature))
	}

	//nolint:gosec // G304: filePath is a download produced by the installer
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	if bytes.HasPrefix(bytes.TrimSpace(signature), []byte(armoredSignaturePrefix)) {
		_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, f, bytes.NewReader(signature), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(v.keyring, f, bytes.NewReader(signature), nil)
	}
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// KeyringSize returns the number of imported keys
func (v *Verifier) KeyringSize() int {
	return len(v.keyring)
}
