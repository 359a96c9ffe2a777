package config

import (
	"fmt"

	"github.com/dpalmer/rvault/crypto"
	"github.com/dpalmer/rvault/kdf"
	"github.com/dpalmer/rvault/vaulterr"
)

// ParseCipher resolves one of the configuration-file cipher names to its
// crypto.ID. An empty name resolves to crypto.DefaultCipher.
func ParseCipher(name string) (crypto.ID, error) {
	switch name {
	case "":
		return crypto.DefaultCipher, nil
	case "aes256-cbc":
		return crypto.AES256CBC, nil
	case "chacha20":
		return crypto.ChaCha20, nil
	case "aes256-gcm":
		return crypto.AES256GCM, nil
	case "chacha20-poly1305":
		return crypto.ChaCha20Poly1305, nil
	default:
		return 0, vaulterr.New(vaulterr.UnsupportedCipher, "config.ParseCipher", fmt.Sprintf("unknown cipher %q", name))
	}
}

// ParseKDFProfile resolves one of the configuration-file KDF profile
// names to its kdf.Profile. An empty name resolves to kdf.ProfileModerate.
func ParseKDFProfile(name string) (kdf.Profile, error) {
	switch name {
	case "", "moderate":
		return kdf.ProfileModerate, nil
	case "interactive":
		return kdf.ProfileInteractive, nil
	case "sensitive":
		return kdf.ProfileSensitive, nil
	default:
		return 0, vaulterr.New(vaulterr.KdfFailure, "config.ParseKDFProfile", fmt.Sprintf("unknown KDF profile %q", name))
	}
}
