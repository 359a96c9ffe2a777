package vault

import (
	"log/slog"
	"os"

	"github.com/dpalmer/rvault/crypto"
	"github.com/dpalmer/rvault/escrow"
	"github.com/dpalmer/rvault/kdf"
	"github.com/dpalmer/rvault/metadata"
)

// Option configures Init or Open. OpenEKey takes no options.
type Option func(*settings)

type settings struct {
	serverURL  string
	client     escrow.Client
	cipher     crypto.ID
	flags      metadata.Flags
	kdfProfile kdf.Profile
	authSetup  escrow.AuthSetup
	totpToken  string
	logger     *slog.Logger
}

func defaultSettings() *settings {
	return &settings{
		cipher:     crypto.DefaultCipher,
		kdfProfile: kdf.ProfileModerate,
		logger:     slog.New(slog.NewJSONHandler(os.Stderr, nil)),
	}
}

// WithServerURL records the escrow server's base URL. Required unless the
// vault is initialized or opened with metadata.FlagNOAUTH set.
func WithServerURL(url string) Option {
	return func(s *settings) { s.serverURL = url }
}

// WithEscrowClient supplies the escrow.Client used to reach the server
// named by WithServerURL. Required alongside WithServerURL whenever the
// vault is not NOAUTH.
func WithEscrowClient(c escrow.Client) Option {
	return func(s *settings) { s.client = c }
}

// WithCipher selects the cipher suite for a new vault. Ignored by Open,
// which reads the cipher from the stored metadata.
func WithCipher(id crypto.ID) Option {
	return func(s *settings) { s.cipher = id }
}

// WithFlags sets the metadata header flags for a new vault, e.g.
// metadata.FlagNOAUTH.
func WithFlags(f metadata.Flags) Option {
	return func(s *settings) { s.flags = f }
}

// WithKDFProfile selects the scrypt cost tier for a new vault. Ignored by
// Open, which reads the KDF parameters from the stored metadata.
func WithKDFProfile(p kdf.Profile) Option {
	return func(s *settings) { s.kdfProfile = p }
}

// WithAuthSetup supplies the second-factor registration material passed to
// the escrow server's Register call during Init. The caller, not the
// core, is responsible for producing valid setup material: generating a
// vault-specific TOTP secret and provisioning it out of band is a
// collaborator concern.
func WithAuthSetup(a escrow.AuthSetup) Option {
	return func(s *settings) { s.authSetup = a }
}

// WithTOTPToken supplies the second-factor token presented to the escrow
// server's Fetch call during Open.
func WithTOTPToken(token string) Option {
	return func(s *settings) { s.totpToken = token }
}

// WithLogger overrides the default JSON logger. The vault core logs only
// at critical failure points: base path errors, metadata corruption,
// version mismatches, HMAC verification failures, and an existing metadata
// record found by Init, never at every operation.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}
