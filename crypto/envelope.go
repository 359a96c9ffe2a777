package crypto

import (
	"github.com/dpalmer/rvault/internal/util"
	"github.com/dpalmer/rvault/vaulterr"
)

// envelopeWrapInfo is the fixed HKDF info string used to derive the
// envelope-wrap subkey from K_p. The wrap step is deliberately
// unauthenticated: correctness of the key it carries is verified
// downstream by the metadata HMAC (see metadata.Verify), so a second,
// independent authentication tag on the envelope itself would be
// redundant and would only give an attacker a second oracle to probe.
var envelopeWrapInfo = []byte("rvault-envelope-wrap-v1")

// WrapEnvelope encrypts plaintext (K_e) under a subkey derived from kek
// (K_p), producing K_s. The scheme is a plain ChaCha20 stream cipher with
// a random nonce, independent of whichever cipher the vault itself uses
// for file payloads: the envelope only ever needs to move one 32-byte key
// between the vault and the escrow server.
func WrapEnvelope(kek, plaintext []byte) ([]byte, error) {
	wrapKey, err := util.HKDF(kek, nil, envelopeWrapInfo)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KdfFailure, "crypto.WrapEnvelope", err)
	}
	defer util.WipeBytes(wrapKey)

	nonce, err := util.RandomBytes(util.ChaCha20NonceSize)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.RngFailure, "crypto.WrapEnvelope", err)
	}
	ct, err := util.EncryptChaCha20(plaintext, wrapKey, nonce)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.BadKey, "crypto.WrapEnvelope", err)
	}
	return append(nonce, ct...), nil
}

// UnwrapEnvelope reverses WrapEnvelope. It cannot itself detect a wrong
// kek: that only surfaces once the recovered key fails the metadata HMAC
// check, by design.
func UnwrapEnvelope(kek, blob []byte) ([]byte, error) {
	if len(blob) < util.ChaCha20NonceSize {
		return nil, vaulterr.New(vaulterr.BadKey, "crypto.UnwrapEnvelope", "envelope shorter than a nonce")
	}
	wrapKey, err := util.HKDF(kek, nil, envelopeWrapInfo)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.KdfFailure, "crypto.UnwrapEnvelope", err)
	}
	defer util.WipeBytes(wrapKey)

	nonce, ct := blob[:util.ChaCha20NonceSize], blob[util.ChaCha20NonceSize:]
	pt, err := util.DecryptChaCha20(ct, wrapKey, nonce)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.BadKey, "crypto.UnwrapEnvelope", err)
	}
	return pt, nil
}
