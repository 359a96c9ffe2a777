package fileobject

import (
	"os"
	"path/filepath"

	"github.com/dpalmer/rvault/crypto"
	"github.com/dpalmer/rvault/internal/util"
	"github.com/dpalmer/rvault/metadata"
	"github.com/dpalmer/rvault/vaulterr"
	"github.com/opencoff/go-fio"
)

// Write encrypts plaintext under a key derived from ctx for name, and
// atomically replaces the on-disk file object at dir/name. name is bound
// as associated data, so a file object cannot be silently renamed or
// swapped with another file's ciphertext without detection on read.
func Write(ctx *crypto.Context, dir, name string, plaintext []byte) error {
	key, err := ctx.FileKey(name)
	if err != nil {
		return err
	}
	defer util.WipeBytes(key)

	blob, err := crypto.Seal(ctx.Cipher(), key, plaintext, []byte(name))
	if err != nil {
		return vaulterr.Wrap(vaulterr.BadKey, "fileobject.Write", err)
	}

	tagLen, err := ctx.Cipher().TagLen()
	if err != nil {
		return err
	}
	if len(blob) < tagLen {
		return vaulterr.New(vaulterr.CorruptMetadata, "fileobject.Write", "sealed blob shorter than its own tag")
	}
	edata := blob[:len(blob)-tagLen]
	tag := blob[len(blob)-tagLen:]

	out := make([]byte, 0, alignedHeaderLen()+len(edata)+len(tag))
	out = append(out, marshalHeader(uint16(tagLen), uint64(len(edata)))...)
	out = append(out, edata...)
	out = append(out, tag...)

	path := filepath.Join(dir, name)
	sf, err := fio.NewSafeFile(path, fio.OPT_OVERWRITE, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return vaulterr.Wrap(vaulterr.IoError, "fileobject.Write", err)
	}
	defer sf.Abort()

	if _, err := sf.Write(out); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, "fileobject.Write", err)
	}
	if err := sf.Close(); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, "fileobject.Write", err)
	}
	return nil
}

// Read decrypts the file object at dir/name using a key derived from ctx,
// verifying its tag. A tampered or truncated file object, or one written
// under a different name, fails with vaulterr.AuthenticationFailed or
// vaulterr.CorruptMetadata as appropriate.
func Read(ctx *crypto.Context, dir, name string) ([]byte, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vaulterr.Wrap(vaulterr.NotFound, "fileobject.Read", err)
		}
		return nil, vaulterr.Wrap(vaulterr.IoError, "fileobject.Read", err)
	}

	hdr, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	hdrLen := alignedHeaderLen()
	total := uint64(hdrLen) + hdr.edataLen + uint64(hdr.hmacLen)
	if uint64(len(data)) != total {
		return nil, vaulterr.New(vaulterr.CorruptMetadata, "fileobject.Read", "length mismatch against header fields")
	}

	edata := data[hdrLen : uint64(hdrLen)+hdr.edataLen]
	tag := data[uint64(hdrLen)+hdr.edataLen:]
	blob := make([]byte, 0, len(edata)+len(tag))
	blob = append(blob, edata...)
	blob = append(blob, tag...)

	key, err := ctx.FileKey(name)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(key)

	plaintext, err := crypto.Open(ctx.Cipher(), key, blob, []byte(name))
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.AuthenticationFailed, "fileobject.Read", err)
	}
	return plaintext, nil
}

// Remove deletes the file object at dir/name.
func Remove(dir, name string) error {
	path := filepath.Join(dir, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return vaulterr.Wrap(vaulterr.NotFound, "fileobject.Remove", err)
		}
		return vaulterr.Wrap(vaulterr.IoError, "fileobject.Remove", err)
	}
	return nil
}

// Hidden reports whether name is invisible to directory iteration: names
// beginning with "." or matching the vault's reserved metadata file name
// are reserved for vault bookkeeping.
func Hidden(name string) bool {
	if name == "" {
		return true
	}
	if name[0] == '.' {
		return true
	}
	return name == metadata.FileName
}
