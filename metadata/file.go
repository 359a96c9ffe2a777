package metadata

import (
	"os"
	"path/filepath"

	"github.com/dpalmer/rvault/vaulterr"
	"github.com/opencoff/go-mmap"
)

// Path returns the fixed metadata file path within a vault directory.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load memory-maps the metadata file read-only, parses it, and returns an
// owning Record: all bytes are copied out of the mapping before it is torn
// down, so the returned Record remains valid after Load returns.
func Load(dir string) (*Record, error) {
	path := Path(dir)
	fd, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vaulterr.Wrap(vaulterr.NotFound, "metadata.Load", err)
		}
		return nil, vaulterr.Wrap(vaulterr.IoError, "metadata.Load", err)
	}
	defer fd.Close()

	info, err := fd.Stat()
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.IoError, "metadata.Load", err)
	}
	if info.Size() == 0 {
		return nil, vaulterr.New(vaulterr.CorruptMetadata, "metadata.Load", "metadata file is empty")
	}

	var rec *Record
	var parseErr error
	_, err = mmap.Reader(fd, func(b []byte) error {
		rec, parseErr = Parse(b)
		return nil
	})
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.IoError, "metadata.Load", err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return rec, nil
}

// Save writes a metadata record to dir using exclusive-create semantics:
// it fails with vaulterr.AlreadyExists if the file is present, and does
// not overwrite or truncate an existing file. The write is flushed with
// fsync of both the file and its containing directory before returning,
// per the durability requirement on vault initialization.
func Save(dir string, region, hmac []byte) error {
	path := Path(dir)
	fd, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return vaulterr.Wrap(vaulterr.AlreadyExists, "metadata.Save", err)
		}
		return vaulterr.Wrap(vaulterr.IoError, "metadata.Save", err)
	}

	if _, err := fd.Write(region); err != nil {
		fd.Close()
		os.Remove(path)
		return vaulterr.Wrap(vaulterr.IoError, "metadata.Save", err)
	}
	if _, err := fd.Write(hmac); err != nil {
		fd.Close()
		os.Remove(path)
		return vaulterr.Wrap(vaulterr.IoError, "metadata.Save", err)
	}
	if err := fd.Sync(); err != nil {
		fd.Close()
		os.Remove(path)
		return vaulterr.Wrap(vaulterr.IoError, "metadata.Save", err)
	}
	if err := fd.Close(); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, "metadata.Save", err)
	}

	if err := syncDir(dir); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, "metadata.Save", err)
	}
	return nil
}

func syncDir(dir string) error {
	df, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer df.Close()
	return df.Sync()
}

// Exists reports whether a metadata file is already present in dir.
func Exists(dir string) bool {
	_, err := os.Stat(Path(dir))
	return err == nil
}
