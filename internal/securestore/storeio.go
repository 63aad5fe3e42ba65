package securestore

import (
	"fmt"
	"os"
	"path/filepath"
)

// ReadSealedFile reads and opens a file written by WriteSealedFile.
func ReadSealedFile(path, passphrase, label string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Open(passphrase, label, raw)
}

// WriteSealedFile seals plaintext and replaces path with it. The parent
// directory is created private; the file is written to a temp name first.
func WriteSealedFile(path, passphrase, label string, plaintext []byte) error {
	sealed, err := Seal(passphrase, label, plaintext)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(sealed); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
