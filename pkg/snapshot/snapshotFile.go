package snapshot

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SnapshotFile is a dump on disk plus its "<name>.sha256" companion, laid
// out as "<hex sum> <file name>".
type SnapshotFile struct {
	Dir              string
	SnapshotFileName string
}

func newSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{
		Dir:              filepath.Dir(path),
		SnapshotFileName: filepath.Base(path),
	}
}

func (sf *SnapshotFile) FullPath() string {
	return filepath.Join(sf.Dir, sf.SnapshotFileName)
}

func (sf *SnapshotFile) HashFilePath() string {
	return filepath.Join(sf.Dir, fmt.Sprintf("%s.sha256", sf.SnapshotFileName))
}

func (sf *SnapshotFile) GenerateSnapshotHash() (string, error) {
	dumpFile, err := os.Open(sf.FullPath())
	if err != nil {
		return "", fmt.Errorf("error opening snapshot file: %w", err)
	}
	defer dumpFile.Close()

	hash := sha256.New()
	if _, err := io.CopyBuffer(hash, dumpFile, make([]byte, 1024*1024)); err != nil {
		return "", fmt.Errorf("error reading snapshot file: %w", err)
	}
	return strings.TrimPrefix(hexutil.Encode(hash.Sum(nil)), "0x"), nil
}

func (sf *SnapshotFile) GenerateAndSaveHash() error {
	sum, err := sf.GenerateSnapshotHash()
	if err != nil {
		return err
	}
	content := fmt.Sprintf("%s %s\n", sum, sf.SnapshotFileName)
	if err := os.WriteFile(sf.HashFilePath(), []byte(content), 0644); err != nil {
		return fmt.Errorf("error writing hash file: %w", err)
	}
	return nil
}

func (sf *SnapshotFile) ValidateHash() error {
	hashFile, err := os.ReadFile(sf.HashFilePath())
	if err != nil {
		return fmt.Errorf("error reading hash file: %w", err)
	}
	fields := strings.Fields(string(hashFile))
	if len(fields) == 0 {
		return fmt.Errorf("hash file %s is empty", sf.HashFilePath())
	}

	sum, err := sf.GenerateSnapshotHash()
	if err != nil {
		return err
	}
	if sum != fields[0] {
		return fmt.Errorf("hashes do not match: %s != %s", sum, fields[0])
	}
	return nil
}
