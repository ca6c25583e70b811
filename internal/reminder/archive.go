package reminder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"iptvpanel/internal/types"
)

// Archiver stores a purged ledger batch before it is deleted.
type Archiver interface {
	UploadArchive(ctx context.Context, key string, data []byte) error
}

// archiveExt is appended to every archive key.
const archiveExt = ".jsonl.zst"

// FileArchiver writes zstd-compressed archives under a local directory.
type FileArchiver struct {
	dir string
	enc *zstd.Encoder
}

// NewFileArchiver creates dir if needed.
func NewFileArchiver(dir string) (*FileArchiver, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &FileArchiver{dir: dir, enc: enc}, nil
}

// UploadArchive compresses data and writes it to dir/key.jsonl.zst. The file
// is written to a temporary name and renamed so readers never see a partial
// archive.
func (a *FileArchiver) UploadArchive(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := a.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	compressed := a.enc.EncodeAll(data, nil)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ledger-*")
	if err != nil {
		return fmt.Errorf("creating archive temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publishing archive %s: %w", path, err)
	}
	return nil
}

// Path returns the file an archive key is written to.
func (a *FileArchiver) Path(key string) string {
	key = strings.TrimPrefix(filepath.Clean("/"+key), "/")
	return filepath.Join(a.dir, key+archiveExt)
}

// EncodeJSONL serializes entries one JSON object per line.
func EncodeJSONL(entries []types.LedgerEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return nil, fmt.Errorf("encoding ledger entry %s: %w", entries[i].ID, err)
		}
	}
	return buf.Bytes(), nil
}

// ReadArchive decompresses and decodes an archive file.
func ReadArchive(path string) ([]types.LedgerEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	data, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing archive: %w", err)
	}

	var out []types.LedgerEntry
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e types.LedgerEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decoding archive line: %w", err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
