// Package subfeed is the subscriber's received-element store. It persists
// the raw bytes of every accepted PUT to <ts>.dat, and, when diff mode is
// enabled, additionally computes a compact delta against the previously
// received element and stores it compressed alongside the raw file.
package subfeed

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"p3sub/internal/logging"
)

// Codec selects the compression codec for diff artifacts.
type Codec string

const (
	// CodecSnappy compresses diff artifacts with snappy, favoring speed.
	CodecSnappy Codec = "snappy"
	// CodecZstd compresses diff artifacts with zstd, favoring ratio.
	CodecZstd Codec = "zstd"
)

// Store persists received feed elements for one subscriber.
type Store struct {
	dir   string
	diff  bool
	codec Codec
	log   *logging.Logger

	mu       sync.Mutex
	lastBody []byte
}

// New constructs a Store rooted at dir, creating it if necessary. When diff
// is false, the store is a pure pass-through to <ts>.dat and never touches
// lastBody or the codec.
func New(dir string, diff bool, codec Codec, log *logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.L()
	}
	if codec == "" {
		codec = CodecSnappy
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("subfeed: create received directory: %w", err)
	}
	return &Store{dir: dir, diff: diff, codec: codec, log: log}, nil
}

// Write persists body as <ts>.dat and, in diff mode, additionally writes a
// compressed delta against the previously written body. It never omits or
// alters the raw <ts>.dat write.
func (s *Store) Write(ts string, body []byte) error {
	rawPath := filepath.Join(s.dir, ts+".dat")
	if err := os.WriteFile(rawPath, body, 0o644); err != nil {
		return fmt.Errorf("subfeed: write %s: %w", rawPath, err)
	}

	if !s.diff {
		return nil
	}

	s.mu.Lock()
	previous := s.lastBody
	s.lastBody = append([]byte(nil), body...)
	s.mu.Unlock()

	delta := encodeDelta(previous, body)
	compressed, ext, err := s.compress(delta)
	if err != nil {
		return fmt.Errorf("subfeed: compress delta for %s: %w", ts, err)
	}

	diffPath := filepath.Join(s.dir, ts+".diff."+ext)
	if err := os.WriteFile(diffPath, compressed, 0o644); err != nil {
		return fmt.Errorf("subfeed: write %s: %w", diffPath, err)
	}
	s.log.Debug("wrote diff artifact", logging.String("path", diffPath), logging.Int("bytes", len(compressed)))
	return nil
}

func (s *Store) compress(data []byte) ([]byte, string, error) {
	switch s.codec {
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, "", err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), "zst", nil
	default:
		return snappy.Encode(nil, data), "snap", nil
	}
}

// encodeDelta produces a minimal common-prefix/common-suffix delta of
// newBody against oldBody: a 4-byte prefix length, a 4-byte suffix length,
// then the differing middle section of newBody. A nil oldBody (the first
// element received) yields a zero-length prefix/suffix and the whole body
// as the middle section.
func encodeDelta(oldBody, newBody []byte) []byte {
	prefixLen := commonPrefixLen(oldBody, newBody)
	suffixLen := commonSuffixLen(oldBody[prefixLen:], newBody[prefixLen:])
	middle := newBody[prefixLen : len(newBody)-suffixLen]

	out := make([]byte, 8+len(middle))
	binary.BigEndian.PutUint32(out[0:4], uint32(prefixLen))
	binary.BigEndian.PutUint32(out[4:8], uint32(suffixLen))
	copy(out[8:], middle)
	return out
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}
