package persistence

import (
	"errors"
	"fmt"
)

const (
	// MagicNumber identifies bowgo snapshot files (ASCII: "BOW1").
	MagicNumber = 0x424F5731
	// Version is the current file format version.
	Version = 1
)

var (
	ErrInvalidMagic       = errors.New("invalid magic number")
	ErrInvalidVersion     = errors.New("unsupported version")
	ErrUnknownCompression = errors.New("unknown compression")
	ErrCorrupt            = errors.New("corrupt snapshot")
)

// Compression selects how the snapshot body is compressed.
type Compression uint8

const (
	// CompressionNone stores the body as is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZstd uses zstd (better ratio).
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// ParseCompression parses the names returned by Compression.String.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

// FileHeader is the 40-byte header at the start of every snapshot.
type FileHeader struct {
	Magic       uint32 // 0x424F5731 ("BOW1")
	Version     uint32
	Compression Compression
	_           [3]byte
	Level       int32   // vocabulary level of the stored level features
	RawSize     uint64  // uncompressed body size
	StoredSize  uint64  // body size as written
	_           [8]byte // reserved
}

const headerSize = 40

func (h *FileHeader) validate() error {
	if h.Magic != MagicNumber {
		return fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, h.Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("%w: got %d", ErrInvalidVersion, h.Version)
	}
	if h.Level < 1 {
		return fmt.Errorf("%w: level %d", ErrCorrupt, h.Level)
	}
	if h.RawSize > maxRawSize {
		return fmt.Errorf("%w: body of %d bytes", ErrCorrupt, h.RawSize)
	}
	if ratio := maxRatio(h.Compression); ratio > 0 && h.RawSize > h.StoredSize*ratio {
		return fmt.Errorf("%w: %d stored bytes cannot expand to %d with %s",
			ErrCorrupt, h.StoredSize, h.RawSize, h.Compression)
	}
	return nil
}

// maxRawSize bounds the decompression buffer.
const maxRawSize = 1 << 34

// maxRatio is the largest expansion a codec can produce, or 0 if unknown.
// An LZ4 sequence encodes at most 255 bytes per input byte; a zstd RLE block
// expands 4 bytes into 128 KiB.
func maxRatio(c Compression) uint64 {
	switch c {
	case CompressionNone:
		return 1
	case CompressionLZ4:
		return 255
	case CompressionZstd:
		return 1 << 15
	default:
		return 0
	}
}
