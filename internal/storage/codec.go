package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType selects the codec applied to each column of a batch file.
type CompressionType uint8

const (
	CompressionNone CompressionType = 0x1
	CompressionZstd CompressionType = 0x2
	CompressionS2   CompressionType = 0x3
	CompressionLZ4  CompressionType = 0x4
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionS2:
		return "s2"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseCompression maps a configuration string onto a CompressionType. The
// empty string selects zstd.
func ParseCompression(s string) (CompressionType, error) {
	switch strings.ToLower(s) {
	case "", "zstd":
		return CompressionZstd, nil
	case "none":
		return CompressionNone, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

// Codec compresses column payloads. Decompress is given the original size,
// which is stored next to every column.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte, rawSize int) ([]byte, error)
}

// errIncompressible tells the writer to store a column uncompressed.
var errIncompressible = errors.New("data is incompressible")

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

// GetCodec returns the codec for compression type c.
func GetCodec(c CompressionType) (Codec, error) {
	switch c {
	case CompressionNone:
		return noopCodec{}, nil
	case CompressionZstd:
		zstdOnce.Do(func() {
			zstdEncoder, zstdErr = zstd.NewWriter(nil)
			if zstdErr != nil {
				return
			}
			zstdDecoder, zstdErr = zstd.NewReader(nil)
		})
		if zstdErr != nil {
			return nil, zstdErr
		}
		return zstdCodec{enc: zstdEncoder, dec: zstdDecoder}, nil
	case CompressionS2:
		return s2Codec{}, nil
	case CompressionLZ4:
		return lz4Codec{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", c)
	}
}

type noopCodec struct{}

func (noopCodec) Compress(data []byte) ([]byte, error) { return data, nil }

func (noopCodec) Decompress(data []byte, rawSize int) ([]byte, error) {
	if len(data) != rawSize {
		return nil, fmt.Errorf("stored column is %d bytes, expected %d", len(data), rawSize)
	}
	return data, nil
}

// zstdCodec uses the stateless EncodeAll/DecodeAll API, which is safe for
// concurrent use on a shared encoder and decoder.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func (c zstdCodec) Compress(data []byte) ([]byte, error) {
	return c.enc.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (c zstdCodec) Decompress(data []byte, rawSize int) ([]byte, error) {
	return c.dec.DecodeAll(data, make([]byte, 0, rawSize))
}

type s2Codec struct{}

func (s2Codec) Compress(data []byte) ([]byte, error) {
	return s2.Encode(nil, data), nil
}

func (s2Codec) Decompress(data []byte, _ int) ([]byte, error) {
	return s2.Decode(nil, data)
}

// lz4CompressorPool pools lz4.Compressor instances; each keeps a hash table
// that is worth reusing.
var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

type lz4Codec struct{}

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dst := make([]byte, lz4.CompressBlockBound(len(data)))

	lc, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	n, err := lc.CompressBlock(data, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func (lz4Codec) Decompress(data []byte, rawSize int) ([]byte, error) {
	if rawSize == 0 {
		return nil, nil
	}
	dst := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(data, dst)
	if err != nil {
		return nil, err
	}
	if n != rawSize {
		return nil, fmt.Errorf("lz4 column decoded to %d bytes, expected %d", n, rawSize)
	}
	return dst, nil
}
