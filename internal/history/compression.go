// internal/history/compression.go
package history

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstd frames start with this magic; raw snapshots never do, so stored
// blobs are self-describing without a format byte.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// codec compresses snapshot text above minSize and transparently
// decompresses on the way out.
type codec struct {
	minSize int
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newCodec(minSize int) (*codec, error) {
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &codec{
		minSize: minSize,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

func (c *codec) encode(content string) []byte {
	raw := []byte(content)
	if len(raw) < c.minSize {
		return raw
	}
	return c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
}

func (c *codec) decode(stored []byte) (string, error) {
	if !bytes.HasPrefix(stored, zstdMagic) {
		return string(stored), nil
	}

	raw, err := c.decoder.DecodeAll(stored, nil)
	if err != nil {
		return "", fmt.Errorf("decompressing: %w", err)
	}
	return string(raw), nil
}
