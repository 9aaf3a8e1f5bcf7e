package cowtree

import (
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Compressor is the capability a page's payload suffix is run through when
// the store's compression level is nonzero and the payload is large enough
// to be worth the attempt.
type Compressor interface {
	Compress(src []byte) ([]byte, error)
	Expand(src []byte, expandedLen int) ([]byte, error)
}

// fastCompressor favors speed over ratio, backed by s2.
type fastCompressor struct{}

func newFastCompressor() *fastCompressor { return &fastCompressor{} }

func (c *fastCompressor) Compress(src []byte) ([]byte, error) {
	return s2.Encode(nil, src), nil
}

func (c *fastCompressor) Expand(src []byte, expandedLen int) ([]byte, error) {
	dst := make([]byte, expandedLen)
	return s2.Decode(dst, src)
}

// highCompressor favors ratio over speed, backed by zstd. Encoder/decoder
// are reused across calls since both are safe for concurrent use and
// expensive to build.
type highCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newHighCompressor(level int) (*highCompressor, error) {
	zlevel := zstd.SpeedDefault
	switch {
	case level <= 1:
		zlevel = zstd.SpeedFastest
	case level >= 4:
		zlevel = zstd.SpeedBestCompression
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zlevel))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &highCompressor{encoder: enc, decoder: dec}, nil
}

func (c *highCompressor) Compress(src []byte) ([]byte, error) {
	return c.encoder.EncodeAll(src, nil), nil
}

func (c *highCompressor) Expand(src []byte, expandedLen int) ([]byte, error) {
	dst := make([]byte, 0, expandedLen)
	return c.decoder.DecodeAll(src, dst)
}

// tryCompress attempts to compress payload with the store's configured
// compressor, returning the encoded bytes, the varint-addable length delta,
// whether the high compressor was used, and whether compression actually
// paid for itself (compressed length plus the delta's varint encoding must
// still beat the uncompressed length).
func tryCompress(store *Store, payload []byte) (compressed []byte, addedLen int, high bool, ok bool) {
	useHigh := store.getCompressionLevel() >= 3
	var comp Compressor
	if useHigh {
		comp = store.getCompressorHigh()
	} else {
		comp = store.getCompressorFast()
	}
	if comp == nil {
		return nil, 0, false, false
	}

	out, err := comp.Compress(payload)
	if err != nil {
		return nil, 0, false, false
	}

	delta := len(payload) - len(out)
	if delta <= 0 {
		return nil, 0, false, false
	}
	if len(out)+varUintLen(uint64(delta)) >= len(payload) {
		return nil, 0, false, false
	}
	return out, delta, useHigh, true
}

// varUintLen returns the number of bytes PutVarUint would write for v.
func varUintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
