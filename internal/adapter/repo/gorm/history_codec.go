package gormrepo

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func historyCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

// compressHistory zstd-frames a packed history buffer for the bytea column.
func compressHistory(packed []byte) ([]byte, error) {
	enc, _, err := historyCodec()
	if err != nil {
		return nil, fmt.Errorf("history codec: %w", err)
	}
	return enc.EncodeAll(packed, make([]byte, 0, len(packed))), nil
}

func decompressHistory(stored []byte) ([]byte, error) {
	_, dec, err := historyCodec()
	if err != nil {
		return nil, fmt.Errorf("history codec: %w", err)
	}
	out, err := dec.DecodeAll(stored, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress history: %w", err)
	}
	return out, nil
}
