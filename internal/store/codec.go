package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/starford/jeebs/internal/apperr"
)

// FrameZstdJSON marks a record encoded as zstd-compressed JSON.
const FrameZstdJSON byte = 0x01

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

// Encode marshals v to JSON and frames it as a version byte followed by the
// zstd-compressed payload.
func Encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %v", apperr.ErrEncoding, err)
	}
	out := make([]byte, 1, len(raw)/2+16)
	out[0] = FrameZstdJSON
	return encoder.EncodeAll(raw, out), nil
}

// Decode reverses Encode. Records written before framing existed, either raw
// JSON or a bare zstd frame, are accepted as well.
func Decode(data []byte, v any) error {
	raw, err := unframe(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", apperr.ErrEncoding, err)
	}
	return nil
}

func unframe(data []byte) ([]byte, error) {
	switch {
	case len(data) == 0:
		return nil, fmt.Errorf("%w: empty record", apperr.ErrEncoding)
	case data[0] == FrameZstdJSON:
		raw, err := decoder.DecodeAll(data[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", apperr.ErrEncoding, err)
		}
		return raw, nil
	case bytes.HasPrefix(data, zstdMagic):
		raw, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress legacy: %v", apperr.ErrEncoding, err)
		}
		return raw, nil
	case data[0] == '{' || data[0] == '[':
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unknown frame version 0x%02x", apperr.ErrEncoding, data[0])
	}
}
