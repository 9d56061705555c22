// Package encoderstate persists fitted lexical term statistics so they can
// be reused across runs without refitting. State is written as a small
// self-describing container: a fixed header (magic, version, codec, payload
// length, CRC32) followed by a JSON counter table, optionally compressed.
package encoderstate

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/lexical"
)

const (
	MagicBytes    uint32 = 0x53545348 // "HSTS"
	FormatVersion uint32 = 1
	HeaderSize    int    = 28

	maxPayloadSize = 1 << 30
)

// Codec identifies how the payload is compressed.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecZSTD Codec = 1
	CodecLZ4  Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZSTD:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec maps a config name onto a Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return CodecNone, nil
	case "zstd":
		return CodecZSTD, nil
	case "lz4":
		return CodecLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// Header is the fixed-size prefix of every state blob.
type Header struct {
	Magic      uint32
	Version    uint32
	Codec      Codec
	PayloadLen uint64
	Checksum   uint32
}

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayloadSize))
)

// Marshal serialises stats into a state blob.
func Marshal(stats *lexical.TermStatistics, codec Codec) ([]byte, error) {
	if stats == nil {
		return nil, fmt.Errorf("cannot marshal nil statistics")
	}
	raw, err := json.Marshal(stats.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshaling term statistics: %w", err)
	}
	payload, err := compress(raw, codec)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, HeaderSize, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(buf[4:8], FormatVersion)
	buf[8] = byte(codec)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(len(payload)))
	binary.LittleEndian.PutUint32(buf[20:24], crc32.ChecksumIEEE(payload))
	return append(buf, payload...), nil
}

// ReadHeader parses and checks the fixed header.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("state blob is %d bytes, shorter than the %d byte header", len(data), HeaderSize)
	}
	h := Header{
		Magic:      binary.LittleEndian.Uint32(data[0:4]),
		Version:    binary.LittleEndian.Uint32(data[4:8]),
		Codec:      Codec(data[8]),
		PayloadLen: binary.LittleEndian.Uint64(data[12:20]),
		Checksum:   binary.LittleEndian.Uint32(data[20:24]),
	}
	if h.Magic != MagicBytes {
		return h, fmt.Errorf("bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return h, fmt.Errorf("unsupported format version %d (want %d)", h.Version, FormatVersion)
	}
	if h.Codec > CodecLZ4 {
		return h, fmt.Errorf("unknown payload %s", h.Codec)
	}
	return h, nil
}

// Unmarshal parses a state blob back into statistics.
func Unmarshal(data []byte) (*lexical.TermStatistics, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	payload := data[HeaderSize:]
	if uint64(len(payload)) != h.PayloadLen {
		return nil, fmt.Errorf("payload is %d bytes, header says %d", len(payload), h.PayloadLen)
	}
	if sum := crc32.ChecksumIEEE(payload); sum != h.Checksum {
		return nil, fmt.Errorf("checksum mismatch: got %08x, header says %08x", sum, h.Checksum)
	}
	raw, err := decompress(payload, h.Codec)
	if err != nil {
		return nil, err
	}
	var snap lexical.Snapshot
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding term statistics: %w", err)
	}
	stats, err := lexical.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("validating term statistics: %w", err)
	}
	return stats, nil
}

func compress(raw []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return raw, nil
	case CodecZSTD:
		return zstdEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	case CodecLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, fmt.Errorf("lz4 compressing state: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compressing state: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown %s", codec)
	}
}

func decompress(payload []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return payload, nil
	case CodecZSTD:
		raw, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompressing state: %w", err)
		}
		return raw, nil
	case CodecLZ4:
		raw, err := io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(payload)), maxPayloadSize))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompressing state: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown %s", codec)
	}
}
