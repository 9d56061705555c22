package vectorindex

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/lexical"
)

// Vectors are stored as little-endian blobs: dense as n float32s, sparse
// as a uint32 count followed by the indices and then the values.

func encodeDense(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeDense(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("dense blob length %d not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}

func encodeSparse(v lexical.SparseVector) []byte {
	n := len(v.Indices)
	buf := make([]byte, 4+8*n)
	binary.LittleEndian.PutUint32(buf, uint32(n))
	for i, idx := range v.Indices {
		binary.LittleEndian.PutUint32(buf[4+4*i:], idx)
	}
	off := 4 + 4*n
	for i, f := range v.Values {
		binary.LittleEndian.PutUint32(buf[off+4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeSparse(buf []byte) (lexical.SparseVector, error) {
	if len(buf) < 4 {
		return lexical.SparseVector{}, fmt.Errorf("sparse blob too short: %d bytes", len(buf))
	}
	n := int(binary.LittleEndian.Uint32(buf))
	if len(buf) != 4+8*n {
		return lexical.SparseVector{}, fmt.Errorf("sparse blob holds %d bytes for %d entries", len(buf), n)
	}
	v := lexical.SparseVector{
		Indices: make([]uint32, n),
		Values:  make([]float32, n),
	}
	off := 4 + 4*n
	for i := 0; i < n; i++ {
		v.Indices[i] = binary.LittleEndian.Uint32(buf[4+4*i:])
		v.Values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4*i:]))
	}
	return v, nil
}
