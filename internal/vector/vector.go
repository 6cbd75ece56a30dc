// Package vector provides the embedding vector codec and similarity math.
package vector

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidVector is returned for empty, NaN or Inf-carrying vectors.
var ErrInvalidVector = errors.New("invalid vector")

// Encode serializes a vector to a little-endian BLOB: an int32 length
// prefix followed by the raw float32 values.
func Encode(vec []float32) ([]byte, error) {
	if err := Validate(vec); err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	buf.Grow(4 + 4*len(vec))
	if err := binary.Write(buf, binary.LittleEndian, int32(len(vec))); err != nil {
		return nil, fmt.Errorf("encode vector length: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil, fmt.Errorf("encode vector values: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a BLOB produced by Encode.
func Decode(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, ErrInvalidVector
	}
	buf := bytes.NewReader(data)
	var length int32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("decode vector length: %w", err)
	}
	if length < 0 || buf.Len() < int(length)*4 {
		return nil, ErrInvalidVector
	}
	vec := make([]float32, length)
	if err := binary.Read(buf, binary.LittleEndian, vec); err != nil {
		return nil, fmt.Errorf("decode vector values: %w", err)
	}
	return vec, nil
}

// Cosine computes cosine similarity between two vectors. Mismatched
// lengths or zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Validate rejects empty vectors and vectors containing NaN or Inf.
func Validate(vec []float32) error {
	if len(vec) == 0 {
		return ErrInvalidVector
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrInvalidVector
		}
	}
	return nil
}
