// Package codec converts one sample at a time between a packed PCM byte
// frame and the engine's native float32 sample. Every function here is pure
// and total: it runs once per sample per channel inside the real-time
// callback, so it must never allocate, branch unpredictably, or fail.
package codec

import (
	"encoding/binary"
	"math"

	"pcmbridge/internal/pcmformat"
)

// Encode writes one sample, in [-1.0, +1.0), into out as a packed PCM value
// per f. out must have length >= f.SampleSizeBytes().
//
// Integer encodings quantize via round(sample*scale)+offset and clamp the
// pre-offset quantity to [-scale, scale-1] before packing, rather than
// wrapping on overflow (see the "Clamp-on-encode" design note).
func Encode(sample float32, f pcmformat.Format, out []byte) {
	if f.Kind == pcmformat.Float {
		encodeFloat(float64(sample), f.Endian, out)
		return
	}

	scale := f.Scale()
	signed := math.Round(float64(sample) * scale)
	if signed > scale-1 {
		signed = scale - 1
	}
	if signed < -scale {
		signed = -scale
	}

	packInt(out, int64(signed)+int64(f.Offset()), f.SampleSizeBytes(), f.Endian)
}

// Decode reads one packed PCM value from in (length >= f.SampleSizeBytes())
// and returns the corresponding float32 sample, in [-1.0, +1.0].
func Decode(in []byte, f pcmformat.Format) float32 {
	if f.Kind == pcmformat.Float {
		return float32(decodeFloat(in, f.Endian))
	}

	raw := unpackInt(in, f.SampleSizeBytes(), f.Endian, f.Kind == pcmformat.Signed)
	return float32((float64(raw) - f.Offset()) / f.Scale())
}

func encodeFloat(sample float64, endian pcmformat.Endian, out []byte) {
	bits := math.Float32bits(float32(sample))
	if endian == pcmformat.BigEndian {
		binary.BigEndian.PutUint32(out, bits)
	} else {
		binary.LittleEndian.PutUint32(out, bits)
	}
}

func decodeFloat(in []byte, endian pcmformat.Endian) float64 {
	var bits uint32
	if endian == pcmformat.BigEndian {
		bits = binary.BigEndian.Uint32(in)
	} else {
		bits = binary.LittleEndian.Uint32(in)
	}
	return float64(math.Float32frombits(bits))
}

// packInt serializes the low n*8 bits of v into n bytes in the requested
// byte order. n is 1, 2, 3, or 4 — always exactly the sample's byte width,
// so no bit-level masking is needed beyond the natural byte truncation.
func packInt(out []byte, v int64, n int, endian pcmformat.Endian) {
	for i := 0; i < n; i++ {
		shift := byteShift(i, n, endian)
		out[i] = byte(v >> shift)
	}
}

// unpackInt assembles n bytes (in the requested byte order) into a 64-bit
// integer, sign-extending from n*8 bits when signed is true.
func unpackInt(in []byte, n int, endian pcmformat.Endian, signed bool) int64 {
	var u uint64
	for i := 0; i < n; i++ {
		shift := byteShift(i, n, endian)
		u |= uint64(in[i]) << shift
	}

	bits := uint(n * 8)
	if signed {
		signBit := uint64(1) << (bits - 1)
		if u&signBit != 0 {
			u |= ^uint64(0) << bits
		}
	}
	return int64(u)
}

func byteShift(i, n int, endian pcmformat.Endian) uint {
	if endian == pcmformat.LittleEndian {
		return uint(i * 8)
	}
	return uint((n - 1 - i) * 8)
}
