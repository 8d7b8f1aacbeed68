package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrDecode marks a chunk that could not be turned into audio.
var ErrDecode = errors.New("audio decode failed")

// Decode turns a base64 payload from the backend into raw bytes.
func Decode(b64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
	}
	return data, nil
}

// DecodeAudioData de-interleaves little-endian int16 PCM into a Buffer.
// Samples are scaled by 1/32768 so every value lands in [-1, 1).
func DecodeAudioData(data []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: invalid format %d Hz / %d ch", ErrDecode, sampleRate, channels)
	}
	frameBytes := channels * 2
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-byte frames", ErrDecode, len(data), frameBytes)
	}

	frames := len(data) / frameBytes
	buf := NewBuffer(channels, frames, sampleRate)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			s := int16(binary.LittleEndian.Uint16(data[off : off+2]))
			buf.Data[ch][i] = float64(s) / 32768.0
		}
	}
	return buf, nil
}

// DecodeChunk decodes one backend audio chunk at the stream format.
func DecodeChunk(b64 string) (*Buffer, error) {
	data, err := Decode(b64)
	if err != nil {
		return nil, err
	}
	return DecodeAudioData(data, SampleRate, Channels)
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// FloatToInt16 quantises rendered samples, clipping to the int16 range.
func FloatToInt16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		if math.IsNaN(v) {
			continue
		}
		scaled := math.Round(v * 32767)
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		out[i] = int16(scaled)
	}
	return out
}
