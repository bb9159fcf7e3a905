// FLAC container writer. No ecosystem FLAC encoder in the reference
// pack accepts fixed-size raw-PCM blocks streamed frame-by-frame as
// they arrive off hardware, so this writes the FLAC container directly:
// one VERBATIM subframe per channel per block, which stores samples
// uncompressed but keeps the file a conformant, seekable FLAC stream
// any decoder can open. This is the one deliberately hand-rolled
// domain component in this package (see csv.go's package doc and
// DESIGN.md).
package logging

import (
	"encoding/binary"
	"fmt"
)

const (
	subframeConstant = 0
	subframeVerbatim = 1
)

// flacStreamInfoBlock renders the mandatory STREAMINFO metadata block
// (including its 4-byte block header), with min/max framesize left
// unknown (0) since VERBATIM frame size varies with overflow padding.
func flacStreamInfoBlock(blockSize, sampleRate, channels, bitsPerSample int) []byte {
	var w bitWriter
	w.WriteBits(uint64(blockSize), 16) // min blocksize
	w.WriteBits(uint64(blockSize), 16) // max blocksize
	w.WriteBits(0, 24)                 // min framesize (unknown)
	w.WriteBits(0, 24)                 // max framesize (unknown)
	w.WriteBits(uint64(sampleRate), 20)
	w.WriteBits(uint64(channels-1), 3)
	w.WriteBits(uint64(bitsPerSample-1), 5)
	w.WriteBits(0, 36) // total samples unknown (streaming)
	body := w.Bytes()
	body = append(body, make([]byte, 16)...) // zeroed MD5 signature

	header := make([]byte, 4)
	header[0] = 0x80 // last-metadata-block flag set, type 0 (STREAMINFO)
	header[1] = byte(len(body) >> 16)
	header[2] = byte(len(body) >> 8)
	header[3] = byte(len(body))
	return append(header, body...)
}

// flacStreamHeader returns "fLaC" followed by the STREAMINFO block.
func flacStreamHeader(blockSize, sampleRate, channels, bitsPerSample int) []byte {
	return append([]byte("fLaC"), flacStreamInfoBlock(blockSize, sampleRate, channels, bitsPerSample)...)
}

// blockSizeCode returns the 4-bit block-size field and the width in bits
// (0, 8 or 16) of the blockSize-1 field written at the end of the frame
// header, which is used when blockSize doesn't match one of FLAC's fixed
// codes.
func blockSizeCode(blockSize int) (code uint64, extraBits int) {
	switch blockSize {
	case 192:
		return 0b0001, 0
	case 576, 1152, 2304, 4608:
		// FLAC has fixed codes for these; this writer uses the explicit
		// 8/16-bit form below instead.
	}
	if blockSize >= 1 && blockSize <= 256 {
		return 0b0110, 8
	}
	return 0b0111, 16
}

func sampleRateCode(sampleRate int) (code uint64, extraBits int) {
	switch sampleRate {
	case 8000:
		return 0b0100, 0
	case 16000:
		return 0b0101, 0
	case 22050:
		return 0b0110, 0
	case 24000:
		return 0b0111, 0
	case 32000:
		return 0b1000, 0
	case 44100:
		return 0b1001, 0
	case 48000:
		return 0b1010, 0
	case 96000:
		return 0b1011, 0
	case 192000:
		return 0b0011, 0
	}
	// 1101 means "get 16-bit sample rate in Hz from the end of the header".
	return 0b1101, 16
}

// encodeFrame packs one block of interleaved PCM samples (channels
// channels, bitsPerSample each, big-endian as the AD7768 streams them)
// into one FLAC frame using VERBATIM subframes.
func encodeFrame(frameNumber uint64, sampleRate, channels, bitsPerSample, blockSize int, samples [][]int32) ([]byte, error) {
	if len(samples) != channels {
		return nil, fmt.Errorf("logging: encodeFrame: got %d channels, want %d", len(samples), channels)
	}
	for _, ch := range samples {
		if len(ch) != blockSize {
			return nil, fmt.Errorf("logging: encodeFrame: channel has %d samples, want %d", len(ch), blockSize)
		}
	}

	var hdr bitWriter
	hdr.WriteBits(0x3FFE, 14) // sync code
	hdr.WriteBits(0, 1)       // reserved
	hdr.WriteBits(0, 1)       // fixed-blocksize stream

	bsCode, bsExtra := blockSizeCode(blockSize)
	hdr.WriteBits(bsCode, 4)

	srCode, srExtra := sampleRateCode(sampleRate)
	hdr.WriteBits(srCode, 4)

	if channels < 1 || channels > 8 {
		return nil, fmt.Errorf("logging: encodeFrame: unsupported channel count %d", channels)
	}
	hdr.WriteBits(uint64(channels-1), 4) // independent channel assignment

	bpsCode, err := sampleSizeCode(bitsPerSample)
	if err != nil {
		return nil, err
	}
	hdr.WriteBits(bpsCode, 3)
	hdr.WriteBits(0, 1) // reserved

	headerBytes := hdr.Bytes()
	headerBytes = append(headerBytes, encodeFrameNumber(frameNumber)...)

	if bsExtra == 8 {
		headerBytes = append(headerBytes, byte(blockSize-1))
	} else if bsExtra == 16 {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(blockSize-1))
		headerBytes = append(headerBytes, b...)
	}
	if srExtra == 16 {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(sampleRate))
		headerBytes = append(headerBytes, b...)
	}

	headerBytes = append(headerBytes, crc8(headerBytes))

	var body bitWriter
	for _, ch := range samples {
		writeVerbatimSubframe(&body, ch, bitsPerSample)
	}
	frame := append(headerBytes, body.Bytes()...)

	crc := crc16(frame)
	crcBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(crcBytes, crc)
	return append(frame, crcBytes...), nil
}

func writeVerbatimSubframe(w *bitWriter, samples []int32, bitsPerSample int) {
	w.WriteBits(0, 1)                    // mandatory zero bit
	w.WriteBits(subframeVerbatim, 6)     // subframe type
	w.WriteBits(0, 1)                    // no wasted bits
	for _, s := range samples {
		w.WriteBits(uint64(uint32(s))&((1<<uint(bitsPerSample))-1), bitsPerSample)
	}
}

func sampleSizeCode(bitsPerSample int) (uint64, error) {
	switch bitsPerSample {
	case 8:
		return 0b001, nil
	case 12:
		return 0b010, nil
	case 16:
		return 0b100, nil
	case 20:
		return 0b101, nil
	case 24:
		return 0b110, nil
	default:
		return 0, fmt.Errorf("logging: unsupported bit depth %d", bitsPerSample)
	}
}

// decodeInterleavedPCM splits a raw big-endian interleaved PCM block
// into one []int32 slice per channel, sign-extending samples narrower
// than 32 bits.
func decodeInterleavedPCM(data []byte, channels, bitsPerSample int) ([][]int32, error) {
	bytesPerSample := (bitsPerSample + 7) / 8
	frameBytes := bytesPerSample * channels
	if len(data)%frameBytes != 0 {
		return nil, fmt.Errorf("logging: block size %d not a multiple of frame size %d", len(data), frameBytes)
	}
	blockSize := len(data) / frameBytes

	out := make([][]int32, channels)
	for c := range out {
		out[c] = make([]int32, blockSize)
	}

	signBit := int32(1) << uint(bitsPerSample-1)
	for i := 0; i < blockSize; i++ {
		for c := 0; c < channels; c++ {
			off := i*frameBytes + c*bytesPerSample
			var v int32
			for b := 0; b < bytesPerSample; b++ {
				v = v<<8 | int32(data[off+b])
			}
			if v&signBit != 0 {
				v -= signBit << 1
			}
			out[c][i] = v
		}
	}
	return out, nil
}
