package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlacStreamHeaderStartsWithMagicAndLastBlockFlag(t *testing.T) {
	hdr := flacStreamHeader(128, 96000, 4, 24)
	require.Equal(t, []byte("fLaC"), hdr[:4])
	require.Equal(t, byte(0x80), hdr[4]&0x80) // last-metadata-block bit
	require.Equal(t, byte(0), hdr[4]&0x7F)    // STREAMINFO type == 0
}

func TestDecodeInterleavedPCMDeinterleavesAndSignExtends(t *testing.T) {
	// two channels, 16-bit, one frame each: ch0=-1 (0xFFFF), ch1=1 (0x0001)
	data := []byte{0xFF, 0xFF, 0x00, 0x01}
	channels, err := decodeInterleavedPCM(data, 2, 16)
	require.NoError(t, err)
	require.Equal(t, []int32{-1}, channels[0])
	require.Equal(t, []int32{1}, channels[1])
}

func TestDecodeInterleavedPCMRejectsMisalignedBlock(t *testing.T) {
	_, err := decodeInterleavedPCM([]byte{0x01, 0x02, 0x03}, 2, 16)
	require.Error(t, err)
}

func TestEncodeFrameProducesSyncCodeAndTerminatingCRC(t *testing.T) {
	samples := [][]int32{{1, 2, 3, 4}}
	frame, err := encodeFrame(0, 96000, 1, 16, 4, samples)
	require.NoError(t, err)
	require.Equal(t, byte(0xFF), frame[0])
	require.Equal(t, byte(0xF8), frame[1]&0xFC) // sync + reserved + fixed-blocksize bits
	n := len(frame)
	require.Equal(t, crc16(frame[:n-2]), uint16(frame[n-2])<<8|uint16(frame[n-1])) // frame footer CRC-16
}

func TestEncodeFrameRejectsChannelCountMismatch(t *testing.T) {
	_, err := encodeFrame(0, 96000, 2, 16, 4, [][]int32{{1, 2, 3, 4}})
	require.Error(t, err)
}

func TestEncodeFrameRejectsWrongSampleCount(t *testing.T) {
	_, err := encodeFrame(0, 96000, 1, 16, 8, [][]int32{{1, 2, 3, 4}})
	require.Error(t, err)
}

func TestSampleSizeCodeRejectsUnsupportedDepth(t *testing.T) {
	_, err := sampleSizeCode(10)
	require.Error(t, err)
}
