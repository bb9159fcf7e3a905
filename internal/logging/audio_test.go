package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAudioLoggerWritesStreamHeaderAndFrames(t *testing.T) {
	dir := t.TempDir()
	channels, bitsPerSample := 1, 16
	samplesPerChannel := 4
	blockSize := samplesPerChannel * channels * (bitsPerSample / 8)

	pp := NewAudioPingPong(blockSize)
	logger := NewAudioLogger(dir, 2000, pp, 96000, channels, bitsPerSample, blockSize, nil)

	go func() {
		_ = logger.Run()
	}()

	pp.Fill(0, false, func(buf []byte) {
		copy(buf, []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04})
	})
	time.Sleep(20 * time.Millisecond)
	logger.Close()
	time.Sleep(10 * time.Millisecond)

	path := filepath.Join(dir, "audio_2000_0.flac")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, len(data) > 42) // stream header (4 + 4 + 34) plus at least one frame
	require.Equal(t, []byte("fLaC"), data[:4])
}

func TestAudioLoggerSwitchesToDiscardOnDecodeFailure(t *testing.T) {
	dir := t.TempDir()
	pp := NewAudioPingPong(3) // odd size, not a multiple of the 2-byte frame size
	logger := NewAudioLogger(dir, 1000, pp, 96000, 1, 16, 3, nil)
	require.NoError(t, logger.rotate(0))

	logger.writeBlock([]byte{1, 2, 3}, false, 0)
	require.True(t, logger.discard)
}
