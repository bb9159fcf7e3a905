package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFillThenWaitReportsReadyIndex(t *testing.T) {
	p := NewAudioPingPong(4)
	done := make(chan struct{})
	defer close(done)

	p.Fill(1, false, func(buf []byte) { copy(buf, []byte{1, 2, 3, 4}) })

	idx, ok := p.Wait(done)
	require.True(t, ok)
	require.Equal(t, 1, idx)
}

func TestWithBlockSeesFilledDataAndOverflowFlag(t *testing.T) {
	p := NewAudioPingPong(2)
	p.Fill(0, true, func(buf []byte) { copy(buf, []byte{0xAB, 0xCD}) })

	var seen []byte
	var overflowed bool
	p.WithBlock(0, func(data []byte, o bool) {
		seen = append(seen, data...)
		overflowed = o
	})
	require.Equal(t, []byte{0xAB, 0xCD}, seen)
	require.True(t, overflowed)
}

func TestWaitUnblocksOnDoneWithoutFill(t *testing.T) {
	p := NewAudioPingPong(4)
	done := make(chan struct{})
	close(done)

	_, ok := p.Wait(done)
	require.False(t, ok)
}

func TestFillBlocksConcurrentWithBlockOnSameIndex(t *testing.T) {
	p := NewAudioPingPong(4)
	p.Fill(0, false, func(buf []byte) { copy(buf, []byte{1, 1, 1, 1}) })

	started := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		p.WithBlock(0, func(data []byte, overflowed bool) {
			close(started)
			time.Sleep(10 * time.Millisecond)
		})
		close(finished)
	}()

	<-started
	fillDone := make(chan struct{})
	go func() {
		p.Fill(0, false, func(buf []byte) { copy(buf, []byte{2, 2, 2, 2}) })
		close(fillDone)
	}()

	select {
	case <-fillDone:
		t.Fatal("Fill returned before the concurrent WithBlock released the lock")
	case <-time.After(3 * time.Millisecond):
	}
	<-finished
	<-fillDone
}
