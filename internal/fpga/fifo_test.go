package fpga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// fakeSPIConn is a minimal spi.Conn that returns a fixed payload on Tx,
// sized to the caller's read buffer.
type fakeSPIConn struct {
	payload []byte
	err     error
	txCount int
}

func (f *fakeSPIConn) String() string       { return "fakeSPIConn" }
func (f *fakeSPIConn) Duplex() conn.Duplex  { return conn.Full }
func (f *fakeSPIConn) Tx(w, r []byte) error {
	f.txCount++
	if f.err != nil {
		return f.err
	}
	copy(r, f.payload)
	return nil
}
func (f *fakeSPIConn) TxPackets(pkts []spi.Packet) error {
	for _, p := range pkts {
		if err := f.Tx(p.W, p.R); err != nil {
			return err
		}
	}
	return nil
}

// fakeEdgePin delivers one WaitForEdge(true) per queued edge, then false
// forever, matching FIFODrain.Next's "block until a data-ready edge"
// contract without a real GPIO line.
type fakeEdgePin struct {
	edges []bool
	level gpio.Level
}

func (f *fakeEdgePin) String() string                { return "fakeEdgePin" }
func (f *fakeEdgePin) Halt() error                    { return nil }
func (f *fakeEdgePin) Name() string                   { return "fakeEdgePin" }
func (f *fakeEdgePin) Number() int                    { return 0 }
func (f *fakeEdgePin) Function() string               { return "fake" }
func (f *fakeEdgePin) DefaultPull() gpio.Pull         { return gpio.Float }
func (f *fakeEdgePin) In(gpio.Pull, gpio.Edge) error  { return nil }
func (f *fakeEdgePin) Read() gpio.Level               { return f.level }
func (f *fakeEdgePin) WaitForEdge(time.Duration) bool {
	if len(f.edges) == 0 {
		return false
	}
	got := f.edges[0]
	f.edges = f.edges[1:]
	return got
}

func TestFIFODrainNextReturnsOneBlockPerDataReadyEdge(t *testing.T) {
	conn := &fakeSPIConn{payload: []byte{0xAA, 0xBB, 0xCC, 0xDD}}
	dataReady := &fakeEdgePin{edges: []bool{true}}
	drain := NewFIFODrain(conn, dataReady, nil, 4)

	block, err := drain.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, block.Data)
	require.False(t, block.Overflowed)
	require.Equal(t, 1, conn.txCount)
}

func TestFIFODrainFlagsOverflowFromEitherSample(t *testing.T) {
	conn := &fakeSPIConn{payload: []byte{0, 0}}
	dataReady := &fakeEdgePin{edges: []bool{true}}
	overflow := &fakeEdgePin{level: gpio.High}
	drain := NewFIFODrain(conn, dataReady, overflow, 2)

	block, err := drain.Next(context.Background())
	require.NoError(t, err)
	require.True(t, block.Overflowed)
}

func TestFIFODrainPropagatesTransferError(t *testing.T) {
	conn := &fakeSPIConn{err: errors.New("spi bus fault")}
	dataReady := &fakeEdgePin{edges: []bool{true}}
	drain := NewFIFODrain(conn, dataReady, nil, 4)

	_, err := drain.Next(context.Background())
	require.Error(t, err)
}

func TestFIFODrainReturnsOnContextCancellationBeforeEdge(t *testing.T) {
	conn := &fakeSPIConn{payload: []byte{0, 0}}
	dataReady := &fakeEdgePin{} // never signals an edge
	drain := NewFIFODrain(conn, dataReady, nil, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := drain.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, conn.txCount)
}
