package sender

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/muurk/cabload/internal/protocol"
	"github.com/muurk/cabload/internal/transport"
)

func ramp(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestTransfer_EndToEnd(t *testing.T) {
	peer := newSimPeer(controller(protocol.HeaderEMC))
	rec := &recorder{}
	s := New(peer,
		WithAddress(1),
		WithBlockSize(32),
		WithAckTimeout(200*time.Millisecond),
		WithSink(rec),
	)

	image := ramp(80)
	require.NoError(t, s.Transfer(context.Background(), image, 0))

	writes := peer.sent()
	require.Len(t, writes, 4)

	handshake := splitFrame(writes[0])
	assert.Equal(t, protocol.CmdInit, handshake.cmd)
	assert.Equal(t, "01"+"00000000"+"50000000"+"2000", hex.EncodeToString(handshake.payload))
	assert.Equal(t, []byte("EMC"), writes[0][:3])

	wantLens := []int{32, 32, 16}
	for i, raw := range writes[1:] {
		f := splitFrame(raw)
		assert.Equal(t, protocol.CmdData, f.cmd, "frame %d", i)
		assert.Equal(t, byte(1), f.payload[0], "frame %d address", i)
		assert.Equal(t, uint16(i), dataIndex(f.payload), "frame %d index", i)

		block := f.payload[1 : len(f.payload)-2]
		require.Len(t, block, wantLens[i], "frame %d block", i)
		assert.Equal(t, image[i*32:i*32+wantLens[i]], block)
	}

	require.NotEmpty(t, rec.progress)
	assert.Equal(t, ProgressEvent{Percent: 100, SentBytes: 80, TotalBytes: 80}, rec.progress[len(rec.progress)-1])
	assert.Equal(t, []ProgressEvent{
		{Percent: 40, SentBytes: 32, TotalBytes: 80},
		{Percent: 80, SentBytes: 64, TotalBytes: 80},
		{Percent: 100, SentBytes: 80, TotalBytes: 80},
		{Percent: 100, SentBytes: 80, TotalBytes: 80},
	}, rec.progress)

	// Stale input is discarded before every transmission
	assert.Equal(t, 4, peer.discards)
	assert.NotEmpty(t, rec.logs)
}

func TestTransfer_StopAndWaitOrdering(t *testing.T) {
	var seen []uint16
	ctrl := controller(protocol.HeaderMCE)
	peer := newSimPeer(func(raw []byte) []byte {
		if f := splitFrame(raw); f.cmd == protocol.CmdData {
			seen = append(seen, dataIndex(f.payload))
		}
		return ctrl(raw)
	})
	s := New(peer,
		WithHeader(protocol.HeaderMCE),
		WithAddress(3),
		WithBlockSize(7),
		WithAckTimeout(200*time.Millisecond),
	)

	image := ramp(1000)
	require.NoError(t, s.Transfer(context.Background(), image, 0x08004000))

	want := make([]uint16, 143)
	for i := range want {
		want[i] = uint16(i)
	}
	assert.Equal(t, want, seen)

	for _, raw := range peer.sent() {
		assert.Equal(t, []byte("MCE"), raw[:3])
	}
}

func TestTransfer_InitRetryExhaustion(t *testing.T) {
	peer := newSimPeer(nil)
	s := New(peer,
		WithMaxRetries(3),
		WithAckTimeout(10*time.Millisecond),
	)

	err := s.Transfer(context.Background(), ramp(10), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, Failed, OutcomeOf(err))

	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, StageInit, exErr.Stage)
	assert.Equal(t, 4, exErr.Attempts)

	writes := peer.sent()
	require.Len(t, writes, 4)
	for _, w := range writes {
		assert.Equal(t, writes[0], w, "every attempt resends the same frame")
	}
}

func TestTransfer_DataRetryExhaustion(t *testing.T) {
	ctrl := controller(protocol.HeaderEMC)
	peer := newSimPeer(func(raw []byte) []byte {
		f := splitFrame(raw)
		if f.cmd == protocol.CmdData && dataIndex(f.payload) >= 1 {
			return nil
		}
		return ctrl(raw)
	})
	rec := &recorder{}
	s := New(peer,
		WithBlockSize(4),
		WithMaxRetries(2),
		WithAckTimeout(10*time.Millisecond),
		WithSink(rec),
	)

	err := s.Transfer(context.Background(), ramp(12), 0)
	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, StageData, exErr.Stage)
	assert.Equal(t, uint16(1), exErr.Index)
	assert.Equal(t, 3, exErr.Attempts)
	assert.Contains(t, err.Error(), "data frame 1")

	// init + frame 0 + three attempts at frame 1, and frame 2 is never sent
	assert.Len(t, peer.sent(), 5)
	require.Len(t, rec.progress, 1)
	assert.Equal(t, int64(4), rec.progress[0].SentBytes)
}

func TestTransfer_MismatchConsumesAttempt(t *testing.T) {
	tests := []struct {
		name  string
		wrong func(addr byte, idx uint16) []byte
	}{
		{"wrong index", func(addr byte, idx uint16) []byte { return protocol.AckPayload(addr, idx+1) }},
		{"wrong address", func(addr byte, idx uint16) []byte { return protocol.AckPayload(addr+1, idx) }},
		{"short payload", func(addr byte, idx uint16) []byte { return []byte{addr} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := controller(protocol.HeaderEMC)
			dataWrites := 0
			peer := newSimPeer(func(raw []byte) []byte {
				f := splitFrame(raw)
				if f.cmd == protocol.CmdData {
					dataWrites++
					if dataWrites == 1 {
						return mustEncode(protocol.HeaderEMC, protocol.CmdData, tt.wrong(f.payload[0], dataIndex(f.payload)))
					}
				}
				return ctrl(raw)
			})
			rec := &recorder{}
			s := New(peer, WithBlockSize(8), WithMaxRetries(1), WithAckTimeout(50*time.Millisecond), WithSink(rec))

			require.NoError(t, s.Transfer(context.Background(), ramp(8), 0))
			assert.Equal(t, 2, dataWrites)
			assert.True(t, containsLog(rec.logs, "unexpected reply"), "logs: %v", rec.logs)
		})
	}
}

func TestTransfer_MismatchWithoutRetriesFails(t *testing.T) {
	peer := newSimPeer(func(raw []byte) []byte {
		return mustEncode(protocol.HeaderEMC, protocol.CmdData, protocol.AckPayload(1, 9))
	})
	s := New(peer, WithMaxRetries(0), WithAckTimeout(50*time.Millisecond))

	err := s.Transfer(context.Background(), ramp(8), 0)
	assert.True(t, IsExchangeError(err), "got %v", err)
	assert.Len(t, peer.sent(), 1)
}

func TestTransfer_NoiseBeforeAck(t *testing.T) {
	ctrl := controller(protocol.HeaderEMC)
	peer := newSimPeer(func(raw []byte) []byte {
		return append([]byte{0x00, 0xFF, 0x13, 'M', 'C'}, ctrl(raw)...)
	})
	s := New(peer, WithBlockSize(16), WithMaxRetries(0), WithAckTimeout(100*time.Millisecond))

	assert.NoError(t, s.Transfer(context.Background(), ramp(40), 0))
	assert.Len(t, peer.sent(), 4)
}

func TestTransfer_CancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	peer := newSimPeer(nil)
	peer.onWrite = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	s := New(peer, WithMaxRetries(10), WithAckTimeout(20*time.Millisecond))

	start := time.Now()
	err := s.Transfer(ctx, ramp(10), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, Cancelled, OutcomeOf(err))
	assert.Len(t, peer.sent(), 2, "no frame may be sent after cancellation")
	assert.Less(t, time.Since(start), time.Second)
}

func TestTransfer_CancelledAtBlockBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	peer := newSimPeer(controller(protocol.HeaderEMC))
	// Cancel as soon as the first data frame goes out
	peer.onWrite = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	s := New(peer, WithBlockSize(4), WithAckTimeout(time.Second))

	err := s.Transfer(ctx, ramp(16), 0)
	assert.Equal(t, Cancelled, OutcomeOf(err))
	assert.Len(t, peer.sent(), 2)
}

func TestTransfer_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	peer := newSimPeer(controller(protocol.HeaderEMC))
	s := New(peer)

	err := s.Transfer(ctx, ramp(16), 0)
	assert.Equal(t, Cancelled, OutcomeOf(err))
	assert.Empty(t, peer.sent())
}

func TestTransfer_FatalWrite(t *testing.T) {
	peer := newSimPeer(controller(protocol.HeaderEMC))
	peer.writeErr = errors.New("cable pulled")
	s := New(peer, WithMaxRetries(5))

	err := s.Transfer(context.Background(), ramp(16), 0)
	require.Error(t, err)
	assert.True(t, transport.IsIOError(err), "got %v", err)
	assert.False(t, IsExchangeError(err))
	assert.Equal(t, Failed, OutcomeOf(err))
	assert.False(t, peer.IsOpen())
	assert.Equal(t, 1, peer.discards, "a fatal write must not be retried")
}

func TestTransfer_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		image   []byte
		closed  bool
		wantErr error
	}{
		{"address 0", []Option{WithAddress(0)}, ramp(8), false, ErrInvalidArgument},
		{"address 7", []Option{WithAddress(7)}, ramp(8), false, ErrInvalidArgument},
		{"block size 0", []Option{WithBlockSize(0)}, ramp(8), false, ErrInvalidArgument},
		{"block size 513", []Option{WithBlockSize(513)}, ramp(8), false, ErrInvalidArgument},
		{"negative retries", []Option{WithMaxRetries(-1)}, ramp(8), false, ErrInvalidArgument},
		{"empty image", nil, nil, false, ErrInvalidArgument},
		{"too many frames", []Option{WithBlockSize(1)}, ramp(maxBlocks + 1), false, ErrInvalidArgument},
		{"closed transport", nil, ramp(8), true, ErrTransportClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peer := newSimPeer(controller(protocol.HeaderEMC))
			if tt.closed {
				require.NoError(t, peer.Close())
			}
			s := New(peer, tt.opts...)

			err := s.Transfer(context.Background(), tt.image, 0)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, Failed, OutcomeOf(err))
			assert.Empty(t, peer.sent(), "validation failures must not touch the wire")
		})
	}
}

func TestPing(t *testing.T) {
	peer := newSimPeer(controller(protocol.HeaderEMC))
	s := New(peer, WithPingTimeout(100*time.Millisecond))

	require.NoError(t, s.Ping(context.Background(), 0xA7))

	writes := peer.sent()
	require.Len(t, writes, 1)
	// EMC, cmd 0x04, length 2, payload A7 01, checksum 04+02+00+A7+01
	assert.Equal(t, []byte{'E', 'M', 'C', 0x04, 0x02, 0x00, 0xA7, 0x01, 0xAE}, writes[0])
}

func TestPing_WrongEcho(t *testing.T) {
	peer := newSimPeer(func(raw []byte) []byte {
		return mustEncode(protocol.HeaderEMC, protocol.CmdPing, protocol.PingPayload(0x00))
	})
	s := New(peer, WithMaxRetries(2), WithPingTimeout(20*time.Millisecond))

	err := s.Ping(context.Background(), 0x55)
	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, StagePing, exErr.Stage)
	assert.Len(t, peer.sent(), 3)
}

func TestPing_WrongHeaderVariant(t *testing.T) {
	// Controller answers in MCE while the sender expects EMC
	peer := newSimPeer(controller(protocol.HeaderMCE))
	s := New(peer, WithMaxRetries(0), WithPingTimeout(20*time.Millisecond))

	assert.True(t, IsExchangeError(s.Ping(context.Background(), 0x01)))
}

func TestPing_ClosedTransport(t *testing.T) {
	peer := newSimPeer(nil)
	require.NoError(t, peer.Close())
	s := New(peer)

	assert.ErrorIs(t, s.Ping(context.Background(), 0x01), ErrTransportClosed)
	assert.Empty(t, peer.sent())
}

func TestTransfer_MirrorsEventsToLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	peer := newSimPeer(controller(protocol.HeaderEMC))
	rec := &recorder{}
	s := New(peer, WithBlockSize(8), WithLogger(zap.New(core)), WithSink(rec))

	require.NoError(t, s.Transfer(context.Background(), ramp(16), 0))

	assert.Equal(t, len(rec.logs), logs.Len(), "every sink event is also logged")
	complete := logs.FilterMessageSnippet("complete").All()
	require.Len(t, complete, 1)
	assert.NotEmpty(t, complete[0].ContextMap()["session"])
}

func TestNew_Defaults(t *testing.T) {
	s := New(newSimPeer(nil))
	cfg := s.Config()
	assert.Equal(t, protocol.HeaderEMC, cfg.Header)
	assert.Equal(t, DefaultAddress, cfg.Address)
	assert.Equal(t, DefaultBlockSize, cfg.BlockSize)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultAckTimeout, cfg.AckTimeout)
	assert.Equal(t, DefaultPingTimeout, cfg.PingTimeout)
	assert.IsType(t, NopSink{}, cfg.Sink)

	// A nil sink keeps the default
	s = New(newSimPeer(nil), WithSink(nil))
	assert.NotNil(t, s.Config().Sink)

	assert.Panics(t, func() { New(nil) })
}

func containsLog(logs []string, substr string) bool {
	for _, l := range logs {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
