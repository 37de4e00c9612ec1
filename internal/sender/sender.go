package sender

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/muurk/cabload/internal/logging"
	"github.com/muurk/cabload/internal/protocol"
	"github.com/muurk/cabload/internal/transport"
)

// MaxImageSize is the largest image the 32-bit size field of Init can describe
const MaxImageSize = math.MaxUint32

// maxBlocks is the number of distinct 16-bit frame indices
const maxBlocks = 1 << 16

// Sender runs ping and image transfers against one transport.
type Sender struct {
	t   transport.Transport
	cfg Config
}

// New creates a Sender for t. The transport is not opened.
//
// Example:
//
//	s := sender.New(t,
//	    sender.WithAddress(2),
//	    sender.WithMaxRetries(5),
//	    sender.WithAckTimeout(2*time.Second),
//	)
func New(t transport.Transport, opts ...Option) *Sender {
	if t == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Sender{t: t, cfg: cfg}
}

// Config returns the effective configuration
func (s *Sender) Config() Config {
	return s.cfg
}

func (s *Sender) logger() *zap.Logger {
	if s.cfg.Logger != nil {
		return s.cfg.Logger
	}
	return logging.GetLogger()
}

// Ping sends a liveness probe and waits for the controller to echo it.
func (s *Sender) Ping(ctx context.Context, data byte) error {
	if err := s.validateSettings(); err != nil {
		return err
	}
	if !s.t.IsOpen() {
		return ErrTransportClosed
	}

	log := s.logger().With(zap.String("op", "ping"))
	payload := protocol.PingPayload(data)
	ex := exchange{
		stage:   StagePing,
		cmd:     protocol.CmdPing,
		payload: payload,
		timeout: s.cfg.PingTimeout,
		match: func(f *protocol.Frame) bool {
			return protocol.IsPingEcho(f, payload)
		},
	}

	s.report(log, zapcore.InfoLevel, "Ping 0x%02X (%s header)", data, s.cfg.Header)
	if err := s.run(ctx, log, ex); err != nil {
		return err
	}
	s.report(log, zapcore.InfoLevel, "Ping 0x%02X echoed", data)
	return nil
}

// Transfer sends image to the controller: Init first, then every block in
// order. It returns nil once the last block is acknowledged.
func (s *Sender) Transfer(ctx context.Context, image []byte, loadAddress uint32) error {
	if err := s.validateTransfer(image); err != nil {
		return err
	}

	addr := byte(s.cfg.Address)
	sess := newSession(addr, loadAddress, s.cfg.BlockSize, len(image))
	log := s.logger().With(zap.String("session", sess.ID.String()))

	s.report(log, zapcore.InfoLevel, "Transfer %s: %d bytes in %d blocks of %d to cabinet %d at 0x%08X",
		sess.ID, sess.TotalBytes, sess.Blocks, sess.BlockSize, addr, loadAddress)

	handshake := exchange{
		stage:   StageInit,
		cmd:     protocol.CmdInit,
		payload: protocol.InitPayload(addr, loadAddress, uint32(len(image)), uint16(s.cfg.BlockSize)),
		timeout: s.cfg.AckTimeout,
		match: func(f *protocol.Frame) bool {
			return protocol.IsInitAck(f, addr)
		},
	}
	if err := s.run(ctx, log, handshake); err != nil {
		s.report(log, zapcore.ErrorLevel, "Transfer %s aborted during init: %v", sess.ID, err)
		return err
	}
	s.report(log, zapcore.InfoLevel, "Init acknowledged by cabinet %d", addr)

	for !sess.done() {
		if ctx.Err() != nil {
			s.report(log, zapcore.WarnLevel, "Transfer %s cancelled before frame %d", sess.ID, sess.FrameIndex)
			return cancelled(ctx)
		}

		block := sess.block(image)
		index := sess.FrameIndex
		data := exchange{
			stage:   StageData,
			index:   index,
			cmd:     protocol.CmdData,
			payload: protocol.DataPayload(addr, block, index),
			timeout: s.cfg.AckTimeout,
			match: func(f *protocol.Frame) bool {
				return protocol.IsDataAck(f, addr, index)
			},
		}
		if err := s.run(ctx, log, data); err != nil {
			s.report(log, zapcore.ErrorLevel, "Transfer %s aborted at frame %d: %v", sess.ID, index, err)
			return err
		}

		sess.advance(len(block))
		s.cfg.Sink.OnProgress(sess.Progress())
	}

	final := ProgressEvent{Percent: 100, SentBytes: sess.TotalBytes, TotalBytes: sess.TotalBytes}
	s.cfg.Sink.OnProgress(final)
	s.report(log, zapcore.InfoLevel, "Transfer %s complete: %d bytes in %v",
		sess.ID, sess.TotalBytes, time.Since(sess.StartedAt).Round(time.Millisecond))
	return nil
}

// exchange describes one request and the reply that acknowledges it
type exchange struct {
	stage   Stage
	index   uint16
	cmd     byte
	payload []byte
	timeout time.Duration
	match   func(*protocol.Frame) bool
}

func (e exchange) label() string {
	if e.stage == StageData {
		return fmt.Sprintf("%s frame %d", e.stage, e.index)
	}
	return string(e.stage)
}

// run performs the stop-and-wait retry loop for one exchange
func (s *Sender) run(ctx context.Context, log *zap.Logger, ex exchange) error {
	frame, err := protocol.Encode(s.cfg.Header, ex.cmd, ex.payload)
	if err != nil {
		return fmt.Errorf("%s: %w", ex.label(), err)
	}

	attempts := s.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			s.report(log, zapcore.WarnLevel, "%s: cancelled before attempt %d", ex.label(), attempt)
			return cancelled(ctx)
		}

		s.t.DiscardInBuffer()
		s.t.DiscardOutBuffer()

		s.report(log, zapcore.DebugLevel, "%s: attempt %d/%d, %d bytes", ex.label(), attempt, attempts, len(frame))
		if err := s.t.Write(frame); err != nil {
			s.report(log, zapcore.ErrorLevel, "%s: write failed: %v", ex.label(), err)
			return fmt.Errorf("%s: %w", ex.label(), err)
		}

		reply := protocol.Decode(ctx, s.t, s.cfg.Header, ex.timeout)
		if reply == nil {
			if ctx.Err() != nil {
				s.report(log, zapcore.WarnLevel, "%s: cancelled while waiting for reply", ex.label())
				return cancelled(ctx)
			}
			s.report(log, zapcore.WarnLevel, "%s: no valid reply within %v (attempt %d/%d)",
				ex.label(), ex.timeout, attempt, attempts)
			continue
		}

		if ex.match(reply) {
			s.report(log, zapcore.DebugLevel, "%s: acknowledged", ex.label())
			return nil
		}

		s.report(log, zapcore.WarnLevel, "%s: unexpected reply %s (attempt %d/%d)",
			ex.label(), describeReply(reply), attempt, attempts)
	}

	return &ExchangeError{Stage: ex.stage, Index: ex.index, Attempts: attempts}
}

// describeReply renders a non-matching reply for the event log
func describeReply(f *protocol.Frame) string {
	if ack, err := protocol.ParseAck(f); err == nil {
		return ack.String()
	}
	return f.String()
}

// report sends one protocol event to the sink and the logger
func (s *Sender) report(log *zap.Logger, level zapcore.Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.cfg.Sink.OnLog(msg)
	if ce := log.Check(level, msg); ce != nil {
		ce.Write()
	}
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

func (s *Sender) validateSettings() error {
	if err := protocol.ValidateAddress(s.cfg.Address); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if err := protocol.ValidateBlockSize(s.cfg.BlockSize); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if s.cfg.MaxRetries < 0 {
		return invalidf("max retries %d is negative", s.cfg.MaxRetries)
	}
	return nil
}

func (s *Sender) validateTransfer(image []byte) error {
	if err := s.validateSettings(); err != nil {
		return err
	}
	if len(image) == 0 {
		return invalidf("firmware image is empty")
	}
	if uint64(len(image)) > MaxImageSize {
		return invalidf("firmware image is %d bytes, limit is %d", len(image), uint64(MaxImageSize))
	}
	if n := blockCount(len(image), s.cfg.BlockSize); n > maxBlocks {
		return invalidf("firmware image needs %d blocks of %d bytes, limit is %d frames",
			n, s.cfg.BlockSize, maxBlocks)
	}
	if !s.t.IsOpen() {
		return ErrTransportClosed
	}
	return nil
}
