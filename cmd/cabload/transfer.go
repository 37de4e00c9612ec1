package main

import (
	"context"
	"fmt"
	"time"

	"github.com/muurk/cabload/internal/config"
	"github.com/muurk/cabload/internal/firmware"
	"github.com/muurk/cabload/internal/logging"
	"github.com/muurk/cabload/internal/sender"
	"github.com/muurk/cabload/internal/transport"
)

// defaultPingData is the byte sent by ping and by the check before a flash
const defaultPingData byte = 0xA7

// openTransport creates and opens the transport a profile describes.
func openTransport(ctx context.Context, p *config.Profile) (transport.Transport, error) {
	t, err := transport.New(p.TransportConfig())
	if err != nil {
		return nil, err
	}
	logging.LogTransportEvent(p.Kind(), p.Target(), "opening")
	if err := t.Open(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func newSender(t transport.Transport, p *config.Profile, sink sender.Sink) (*sender.Sender, error) {
	opts, err := p.SenderOptions()
	if err != nil {
		return nil, err
	}
	return sender.New(t, append(opts, sender.WithSink(sink))...), nil
}

// flashImage transfers img over an open transport, optionally pinging first.
func flashImage(ctx context.Context, t transport.Transport, p *config.Profile, img *firmware.Image, pingFirst bool, sink sender.Sink) (map[string]string, error) {
	s, err := newSender(t, p, sink)
	if err != nil {
		return nil, err
	}
	if pingFirst {
		if err := s.Ping(ctx, defaultPingData); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	if err := s.Transfer(ctx, img.Data, p.LoadAddress); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	blocks := (img.Size() + p.BlockSize - 1) / p.BlockSize
	return map[string]string{
		"Bytes":        fmt.Sprintf("%d", img.Size()),
		"Blocks":       fmt.Sprintf("%d x %d", blocks, p.BlockSize),
		"Load address": fmt.Sprintf("0x%08X", p.LoadAddress),
		"Throughput":   throughput(img.Size(), elapsed),
	}, nil
}

func throughput(n int, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	bps := float64(n) / d.Seconds()
	if bps >= 1024 {
		return fmt.Sprintf("%.1f KiB/s", bps/1024)
	}
	return fmt.Sprintf("%.0f B/s", bps)
}
