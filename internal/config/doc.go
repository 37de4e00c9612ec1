// Package config manages named connection profiles for cabload.
//
// A profile bundles everything needed to reach a cabinet controller and talk
// to it: the transport (serial device or TCP endpoint), the frame header
// variant, the cabinet address, block size, retry count and timeouts. Profiles
// live in a YAML file that follows OS-specific conventions for its location.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/cabload/config.yaml or $HOME/.config/cabload/config.yaml
//   - macOS: $HOME/.config/cabload/config.yaml
//   - Windows: %LOCALAPPDATA%\cabload\config.yaml
//
// # Example File
//
//	version: 1
//	default: bench
//	profiles:
//	  bench:
//	    transport: serial
//	    serial_device: /dev/ttyUSB0
//	    baud_rate: 115200
//	    header: EMC
//	    address: 1
//	    load_address: 0x08004000
//	    block_size: 256
//	    max_retries: 3
//	    ack_timeout_ms: 1000
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	p := registry.GetProfile(registry.Default)
//	if err := p.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	t, _ := transport.New(p.TransportConfig())
//	opts, _ := p.SenderOptions()
//	s := sender.New(t, opts...)
//
// # Thread Safety
//
// The global registry uses sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
