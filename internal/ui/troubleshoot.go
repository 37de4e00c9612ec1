package ui

import (
	"errors"

	"github.com/muurk/cabload/internal/firmware"
	"github.com/muurk/cabload/internal/sender"
	"github.com/muurk/cabload/internal/transport"
)

// Troubleshooting returns hints for a failed ping or transfer, most
// specific first. It returns nil for a nil error.
func Troubleshooting(err error) []string {
	if err == nil {
		return nil
	}

	var exchange *sender.ExchangeError
	switch {
	case transport.IsConnectError(err):
		return []string{
			"Check the serial device path or host and port",
			"Run: cabload ports (serial) or cabload scan (network)",
			"Make sure no other program holds the port open",
		}
	case transport.IsTimeoutError(err):
		return []string{
			"Confirm the controller is powered and reachable",
			"In listen mode the controller must dial in before the connect timeout",
			"Raise connect_timeout_ms in the profile for slow links",
		}
	case transport.IsIOError(err):
		return []string{
			"The link dropped mid-transfer; check cabling or the network bridge",
			"Re-run the command; the controller restarts from the Init frame",
		}
	case errors.As(err, &exchange):
		switch exchange.Stage {
		case sender.StagePing:
			return []string{
				"Check the header variant (EMC or MCE) matches the controller",
				"Check the cabinet address (1-6)",
				"Confirm the controller is in bootloader mode",
			}
		case sender.StageInit:
			return []string{
				"Check the load address and image size are accepted by the controller",
				"Check the header variant and cabinet address",
			}
		default:
			return []string{
				"Try a smaller block size",
				"Raise ack_timeout_ms or max_retries for noisy links",
			}
		}
	case errors.Is(err, sender.ErrInvalidArgument):
		return []string{"Review the settings with: cabload profile show"}
	case errors.Is(err, firmware.ErrEmpty), errors.Is(err, firmware.ErrTooLarge):
		return []string{"Check the firmware path points at the built binary image"}
	}
	return nil
}
