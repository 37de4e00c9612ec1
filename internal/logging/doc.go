// Package logging provides structured logging for cabload.
//
// This package wraps a zap logger with convenience functions used by the
// transport, protocol and sender packages.
//
// # Log Levels
//
//   - Debug: Frame hex dumps, decode failures, noise skipped during resync
//   - Info: Connections, transfer start/finish, progress milestones
//   - Warn: Retries, acknowledgement mismatches, dropped peers
//   - Error: Fatal transport failures, aborted transfers
//
// # Configuration
//
// Logging is silent unless a level is given, either through --log-level or the
// CABLOAD_LOG_LEVEL environment variable:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Set CABLOAD_LOG_FORMAT=json for machine-readable output. Logs go to stderr so
// they never interleave with progress output on stdout.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The TCP accept loop logs
// from its own goroutine.
package logging
