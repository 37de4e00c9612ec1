// Package sender drives the loader protocol over a transport.
//
// A Sender performs three stop-and-wait exchanges:
//
//   - Ping: command 0x04, payload [data, 0x01], answered by an exact echo
//   - Init: command 0xFB, announces address, load address, image size and block size
//   - Data: command 0xFC, one per block, acknowledged with the same frame index
//
// Every exchange shares one retry loop. An attempt checks the context, discards
// stale input and output, writes the frame and waits for one reply within the
// acknowledgement timeout. A missing, corrupt or non-matching reply costs one
// attempt. After MaxRetries+1 attempts the whole transfer fails; there is no
// resume, a retried transfer starts again from Init.
//
// # Outcomes
//
// Transfer and Ping return nil on success. Otherwise the error tells the
// caller what happened:
//
//	err := s.Transfer(ctx, image, 0x08004000)
//	switch sender.OutcomeOf(err) {
//	case sender.Cancelled:   // ctx was cancelled, errors.Is(err, sender.ErrCancelled)
//	case sender.Failed:      // retries exhausted, fatal write, or bad arguments
//	}
//
// A fatal write error from the transport is passed through unchanged, so
// transport.IsIOError(err) holds for it.
//
// # Observing a Transfer
//
// Progress and protocol events go to a Sink. The Sender itself keeps no UI
// state:
//
//	s := sender.New(t,
//	    sender.WithAddress(1),
//	    sender.WithBlockSize(256),
//	    sender.WithSink(sender.SinkFuncs{
//	        Progress: func(ev sender.ProgressEvent) {
//	            fmt.Printf("%.0f%%\n", ev.Percent)
//	        },
//	    }),
//	)
//
// A Sender is not safe for concurrent transfers. One caller drives one session
// at a time.
package sender
