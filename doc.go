// Package audiolink implements the receive side of a low-latency audio
// stream over UDP: packet ingest, forward error correction, adaptive jitter
// buffering, decoding, and playout against a frame-driven clock.
//
// The engine is built for sub-frame end-to-end budgets: every stage is
// non-blocking on the playout path, losses are concealed rather than
// awaited, and all deadlines are measured on the playout clock so host
// scheduling jitter does not distort decisions.
//
// # Getting Started
//
// Create a receiver with options and run it until shutdown:
//
//	cfg := audiolink.DefaultConfig()
//	cfg.Ingest.ListenAddr = "0.0.0.0:12345"
//	cfg.Codec = "opus"
//
//	rx, err := audiolink.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rx.Stop()
//
//	if err := rx.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Poll the statistics snapshot
//	stats := rx.Stats()
//	fmt.Printf("received=%d loss=%d\n", stats.PacketsReceived, stats.LossCount)
//
// # Pipeline
//
// Packets flow through three execution contexts:
//
//   - The ingest goroutine owns the UDP socket, stamps arrivals, decodes
//     the wire format, and pushes into a bounded drop-oldest queue.
//   - The processing worker drains the queue through the FEC decoder and
//     QoS bookkeeping into the jitter buffer.
//   - The playout context pulls frames at the audio cadence, decodes
//     payloads, and conceals gaps; it never blocks on the other two.
//
// # Core Types
//
//   - [Receiver]: the assembled pipeline with lifecycle and statistics
//   - [Config]: per-subsystem tuning with defaults from [DefaultConfig]
//   - [Stats]: the immutable statistics snapshot
//
// # Observability
//
// Counters are the source of truth for steady-state behavior: malformed
// packets, losses, concealments, and recoveries are counted, never raised
// as errors. The monitor package serves the same snapshot over HTTP,
// Prometheus, and WebSocket.
package audiolink
