// Package shutdown provides graceful shutdown coordination for engine
// runs.
//
// # Overview
//
// A run that dies mid-task should leave behind a checkpoint, flushed
// telemetry and released resources, in that order. The coordinator
// handles OS signals (SIGTERM, SIGINT) and runs registered handlers in
// phase order.
//
// # Usage
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.HandleSignals() // SIGTERM, SIGINT
//
//	// Register handlers with phases (lower = earlier)
//	coord.RegisterWithPhase("checkpoint", shutdown.CheckpointHandler(mgr), 10)
//	coord.RegisterFuncWithPhase("telemetry", provider.Shutdown, 20)
//	coord.RegisterFuncWithPhase("limiter", func(ctx context.Context) error {
//		return limiter.Close()
//	}, 30)
//
//	// Handlers run: checkpoint (10) → telemetry (20) → limiter (30)
//
//	<-coord.Done()
//
// Manual shutdown with timeout:
//
//	if err := coord.ShutdownWithTimeout(30 * time.Second); err != nil {
//	    log.Printf("Shutdown incomplete: %v", err)
//	}
//
// # Phases
//
// Phases control shutdown order; lower numbers run first, and handlers
// in the same phase run concurrently. The checkpoint save belongs in
// the earliest phase: everything after it is cleanup, the checkpoint is
// the part the operator cannot regenerate.
package shutdown
