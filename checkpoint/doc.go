// Package checkpoint persists run state so interrupted runs can resume.
//
// A Manager owns one session: every save within it gets the next
// strictly increasing number, and files are named
// checkpoint_<session>_<number>_<timestamp>.json. The checkpoint JSON is
// the durable record of a run; console logging is derived output.
//
// Saves are best effort. A failed write is logged as a warning and the
// run continues, because losing one checkpoint is cheaper than losing
// the run.
//
// # Basic Usage
//
//	mgr := checkpoint.NewManager(p, ".agentplan/checkpoints")
//
//	mgr.OnTaskCompleted(0, elapsed) // logs and auto-saves
//
//	// On SIGINT:
//	fmt.Print(mgr.OnInterrupt(currentTask, nil))
//
// # Resuming
//
//	path, err := checkpoint.FindLatest(".agentplan/checkpoints")
//	if err != nil {
//		// nothing to resume
//	}
//	p, mgr, err := checkpoint.Resume(path)
//	// p is the reconstructed plan; mgr continues the same session.
package checkpoint
