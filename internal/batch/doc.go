// Package batch provides a chunk-oriented step engine and a sequential job
// runner for bounded file-to-store-to-file jobs.
//
// # Steps
//
// A [ChunkStep] is parameterized by three capabilities:
//
//   - [Reader]: produces items one at a time. Returning io.EOF ends the
//     input; returning ok == false skips the call without ending it.
//   - [Processor]: optional, transforms or filters items.
//   - [Writer]: commits one chunk atomically.
//
// Items are buffered until ChunkSize accepted items have accumulated, the
// input is exhausted, or the step's termination flag is set. The buffered
// chunk is always written before the step stops, so already-read items are
// never dropped and committed chunks are never rolled back.
//
// Any capability may also implement [Stream] to acquire and release its
// resources around the step.
//
// # Executions
//
// Every step run is tracked by a [StepExecution] that carries counters, the
// termination flag and the terminal [Status]. Readers receive the execution
// on every call, which is how a reader validates its input and stops the
// step cooperatively:
//
//	if footer != exec.RecordsRead() {
//	    exec.RequestStop("footer count mismatch")
//	}
//
// Executions are saved to a [Repository] after every committed chunk.
//
// # Jobs
//
// A [Job] runs its steps strictly in order. A STOPPED or FAILED step ends the
// job with the same status and later steps do not run. A step whose last
// execution for the same job instance COMPLETED is skipped unless it allows
// starting when complete.
package batch
