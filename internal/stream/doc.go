// Package stream drives a run's event stream into published snapshots.
//
// A Controller reads the body of the current stream attempt chunk by chunk,
// runs each chunk through sse.Decoder, event.Parse and runstate.Machine, and
// hands the resulting snapshot to its subscribers. Every Start opens a new
// epoch; readers of older epochs keep running only until they notice they
// have been superseded and never publish again.
//
// Outcomes are reported through the snapshot, never as errors:
//   - malformed frames are logged and counted in Snapshot.ParseErrors;
//   - connection and read failures become a run_error and a failed snapshot;
//   - Cancel leaves the status alone and sets Snapshot.Cancelled.
package stream
