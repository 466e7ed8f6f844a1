package broker

import "errors"

// ErrShuttingDown is returned by Broker methods invoked after Close has
// been called.
var ErrShuttingDown = errors.New("broker: shutting down")

// ErrTakeoverRace is returned when two CONNECTs for the same client ID are
// being processed concurrently and lose the race to attach second. The
// connection state machine (not Broker itself) is expected to serialize
// CONNECT handling per client ID before calling Connect, so this is a
// defensive sentinel for callers that skip that serialization rather than
// a condition Broker's own single-threaded Attach can produce.
var ErrTakeoverRace = errors.New("broker: takeover race")
