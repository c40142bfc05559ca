// Package rgoid extracts the calling goroutine's runtime id, used only to
// answer spec's "is this call already running on the owning Dispatcher's
// thread" question (spec §4.5/§4.3/§5 cross-thread mutation protocol).
// Go has no OS thread handle to compare the way the source's
// std::this_thread::get_id() does, and no public goroutine-id API either;
// parsing the leading "goroutine NNN " line out of a one-frame runtime
// stack dump is the well-known (if inelegant) way every goroutine-local-
// storage shim in the wild gets this number. It is only ever used for the
// inline-vs-enqueue fast-path decision — getting it wrong costs a
// needless task-queue hop, never correctness, since the queue path is
// always safe.
package rgoid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Current returns the calling goroutine's id.
func Current() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	// Format: "goroutine 123 [running]:\n..."
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}
	buf = buf[len(prefix):]
	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
