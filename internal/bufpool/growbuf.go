package bufpool

// Ensure returns a byte slice of length n backed by buf when buf already has
// enough capacity, or a freshly allocated replacement otherwise. It never
// shrinks the backing array: callers that hold onto the returned slice across
// repeated Ensure calls get a buffer whose capacity only grows, matching the
// single-slot capture buffers' "reallocation only grows" requirement without
// forcing every grow to go through the fixed size-class Pool above (capture
// frame sizes are one fixed geometry at a time, not a spread of short-lived
// message sizes, so the size-class pool would just waste the large class on
// every call).
func Ensure(buf []byte, n int) []byte {
	if cap(buf) >= n {
		return buf[:n]
	}
	grown := make([]byte, n)
	copy(grown, buf)
	return grown
}
