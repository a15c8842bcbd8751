// Package fetch downloads resources from the distribution backends.
//
// Each download goes through a per-backend gate (a token bucket plus a
// concurrency cap) and a bounded retry loop. Timeouts, 408, 429 and 5xx
// responses are retried with exponential backoff; everything else fails
// immediately. Bodies are streamed into a temporary file inside the target
// directory so callers can verify the bytes before renaming them into place.
// Exhausted or non-retryable failures are tagged failure.ErrNetwork.
package fetch
