// Package session owns one client connection end to end.
//
// Ownership boundary:
// - transport capability (plain TCP or TLS) and credential loading
// - the per-connection event loop: read cycle, send queue, write cycle
// - lifecycle: handshake gating, idempotent close, TLS close-notify
//
// Every Session runs a single loop goroutine that owns the parser, the send
// queue and the closing flag. Blocking reads and writes happen on two helper
// goroutines that only ever have one operation outstanding and post their
// completions back to the loop, so completions for one connection are handled
// strictly in order without locking session state.
package session
