// Package ringbuffer provides a single-producer single-consumer circular byte
// buffer for handing variable-length event records between two goroutines.
//
// A Buffer owns a fixed arena of capacity bytes. The producer acquires a write
// region of maxEventSize bytes, fills it in place and commits the number of
// bytes actually used. The consumer acquires a read region, decodes the record
// in place and commits the record length. Offsets are published with atomic
// stores so committed bytes are visible to the other side before the offset
// advance is.
//
// Buffers live in a Registry and are addressed by small integer handles. The
// registry table is copy-on-write, so the acquire and commit paths never take
// a lock. Handles are reused after Delete.
//
// Waiting for space or data is bounded by a timeout. A timeout of zero checks
// once and returns ErrTimeout immediately. Setting the registry's Switch makes
// every current and future wait behave like a zero timeout, which is how
// blocked producer and consumer goroutines are released during shutdown.
package ringbuffer
