package wire

import "errors"

// Sentinel decode/encode failures. All decode paths return one of these
// wrapped with context instead of panicking on a short or misaligned
// buffer.
var (
	// ErrTruncated is returned when a buffer ends before a field it was
	// expected to hold has been fully read.
	ErrTruncated = errors.New("wire: truncated buffer")

	// ErrMisaligned names a submessage that does not begin on a 4-byte
	// boundary relative to the start of the message. No decoder in this
	// package returns it: Align skips padding bytes without checking them.
	ErrMisaligned = errors.New("wire: misaligned submessage")

	// ErrOverflow is returned when encoding would write past the end of
	// a fixed-capacity buffer.
	ErrOverflow = errors.New("wire: buffer overflow")

	// ErrUnknownSubmessage names a submessage id this package does not
	// know. No decoder in this package returns it: DecodeSubmessages keeps
	// submessages of any id as RawSubmessage values.
	ErrUnknownSubmessage = errors.New("wire: unknown submessage id")
)
