// Package frame implements the binary wire protocol of the cluster: frame
// headers, length-prefixed body framing, optional snappy compression,
// stream-id multiplexing fields and opcode-based frame dispatch.
//
// The package focuses on:
//   - Encoding outbound request frames with an in-place length patch
//   - Decoding inbound frames from a shared byte stream with partial-read
//     correctness (a frame body must be fully drained before the next
//     header can be parsed from the same stream)
//   - Translating server error frames into a typed error hierarchy that
//     carries retry-relevant diagnostics
//
// Key Components:
//
//   - Frame: Interface for inbound frames. Concrete types (ReadyFrame,
//     ErrorFrame, SupportedFrame, ResultFrame, ...) are allocated by opcode
//     in FromStream; an unrecognized opcode is a protocol violation.
//
//   - FrameReader: Bounded single-use window over the connection stream
//     with primitive decoders for the protocol's data types and a
//     body-drained signal.
//
//   - Request: Interface for outbound frames (StartupRequest, QueryRequest,
//     OptionsRequest, ...), serialized by Encode.
//
//   - Compressor: Pluggable frame body compression (snappy).
//
// Thread Safety:
//
//	A Frame and its FrameReader belong to a single logical request and are
//	not safe for concurrent reads. Disposal (Close) is idempotent and safe
//	to invoke concurrently.
package frame
