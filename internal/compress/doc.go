// Package compress implements the block codec of the statistics archive.
//
// A block is an 8-byte little-endian header followed by the payload:
//
//	[UncompressedSize uint32][CompressedSize uint32][Data...]
//
// CompressedSize 0 marks a block stored uncompressed, which is what Encode
// falls back to when compression does not pay off.
package compress
