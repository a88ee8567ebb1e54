// Package delta implements rsync-style binary differencing.
//
// A signature splits a basis file into fixed-size blocks and records a rolling
// weak checksum and a truncated BLAKE2b hash for each. A delta is an edit
// script, computed from a signature and a new file, made of COPY commands
// (byte ranges of the basis) and LITERAL commands (bytes the basis does not
// have). Patching replays the script against the basis and reproduces the new
// file exactly.
//
// Both formats are big-endian binary with a four byte magic:
//
//	signature: "KZS1" u32 block size, u32 strong length, u64 basis length,
//	           u32 block count, then per block u32 weak + strong bytes
//	delta:     "KZD1" u32 block size, then commands until END:
//	           0x01 COPY    uvarint offset, uvarint length
//	           0x02 LITERAL uvarint length, bytes
//	           0x00 END
package delta
