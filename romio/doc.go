// Package romio implements the random-access I/O substrate shared by the
// bbi, bigwig, bigbed and tdf packages: a byte-order-aware, per-region
// decompressing cursor (RomBuffer) over a file, plus a sequential
// byte-order-aware writer (OrderedDataOutput) with a scoped compressed
// sub-stream.
//
// Four RomBuffer factories are provided, trading fd count for concurrency:
// a single synchronized handle, one handle per cursor, a pool of
// thread-local handles, and a memory map. All four must produce identical
// record sequences for the same file; only their performance and resource
// usage differ.
package romio
