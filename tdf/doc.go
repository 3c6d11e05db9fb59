// Package tdf implements IGV's Tiled Data Format: a fixed header plus a
// gzip-or-plain master index mapping dataset/group names to on-disk
// blobs, dataset blobs describing a tile grid, and four tile encodings
// (fixedStep, variableStep, bed, bedWithName). Unlike BigWIG/BigBED, TDF
// is always little-endian and carries no self-describing byte order.
package tdf
