// Package bigwig implements the UCSC BigWIG signal-track format: the
// fixed-step/variable-step/bedGraph section codec, a query Reader, and a
// Writer that builds the chromosome B+ tree, data blocks, interval R+
// tree, and zoom pyramid in one pass plus a post-pass.
package bigwig
