// Package bbi implements the substrate shared by BigWIG and BigBED: the
// on-disk chromosome B+ tree, the interval R+ tree, the common 64-byte
// file header with its byte-order detection and zoom-level table, and the
// BigSummary running-stats monoid used by both the query path and the
// zoom-pyramid writer.
package bbi
