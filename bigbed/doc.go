// Package bigbed implements the UCSC BigBED annotation-track format:
// the chromIx/start/end/rest record codec, a query Reader, and a Writer
// sharing bigwig's chromosome B+ tree, interval R+ tree, and zoom-pyramid
// substrate from bbi. BigBED records carry no numeric value, so
// summarization treats each base a feature covers as coverage 1.
package bigbed
