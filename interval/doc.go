/*Package interval implements interval-union operations in a manner optimized
  for sets of genomic coordinates. Its one user in this module is
  bbi.BinIndex, the fixed-width binning behind Summarize and the zoom
  pyramid writers.
  (Note the 'union'.  Overlapping intervals are merged, not tracked
  separately; it is currently necessary to use another package when that is not
  the desired behavior.)
  It assumes every position fits in a PosType, which is currently defined as
  int32 to match the on-disk coordinate width.
*/
package interval
