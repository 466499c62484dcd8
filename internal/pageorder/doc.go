// Package pageorder assigns the authoritative page sequence for a conversion
// job. The container's declared manifest order wins when it is a complete,
// contiguous permutation; otherwise the order falls back to a natural-numeric
// sort of source file names. Disagreements between the two orders are
// detected and flagged rather than silently resolved.
package pageorder
