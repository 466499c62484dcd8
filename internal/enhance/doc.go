// Package enhance invokes the external image-enhancement engine on a
// directory of canonically numbered page images. The engine is a black box:
// it receives an input directory, a device profile and an output directory,
// and must populate the output directory with one enhanced image per input.
package enhance
