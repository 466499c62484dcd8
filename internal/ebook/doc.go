// Package ebook reads page images out of e-book containers. It understands
// EPUB (zip container, OPF manifest and spine) and MOBI (PalmDB image
// records), and produces a WorkingSet whose entries carry both the declared
// reading order and the order inferred from file names. Final order
// resolution lives in package pageorder.
package ebook
