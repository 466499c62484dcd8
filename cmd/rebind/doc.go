// Command rebind converts EPUB and MOBI e-books into device-ready CBZ
// archives via an external image-enhancement engine.
package main
