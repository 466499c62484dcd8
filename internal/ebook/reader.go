package ebook

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"rebind/internal/services"
)

const readerStage = "extracting"

// maxPageBytes caps a single decompressed page image to guard against zip
// bombs. 256 MB matches what common EPUB tooling tolerates.
const maxPageBytes int64 = 256 * 1024 * 1024

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// Read opens an EPUB or MOBI container and returns its image pages with
// manifest and natural order populated. ResolvedIndex is left unset.
//
// Fails with services.ErrUnsupportedFormat when the container cannot be
// parsed and services.ErrEmptyArchive when no image pages are found. The
// source file is only ever read.
func Read(sourcePath string) (*WorkingSet, error) {
	header, err := readHeader(sourcePath)
	if err != nil {
		return nil, services.Wrap(services.ErrUnsupportedFormat, readerStage, "open container", sourcePath, err)
	}

	var ws *WorkingSet
	switch {
	case bytes.HasPrefix(header, zipMagic):
		ws, err = readEPUB(sourcePath)
	case isPalmDB(header):
		ws, err = readMOBI(sourcePath)
	default:
		return nil, services.Wrap(services.ErrUnsupportedFormat, readerStage, "detect format",
			fmt.Sprintf("%s is neither an EPUB container nor a MOBI database", sourcePath), nil)
	}
	if err != nil {
		return nil, err
	}

	if ws.Len() == 0 {
		return nil, services.Wrap(services.ErrEmptyArchive, readerStage, "collect pages",
			fmt.Sprintf("%s contains no page images", sourcePath), nil)
	}

	for _, page := range ws.Pages {
		page.ResolvedIndex = -1
	}
	AssignNaturalOrder(ws)
	return ws, nil
}

func readHeader(sourcePath string) ([]byte, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, 68)
	n, err := io.ReadFull(f, header)
	if err != nil && n == 0 {
		return nil, err
	}
	return header[:n], nil
}

// imageExtensions maps recognized page-image extensions to their canonical form.
var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {},
}

func isImageName(name string) bool {
	_, ok := imageExtensions[strings.ToLower(path.Ext(name))]
	return ok
}
