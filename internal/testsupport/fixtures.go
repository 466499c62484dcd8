package testsupport

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const epubContainer = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// WriteEPUB builds a minimal fixed-layout EPUB whose spine lists the given
// page image names in order, and returns its path. Page bytes are a JPEG
// header plus the page name so contents are distinguishable.
func WriteEPUB(t testing.TB, dir, name string, pageNames []string) string {
	t.Helper()

	var manifest, spine strings.Builder
	for i, page := range pageNames {
		fmt.Fprintf(&manifest, `<item id="pg%d" href="%s" media-type="image/jpeg"/>`+"\n", i, page)
		fmt.Fprintf(&spine, `<itemref idref="pg%d"/>`+"\n", i)
	}
	opf := fmt.Sprintf(`<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <manifest>
%s  </manifest>
  <spine>
%s  </spine>
</package>`, manifest.String(), spine.String())

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create epub fixture: %v", err)
	}
	zw := zip.NewWriter(f)

	write := func(entryName string, data []byte) {
		w, err := zw.Create(entryName)
		if err != nil {
			t.Fatalf("create entry %s: %v", entryName, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write entry %s: %v", entryName, err)
		}
	}

	write("META-INF/container.xml", []byte(epubContainer))
	write("OEBPS/content.opf", []byte(opf))
	for _, page := range pageNames {
		write("OEBPS/"+page, append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte(page)...))
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("close epub fixture: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close epub file: %v", err)
	}
	return path
}

// WriteEmptyEPUB builds an EPUB with a valid container but zero page images.
func WriteEmptyEPUB(t testing.TB, dir, name string) string {
	t.Helper()
	return WriteEPUB(t, dir, name, nil)
}
