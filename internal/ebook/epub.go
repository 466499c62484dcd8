package ebook

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"rebind/internal/services"
)

// containerPath is the well-known location of container.xml in an EPUB archive.
const epubContainerPath = "META-INF/container.xml"

// containerXML models META-INF/container.xml, used to locate the OPF.
type containerXML struct {
	XMLName   xml.Name       `xml:"container"`
	RootFiles []epubRootFile `xml:"rootfiles>rootfile"`
}

type epubRootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// opfPackage represents the root <package> element of an OPF file.
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID        string `xml:"id,attr"`
	Href      string `xml:"href,attr"`
	MediaType string `xml:"media-type,attr"`
}

type opfSpine struct {
	ItemRefs []opfSpineItemRef `xml:"itemref"`
}

type opfSpineItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

// readEPUB walks the container's declared reading order (spine) and collects
// every referenced page image. Images live either directly in the spine as
// fixed-layout pages or inside the spine's XHTML documents as <img>/<image>
// references. When the container carries no usable spine, every image entry
// in the archive becomes a page with no declared order.
func readEPUB(sourcePath string) (*WorkingSet, error) {
	zr, err := zip.OpenReader(sourcePath)
	if err != nil {
		return nil, services.Wrap(services.ErrUnsupportedFormat, readerStage, "open epub", sourcePath, err)
	}
	defer zr.Close()

	ws := &WorkingSet{SourcePath: sourcePath, Format: FormatEPUB}

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	ordered, err := spineImageRefs(&zr.Reader, entries)
	if err != nil {
		return nil, err
	}

	if len(ordered) > 0 {
		for i, name := range ordered {
			data, err := readZipEntry(entries[name])
			if err != nil {
				return nil, services.Wrap(services.ErrUnsupportedFormat, readerStage, "read page", name, err)
			}
			ws.Pages = append(ws.Pages, &PageEntry{
				ManifestIndex: i,
				SourceName:    path.Base(name),
				Data:          data,
			})
		}
		return ws, nil
	}

	// No spine-derived order: fall back to the archive's raw image entries.
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isImageName(f.Name) {
			continue
		}
		data, err := readZipEntry(f)
		if err != nil {
			return nil, services.Wrap(services.ErrUnsupportedFormat, readerStage, "read page", f.Name, err)
		}
		ws.Pages = append(ws.Pages, &PageEntry{
			ManifestIndex: NoManifestIndex,
			SourceName:    path.Base(f.Name),
			Data:          data,
		})
	}
	return ws, nil
}

// spineImageRefs returns archive-internal image paths in spine order. An
// empty slice with nil error means the container declared no usable order.
func spineImageRefs(zr *zip.Reader, entries map[string]*zip.File) ([]string, error) {
	opfPath, err := locateOPF(zr)
	if err != nil {
		return nil, err
	}
	if opfPath == "" {
		return nil, nil
	}

	opfFile := findEntryInsensitive(zr, opfPath)
	if opfFile == nil {
		return nil, nil
	}
	opfData, err := readZipEntry(opfFile)
	if err != nil {
		return nil, services.Wrap(services.ErrUnsupportedFormat, readerStage, "read opf", opfPath, err)
	}

	var pkg opfPackage
	if err := xml.Unmarshal(stripBOM(opfData), &pkg); err != nil {
		return nil, services.Wrap(services.ErrUnsupportedFormat, readerStage, "parse opf", opfPath, err)
	}

	manifestByID := make(map[string]opfManifestItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		manifestByID[item.ID] = item
	}

	var ordered []string
	seen := make(map[string]struct{})
	appendImage := func(archivePath string) {
		if archivePath == "" {
			return
		}
		if _, dup := seen[archivePath]; dup {
			return
		}
		if _, ok := entries[archivePath]; !ok {
			return
		}
		seen[archivePath] = struct{}{}
		ordered = append(ordered, archivePath)
	}

	for _, ref := range pkg.Spine.ItemRefs {
		item, ok := manifestByID[ref.IDRef]
		if !ok {
			continue
		}
		resolved := resolveArchivePath(opfPath, item.Href)
		if resolved == "" {
			continue
		}
		media := strings.ToLower(strings.TrimSpace(item.MediaType))
		switch {
		case strings.HasPrefix(media, "image/") || isImageName(resolved):
			appendImage(resolved)
		default:
			doc := findEntryInsensitive(zr, resolved)
			if doc == nil {
				continue
			}
			docData, err := readZipEntry(doc)
			if err != nil {
				continue
			}
			for _, src := range imageSourcesFromHTML(docData) {
				appendImage(resolveArchivePath(resolved, src))
			}
		}
	}
	return ordered, nil
}

// locateOPF finds the OPF path via container.xml, falling back to scanning
// for a .opf entry. Empty string means no OPF exists (not an error: image-only
// zips renamed to .epub still convert through the natural-order fallback).
func locateOPF(zr *zip.Reader) (string, error) {
	container := findEntryInsensitive(zr, epubContainerPath)
	if container == nil {
		for _, f := range zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
				return f.Name, nil
			}
		}
		return "", nil
	}

	data, err := readZipEntry(container)
	if err != nil {
		return "", services.Wrap(services.ErrUnsupportedFormat, readerStage, "read container.xml", "", err)
	}

	var c containerXML
	if err := xml.Unmarshal(stripBOM(data), &c); err != nil {
		return "", services.Wrap(services.ErrUnsupportedFormat, readerStage, "parse container.xml", "", err)
	}

	var fallback string
	for _, rf := range c.RootFiles {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), "application/oebps-package+xml") {
			return fullPath, nil
		}
		if fallback == "" {
			fallback = fullPath
		}
	}
	return fallback, nil
}

// imageSourcesFromHTML extracts image references from an XHTML page document
// in document order: <img src>, <image href> and <image xlink:href> (SVG
// fixed-layout pages).
func imageSourcesFromHTML(data []byte) []string {
	var sources []string
	tokenizer := html.NewTokenizer(strings.NewReader(string(data)))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return sources
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		token := tokenizer.Token()
		switch token.Data {
		case "img":
			for _, attr := range token.Attr {
				if attr.Key == "src" && strings.TrimSpace(attr.Val) != "" {
					sources = append(sources, strings.TrimSpace(attr.Val))
					break
				}
			}
		case "image":
			for _, attr := range token.Attr {
				if (attr.Key == "href" || strings.HasSuffix(attr.Key, ":href")) && strings.TrimSpace(attr.Val) != "" {
					sources = append(sources, strings.TrimSpace(attr.Val))
					break
				}
			}
		}
	}
}

// resolveArchivePath resolves href relative to the directory of basePath.
// Both are archive-internal, forward-slash paths. Absolute hrefs and paths
// escaping the archive root resolve to "".
func resolveArchivePath(basePath, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "/") || strings.Contains(href, "://") {
		return ""
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	if frag := strings.IndexByte(href, '#'); frag >= 0 {
		href = href[:frag]
	}
	cleaned := path.Clean(path.Join(path.Dir(basePath), href))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.HasPrefix(cleaned, "/") {
		return ""
	}
	return cleaned
}

func findEntryInsensitive(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	lower := strings.ToLower(name)
	for _, f := range zr.File {
		if strings.ToLower(f.Name) == lower {
			return f
		}
	}
	return nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPageBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxPageBytes {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", f.Name, maxPageBytes)
	}
	return data, nil
}

func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
