package ebook

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"rebind/internal/services"
)

// PalmDB layout constants. The type/creator pair sits at offset 60 of the
// database header, the record count at 76, followed by 8-byte record-info
// entries (offset uint32, attributes+uniqueID uint32).
const (
	palmTypeOffset       = 60
	palmNumRecordsOffset = 76
	palmRecordListOffset = 78
	palmRecordInfoSize   = 8

	// firstImageIndex lives at offset 108 of the MOBI header, which starts
	// at offset 16 of record 0 (after the PalmDOC header).
	mobiFirstImageOffset = 16 + 92
)

var mobiSignature = []byte("BOOKMOBI")

func isPalmDB(header []byte) bool {
	return len(header) >= palmTypeOffset+8 &&
		bytes.Equal(header[palmTypeOffset:palmTypeOffset+8], mobiSignature)
}

// readMOBI loads image records out of a PalmDB MOBI file. MOBI stores images
// as raw records past the text; record 0's MOBI header points at the first
// one. Record order is the reading order, so every page carries a manifest
// index. Pages are named rec_NNNNN so the natural order agrees with the
// record order.
func readMOBI(sourcePath string) (*WorkingSet, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, services.Wrap(services.ErrUnsupportedFormat, readerStage, "open mobi", sourcePath, err)
	}

	offsets, err := palmRecordOffsets(data)
	if err != nil {
		return nil, services.Wrap(services.ErrUnsupportedFormat, readerStage, "parse mobi", sourcePath, err)
	}

	ws := &WorkingSet{SourcePath: sourcePath, Format: FormatMOBI}
	start := firstImageRecord(data, offsets)
	manifest := 0
	for i := start; i < len(offsets); i++ {
		record := recordData(data, offsets, i)
		if !isImageRecord(record) {
			continue
		}
		ws.Pages = append(ws.Pages, &PageEntry{
			ManifestIndex: manifest,
			SourceName:    fmt.Sprintf("rec_%05d%s", i, imageRecordExt(record)),
			Data:          record,
		})
		manifest++
	}
	return ws, nil
}

// palmRecordOffsets parses the PalmDB record list and returns each record's
// start offset, validated to be in-bounds and non-decreasing.
func palmRecordOffsets(data []byte) ([]int, error) {
	if len(data) < palmRecordListOffset {
		return nil, fmt.Errorf("file too short for a PalmDB header (%d bytes)", len(data))
	}
	numRecords := int(binary.BigEndian.Uint16(data[palmNumRecordsOffset:]))
	if numRecords == 0 {
		return nil, fmt.Errorf("database declares zero records")
	}
	listEnd := palmRecordListOffset + numRecords*palmRecordInfoSize
	if listEnd > len(data) {
		return nil, fmt.Errorf("record list for %d records exceeds file size", numRecords)
	}

	offsets := make([]int, numRecords)
	prev := 0
	for i := 0; i < numRecords; i++ {
		off := int(binary.BigEndian.Uint32(data[palmRecordListOffset+i*palmRecordInfoSize:]))
		if off < listEnd || off > len(data) || off < prev {
			return nil, fmt.Errorf("record %d offset %d out of order or out of bounds", i, off)
		}
		offsets[i] = off
		prev = off
	}
	return offsets, nil
}

// firstImageRecord returns the record index where image scanning starts,
// taken from the MOBI header's first-image field when valid, otherwise 1
// (record 0 is always the header).
func firstImageRecord(data []byte, offsets []int) int {
	rec0 := recordData(data, offsets, 0)
	if len(rec0) >= mobiFirstImageOffset+4 && bytes.Equal(rec0[16:20], []byte("MOBI")) {
		first := int(binary.BigEndian.Uint32(rec0[mobiFirstImageOffset:]))
		if first > 0 && first < len(offsets) {
			return first
		}
	}
	return 1
}

func recordData(data []byte, offsets []int, i int) []byte {
	start := offsets[i]
	end := len(data)
	if i+1 < len(offsets) {
		end = offsets[i+1]
	}
	return data[start:end]
}

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 'P', 'N', 'G'}
	gifMagic  = []byte("GIF8")
	bmpMagic  = []byte("BM")
)

func isImageRecord(record []byte) bool {
	return imageRecordExt(record) != ""
}

// imageRecordExt sniffs the record's image type from its magic bytes.
// Non-image records (FLIS, FCIS, EOF markers, fonts) return "".
func imageRecordExt(record []byte) string {
	switch {
	case bytes.HasPrefix(record, jpegMagic):
		return ".jpg"
	case bytes.HasPrefix(record, pngMagic):
		return ".png"
	case bytes.HasPrefix(record, gifMagic):
		return ".gif"
	case bytes.HasPrefix(record, bmpMagic):
		return ".bmp"
	default:
		return ""
	}
}
