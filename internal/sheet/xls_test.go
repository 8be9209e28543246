package sheet

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// xlsSheet describes one BIFF8 worksheet. A nil row is never written;
// rows listed in bare are written as cells without a ROW record.
type xlsSheet struct {
	name string
	rows [][]any
	bare map[int]bool
}

const (
	cfbSector     = 512
	cfbEndOfChain = 0xFFFFFFFE
	cfbFree       = 0xFFFFFFFF
	cfbFATSector  = 0xFFFFFFFD
)

func biffRecord(buf *bytes.Buffer, id uint16, data []byte) {
	_ = binary.Write(buf, binary.LittleEndian, id)
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(data)))
	buf.Write(data)
}

func le(values ...any) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func biffBOF(kind uint16) []byte {
	return le(uint16(0x0600), kind, uint16(0x0DBB), uint16(1996), uint32(0), uint32(0x0600))
}

// buildXLS writes a BIFF8 workbook into a minimal compound file holding
// one stream. Strings go through the shared string table, float64 cells
// become NUMBER records and int cells become integer RK records.
func buildXLS(t *testing.T, stream string, sheets []xlsSheet) []byte {
	t.Helper()

	var sst []string
	sstIndex := map[string]uint32{}
	substreams := make([][]byte, 0, len(sheets))
	for _, sh := range sheets {
		var body bytes.Buffer
		biffRecord(&body, 0x0809, biffBOF(0x0010))
		for r, row := range sh.rows {
			if row == nil {
				continue
			}
			if !sh.bare[r] {
				biffRecord(&body, 0x0208, le(uint16(r), uint16(0), uint16(len(row)), uint16(0x00FF), uint16(0), uint16(0), uint32(0x0100)))
			}
			for c, cell := range row {
				switch v := cell.(type) {
				case string:
					idx, ok := sstIndex[v]
					if !ok {
						idx = uint32(len(sst))
						sstIndex[v] = idx
						sst = append(sst, v)
					}
					biffRecord(&body, 0x00FD, le(uint16(r), uint16(c), uint16(0), idx))
				case float64:
					biffRecord(&body, 0x0203, le(uint16(r), uint16(c), uint16(0), math.Float64bits(v)))
				case int:
					biffRecord(&body, 0x027E, le(uint16(r), uint16(c), uint16(0), uint32(v)<<2|2))
				}
			}
		}
		biffRecord(&body, 0x000A, nil)
		substreams = append(substreams, body.Bytes())
	}

	var sstData bytes.Buffer
	sstData.Write(le(uint32(len(sst)), uint32(len(sst))))
	for _, s := range sst {
		sstData.Write(le(uint16(len(s)), uint8(0)))
		sstData.WriteString(s)
	}

	globalsLen := 4 + 16 + 4 + sstData.Len() + 4
	for _, sh := range sheets {
		globalsLen += 4 + 8 + len(sh.name)
	}

	var wb bytes.Buffer
	biffRecord(&wb, 0x0809, biffBOF(0x0005))
	pos := globalsLen
	for i, sh := range sheets {
		data := le(uint32(pos), uint8(0), uint8(0), uint8(len(sh.name)), uint8(0))
		biffRecord(&wb, 0x0085, append(data, sh.name...))
		pos += len(substreams[i])
	}
	biffRecord(&wb, 0x00FC, sstData.Bytes())
	biffRecord(&wb, 0x000A, nil)
	require.Equal(t, globalsLen, wb.Len())
	for _, sub := range substreams {
		wb.Write(sub)
	}

	// at least the mini stream cutoff, so the stream lives in regular sectors
	size := 4096
	for size < wb.Len() {
		size += cfbSector
	}
	wb.Write(make([]byte, size-wb.Len()))
	streamSectors := size / cfbSector
	require.LessOrEqual(t, streamSectors+2, cfbSector/4)

	header := make([]byte, cfbSector)
	copy(header, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	binary.LittleEndian.PutUint16(header[24:], 0x003E)
	binary.LittleEndian.PutUint16(header[26:], 0x0003)
	binary.LittleEndian.PutUint16(header[28:], 0xFFFE)
	binary.LittleEndian.PutUint16(header[30:], 9)
	binary.LittleEndian.PutUint16(header[32:], 6)
	binary.LittleEndian.PutUint32(header[44:], 1)
	binary.LittleEndian.PutUint32(header[48:], 1)
	binary.LittleEndian.PutUint32(header[56:], 4096)
	binary.LittleEndian.PutUint32(header[60:], cfbEndOfChain)
	binary.LittleEndian.PutUint32(header[68:], cfbEndOfChain)
	binary.LittleEndian.PutUint32(header[76:], 0)
	for i := 1; i < 109; i++ {
		binary.LittleEndian.PutUint32(header[76+4*i:], cfbFree)
	}

	// sector 0 is the FAT, sector 1 the directory, then the stream
	fat := make([]byte, cfbSector)
	for i := 0; i < cfbSector/4; i++ {
		next := uint32(cfbFree)
		switch {
		case i == 0:
			next = cfbFATSector
		case i == 1:
			next = cfbEndOfChain
		case i >= 2 && i < 1+streamSectors:
			next = uint32(i + 1)
		case i == 1+streamSectors:
			next = cfbEndOfChain
		}
		binary.LittleEndian.PutUint32(fat[4*i:], next)
	}

	dir := make([]byte, cfbSector)
	dirEntry(dir[0:128], "Root Entry", 5, 1, cfbEndOfChain, 0)
	dirEntry(dir[128:256], stream, 2, cfbFree, 2, uint32(size))

	out := make([]byte, 0, 3*cfbSector+size)
	out = append(out, header...)
	out = append(out, fat...)
	out = append(out, dir...)
	return append(out, wb.Bytes()...)
}

func dirEntry(b []byte, name string, kind byte, child, start, size uint32) {
	units := utf16.Encode([]rune(name))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	binary.LittleEndian.PutUint16(b[64:], uint16(2*(len(units)+1)))
	b[66] = kind
	b[67] = 1
	binary.LittleEndian.PutUint32(b[68:], cfbFree)
	binary.LittleEndian.PutUint32(b[72:], cfbFree)
	binary.LittleEndian.PutUint32(b[76:], child)
	binary.LittleEndian.PutUint32(b[116:], start)
	binary.LittleEndian.PutUint32(b[120:], size)
}

func TestOpenXLS(t *testing.T) {
	data := buildXLS(t, "Workbook", []xlsSheet{
		{
			name: "Live",
			rows: [][]any{
				{"Parameter", "08/21-0930", "08/21-1730"},
				{"CPU", 10.25, 20},
				nil,
				{"MEM", 30, 40.5},
			},
			bare: map[int]bool{3: true},
		},
		{
			name: "Notes",
			rows: [][]any{{"just", "text"}},
		},
	})

	wb, err := Open("legacy.xls", data)
	require.NoError(t, err)
	assert.Equal(t, "legacy.xls", wb.Name)
	assert.Equal(t, []string{"Live", "Notes"}, wb.SheetNames())

	live, err := wb.Sheet("LIVE")
	require.NoError(t, err)
	assert.Equal(t, Grid{
		{"Parameter", "08/21-0930", "08/21-1730"},
		{"CPU", "10.25", "20"},
		nil,
		{"MEM", "30", "40.5"},
	}, live.Grid)
	assert.Equal(t, Grid{
		{"Parameter", "08/21-0930", "08/21-1730"},
		{"CPU", "10.25", "20"},
		{"MEM", "30", "40.5"},
	}, live.Grid.Compact())

	notes, err := wb.Sheet("Notes")
	require.NoError(t, err)
	assert.Equal(t, "text", notes.Grid.Cell(0, 1))
}

func TestOpenXLSWithoutWorkbookStream(t *testing.T) {
	data := buildXLS(t, "Summary", []xlsSheet{{name: "Live", rows: [][]any{{"Parameter"}}}})

	_, err := Open("legacy.xls", data)
	assert.ErrorIs(t, err, ErrNoWorkbookStream)
}

func TestOpenCorruptXLS(t *testing.T) {
	_, err := Open("broken.xls", []byte("not a compound file"))
	assert.Error(t, err)
}
