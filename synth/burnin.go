package synth

import (
	"strings"

	"github.com/caio-sobreiro/netrt/dicom"
)

// font5x7 is a fixed bitmap font, 5 columns by 7 rows per glyph, covering
// the characters a disclaimer string needs. It exists so burn-in never
// depends on an external font file or rendering library — the whole point
// of the feature is a guaranteed-present watermark.
var font5x7 = map[rune][7]byte{
	' ': {0, 0, 0, 0, 0, 0, 0},
	'N': {0b10001, 0b11001, 0b10101, 0b10011, 0b10001, 0b10001, 0b10001},
	'O': {0b01110, 0b10001, 0b10001, 0b10001, 0b10001, 0b10001, 0b01110},
	'T': {0b11111, 0b00100, 0b00100, 0b00100, 0b00100, 0b00100, 0b00100},
	'F': {0b11111, 0b10000, 0b10000, 0b11110, 0b10000, 0b10000, 0b10000},
	'R': {0b11110, 0b10001, 0b10001, 0b11110, 0b10100, 0b10010, 0b10001},
	'C': {0b01110, 0b10001, 0b10000, 0b10000, 0b10000, 0b10001, 0b01110},
	'L': {0b10000, 0b10000, 0b10000, 0b10000, 0b10000, 0b10000, 0b11111},
	'I': {0b01110, 0b00100, 0b00100, 0b00100, 0b00100, 0b00100, 0b01110},
	'A': {0b01110, 0b10001, 0b10001, 0b11111, 0b10001, 0b10001, 0b10001},
	'U': {0b10001, 0b10001, 0b10001, 0b10001, 0b10001, 0b10001, 0b01110},
	'S': {0b01111, 0b10000, 0b10000, 0b01110, 0b00001, 0b00001, 0b11110},
	'E': {0b11111, 0b10000, 0b10000, 0b11110, 0b10000, 0b10000, 0b11111},
	'D': {0b11110, 0b10001, 0b10001, 0b10001, 0b10001, 0b10001, 0b11110},
	'V': {0b10001, 0b10001, 0b10001, 0b10001, 0b10001, 0b01010, 0b00100},
}

const glyphWidth, glyphHeight, glyphSpacing = 5, 7, 1

// burnInPixelData rasterises text into the bottom-centre of the dataset's
// 8-bit grayscale pixel buffer, overwriting the clone's pixel data in
// place. Unsupported characters are rendered as blank cells.
func burnInPixelData(ds *dicom.Dataset, rows, columns int, text string) {
	pixels := ds.GetBytes(dicom.PixelDataTag)
	if len(pixels) < rows*columns {
		return
	}
	buf := append([]byte(nil), pixels...)

	text = strings.ToUpper(text)
	width := len(text) * (glyphWidth + glyphSpacing)
	startCol := (columns - width) / 2
	if startCol < 0 {
		startCol = 0
	}
	startRow := rows - glyphHeight - 4
	if startRow < 0 {
		startRow = 0
	}

	for i, ch := range text {
		glyph, ok := font5x7[ch]
		if !ok {
			continue
		}
		baseCol := startCol + i*(glyphWidth+glyphSpacing)
		for r := 0; r < glyphHeight; r++ {
			row := glyph[r]
			for c := 0; c < glyphWidth; c++ {
				if row&(1<<uint(glyphWidth-1-c)) == 0 {
					continue
				}
				px, py := baseCol+c, startRow+r
				if px < 0 || px >= columns || py < 0 || py >= rows {
					continue
				}
				buf[py*columns+px] = 0xFF
			}
		}
	}

	ds.SetBytes(dicom.PixelDataTag, dicom.VR_OW, buf)
}
