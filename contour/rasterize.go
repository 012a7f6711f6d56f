package contour

import (
	"fmt"

	"github.com/caio-sobreiro/netrt/dicomtag"
	"github.com/caio-sobreiro/netrt/mask"
	"github.com/caio-sobreiro/netrt/roi"
)

// rasterizeInto projects a contour's patient-space points onto the given
// instance's pixel grid using the standard DICOM patient-to-image mapping,
// then fills the resulting polygon with an even-odd scanline rule, ORing
// the result into the volume's plane for that slice.
func rasterizeInto(v *mask.Volume, sliceIdx int, inst dicomtag.Instance, c roi.Contour) error {
	if inst.PixelSpacing[0] == 0 || inst.PixelSpacing[1] == 0 {
		return fmt.Errorf("contour: instance %s has zero pixel spacing", inst.SOPInstanceUID)
	}

	rowCos := [3]float64{inst.ImageOrientationPatient[0], inst.ImageOrientationPatient[1], inst.ImageOrientationPatient[2]}
	colCos := [3]float64{inst.ImageOrientationPatient[3], inst.ImageOrientationPatient[4], inst.ImageOrientationPatient[5]}
	origin := inst.ImagePositionPatient
	rowSpacing, colSpacing := inst.PixelSpacing[0], inst.PixelSpacing[1]

	poly := make([][2]float64, len(c.Points))
	for i, p := range c.Points {
		d := [3]float64{p[0] - origin[0], p[1] - origin[1], p[2] - origin[2]}
		col := (d[0]*rowCos[0] + d[1]*rowCos[1] + d[2]*rowCos[2]) / colSpacing
		row := (d[0]*colCos[0] + d[1]*colCos[1] + d[2]*colCos[2]) / rowSpacing
		poly[i] = [2]float64{col, row}
	}

	fillEvenOdd(v, sliceIdx, poly)
	return nil
}

// fillEvenOdd rasterizes a polygon in pixel coordinates using the even-odd
// scanline fill rule, setting every covered pixel in the given plane.
func fillEvenOdd(v *mask.Volume, sliceIdx int, poly [][2]float64) {
	if len(poly) < 3 {
		return
	}
	rows := v.Rows

	for row := 0; row < rows; row++ {
		y := float64(row) + 0.5
		var crossings []float64
		n := len(poly)
		for i := 0; i < n; i++ {
			x1, y1 := poly[i][0], poly[i][1]
			x2, y2 := poly[(i+1)%n][0], poly[(i+1)%n][1]
			if (y1 <= y && y2 > y) || (y2 <= y && y1 > y) {
				x := x1 + (y-y1)/(y2-y1)*(x2-x1)
				crossings = append(crossings, x)
			}
		}
		if len(crossings) < 2 {
			continue
		}
		sortFloats(crossings)
		for i := 0; i+1 < len(crossings); i += 2 {
			start := int(crossings[i] + 0.5)
			end := int(crossings[i+1] + 0.5)
			if start < 0 {
				start = 0
			}
			if end > v.Columns {
				end = v.Columns
			}
			for col := start; col < end; col++ {
				v.Set(sliceIdx, row, col, true)
			}
		}
	}
}

func sortFloats(xs []float64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}
