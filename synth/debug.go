package synth

import (
	"fmt"

	"github.com/caio-sobreiro/netrt/dicom"
	"github.com/caio-sobreiro/netrt/dicomtag"
	"github.com/caio-sobreiro/netrt/mask"
	"github.com/caio-sobreiro/netrt/types"
)

var (
	tagSamplesPerPixel  = dicom.Tag{Group: 0x0028, Element: 0x0002}
	tagPhotometric      = dicom.Tag{Group: 0x0028, Element: 0x0004}
	tagPlanarConfig     = dicom.Tag{Group: 0x0028, Element: 0x0006}
	tagBitsAllocated    = dicom.Tag{Group: 0x0028, Element: 0x0100}
	tagBitsStored       = dicom.Tag{Group: 0x0028, Element: 0x0101}
	tagHighBit          = dicom.Tag{Group: 0x0028, Element: 0x0102}
	tagPixelRep         = dicom.Tag{Group: 0x0028, Element: 0x0103}
	tagSOPClassUID      = dicom.Tag{Group: 0x0008, Element: 0x0016}
)

// maskColor is the fixed RGB color baked into a debug secondary-capture
// frame wherever the mask is set.
var maskColor = [3]byte{0xFF, 0x40, 0x40}

// BuildDebugSeries composites the mask directly into 24-bit RGB pixel data
// (instead of an overlay plane) and retags each instance as Secondary
// Capture, for visual sanity-checking without a viewer that understands
// overlays.
func BuildDebugSeries(ordered []dicomtag.Instance, volume *mask.Volume, opts Options) ([]*dicom.Dataset, error) {
	if len(ordered) != len(volume.SliceUIDs) {
		return nil, fmt.Errorf("synth: instance count %d does not match volume slice count %d", len(ordered), len(volume.SliceUIDs))
	}

	seriesUID := newUID()
	out := make([]*dicom.Dataset, len(ordered))

	for i, inst := range ordered {
		ds := cloneDataset(inst.Raw)

		ds.AddElement(tagSeriesInstanceUID, dicom.VR_UI, seriesUID)
		ds.AddElement(tagSOPInstanceUID, dicom.VR_UI, newUID())
		ds.AddElement(tagSOPClassUID, dicom.VR_UI, types.SecondaryCaptureImageStorage)
		ds.AddElement(tagInstanceNumber, dicom.VR_IS, fmt.Sprintf("%d", i+1))
		ds.AddElement(tagSeriesDescription, dicom.VR_LO, opts.SeriesDescription+" (debug)")
		ds.AddElement(tagSamplesPerPixel, dicom.VR_US, uint16(3))
		ds.AddElement(tagPhotometric, dicom.VR_CS, "RGB")
		ds.AddElement(tagPlanarConfig, dicom.VR_US, uint16(0))
		ds.AddElement(tagBitsAllocated, dicom.VR_US, uint16(8))
		ds.AddElement(tagBitsStored, dicom.VR_US, uint16(8))
		ds.AddElement(tagHighBit, dicom.VR_US, uint16(7))
		ds.AddElement(tagPixelRep, dicom.VR_US, uint16(0))

		rgb := compositeRGB(inst.PixelData(), volume, i, int(inst.Rows), int(inst.Columns))
		ds.SetBytes(dicom.PixelDataTag, dicom.VR_OW, rgb)

		out[i] = ds
	}

	return out, nil
}

// compositeRGB converts a grayscale source buffer to RGB and overwrites
// mask-covered pixels with a fixed highlight color.
func compositeRGB(gray []byte, volume *mask.Volume, sliceIdx, rows, columns int) []byte {
	out := make([]byte, rows*columns*3)
	for row := 0; row < rows; row++ {
		for col := 0; col < columns; col++ {
			idx := row*columns + col
			var g byte
			if idx < len(gray) {
				g = gray[idx]
			}
			o := idx * 3
			if volume.Get(sliceIdx, row, col) {
				out[o], out[o+1], out[o+2] = maskColor[0], maskColor[1], maskColor[2]
				continue
			}
			out[o], out[o+1], out[o+2] = g, g, g
		}
	}
	return out
}
