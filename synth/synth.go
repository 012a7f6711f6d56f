// Package synth builds the derived image series the orchestrator writes
// into Addition/ (and, optionally, DebugDicom/): source pixel data
// unchanged, plus an overlay plane carrying the merged mask, plus an
// optional burn-in disclaimer and a debug secondary-capture rendering.
package synth

import (
	"fmt"

	"github.com/caio-sobreiro/netrt/dicom"
	"github.com/caio-sobreiro/netrt/dicomtag"
	"github.com/caio-sobreiro/netrt/mask"
)

// Options carries the configuration-derived knobs for one synthesis run.
type Options struct {
	SeriesNumber      int
	SeriesDescription string
	StudyDescription  string
	AddBurnIn         bool
	BurnInText        string
}

var (
	tagSeriesInstanceUID  = dicom.Tag{Group: 0x0020, Element: 0x000E}
	tagSOPInstanceUID     = dicom.Tag{Group: 0x0008, Element: 0x0018}
	tagInstanceNumber     = dicom.Tag{Group: 0x0020, Element: 0x0013}
	tagSeriesNumber       = dicom.Tag{Group: 0x0020, Element: 0x0011}
	tagSeriesDescription  = dicom.Tag{Group: 0x0008, Element: 0x103E}
	tagStudyDescription   = dicom.Tag{Group: 0x0008, Element: 0x1030}
	tagOverlayRows        = dicom.Tag{Group: 0x6000, Element: 0x0010}
	tagOverlayColumns     = dicom.Tag{Group: 0x6000, Element: 0x0011}
	tagOverlayType        = dicom.Tag{Group: 0x6000, Element: 0x0040}
	tagOverlayOrigin      = dicom.Tag{Group: 0x6000, Element: 0x0050}
	tagOverlayBitsAlloc   = dicom.Tag{Group: 0x6000, Element: 0x0100}
	tagOverlayBitPosition = dicom.Tag{Group: 0x6000, Element: 0x0102}
	tagOverlayData        = dicom.Tag{Group: 0x6000, Element: 0x3000}
)

// BuildAdditionSeries produces one derived dataset per ordered source
// instance, copying every attribute from the source (pass-through) and
// adding the overlay plane + new series/instance identifiers. The study
// identifier and frame of reference are preserved unchanged.
func BuildAdditionSeries(ordered []dicomtag.Instance, volume *mask.Volume, opts Options) ([]*dicom.Dataset, error) {
	if len(ordered) != len(volume.SliceUIDs) {
		return nil, fmt.Errorf("synth: instance count %d does not match volume slice count %d", len(ordered), len(volume.SliceUIDs))
	}

	seriesUID := newUID()
	out := make([]*dicom.Dataset, len(ordered))

	for i, inst := range ordered {
		ds := cloneDataset(inst.Raw)

		ds.AddElement(tagSeriesInstanceUID, dicom.VR_UI, seriesUID)
		ds.AddElement(tagSOPInstanceUID, dicom.VR_UI, newUID())
		ds.AddElement(tagInstanceNumber, dicom.VR_IS, fmt.Sprintf("%d", i+1))
		ds.AddElement(tagSeriesNumber, dicom.VR_IS, fmt.Sprintf("%d", opts.SeriesNumber))
		ds.AddElement(tagSeriesDescription, dicom.VR_LO, opts.SeriesDescription)
		ds.AddElement(tagStudyDescription, dicom.VR_LO, opts.StudyDescription)

		writeOverlayPlane(ds, volume, i, int(inst.Rows), int(inst.Columns))

		if opts.AddBurnIn && opts.BurnInText != "" {
			burnInPixelData(ds, int(inst.Rows), int(inst.Columns), opts.BurnInText)
		}

		out[i] = ds
	}

	return out, nil
}

// writeOverlayPlane populates the overlay-group attributes (rows, columns,
// origin, bits allocated, bit position, type, data) from the mask's plane
// for slice i.
func writeOverlayPlane(ds *dicom.Dataset, volume *mask.Volume, sliceIdx, rows, columns int) {
	ds.AddElement(tagOverlayRows, dicom.VR_US, uint16(rows))
	ds.AddElement(tagOverlayColumns, dicom.VR_US, uint16(columns))
	ds.AddElement(tagOverlayType, dicom.VR_CS, "G")
	ds.AddElement(tagOverlayOrigin, dicom.VR_SS, "1\\1")
	ds.AddElement(tagOverlayBitsAlloc, dicom.VR_US, uint16(1))
	ds.AddElement(tagOverlayBitPosition, dicom.VR_US, uint16(0))
	ds.SetBytes(tagOverlayData, dicom.VR_OW, volume.PackPlane(sliceIdx))
}

// cloneDataset makes a shallow copy of a dataset's element map so mutating
// the clone (series/instance identifiers, overlay group) never touches the
// original instance read from DCM/.
func cloneDataset(src *dicom.Dataset) *dicom.Dataset {
	dst := dicom.NewDataset()
	for tag, el := range src.Elements {
		cp := *el
		dst.Elements[tag] = &cp
	}
	return dst
}
