// Package dicomtag provides a typed accessor view over a raw dicom.Dataset,
// so callers reason about named fields instead of walking tag/VR pairs by
// hand. It replaces the "dynamic polymorphism over DICOM attributes" that a
// bare dataset.GetString/GetElement call site would otherwise require.
package dicomtag

import (
	"fmt"

	"github.com/caio-sobreiro/netrt/dicom"
)

// Tag aliases, named for readability at call sites.
var (
	tagStudyInstanceUID     = dicom.Tag{Group: 0x0020, Element: 0x000D}
	tagSeriesInstanceUID    = dicom.Tag{Group: 0x0020, Element: 0x000E}
	tagSOPInstanceUID       = dicom.Tag{Group: 0x0008, Element: 0x0018}
	tagSOPClassUID          = dicom.Tag{Group: 0x0008, Element: 0x0016}
	tagInstanceNumber       = dicom.Tag{Group: 0x0020, Element: 0x0013}
	tagImagePositionPatient = dicom.Tag{Group: 0x0020, Element: 0x0032}
	tagImageOrientation     = dicom.Tag{Group: 0x0020, Element: 0x0037}
	tagPixelSpacing         = dicom.Tag{Group: 0x0028, Element: 0x0030}
	tagRows                 = dicom.Tag{Group: 0x0028, Element: 0x0010}
	tagColumns              = dicom.Tag{Group: 0x0028, Element: 0x0011}
	tagFrameOfReferenceUID  = dicom.Tag{Group: 0x0020, Element: 0x0052}
	tagModality             = dicom.Tag{Group: 0x0008, Element: 0x0060}
)

// Instance is the typed view of the DICOM attributes the contour engine and
// series synthesiser need. Unknown attributes are never lost: Raw retains
// the full underlying dataset for pass-through re-encoding.
type Instance struct {
	StudyInstanceUID         string
	SeriesInstanceUID        string
	SOPInstanceUID           string
	SOPClassUID              string
	InstanceNumber           int
	ImagePositionPatient     [3]float64
	ImageOrientationPatient  [6]float64
	PixelSpacing             [2]float64
	Rows, Columns            uint16
	FrameOfReferenceUID      string
	Modality                 string
	Raw                      *dicom.Dataset
}

// FromDataset builds an Instance from a parsed dataset, returning an error
// if the attributes the pipeline depends on for slice ordering and
// rasterization (position, orientation, spacing) are absent or malformed.
func FromDataset(ds *dicom.Dataset) (Instance, error) {
	inst := Instance{Raw: ds}

	inst.StudyInstanceUID = ds.GetString(tagStudyInstanceUID)
	inst.SeriesInstanceUID = ds.GetString(tagSeriesInstanceUID)
	inst.SOPInstanceUID = ds.GetString(tagSOPInstanceUID)
	inst.SOPClassUID = ds.GetString(tagSOPClassUID)
	inst.FrameOfReferenceUID = ds.GetString(tagFrameOfReferenceUID)
	inst.Modality = ds.GetString(tagModality)

	if inst.StudyInstanceUID == "" || inst.SOPInstanceUID == "" {
		return Instance{}, fmt.Errorf("dicomtag: missing Study/SOP Instance UID")
	}

	if s := ds.GetString(tagInstanceNumber); s != "" {
		var n int
		if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
			inst.InstanceNumber = n
		}
	}

	if pos, err := ds.GetFloat64s(tagImagePositionPatient); err == nil && len(pos) == 3 {
		inst.ImagePositionPatient = [3]float64{pos[0], pos[1], pos[2]}
	} else if err != nil {
		return Instance{}, fmt.Errorf("dicomtag: image position patient: %w", err)
	}

	if orient, err := ds.GetFloat64s(tagImageOrientation); err == nil && len(orient) == 6 {
		inst.ImageOrientationPatient = [6]float64{
			orient[0], orient[1], orient[2], orient[3], orient[4], orient[5],
		}
	} else if err != nil {
		return Instance{}, fmt.Errorf("dicomtag: image orientation patient: %w", err)
	}

	if sp, err := ds.GetFloat64s(tagPixelSpacing); err == nil && len(sp) == 2 {
		inst.PixelSpacing = [2]float64{sp[0], sp[1]}
	} else if err != nil {
		return Instance{}, fmt.Errorf("dicomtag: pixel spacing: %w", err)
	}

	if rows, ok := ds.GetUint16(tagRows); ok {
		inst.Rows = rows
	}
	if cols, ok := ds.GetUint16(tagColumns); ok {
		inst.Columns = cols
	}

	return inst, nil
}

// PixelData returns the instance's raw pixel buffer.
func (i Instance) PixelData() []byte {
	return i.Raw.GetBytes(dicom.PixelDataTag)
}

// SliceNormal returns the cross product of the row and column direction
// cosines from Image Orientation (Patient) — the axis slices are ordered
// along.
func (i Instance) SliceNormal() [3]float64 {
	row := [3]float64{i.ImageOrientationPatient[0], i.ImageOrientationPatient[1], i.ImageOrientationPatient[2]}
	col := [3]float64{i.ImageOrientationPatient[3], i.ImageOrientationPatient[4], i.ImageOrientationPatient[5]}
	return [3]float64{
		row[1]*col[2] - row[2]*col[1],
		row[2]*col[0] - row[0]*col[2],
		row[0]*col[1] - row[1]*col[0],
	}
}

// SliceProjection projects ImagePositionPatient onto the slice normal,
// giving a scalar that orders instances along the series' slice axis
// regardless of filename or acquisition order.
func (i Instance) SliceProjection() float64 {
	n := i.SliceNormal()
	p := i.ImagePositionPatient
	return p[0]*n[0] + p[1]*n[1] + p[2]*n[2]
}
