package roi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caio-sobreiro/netrt/dicom"
)

var (
	tagStructureSetROISeq  = dicom.Tag{Group: 0x3006, Element: 0x0020}
	tagROINumber           = dicom.Tag{Group: 0x3006, Element: 0x0022}
	tagROIName             = dicom.Tag{Group: 0x3006, Element: 0x0026}
	tagReferencedFORUID    = dicom.Tag{Group: 0x3006, Element: 0x0024}
	tagROIContourSeq       = dicom.Tag{Group: 0x3006, Element: 0x0039}
	tagReferencedROINumber = dicom.Tag{Group: 0x3006, Element: 0x0084}
	tagContourSeq          = dicom.Tag{Group: 0x3006, Element: 0x0040}
	tagContourImageSeq     = dicom.Tag{Group: 0x3006, Element: 0x0016}
	tagReferencedSOPInst   = dicom.Tag{Group: 0x0008, Element: 0x1155}
	tagContourGeometric    = dicom.Tag{Group: 0x3006, Element: 0x0042}
	tagContourData         = dicom.Tag{Group: 0x3006, Element: 0x0050}
)

// ParseStructureSet extracts every ROI defined in an RT Structure Set
// dataset, joining the Structure Set ROI Sequence (names) with the ROI
// Contour Sequence (geometry) by ROI Number, as the RTSTRUCT IOD requires.
func ParseStructureSet(ds *dicom.Dataset) ([]ROI, error) {
	names := map[int]string{}
	forUIDs := map[int]string{}
	for _, item := range ds.Sequences(tagStructureSetROISeq) {
		num, err := parseInt(item.GetString(tagROINumber))
		if err != nil {
			continue
		}
		names[num] = item.GetString(tagROIName)
		forUIDs[num] = item.GetString(tagReferencedFORUID)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("roi: structure set contains no ROI definitions")
	}

	var rois []ROI
	for _, item := range ds.Sequences(tagROIContourSeq) {
		num, err := parseInt(item.GetString(tagReferencedROINumber))
		if err != nil {
			continue
		}

		r := ROI{
			Number:              num,
			Name:                names[num],
			FrameOfReferenceUID: forUIDs[num],
		}

		for _, cItem := range item.Sequences(tagContourSeq) {
			if geom := cItem.GetString(tagContourGeometric); geom != "" && geom != "CLOSED_PLANAR" && geom != "POINT" {
				continue
			}
			contour, err := parseContour(cItem)
			if err != nil {
				continue
			}
			r.Contours = append(r.Contours, contour)
		}

		rois = append(rois, r)
	}

	return rois, nil
}

func parseContour(item *dicom.Dataset) (Contour, error) {
	var c Contour

	for _, ref := range item.Sequences(tagContourImageSeq) {
		if uid := ref.GetString(tagReferencedSOPInst); uid != "" {
			c.ReferencedSOPInstanceUID = uid
			break
		}
	}

	coords, err := item.GetFloat64s(tagContourData)
	if err != nil {
		return Contour{}, err
	}
	if len(coords)%3 != 0 {
		return Contour{}, fmt.Errorf("roi: contour data length %d not a multiple of 3", len(coords))
	}
	if len(coords) == 0 {
		return Contour{}, fmt.Errorf("roi: contour has no points")
	}

	c.Points = make([][3]float64, len(coords)/3)
	for i := range c.Points {
		c.Points[i] = [3]float64{coords[3*i], coords[3*i+1], coords[3*i+2]}
	}
	c.Z = c.Points[0][2]

	return c, nil
}

func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("roi: empty integer field")
	}
	return strconv.Atoi(s)
}
