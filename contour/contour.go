// Package contour turns an ordered image series and a parsed structure set
// into a 3-D binary mask volume: ordering slices along their anatomical
// axis, filtering ROIs by name, rasterizing each contour's polygon into its
// slice's pixel grid, and merging every surviving ROI together.
package contour

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/caio-sobreiro/netrt/dicomtag"
	"github.com/caio-sobreiro/netrt/mask"
	"github.com/caio-sobreiro/netrt/roi"
)

// ErrNoROI is returned when every ROI in a structure set was dropped by the
// ignore list, or the set defined none to begin with.
var ErrNoROI = fmt.Errorf("contour: no ROI survives filtering")

// ErrCoordinateMismatch describes a contour polygon for which no slice in
// the series falls within tolerance of its z position. BuildVolume logs it
// and drops the polygon; a frame-of-reference mismatch is reported by
// ErrFrameOfReferenceMismatch instead.
type ErrCoordinateMismatch struct {
	ROIName string
	Z       float64
}

func (e *ErrCoordinateMismatch) Error() string {
	return fmt.Sprintf("contour: no slice within tolerance of ROI %q at z=%.3f", e.ROIName, e.Z)
}

// ErrFrameOfReferenceMismatch is returned when filtering by frame of
// reference leaves no ROI to rasterize — every ROI the structure set
// defines is bound to a frame of reference other than the image series
// being segmented.
type ErrFrameOfReferenceMismatch struct {
	Dropped []string
}

func (e *ErrFrameOfReferenceMismatch) Error() string {
	return fmt.Sprintf("contour: no ROI shares the series' frame of reference (dropped: %s)", strings.Join(e.Dropped, ", "))
}

// OrderSlices sorts instances along the series' slice-normal projection,
// never by filename or file discovery order, and breaks ties on Instance
// Number then SOP Instance UID so the result is deterministic.
func OrderSlices(instances []dicomtag.Instance) []dicomtag.Instance {
	ordered := append([]dicomtag.Instance(nil), instances...)
	sort.Slice(ordered, func(i, j int) bool {
		pi, pj := ordered[i].SliceProjection(), ordered[j].SliceProjection()
		if pi != pj {
			return pi < pj
		}
		if ordered[i].InstanceNumber != ordered[j].InstanceNumber {
			return ordered[i].InstanceNumber < ordered[j].InstanceNumber
		}
		return ordered[i].SOPInstanceUID < ordered[j].SOPInstanceUID
	})
	return ordered
}

// FilterROIs drops ROIs whose name case-insensitively contains any entry of
// ignoreList, returning the survivors and the dropped names for logging.
func FilterROIs(rois []roi.ROI, ignoreList []string) (kept []roi.ROI, dropped []string) {
	for _, r := range rois {
		name := strings.ToLower(r.Name)
		ignored := false
		for _, pattern := range ignoreList {
			if pattern == "" {
				continue
			}
			if strings.Contains(name, strings.ToLower(pattern)) {
				ignored = true
				break
			}
		}
		if ignored {
			dropped = append(dropped, r.Name)
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped
}

// FilterByFrameOfReference drops ROIs whose FrameOfReferenceUID differs from
// seriesFOR, returning the survivors and the dropped names for logging. An
// empty seriesFOR or ROI FrameOfReferenceUID is treated as unrecorded, not
// mismatched, since not every structure set populates it.
func FilterByFrameOfReference(rois []roi.ROI, seriesFOR string) (kept []roi.ROI, dropped []string) {
	for _, r := range rois {
		if seriesFOR != "" && r.FrameOfReferenceUID != "" && r.FrameOfReferenceUID != seriesFOR {
			dropped = append(dropped, r.Name)
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped
}

// BuildVolume rasterizes every contour of every surviving ROI into a merged
// mask volume aligned to the ordered slices. zTolerance should be half the
// series' slice spacing, per the matching rule. A contour polygon that
// matches no slice within tolerance is dropped and logged rather than
// failing the whole volume; logger may be nil.
func BuildVolume(ordered []dicomtag.Instance, rois []roi.ROI, zTolerance float64, logger *slog.Logger) (*mask.Volume, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(rois) == 0 {
		return nil, ErrNoROI
	}
	if len(ordered) == 0 {
		return nil, fmt.Errorf("contour: no instances to build a volume over")
	}

	sliceUIDs := make([]string, len(ordered))
	for i, inst := range ordered {
		sliceUIDs[i] = inst.SOPInstanceUID
	}

	var volumes []*mask.Volume
	for _, r := range rois {
		v := mask.New(int(ordered[0].Rows), int(ordered[0].Columns), sliceUIDs)
		for _, c := range r.Contours {
			idx, err := matchSlice(ordered, c, zTolerance, r.Name)
			if err != nil {
				logger.Warn("dropping unmatched contour polygon", "roi", r.Name, "z", c.Z, "error", err)
				continue
			}
			if err := rasterizeInto(v, idx, ordered[idx], c); err != nil {
				return nil, err
			}
		}
		volumes = append(volumes, v)
	}

	return mask.Merge(volumes)
}

func matchSlice(ordered []dicomtag.Instance, c roi.Contour, zTolerance float64, roiName string) (int, error) {
	if c.ReferencedSOPInstanceUID != "" {
		for i, inst := range ordered {
			if inst.SOPInstanceUID == c.ReferencedSOPInstanceUID {
				return i, nil
			}
		}
	}

	best := -1
	bestDist := math.MaxFloat64
	for i, inst := range ordered {
		dist := math.Abs(inst.SliceProjection() - projectZ(inst, c))
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	if best == -1 || bestDist > zTolerance {
		return -1, &ErrCoordinateMismatch{ROIName: roiName, Z: c.Z}
	}
	return best, nil
}

// projectZ projects the contour's first point onto the given instance's
// slice normal, for distance comparison when no explicit reference exists.
func projectZ(inst dicomtag.Instance, c roi.Contour) float64 {
	n := inst.SliceNormal()
	p := c.Points[0]
	return p[0]*n[0] + p[1]*n[1] + p[2]*n[2]
}
