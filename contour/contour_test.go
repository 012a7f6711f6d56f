package contour

import (
	"errors"
	"testing"

	"github.com/caio-sobreiro/netrt/dicomtag"
	"github.com/caio-sobreiro/netrt/roi"
)

func identityInstance(sopUID string, z float64, instanceNumber int) dicomtag.Instance {
	return dicomtag.Instance{
		SOPInstanceUID:          sopUID,
		InstanceNumber:          instanceNumber,
		ImagePositionPatient:    [3]float64{0, 0, z},
		ImageOrientationPatient: [6]float64{1, 0, 0, 0, 1, 0},
		PixelSpacing:            [2]float64{1, 1},
		Rows:                    10,
		Columns:                10,
	}
}

func TestOrderSlicesBySliceProjection(t *testing.T) {
	in := []dicomtag.Instance{
		identityInstance("c", 20, 3),
		identityInstance("a", 0, 1),
		identityInstance("b", 10, 2),
	}
	ordered := OrderSlices(in)
	got := []string{ordered[0].SOPInstanceUID, ordered[1].SOPInstanceUID, ordered[2].SOPInstanceUID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ordered = %v, want %v", got, want)
		}
	}
}

func TestOrderSlicesTiesBreakOnInstanceNumberThenUID(t *testing.T) {
	in := []dicomtag.Instance{
		identityInstance("z", 0, 2),
		identityInstance("a", 0, 1),
		identityInstance("m", 0, 1),
	}
	ordered := OrderSlices(in)
	if ordered[0].SOPInstanceUID != "a" || ordered[1].SOPInstanceUID != "m" || ordered[2].SOPInstanceUID != "z" {
		t.Fatalf("tie-break order wrong: %v/%v/%v", ordered[0].SOPInstanceUID, ordered[1].SOPInstanceUID, ordered[2].SOPInstanceUID)
	}
}

func TestOrderSlicesDoesNotMutateInput(t *testing.T) {
	in := []dicomtag.Instance{identityInstance("b", 10, 2), identityInstance("a", 0, 1)}
	_ = OrderSlices(in)
	if in[0].SOPInstanceUID != "b" {
		t.Fatal("OrderSlices must not mutate its input slice in place")
	}
}

func TestFilterROIsDropsByCaseInsensitiveSubstring(t *testing.T) {
	rois := []roi.ROI{{Name: "Skull_Outline"}, {Name: "GTV"}, {Name: "Patient_Outline"}}
	kept, dropped := FilterROIs(rois, []string{"skull", "patient_outline"})

	if len(kept) != 1 || kept[0].Name != "GTV" {
		t.Fatalf("kept = %v, want only GTV", kept)
	}
	if len(dropped) != 2 {
		t.Fatalf("dropped = %v, want 2 entries", dropped)
	}
}

func TestFilterROIsIgnoresEmptyPatterns(t *testing.T) {
	rois := []roi.ROI{{Name: "GTV"}}
	kept, dropped := FilterROIs(rois, []string{"", "skull"})
	if len(kept) != 1 || len(dropped) != 0 {
		t.Fatalf("kept=%v dropped=%v, want GTV kept and nothing dropped", kept, dropped)
	}
}

func TestFilterByFrameOfReferenceDropsMismatched(t *testing.T) {
	rois := []roi.ROI{
		{Name: "GTV", FrameOfReferenceUID: "1.2.3"},
		{Name: "Cord", FrameOfReferenceUID: "9.9.9"},
		{Name: "Unspecified"},
	}
	kept, dropped := FilterByFrameOfReference(rois, "1.2.3")

	if len(kept) != 2 {
		t.Fatalf("kept = %v, want GTV and Unspecified", kept)
	}
	if len(dropped) != 1 || dropped[0] != "Cord" {
		t.Fatalf("dropped = %v, want [Cord]", dropped)
	}
}

func TestFilterByFrameOfReferenceIgnoresEmptySeriesFOR(t *testing.T) {
	rois := []roi.ROI{{Name: "GTV", FrameOfReferenceUID: "1.2.3"}}
	kept, dropped := FilterByFrameOfReference(rois, "")
	if len(kept) != 1 || len(dropped) != 0 {
		t.Fatalf("kept=%v dropped=%v, want all kept when series FOR is unknown", kept, dropped)
	}
}

func TestBuildVolumeRejectsEmptyROIList(t *testing.T) {
	_, err := BuildVolume([]dicomtag.Instance{identityInstance("a", 0, 1)}, nil, 1, nil)
	if !errors.Is(err, ErrNoROI) {
		t.Fatalf("err = %v, want ErrNoROI", err)
	}
}

func TestBuildVolumeRasterizesSquareContour(t *testing.T) {
	instances := []dicomtag.Instance{identityInstance("slice-0", 0, 1)}

	rois := []roi.ROI{{
		Number: 1,
		Name:   "GTV",
		Contours: []roi.Contour{{
			ReferencedSOPInstanceUID: "slice-0",
			Points: [][3]float64{
				{2, 2, 0}, {2, 6, 0}, {6, 6, 0}, {6, 2, 0},
			},
			Z: 0,
		}},
	}}

	vol, err := BuildVolume(instances, rois, 0.5, nil)
	if err != nil {
		t.Fatalf("BuildVolume: %v", err)
	}
	if vol.IsEmpty() {
		t.Fatal("expected rasterized square to set voxels")
	}
	if !vol.Get(0, 4, 4) {
		t.Error("expected center of square to be inside the mask")
	}
	if vol.Get(0, 0, 0) {
		t.Error("expected corner outside the square to remain clear")
	}
}

func TestBuildVolumeDropsUnmatchedPolygonButKeepsRasterizing(t *testing.T) {
	instances := []dicomtag.Instance{identityInstance("slice-0", 0, 1)}
	rois := []roi.ROI{{
		Name: "GTV",
		Contours: []roi.Contour{
			{
				// Out of tolerance: should be dropped, not fail the volume.
				Points: [][3]float64{{2, 2, 500}, {2, 6, 500}, {6, 6, 500}},
				Z:      500,
			},
			{
				ReferencedSOPInstanceUID: "slice-0",
				Points:                   [][3]float64{{2, 2, 0}, {2, 6, 0}, {6, 6, 0}, {6, 2, 0}},
				Z:                        0,
			},
		},
	}}

	vol, err := BuildVolume(instances, rois, 0.5, nil)
	if err != nil {
		t.Fatalf("BuildVolume: %v, want nil (unmatched polygon should be dropped, not fail)", err)
	}
	if !vol.Get(0, 4, 4) {
		t.Error("expected the matched polygon to still be rasterized")
	}
}
