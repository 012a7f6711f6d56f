package dicomtag

import (
	"testing"

	"github.com/caio-sobreiro/netrt/dicom"
)

func buildImageDataset(t *testing.T) *dicom.Dataset {
	t.Helper()
	ds := dicom.NewDataset()
	ds.AddElement(tagStudyInstanceUID, dicom.VR_UI, "1.2.3")
	ds.AddElement(tagSeriesInstanceUID, dicom.VR_UI, "1.2.3.4")
	ds.AddElement(tagSOPInstanceUID, dicom.VR_UI, "1.2.3.4.5")
	ds.AddElement(tagSOPClassUID, dicom.VR_UI, "1.2.840.10008.5.1.4.1.1.2")
	ds.AddElement(tagInstanceNumber, dicom.VR_IS, "7")
	ds.AddElement(tagImagePositionPatient, dicom.VR_DS, "0\\0\\15")
	ds.AddElement(tagImageOrientation, dicom.VR_DS, "1\\0\\0\\0\\1\\0")
	ds.AddElement(tagPixelSpacing, dicom.VR_DS, "0.5\\0.5")
	ds.AddElement(tagRows, dicom.VR_US, "512")
	ds.AddElement(tagColumns, dicom.VR_US, "512")
	ds.AddElement(tagFrameOfReferenceUID, dicom.VR_UI, "1.2.3.for")
	ds.AddElement(tagModality, dicom.VR_CS, "CT")
	return ds
}

func TestFromDatasetPopulatesFields(t *testing.T) {
	ds := buildImageDataset(t)
	inst, err := FromDataset(ds)
	if err != nil {
		t.Fatalf("FromDataset: %v", err)
	}
	if inst.StudyInstanceUID != "1.2.3" {
		t.Errorf("StudyInstanceUID = %q", inst.StudyInstanceUID)
	}
	if inst.InstanceNumber != 7 {
		t.Errorf("InstanceNumber = %d, want 7", inst.InstanceNumber)
	}
	if inst.ImagePositionPatient != [3]float64{0, 0, 15} {
		t.Errorf("ImagePositionPatient = %v", inst.ImagePositionPatient)
	}
	if inst.PixelSpacing != [2]float64{0.5, 0.5} {
		t.Errorf("PixelSpacing = %v", inst.PixelSpacing)
	}
	if inst.Modality != "CT" {
		t.Errorf("Modality = %q, want CT", inst.Modality)
	}
	if inst.Raw != ds {
		t.Error("expected Raw to retain the original dataset")
	}
}

func TestFromDatasetRejectsMissingIdentifiers(t *testing.T) {
	ds := dicom.NewDataset()
	if _, err := FromDataset(ds); err == nil {
		t.Fatal("expected error for dataset missing Study/SOP Instance UID")
	}
}

func TestSliceNormalAxialOrientation(t *testing.T) {
	ds := buildImageDataset(t)
	inst, err := FromDataset(ds)
	if err != nil {
		t.Fatalf("FromDataset: %v", err)
	}
	n := inst.SliceNormal()
	want := [3]float64{0, 0, 1}
	if n != want {
		t.Errorf("SliceNormal() = %v, want %v", n, want)
	}
}

func TestSliceProjection(t *testing.T) {
	ds := buildImageDataset(t)
	inst, err := FromDataset(ds)
	if err != nil {
		t.Fatalf("FromDataset: %v", err)
	}
	if got := inst.SliceProjection(); got != 15 {
		t.Errorf("SliceProjection() = %v, want 15", got)
	}
}
