package anonymize

import (
	"testing"

	"github.com/caio-sobreiro/netrt/config"
	"github.com/caio-sobreiro/netrt/dicom"
)

var tagPatientName = dicom.Tag{Group: 0x0010, Element: 0x0010}
var tagPatientID = dicom.Tag{Group: 0x0010, Element: 0x0020}
var tagPatientBirthDate = dicom.Tag{Group: 0x0010, Element: 0x0030}

func TestNewParsesConfiguredTags(t *testing.T) {
	cfg := config.AnonymizationRules{
		RemoveTags: []string{"0010,0010"},
		BlankTags:  []string{"0010,0030"},
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(a.rules.remove) != 1 || a.rules.remove[0] != tagPatientName {
		t.Fatalf("remove rules = %v, want [%v]", a.rules.remove, tagPatientName)
	}
	if len(a.rules.blank) != 1 || a.rules.blank[0] != tagPatientBirthDate {
		t.Fatalf("blank rules = %v, want [%v]", a.rules.blank, tagPatientBirthDate)
	}
}

func TestNewRejectsMalformedTag(t *testing.T) {
	_, err := New(config.AnonymizationRules{RemoveTags: []string{"not-a-tag"}})
	if err == nil {
		t.Fatal("expected error for malformed remove tag")
	}
	_, err = New(config.AnonymizationRules{BlankTags: []string{"ZZZZ,EEEE"}})
	if err == nil {
		t.Fatal("expected error for malformed blank tag")
	}
}

func TestAnonymizeRemovesAndBlanks(t *testing.T) {
	a, err := New(config.AnonymizationRules{
		RemoveTags: []string{"0010,0010"},
		BlankTags:  []string{"0010,0030"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ds := dicom.NewDataset()
	ds.AddElement(tagPatientName, dicom.VR_PN, "Doe^Jane")
	ds.AddElement(tagPatientID, dicom.VR_LO, "12345")
	ds.AddElement(tagPatientBirthDate, dicom.VR_DA, "19800101")

	if err := a.Anonymize(ds); err != nil {
		t.Fatalf("Anonymize: %v", err)
	}

	if _, ok := ds.GetElement(tagPatientName); ok {
		t.Error("expected patient name element to be removed")
	}
	if got := ds.GetString(tagPatientID); got != "12345" {
		t.Errorf("unrelated tag PatientID = %q, want unchanged 12345", got)
	}
	el, ok := ds.GetElement(tagPatientBirthDate)
	if !ok {
		t.Fatal("expected blanked birth date element to survive")
	}
	if ds.GetString(tagPatientBirthDate) != "" {
		t.Errorf("birth date value = %q, want blank", ds.GetString(tagPatientBirthDate))
	}
	if el.VR != dicom.VR_DA {
		t.Errorf("blanked element VR = %q, want unchanged DA", el.VR)
	}
}

func TestAnonymizeIgnoresAbsentBlankTag(t *testing.T) {
	a, err := New(config.AnonymizationRules{BlankTags: []string{"0010,0030"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ds := dicom.NewDataset()
	if err := a.Anonymize(ds); err != nil {
		t.Fatalf("Anonymize on dataset missing the tag: %v", err)
	}
}

func TestAnonymizeNoRules(t *testing.T) {
	a, err := New(config.AnonymizationRules{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ds := dicom.NewDataset()
	ds.AddElement(tagPatientName, dicom.VR_PN, "Doe^Jane")
	if err := a.Anonymize(ds); err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	if ds.GetString(tagPatientName) != "Doe^Jane" {
		t.Error("expected dataset to be unchanged when no rules are configured")
	}
}
