// Package anonymize applies a configured tag-table rewrite to a dataset in
// place: named tags are removed outright, and others are blanked (value
// replaced with an empty string) while the element itself survives, which
// keeps a receiving viewer's template from showing "missing" fields.
package anonymize

import (
	"fmt"

	"github.com/caio-sobreiro/netrt/config"
	"github.com/caio-sobreiro/netrt/dicom"
)

// tagName is the "GGGG,EEEE" textual form a configuration file uses to
// name a tag, since YAML has no native (group, element) pair type.
type tagName = string

// Rules is a resolved, dataset-independent anonymization policy built once
// from config.Anonymization at startup.
type Rules struct {
	remove []dicom.Tag
	blank  []dicom.Tag
}

// Anonymizer rewrites a dataset's identifying elements according to Rules.
// It implements orchestrator.Anonymizer.
type Anonymizer struct {
	rules Rules
}

// New resolves the configured tag names into dicom.Tag values. An
// unparsable tag name is a configuration error, surfaced at startup rather
// than silently ignored mid-study.
func New(cfg config.AnonymizationRules) (*Anonymizer, error) {
	remove, err := parseTags(cfg.RemoveTags)
	if err != nil {
		return nil, fmt.Errorf("anonymize: remove_tags: %w", err)
	}
	blank, err := parseTags(cfg.BlankTags)
	if err != nil {
		return nil, fmt.Errorf("anonymize: blank_tags: %w", err)
	}
	return &Anonymizer{rules: Rules{remove: remove, blank: blank}}, nil
}

// Anonymize rewrites ds in place.
func (a *Anonymizer) Anonymize(ds *dicom.Dataset) error {
	for _, tag := range a.rules.remove {
		delete(ds.Elements, tag)
	}
	for _, tag := range a.rules.blank {
		el, ok := ds.Elements[tag]
		if !ok {
			continue
		}
		ds.AddElement(tag, el.VR, "")
	}
	return nil
}

func parseTags(names []tagName) ([]dicom.Tag, error) {
	tags := make([]dicom.Tag, 0, len(names))
	for _, name := range names {
		tag, err := parseTag(name)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func parseTag(name string) (dicom.Tag, error) {
	var group, element uint16
	n, err := fmt.Sscanf(name, "%04X,%04X", &group, &element)
	if err != nil || n != 2 {
		return dicom.Tag{}, fmt.Errorf("malformed tag %q: expected GGGG,EEEE", name)
	}
	return dicom.Tag{Group: group, Element: element}, nil
}
