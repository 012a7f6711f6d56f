// Package config loads and validates the service's YAML configuration
// document into a single resolved record, passed by value into every
// component constructor — no component reads configuration files itself.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of the YAML document described in the external
// interfaces section: one struct field per enumerated section.
type Config struct {
	DICOMListener  DICOMListener  `yaml:"dicom_listener"`
	DICOMDest      DICOMDest      `yaml:"dicom_destination"`
	Directories    Directories    `yaml:"directories"`
	Watcher        Watcher        `yaml:"watcher"`
	Processing     Processing     `yaml:"processing"`
	Anonymization  Anonymization  `yaml:"anonymization"`
	FeatureFlags   FeatureFlags   `yaml:"feature_flags"`
	Logging        Logging        `yaml:"logging"`
}

type DICOMListener struct {
	Host                          string `yaml:"host"`
	Port                          int    `yaml:"port"`
	AETitle                       string `yaml:"ae_title"`
	ConfigNegotiatedTransferSyntax bool  `yaml:"config_negotiated_transfer_syntax"`
}

type DICOMDest struct {
	IP      string `yaml:"ip"`
	Port    int    `yaml:"port"`
	AETitle string `yaml:"ae_title"`
}

type Directories struct {
	Working         string `yaml:"working"`
	Logs            string `yaml:"logs"`
	QuarantineSubdir string `yaml:"quarantine_subdir"`
}

type Watcher struct {
	DebounceIntervalSeconds int `yaml:"debounce_interval_seconds"`
	MinFileCountForProcessing int `yaml:"min_file_count_for_processing"`
}

type Processing struct {
	IgnoreContourNamesContaining []string `yaml:"ignore_contour_names_containing"`
	OverlaySeriesNumber          int      `yaml:"overlay_series_number"`
	OverlaySeriesDescription     string   `yaml:"overlay_series_description"`
	AddBurnInDisclaimer          bool     `yaml:"add_burn_in_disclaimer"`
	BurnInText                   string   `yaml:"burn_in_text"`
}

type AnonymizationRules struct {
	RemoveTags []string `yaml:"remove_tags"`
	BlankTags  []string `yaml:"blank_tags"`
}

type Anonymization struct {
	Enabled                   bool               `yaml:"enabled"`
	FullAnonymizationEnabled bool               `yaml:"full_anonymization_enabled"`
	Rules                     AnonymizationRules `yaml:"rules"`
}

type FeatureFlags struct {
	EnableSegmentationExport bool `yaml:"enable_segmentation_export"`
	EnableDebugVisualisation bool `yaml:"enable_debug_visualisation"`
}

type Logging struct {
	Level           string `yaml:"level"`
	ApplicationFile string `yaml:"application_file"`
	TransactionFile string `yaml:"transaction_file"`
}

// defaults mirrors the parenthesised defaults in the external interfaces
// description; Load applies them over whatever the document left unset.
func defaults() Config {
	return Config{
		DICOMListener: DICOMListener{
			Host:                           "0.0.0.0",
			Port:                           11112,
			AETitle:                        "NETRT",
			ConfigNegotiatedTransferSyntax: true,
		},
		DICOMDest: DICOMDest{
			Port: 104,
		},
		Directories: Directories{
			Working:          "~/CNCT_working",
			Logs:             "~/CNCT_logs",
			QuarantineSubdir: "quarantine",
		},
		Watcher: Watcher{
			DebounceIntervalSeconds:    5,
			MinFileCountForProcessing: 2,
		},
		Processing: Processing{
			IgnoreContourNamesContaining: []string{"skull", "patient_outline"},
		},
		Logging: Logging{
			Level:           "info",
			ApplicationFile: "application.log",
			TransactionFile: "transaction.log",
		},
	}
}

// Load reads, unmarshals and validates the YAML document at path, applying
// defaults for every unset field.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports a *config-error*-class problem that should refuse
// startup, per the error handling policy.
func (c Config) Validate() error {
	if c.DICOMListener.AETitle == "" {
		return fmt.Errorf("config: dicom_listener.ae_title is required")
	}
	if len(c.DICOMListener.AETitle) > 16 {
		return fmt.Errorf("config: dicom_listener.ae_title exceeds 16 characters")
	}
	if c.DICOMListener.Port <= 0 || c.DICOMListener.Port > 65535 {
		return fmt.Errorf("config: dicom_listener.port out of range")
	}
	if c.DICOMDest.IP == "" {
		return fmt.Errorf("config: dicom_destination.ip is required")
	}
	if c.DICOMDest.AETitle == "" {
		return fmt.Errorf("config: dicom_destination.ae_title is required")
	}
	if c.Directories.Working == "" {
		return fmt.Errorf("config: directories.working is required")
	}
	if c.Watcher.DebounceIntervalSeconds <= 0 {
		return fmt.Errorf("config: watcher.debounce_interval_seconds must be positive")
	}
	if c.Watcher.MinFileCountForProcessing <= 0 {
		return fmt.Errorf("config: watcher.min_file_count_for_processing must be positive")
	}
	return nil
}
