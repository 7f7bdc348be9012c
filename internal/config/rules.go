package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// UploadRules bound what files may be submitted for ingestion. They are
// loaded from a YAML document so deployments can tune limits without a
// rebuild.
type UploadRules struct {
	AllowedExtension string `yaml:"allowedExtension"`
	MinSizeBytes     int64  `yaml:"minSizeBytes"`
	MaxSizeBytes     int64  `yaml:"maxSizeBytes"`
}

// DefaultUploadRules allows CSV files up to 100 MB.
func DefaultUploadRules() UploadRules {
	return UploadRules{
		AllowedExtension: ".csv",
		MinSizeBytes:     0,
		MaxSizeBytes:     100 * 1024 * 1024,
	}
}

// LoadUploadRules reads the rules file, falling back to defaults when it
// does not exist. Zero-valued fields keep their defaults.
func LoadUploadRules(path string) (UploadRules, error) {
	rules := DefaultUploadRules()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return rules, nil
	}
	if err != nil {
		return rules, fmt.Errorf("reading upload rules: %w", err)
	}

	loaded := UploadRules{}
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return rules, fmt.Errorf("parsing upload rules: %w", err)
	}

	if loaded.AllowedExtension != "" {
		rules.AllowedExtension = loaded.AllowedExtension
	}
	if loaded.MinSizeBytes > 0 {
		rules.MinSizeBytes = loaded.MinSizeBytes
	}
	if loaded.MaxSizeBytes > 0 {
		rules.MaxSizeBytes = loaded.MaxSizeBytes
	}
	return rules, nil
}

// Validate checks an upload's name and size against the rules.
func (r UploadRules) Validate(name string, size int64) error {
	if !strings.HasSuffix(name, r.AllowedExtension) {
		return fmt.Errorf("only %s files are allowed", r.AllowedExtension)
	}
	if size <= r.MinSizeBytes {
		return fmt.Errorf("file size is below the minimum limit of %d bytes", r.MinSizeBytes)
	}
	if size > r.MaxSizeBytes {
		return fmt.Errorf("file size exceeds the maximum limit of %d bytes", r.MaxSizeBytes)
	}
	return nil
}
