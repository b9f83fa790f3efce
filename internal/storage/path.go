package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// ExportStem is the shared file name stem of one export: `20060102_150405_<slug>`.
func ExportStem(at time.Time, slug string) (string, error) {
	if err := validatePathComponent(slug, "slug"); err != nil {
		return "", err
	}
	return at.Format("20060102_150405") + "_" + slug, nil
}

// BuildExportKey places an export artifact under a date partition:
// `exports/date=2026-02-19/20260219_040500_top-5-countries.sql`.
func BuildExportKey(at time.Time, stem, ext string) (string, error) {
	if err := validatePathComponent(stem, "export stem"); err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if err := validatePathComponent(ext, "extension"); err != nil {
		return "", err
	}
	return path.Join(
		"exports",
		fmt.Sprintf("date=%04d-%02d-%02d", at.Year(), at.Month(), at.Day()),
		stem+"."+ext,
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
