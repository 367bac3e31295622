// Package helm provides helpers for recognizing and ordering Helm chart
// files and parsing chart metadata.
package helm

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Standard chart file names.
const (
	ChartMetadataFile = "Chart.yaml"
	ValuesFile        = "values.yaml"
	HelpersFile       = "_helpers.tpl"
	TemplatesDir      = "templates/"
)

// ChartMetadata is the subset of Chart.yaml this service reads.
type ChartMetadata struct {
	APIVersion  string `yaml:"apiVersion"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Version     string `yaml:"version"`
	AppVersion  string `yaml:"appVersion,omitempty"`
}

// ParseChartMetadata parses Chart.yaml content.
func ParseChartMetadata(content string) (*ChartMetadata, error) {
	var meta ChartMetadata
	if err := yaml.Unmarshal([]byte(content), &meta); err != nil {
		return nil, fmt.Errorf("parse chart metadata: %w", err)
	}
	if meta.Name == "" {
		return nil, fmt.Errorf("chart metadata has no name")
	}
	return &meta, nil
}

// recognizedSuffixes are the file extensions treated as chart files
// when scanning free-form text for paths.
var recognizedSuffixes = []string{".yaml", ".yml", ".tpl", ".txt", ".helmignore"}

// IsChartFilePath reports whether the path looks like a chart file.
func IsChartFilePath(path string) bool {
	base := path[strings.LastIndex(path, "/")+1:]
	if base == ".helmignore" || base == "NOTES.txt" {
		return true
	}
	for _, suffix := range recognizedSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// pathRank orders standard chart files first: metadata, defaults,
// helpers, then templates, then everything else.
func pathRank(path string) int {
	base := path[strings.LastIndex(path, "/")+1:]
	switch {
	case base == ChartMetadataFile:
		return 0
	case base == ValuesFile:
		return 1
	case base == HelpersFile:
		return 2
	case strings.Contains(path, TemplatesDir):
		return 3
	default:
		return 4
	}
}

// OrderPaths sorts chart file paths into the standard authoring order.
// Paths of equal rank keep a stable lexical order. The input slice is
// not modified.
func OrderPaths(paths []string) []string {
	ordered := make([]string, len(paths))
	copy(ordered, paths)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := pathRank(ordered[i]), pathRank(ordered[j])
		if ri != rj {
			return ri < rj
		}
		return ordered[i] < ordered[j]
	})
	return ordered
}
