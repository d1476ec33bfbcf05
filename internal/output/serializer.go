package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	sigsyaml "sigs.k8s.io/yaml"

	"github.com/hupe1980/ldifexport/internal/exporter"
)

// Summary is the machine-readable record of one export.
type Summary struct {
	ExportID string `json:"exportId"`
	Output   string `json:"output"`

	Read              int `json:"read"`
	Included          int `json:"included"`
	Written           int `json:"written"`
	Excluded          int `json:"excluded"`
	Skipped           int `json:"skipped"`
	Dropped           int `json:"dropped"`
	AttributesDropped int `json:"attributesDropped"`

	// Appended marks an export written after the existing content of the
	// output file; Digest then covers only the bytes from Offset on.
	Appended bool  `json:"appended,omitempty"`
	Offset   int64 `json:"offset,omitempty"`

	Layers       []string `json:"layers"`
	BytesWritten int64    `json:"bytesWritten"`
	Digest       string   `json:"digest,omitempty"`
	Signature    string   `json:"signature,omitempty"`

	DurationSeconds float64  `json:"durationSeconds"`
	Warnings        []string `json:"warnings,omitempty"`
}

// NewSummary builds a Summary from run statistics. output names the
// destination ("-" for stdout).
func NewSummary(stats exporter.Stats, output string) Summary {
	s := Summary{
		ExportID:          stats.ExportID,
		Output:            output,
		Read:              stats.Read,
		Included:          stats.Included,
		Written:           stats.Written,
		Excluded:          stats.Excluded,
		Skipped:           stats.Skipped,
		Dropped:           stats.Dropped,
		AttributesDropped: stats.AttributesDropped,
		Layers:            stats.Result.Layers,
		BytesWritten:      stats.Result.BytesOut,
		Digest:            stats.Result.HexDigest(),
		Appended:          stats.Result.Appended,
		Offset:            stats.Result.Offset,
		DurationSeconds:   stats.Duration.Seconds(),
	}

	if stats.Result.Signature != nil {
		s.Signature = fmt.Sprintf("%x", stats.Result.Signature)
	}

	for _, w := range stats.Warnings {
		s.Warnings = append(s.Warnings, w.Error())
	}

	return s
}

// SerializeYAML converts a summary to YAML bytes with sorted keys.
func SerializeYAML(s Summary) ([]byte, error) {
	b, err := sigsyaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("serializing YAML: %w", err)
	}

	return b, nil
}

// SerializeJSON converts a summary to indented JSON bytes.
func SerializeJSON(s Summary) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("serializing JSON: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("formatting JSON: %w", err)
	}

	buf.WriteByte('\n')

	return buf.Bytes(), nil
}
