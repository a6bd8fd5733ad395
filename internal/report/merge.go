package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"

	"secretsift/internal/logging"
)

// Report maps a region to the entries persisted for it. Entries are opaque once written.
type Report map[string][]json.RawMessage

// reportSchema is the shape an existing report must have to be merged into
const reportSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {
    "type": "array",
    "items": {"type": "object"}
  }
}`

var schema = mustCompileSchema(reportSchema)

func mustCompileSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid report schema: %v", err))
	}
	return s
}

// Load reads the report at path. A missing, empty or malformed file yields an empty report.
func Load(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Report{}, nil
		}
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Report{}, nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil || !result.Valid() {
		fields := map[string]interface{}{"path": path}
		if err != nil {
			fields["error"] = err.Error()
		} else if errs := result.Errors(); len(errs) > 0 {
			fields["error"] = errs[0].String()
		}
		logging.Warn("Existing report is not valid, starting from an empty report", fields)
		return Report{}, nil
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		logging.Warn("Existing report is not valid, starting from an empty report", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return Report{}, nil
	}
	if report == nil {
		report = Report{}
	}
	return report, nil
}

// MergeFile appends entries under region in the report at path and rewrites it.
// It returns the number of entries written. No entries means no file access at all.
func MergeFile(path, region string, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	encoded := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return 0, fmt.Errorf("failed to encode entry %s: %w", entry.ResourceID(), err)
		}
		encoded = append(encoded, data)
	}

	report, err := Load(path)
	if err != nil {
		return 0, err
	}
	report[region] = append(report[region], encoded...)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := writeFile(path, data); err != nil {
		return 0, err
	}

	logging.Debug("Merged entries into report", map[string]interface{}{
		"path":    path,
		"region":  region,
		"entries": len(encoded),
	})
	return len(encoded), nil
}

// Truncate empties an existing report. A missing report is left missing.
func Truncate(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat report %s: %w", path, err)
	}
	if err := os.Truncate(path, 0); err != nil {
		return fmt.Errorf("failed to truncate report %s: %w", path, err)
	}
	return nil
}

// writeFile replaces path with data through a temporary file in the same directory
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary report: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync report %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set report permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace report %s: %w", path, err)
	}
	return nil
}
