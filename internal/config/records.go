package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/vecsearch/metadata"
)

// RecordSpec is one entry of a records file. Exactly one of Text and Vector
// is set; Text is embedded when the file is loaded into a backend.
type RecordSpec struct {
	ID       string         `yaml:"id"`
	Text     string         `yaml:"text,omitempty"`
	Vector   []float32      `yaml:"vector,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// RecordsFile is the layout of a records file:
//
//	records:
//	  - id: erc20-transfer
//	    text: "function transfer(address to, uint256 amount) ..."
//	    metadata: {type: ERC-20}
//	  - id: raw
//	    vector: [0.1, 0.2, 0.3]
type RecordsFile struct {
	Records []RecordSpec `yaml:"records"`
}

// LoadRecords reads and validates a records file.
func LoadRecords(path string) ([]RecordSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	var f RecordsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse records: %w", err)
	}
	seen := make(map[string]int, len(f.Records))
	var errs []error
	for i, r := range f.Records {
		switch {
		case r.ID == "":
			errs = append(errs, fmt.Errorf("record %d: id is required", i))
		case (r.Text == "") == (len(r.Vector) == 0):
			errs = append(errs, fmt.Errorf("record %d (%s): exactly one of text and vector is required", i, r.ID))
		}
		if j, dup := seen[r.ID]; dup && r.ID != "" {
			errs = append(errs, fmt.Errorf("record %d (%s): duplicate of record %d", i, r.ID, j))
		}
		seen[r.ID] = i
		if _, err := r.Document(); err != nil {
			errs = append(errs, fmt.Errorf("record %d (%s): %w", i, r.ID, err))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid records file %s: %w", path, errors.Join(errs...))
	}
	return f.Records, nil
}

// Document converts the metadata to a typed document.
func (r RecordSpec) Document() (metadata.Document, error) {
	doc, err := metadata.DocumentFromAny(r.Metadata)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}
