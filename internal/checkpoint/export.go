// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/watchcat/pkg/types"
)

// RecordReader lists the persisted records of a source. Both stores
// implement it.
type RecordReader interface {
	Records(ctx context.Context, sourceID string) ([]types.Record, error)
}

// ExportEntry is one exported record tagged with its kind.
type ExportEntry struct {
	Kind   types.Kind   `json:"kind" yaml:"kind"`
	Record types.Record `json:"record" yaml:"record"`
}

func exportEntries(ctx context.Context, rr RecordReader, sourceID string) ([]ExportEntry, error) {
	records, err := rr.Records(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	entries := make([]ExportEntry, len(records))
	for i, r := range records {
		entries[i] = ExportEntry{Kind: r.Kind(), Record: r}
	}
	return entries, nil
}

// ExportYAML writes the records of a source to w as a YAML list.
func ExportYAML(ctx context.Context, rr RecordReader, sourceID string, w io.Writer) error {
	entries, err := exportEntries(ctx, rr, sourceID)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return enc.Close()
}

// ExportJSON writes the records of a source to w as an indented JSON array.
func ExportJSON(ctx context.Context, rr RecordReader, sourceID string, w io.Writer) error {
	entries, err := exportEntries(ctx, rr, sourceID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
