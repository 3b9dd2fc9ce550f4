package export

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingRows indicates the response body lacked the rows field entirely.
// An empty rows array is valid (end of data); a missing one is not.
var ErrMissingRows = errors.New("response missing rows field")

// Row is one exported record. The schema is defined by the export service;
// the client treats rows as opaque.
type Row map[string]any

// Response is one page of an export.
type Response struct {
	// Rows are the records on this page.
	Rows []Row

	// Partial reports whether the service returned incomplete data for the
	// queried range. Defaults to true when the field is absent: data must
	// never be trusted as final unless the service says so explicitly.
	Partial bool

	// Reason explains a partial response when the service provides one
	// (e.g. "max_pages").
	Reason string

	// RowCount is the total number of rows available for the range, when
	// the service reports it.
	RowCount *int64

	// Pages is the number of pages the service consumed producing this
	// response, when reported.
	Pages int

	// NextPageToken is the continuation token for cursor-based pagination.
	// Empty when the service paginates by offset only.
	NextPageToken string
}

// UnmarshalJSON decodes a page, applying the safe default for partial.
func (r *Response) UnmarshalJSON(data []byte) error {
	var wire struct {
		Rows          json.RawMessage `json:"rows"`
		Partial       *bool           `json:"partial"`
		Reason        string          `json:"reason"`
		RowCount      *int64          `json:"rowCount"`
		Pages         int             `json:"pages"`
		NextPageToken string          `json:"nextPageToken"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Rows == nil || string(wire.Rows) == "null" {
		return ErrMissingRows
	}

	var rows []Row
	if err := json.Unmarshal(wire.Rows, &rows); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}

	r.Rows = rows
	r.Partial = true
	if wire.Partial != nil {
		r.Partial = *wire.Partial
	}
	r.Reason = wire.Reason
	r.RowCount = wire.RowCount
	r.Pages = wire.Pages
	r.NextPageToken = wire.NextPageToken
	return nil
}

// Result summarizes a completed (or stopped) export iteration.
type Result struct {
	// Pages is the number of page requests issued.
	Pages int

	// Rows is the number of rows yielded.
	Rows int64

	// RowCount is the total the service reported for the range, if any.
	RowCount *int64

	// Capped is true when iteration stopped because the MaxPages cap was
	// reached while the service still had pages to serve. A capped export
	// is incomplete by caller choice, which is distinct from a partial
	// response failure.
	Capped bool
}
