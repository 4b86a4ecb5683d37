package reportsvc

import (
	"fmt"
	"io"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/trainingops/core"
	"github.com/trezcool/trainingops/core/query"
	"github.com/trezcool/trainingops/core/training"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"

	absent = "n/a"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Printer writes report results to the console in one of the supported formats.
type Printer struct {
	w      io.Writer
	format string
}

func NewPrinter(w io.Writer, format string) (*Printer, error) {
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatJSON, FormatYAML:
	default:
		return nil, core.NewArgumentError("unknown output format %q (want text, json or yaml)", format)
	}
	return &Printer{w: w, format: format}, nil
}

func (p *Printer) Format() string { return p.format }

func (p *Printer) encode(v interface{}) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(v), "encoding json")
	case FormatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encoding yaml")
		}
		return errors.Wrap(enc.Close(), "encoding yaml")
	}
	return errors.Errorf("format %q is not structured", p.format)
}

// Count prints a single labelled count.
func (p *Printer) Count(label string, n int) error {
	return p.OptionalCount(label, &n)
}

// OptionalCount prints a labelled count; nil prints as n/a (text) or null (structured).
func (p *Printer) OptionalCount(label string, n *int) error {
	if p.format != FormatText {
		return p.encode(map[string]interface{}{"label": label, "count": n})
	}
	_, err := fmt.Fprintf(p.w, "%s: %s\n", label, countString(n))
	return err
}

// Rows prints a row set; columns fixes the column order (defaults to the sorted union of keys).
func (p *Printer) Rows(rows []query.Row, columns []string) error {
	cols := query.Columns(rows, columns)
	if p.format != FormatText {
		out := make([]map[string]interface{}, 0, len(rows))
		for _, row := range rows {
			m := make(map[string]interface{}, len(cols))
			for _, col := range cols {
				m[col] = plain(row[col])
			}
			out = append(out, m)
		}
		return p.encode(out)
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(p.w, "(no rows)")
		return err
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	for i, col := range cols {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, col)
	}
	fmt.Fprintln(tw)
	for _, row := range rows {
		for i, col := range cols {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell(row[col]))
		}
		fmt.Fprintln(tw)
	}
	fmt.Fprintf(tw, "(%d rows)\n", len(rows))
	return tw.Flush()
}

type breakdownLine struct {
	LocationID   string `json:"location_id" yaml:"location_id"`
	LocationName string `json:"location_name" yaml:"location_name"`
	Count        *int   `json:"count" yaml:"count"`
	Error        string `json:"error,omitempty" yaml:"error,omitempty"`
}

type breakdownDoc struct {
	Locations  []breakdownLine `json:"locations" yaml:"locations"`
	Sum        int             `json:"sum" yaml:"sum"`
	Unassigned *int            `json:"unassigned" yaml:"unassigned"`
	Total      *int            `json:"total" yaml:"total"`
	Consistent bool            `json:"consistent" yaml:"consistent"`
}

// Breakdown prints per-location counts, the total and whether they add up.
func (p *Printer) Breakdown(b training.Breakdown) error {
	if p.format != FormatText {
		doc := breakdownDoc{
			Locations:  make([]breakdownLine, 0, len(b.Locations)),
			Sum:        b.Sum(),
			Unassigned: b.Unassigned,
			Total:      b.Total,
			Consistent: b.Consistent(),
		}
		for _, lc := range b.Locations {
			line := breakdownLine{LocationID: lc.Location.ID, LocationName: lc.Location.Name, Count: lc.Count}
			if lc.Err != nil {
				line.Error = lc.Err.Error()
			}
			doc.Locations = append(doc.Locations, line)
		}
		return p.encode(doc)
	}

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "location\tid\trecords")
	for _, lc := range b.Locations {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", lc.Location.Name, lc.Location.ID, countString(lc.Count))
	}
	fmt.Fprintf(tw, "(no location)\t\t%s\n", countString(b.Unassigned))
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(p.w, "sum of locations: %d\n", b.Sum())
	fmt.Fprintf(p.w, "total records: %s\n", countString(b.Total))
	if b.Consistent() {
		_, err := fmt.Fprintln(p.w, "breakdown matches total")
		return err
	}
	_, err := fmt.Fprintln(p.w, "WARNING: breakdown does not match total")
	return err
}

// Error prints a failure the way reports surface it: console text only.
func (p *Printer) Error(err error) {
	if err == nil {
		return
	}
	if p.format != FormatText {
		_ = p.encode(map[string]interface{}{"error": err.Error()})
		return
	}
	fmt.Fprintf(p.w, "error: %v\n", err)
}

// Line prints free text (text format only).
func (p *Printer) Line(format string, args ...interface{}) {
	if p.format != FormatText {
		return
	}
	fmt.Fprintf(p.w, format+"\n", args...)
}

func countString(n *int) string {
	if n == nil {
		return absent
	}
	return fmt.Sprint(*n)
}

func cell(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	return query.ValueString(v)
}

// plain turns values yaml/json would render oddly (times) into their text form.
func plain(v interface{}) interface{} {
	switch v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64:
		return v
	}
	return query.ValueString(v)
}
