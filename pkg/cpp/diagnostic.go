// diagnostic.go implements the diagnostic sink collaborator: the channel
// through which recoverable problems (missing includes, #error/#warning
// directives, non-ASCII bytes) are reported without aborting the
// whole preprocessing run, plus XML serialization matching how this
// family of static-analysis tools has always reported findings.
package cpp

import (
	"encoding/xml"
	"fmt"
)

// Severity classifies a Diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityStyle   Severity = "style"
	SeverityDebug   Severity = "debug"
)

// Diagnostic is one reported finding.
type Diagnostic struct {
	Severity Severity
	ID       string
	Message  string
	File     string
	Line     int
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d: %s: [%s] %s", d.File, d.Line, d.Severity, d.ID, d.Message)
}

// Diagnostics collects reported findings and can render them as the
// error-list XML format consumers of this tool already parse.
type Diagnostics struct {
	items   []Diagnostic
	enabled map[string]bool // nil means everything enabled
}

// NewDiagnostics creates a sink. If enabledIDs is non-empty, only those
// diagnostic IDs are recorded; an empty/nil slice enables everything.
func NewDiagnostics(enabledIDs []string) *Diagnostics {
	d := &Diagnostics{}
	if len(enabledIDs) > 0 {
		d.enabled = make(map[string]bool, len(enabledIDs))
		for _, id := range enabledIDs {
			d.enabled[id] = true
		}
	}
	return d
}

// IsEnabled reports whether id would be recorded by Report.
func (d *Diagnostics) IsEnabled(id string) bool {
	if d.enabled == nil {
		return true
	}
	return d.enabled[id]
}

// Report records diag, unless its ID has been disabled.
func (d *Diagnostics) Report(diag Diagnostic) {
	if !d.IsEnabled(diag.ID) {
		return
	}
	d.items = append(d.items, diag)
}

// Items returns every recorded diagnostic, in report order.
func (d *Diagnostics) Items() []Diagnostic {
	return d.items
}

// xmlResults / xmlError mirror the flat <results><error .../></results>
// shape this tool family's consumers already expect.
type xmlResults struct {
	XMLName xml.Name   `xml:"results"`
	Errors  []xmlError `xml:"error"`
}

type xmlError struct {
	ID       string `xml:"id,attr"`
	Severity string `xml:"severity,attr"`
	Msg      string `xml:"msg,attr"`
	File     string `xml:"file,attr"`
	Line     int    `xml:"line,attr"`
}

// ToXML renders every recorded diagnostic as the tool's error-list XML.
func (d *Diagnostics) ToXML() ([]byte, error) {
	out := xmlResults{}
	for _, item := range d.items {
		out.Errors = append(out.Errors, xmlError{
			ID:       item.ID,
			Severity: string(item.Severity),
			Msg:      item.Message,
			File:     item.File,
			Line:     item.Line,
		})
	}
	return xml.MarshalIndent(out, "", "  ")
}
