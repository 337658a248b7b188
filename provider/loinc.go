package provider

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
)

// LOINCSystem is the canonical url of LOINC.
const LOINCSystem = "http://loinc.org"

// loincAxes are the multi-axial properties served per concept.
var loincAxes = []string{
	"COMPONENT", "PROPERTY", "TIME_ASPCT", "SYSTEM",
	"SCALE_TYP", "METHOD_TYP", "CLASS", "STATUS",
}

// loincRow is one LOINC term with its axis values.
type loincRow struct {
	code    string
	display string
	axes    map[string]string
	order   int
}

func (r *loincRow) Code() string { return r.code }

// LOINC serves the LOINC table: multi-axial properties with native
// equality indexes per axis and regex filtering on CLASS.
type LOINC struct {
	version string
	rows    []*loincRow
	byCode  map[string]*loincRow
	byAxis  map[string]map[string][]*loincRow
}

// LoadLOINC reads the LOINC table from its distribution CSV. The reader
// is consumed fully during load; the provider holds no file handle
// afterwards.
func LoadLOINC(path, version string) (*LOINC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open LOINC table: %w", err)
	}
	defer f.Close()
	return ReadLOINC(f, version)
}

// ReadLOINC parses the LOINC table from r.
func ReadLOINC(r io.Reader, version string) (*LOINC, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read LOINC header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToUpper(strings.TrimSpace(name))] = i
	}
	codeCol, ok := col["LOINC_NUM"]
	if !ok {
		return nil, fmt.Errorf("LOINC table has no LOINC_NUM column")
	}
	nameCol := -1
	if c, ok := col["LONG_COMMON_NAME"]; ok {
		nameCol = c
	}

	p := &LOINC{
		version: version,
		byCode:  make(map[string]*loincRow),
		byAxis:  make(map[string]map[string][]*loincRow),
	}
	for _, axis := range loincAxes {
		p.byAxis[axis] = make(map[string][]*loincRow)
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read LOINC row: %w", err)
		}
		if codeCol >= len(record) || record[codeCol] == "" {
			continue
		}
		row := &loincRow{
			code:  record[codeCol],
			axes:  make(map[string]string, len(loincAxes)),
			order: len(p.rows),
		}
		if nameCol >= 0 && nameCol < len(record) {
			row.display = record[nameCol]
		}
		for _, axis := range loincAxes {
			c, ok := col[axis]
			if !ok || c >= len(record) || record[c] == "" {
				continue
			}
			row.axes[axis] = record[c]
			p.byAxis[axis][record[c]] = append(p.byAxis[axis][record[c]], row)
		}
		p.rows = append(p.rows, row)
		p.byCode[row.code] = row
	}
	return p, nil
}

// System returns the LOINC canonical url.
func (p *LOINC) System() string { return LOINCSystem }

// Version returns the table release.
func (p *LOINC) Version() string { return p.version }

// PartialVersion returns the version unchanged; LOINC releases carry
// major.minor form already.
func (p *LOINC) PartialVersion() string { return p.version }

// TotalCount returns the term count.
func (p *LOINC) TotalCount() int { return len(p.rows) }

// Locate finds a term; LOINC codes are case-sensitive.
func (p *LOINC) Locate(code string) (Concept, string) {
	row, ok := p.byCode[code]
	if !ok {
		return nil, ""
	}
	switch row.axes["STATUS"] {
	case "DEPRECATED":
		return row, fmt.Sprintf("LOINC code '%s' is deprecated", code)
	case "DISCOURAGED":
		return row, fmt.Sprintf("LOINC code '%s' is discouraged", code)
	}
	return row, ""
}

// Display returns the long common name.
func (p *LOINC) Display(c Concept, languages []string) string {
	return c.(*loincRow).display
}

// Designations returns the long common name as the sole designation.
func (p *LOINC) Designations(c Concept) []model.Designation {
	return []model.Designation{{Language: "en", Value: c.(*loincRow).display}}
}

// Definition returns "".
func (p *LOINC) Definition(c Concept) string { return "" }

// Properties returns the axis values.
func (p *LOINC) Properties(c Concept, propFilter []string) []model.Property {
	row := c.(*loincRow)
	axes := loincAxes
	if len(propFilter) > 0 {
		axes = propFilter
	}
	var out []model.Property
	for _, axis := range axes {
		if v, ok := row.axes[axis]; ok {
			out = append(out, model.Property{Code: axis, ValueString: v})
		}
	}
	return out
}

// IsInactive reports deprecated terms as inactive.
func (p *LOINC) IsInactive(c Concept) bool {
	return c.(*loincRow).axes["STATUS"] == "DEPRECATED"
}

// IsAbstract reports false.
func (p *LOINC) IsAbstract(c Concept) bool { return false }

// IsDeprecated reports whether the term status is DEPRECATED.
func (p *LOINC) IsDeprecated(c Concept) bool {
	return c.(*loincRow).axes["STATUS"] == "DEPRECATED"
}

// Subsumes: the flat term table carries no subsumption; identical codes
// are equivalent.
func (p *LOINC) Subsumes(a, b Concept) (SubsumptionOutcome, *txserver.Issue) {
	if a.Code() == b.Code() {
		return Equivalent, nil
	}
	return NotSubsumed, nil
}

// Filter supports equality on every axis via the native index, regex on
// any axis by scan, and =/regex on the code itself.
func (p *LOINC) Filter(opCtx *txserver.OperationContext, property, op, value string) (FilterContext, *txserver.Issue) {
	if iss := opCtx.DeadCheck("filter:loinc"); iss != nil {
		return nil, iss
	}
	property = strings.ToUpper(property)

	if property == "CODE" || property == "LOINC_NUM" {
		switch op {
		case "=":
			if row, ok := p.byCode[value]; ok {
				return NewListFilter([]Concept{row}), nil
			}
			return NewListFilter(nil), nil
		case "regex":
			return p.scanFilter("", value)
		}
		return nil, txserver.NotSupported(fmt.Sprintf("operator '%s' on the LOINC code", op))
	}

	index, ok := p.byAxis[property]
	if !ok {
		return nil, txserver.NotSupported(fmt.Sprintf("property '%s' is not a LOINC axis", property))
	}
	switch op {
	case "=":
		rows := index[value]
		concepts := make([]Concept, len(rows))
		for i, r := range rows {
			concepts[i] = r
		}
		return NewListFilter(concepts), nil
	case "regex":
		return p.scanFilter(property, value)
	case "in":
		var concepts []Concept
		for _, v := range strings.Split(value, ",") {
			for _, r := range index[v] {
				concepts = append(concepts, r)
			}
		}
		return NewListFilter(concepts), nil
	case "exists":
		want := value != "false"
		var concepts []Concept
		for _, r := range p.rows {
			if _, has := r.axes[property]; has == want {
				concepts = append(concepts, r)
			}
		}
		return NewListFilter(concepts), nil
	default:
		return nil, txserver.NotSupported(fmt.Sprintf(
			"operator '%s' is not supported on LOINC axis %s", op, property))
	}
}

// scanFilter applies a regex post-filter; an empty axis matches the code.
func (p *LOINC) scanFilter(axis, pattern string) (FilterContext, *txserver.Issue) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, txserver.BadRequest(fmt.Sprintf("invalid regex filter value %q: %v", pattern, err))
	}
	var concepts []Concept
	for _, row := range p.rows {
		v := row.code
		if axis != "" {
			v = row.axes[axis]
		}
		if v != "" && re.MatchString(v) {
			concepts = append(concepts, row)
		}
	}
	return NewListFilter(concepts), nil
}

// Iterator returns a cursor over the filtered terms, or the whole table
// in release order when filter is nil.
func (p *LOINC) Iterator(opCtx *txserver.OperationContext, filter FilterContext) (ConceptIterator, *txserver.Issue) {
	if iss := opCtx.DeadCheck("iterate:loinc"); iss != nil {
		return nil, iss
	}
	if filter == nil {
		all := make([]Concept, len(p.rows))
		for i, r := range p.rows {
			all[i] = r
		}
		return NewSliceIterator(all), nil
	}
	concepts, ok := ListFilterConcepts(filter)
	if !ok {
		return nil, txserver.NotSupported("foreign filter context")
	}
	return NewSliceIterator(concepts), nil
}

// FiltersNotClosed reports false.
func (p *LOINC) FiltersNotClosed() bool { return false }

// Close is a no-op; the table is memory-resident after load.
func (p *LOINC) Close() {}

var _ CodeSystemProvider = (*LOINC)(nil)
