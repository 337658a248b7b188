package provider

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
)

// UCUMSystem is the canonical url of the UCUM code system.
const UCUMSystem = "http://unitsofmeasure.org"

// ucumPrefix is a metric prefix of the UCUM grammar.
type ucumPrefix struct {
	name  string
	power int32
}

var ucumPrefixes = map[string]ucumPrefix{
	"Y":  {"yotta", 24},
	"Z":  {"zetta", 21},
	"E":  {"exa", 18},
	"P":  {"peta", 15},
	"T":  {"tera", 12},
	"G":  {"giga", 9},
	"M":  {"mega", 6},
	"k":  {"kilo", 3},
	"h":  {"hecto", 2},
	"da": {"deka", 1},
	"d":  {"deci", -1},
	"c":  {"centi", -2},
	"m":  {"milli", -3},
	"u":  {"micro", -6},
	"n":  {"nano", -9},
	"p":  {"pico", -12},
	"f":  {"femto", -15},
	"a":  {"atto", -18},
	"z":  {"zepto", -21},
	"y":  {"yocto", -24},
}

// ucumAtom is a unit atom with its canonical decomposition over the base
// units.
type ucumAtom struct {
	name     string
	metric   bool // metric atoms accept prefixes
	factor   decimal.Decimal
	units    map[string]int // base unit -> exponent
}

func baseAtom(name string, metric bool, base string) ucumAtom {
	return ucumAtom{name: name, metric: metric, factor: decimal.NewFromInt(1), units: map[string]int{base: 1}}
}

func derivedAtom(name string, metric bool, factor decimal.Decimal, units map[string]int) ucumAtom {
	return ucumAtom{name: name, metric: metric, factor: factor, units: units}
}

var ucumAtoms = map[string]ucumAtom{
	// base units
	"m":   baseAtom("meter", true, "m"),
	"g":   baseAtom("gram", true, "g"),
	"s":   baseAtom("second", true, "s"),
	"K":   baseAtom("kelvin", true, "K"),
	"C":   baseAtom("coulomb", true, "C"),
	"cd":  baseAtom("candela", true, "cd"),
	"rad": baseAtom("radian", true, "rad"),
	"mol": baseAtom("mole", true, "mol"),

	// time
	"min": derivedAtom("minute", false, decimal.NewFromInt(60), map[string]int{"s": 1}),
	"h":   derivedAtom("hour", false, decimal.NewFromInt(3600), map[string]int{"s": 1}),
	"d":   derivedAtom("day", false, decimal.NewFromInt(86400), map[string]int{"s": 1}),
	"wk":  derivedAtom("week", false, decimal.NewFromInt(604800), map[string]int{"s": 1}),
	"mo":  derivedAtom("month", false, decimal.NewFromInt(2629800), map[string]int{"s": 1}),
	"a":   derivedAtom("year", false, decimal.NewFromInt(31557600), map[string]int{"s": 1}),

	// volume, pressure, energy and friends
	"L":  derivedAtom("liter", true, decimal.New(1, -3), map[string]int{"m": 3}),
	"l":  derivedAtom("liter", true, decimal.New(1, -3), map[string]int{"m": 3}),
	"N":  derivedAtom("newton", true, decimal.New(1, 3), map[string]int{"g": 1, "m": 1, "s": -2}),
	"Pa": derivedAtom("pascal", true, decimal.New(1, 3), map[string]int{"g": 1, "m": -1, "s": -2}),
	"J":  derivedAtom("joule", true, decimal.New(1, 3), map[string]int{"g": 1, "m": 2, "s": -2}),
	"W":  derivedAtom("watt", true, decimal.New(1, 3), map[string]int{"g": 1, "m": 2, "s": -3}),
	"A":  derivedAtom("ampere", true, decimal.NewFromInt(1), map[string]int{"C": 1, "s": -1}),
	"V":  derivedAtom("volt", true, decimal.New(1, 3), map[string]int{"g": 1, "m": 2, "s": -2, "C": -1}),
	"Hz": derivedAtom("hertz", true, decimal.NewFromInt(1), map[string]int{"s": -1}),
	"Cel": derivedAtom("degree Celsius", false, decimal.NewFromInt(1), map[string]int{"K": 1}),

	"bar":    derivedAtom("bar", true, decimal.New(1, 8), map[string]int{"g": 1, "m": -1, "s": -2}),
	"mm[Hg]": derivedAtom("millimeter of mercury", false, decimal.NewFromFloat(133322.387415), map[string]int{"g": 1, "m": -1, "s": -2}),

	// clinical counting units
	"eq":   derivedAtom("equivalent", true, decimal.NewFromInt(1), map[string]int{"mol": 1}),
	"osm":  derivedAtom("osmole", true, decimal.NewFromInt(1), map[string]int{"mol": 1}),
	"U":    derivedAtom("unit", true, decimal.NewFromInt(1), map[string]int{"U": 1}),
	"[iU]": derivedAtom("international unit", true, decimal.NewFromInt(1), map[string]int{"[iU]": 1}),
	"kat":  derivedAtom("katal", true, decimal.NewFromInt(1), map[string]int{"mol": 1, "s": -1}),

	// dimensionless
	"%":   derivedAtom("percent", false, decimal.New(1, -2), map[string]int{}),
	"[pH]": derivedAtom("pH", false, decimal.NewFromInt(1), map[string]int{}),
	"1":   derivedAtom("1", false, decimal.NewFromInt(1), map[string]int{}),
}

// Canonical is the canonical decomposition of a unit expression: a scale
// factor over a product of base units with integer exponents.
type Canonical struct {
	Factor decimal.Decimal
	Units  map[string]int
}

// String renders the canonical form, factor first when it is not one, base
// units sorted: "10*-3.g".
func (c Canonical) String() string {
	var parts []string
	if !c.Factor.Equal(decimal.NewFromInt(1)) {
		parts = append(parts, renderFactor(c.Factor))
	}
	keys := make([]string, 0, len(c.Units))
	for u, e := range c.Units {
		if e != 0 {
			keys = append(keys, u)
		}
	}
	sort.Strings(keys)
	for _, u := range keys {
		e := c.Units[u]
		if e == 1 {
			parts = append(parts, u)
		} else {
			parts = append(parts, fmt.Sprintf("%s%d", u, e))
		}
	}
	if len(parts) == 0 {
		return "1"
	}
	return strings.Join(parts, ".")
}

func renderFactor(f decimal.Decimal) string {
	// Powers of ten render in the UCUM "10*n" notation.
	for exp := int32(-30); exp <= 30; exp++ {
		if f.Equal(decimal.New(1, exp)) {
			return fmt.Sprintf("10*%d", exp)
		}
	}
	return f.String()
}

// Equal reports whether two canonical forms are the same measurement.
func (c Canonical) Equal(other Canonical) bool {
	if !c.Factor.Equal(other.Factor) {
		return false
	}
	return sameUnits(c.Units, other.Units)
}

// Commensurable reports whether two canonical forms share a dimension.
func (c Canonical) Commensurable(other Canonical) bool {
	return sameUnits(c.Units, other.Units)
}

func sameUnits(a, b map[string]int) bool {
	for u, e := range a {
		if e != 0 && b[u] != e {
			return false
		}
	}
	for u, e := range b {
		if e != 0 && a[u] != e {
			return false
		}
	}
	return true
}

// ucumParser is a recursive-descent parser over the UCUM term grammar.
type ucumParser struct {
	input string
	pos   int
}

// ParseUCUM parses a UCUM unit expression into its canonical form.
func ParseUCUM(expr string) (Canonical, error) {
	if strings.TrimSpace(expr) == "" {
		return Canonical{}, fmt.Errorf("empty unit expression")
	}
	p := &ucumParser{input: expr}
	c, err := p.term()
	if err != nil {
		return Canonical{}, err
	}
	if p.pos != len(p.input) {
		return Canonical{}, fmt.Errorf("unexpected character %q at position %d in %q", p.input[p.pos], p.pos, expr)
	}
	return c, nil
}

func (p *ucumParser) term() (Canonical, error) {
	// A leading '/' divides the unity term.
	acc := Canonical{Factor: decimal.NewFromInt(1), Units: map[string]int{}}
	divide := false
	if p.peek() == '/' {
		p.pos++
		divide = true
	}
	first, err := p.component()
	if err != nil {
		return Canonical{}, err
	}
	acc = combine(acc, first, divide)

	for p.pos < len(p.input) {
		op := p.peek()
		if op != '.' && op != '/' {
			break
		}
		p.pos++
		next, err := p.component()
		if err != nil {
			return Canonical{}, err
		}
		acc = combine(acc, next, op == '/')
	}
	return acc, nil
}

func combine(acc, c Canonical, divide bool) Canonical {
	out := Canonical{Units: map[string]int{}}
	for u, e := range acc.Units {
		out.Units[u] = e
	}
	if divide {
		out.Factor = acc.Factor.Div(c.Factor)
		for u, e := range c.Units {
			out.Units[u] -= e
		}
	} else {
		out.Factor = acc.Factor.Mul(c.Factor)
		for u, e := range c.Units {
			out.Units[u] += e
		}
	}
	return out
}

func (p *ucumParser) component() (Canonical, error) {
	if p.peek() == '(' {
		p.pos++
		c, err := p.term()
		if err != nil {
			return Canonical{}, err
		}
		if p.peek() != ')' {
			return Canonical{}, fmt.Errorf("missing ')' in %q", p.input)
		}
		p.pos++
		p.skipAnnotation()
		return c, nil
	}
	if p.peek() == '{' {
		// A bare annotation is the unity.
		if err := p.annotation(); err != nil {
			return Canonical{}, err
		}
		return Canonical{Factor: decimal.NewFromInt(1), Units: map[string]int{}}, nil
	}

	c, err := p.annotatable()
	if err != nil {
		return Canonical{}, err
	}
	p.skipAnnotation()
	return c, nil
}

func (p *ucumParser) annotatable() (Canonical, error) {
	start := p.pos

	// "10*n" and "10^n" powers of ten.
	if strings.HasPrefix(p.input[p.pos:], "10*") || strings.HasPrefix(p.input[p.pos:], "10^") {
		p.pos += 3
		exp := 1 // bare "10*" means ten
		if p.pos < len(p.input) && (isDigit(p.peek()) || p.peek() == '+' || p.peek() == '-') {
			parsed, err := p.exponent()
			if err != nil {
				return Canonical{}, err
			}
			exp = parsed
		}
		return Canonical{Factor: decimal.New(1, int32(exp)), Units: map[string]int{}}, nil
	}

	// Plain integer factor.
	if isDigit(p.peek()) {
		for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
			p.pos++
		}
		n, err := strconv.ParseInt(p.input[start:p.pos], 10, 64)
		if err != nil {
			return Canonical{}, fmt.Errorf("invalid factor in %q", p.input)
		}
		return Canonical{Factor: decimal.NewFromInt(n), Units: map[string]int{}}, nil
	}

	atom, prefixPower, err := p.simpleUnit()
	if err != nil {
		return Canonical{}, err
	}
	exp := 1
	if p.pos < len(p.input) && (isDigit(p.peek()) || p.peek() == '+' || p.peek() == '-') {
		exp, err = p.exponent()
		if err != nil {
			return Canonical{}, err
		}
	}

	factor := atom.factor
	if prefixPower != 0 {
		factor = factor.Mul(decimal.New(1, prefixPower))
	}
	c := Canonical{Factor: decimal.NewFromInt(1), Units: map[string]int{}}
	powered := factor
	if exp != 1 {
		powered = factor.Pow(decimal.NewFromInt(int64(exp)))
	}
	c.Factor = powered
	for u, e := range atom.units {
		c.Units[u] = e * exp
	}
	return c, nil
}

// simpleUnit matches the longest prefixed or bare atom at the cursor.
func (p *ucumParser) simpleUnit() (ucumAtom, int32, error) {
	rest := p.input[p.pos:]

	// Longest atom match first, so "mol" is not read as milli-"ol".
	best := ""
	for code := range ucumAtoms {
		if strings.HasPrefix(rest, code) && len(code) > len(best) {
			best = code
		}
	}
	bestPrefixed := ""
	bestPrefix := ""
	for pre := range ucumPrefixes {
		if !strings.HasPrefix(rest, pre) {
			continue
		}
		for code, atom := range ucumAtoms {
			if !atom.metric {
				continue
			}
			if strings.HasPrefix(rest[len(pre):], code) && len(pre)+len(code) > len(bestPrefixed) {
				bestPrefixed = pre + code
				bestPrefix = pre
			}
		}
	}

	if len(bestPrefixed) > len(best) {
		atomCode := bestPrefixed[len(bestPrefix):]
		p.pos += len(bestPrefixed)
		return ucumAtoms[atomCode], ucumPrefixes[bestPrefix].power, nil
	}
	if best != "" {
		p.pos += len(best)
		return ucumAtoms[best], 0, nil
	}
	return ucumAtom{}, 0, fmt.Errorf("unknown unit at %q in %q", rest, p.input)
}

func (p *ucumParser) exponent() (int, error) {
	start := p.pos
	if p.peek() == '+' || p.peek() == '-' {
		p.pos++
	}
	for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start || !isDigit(p.input[p.pos-1]) {
		return 0, fmt.Errorf("invalid exponent in %q", p.input)
	}
	return strconv.Atoi(p.input[start:p.pos])
}

func (p *ucumParser) annotation() error {
	if p.peek() != '{' {
		return nil
	}
	end := strings.IndexByte(p.input[p.pos:], '}')
	if end == -1 {
		return fmt.Errorf("unterminated annotation in %q", p.input)
	}
	p.pos += end + 1
	return nil
}

func (p *ucumParser) skipAnnotation() {
	if p.peek() == '{' {
		_ = p.annotation()
	}
}

func (p *ucumParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// ucumConcept is a validated unit expression.
type ucumConcept struct {
	code      string
	canonical Canonical
}

func (c *ucumConcept) Code() string { return c.code }

// UCUM serves unit expressions by parsing and canonicalizing them against
// the UCUM essence model. It stores no concept list: validation is parse
// success. The one supported filter, canonical equality, is declared not
// closed; other filters are not supported.
type UCUM struct {
	version     string
	commonUnits []string
}

// NewUCUM creates the UCUM provider. commonUnits is the enumerable subset
// used by canonical filters, conventionally wired from the UCUM common
// units value set.
func NewUCUM(version string, commonUnits []string) *UCUM {
	return &UCUM{version: version, commonUnits: commonUnits}
}

// SetCommonUnits wires the enumerable common-unit subset.
func (p *UCUM) SetCommonUnits(codes []string) { p.commonUnits = codes }

// System returns the UCUM canonical url.
func (p *UCUM) System() string { return UCUMSystem }

// Version returns the essence version served.
func (p *UCUM) Version() string { return p.version }

// PartialVersion returns the version unchanged; UCUM versions carry no
// semver structure.
func (p *UCUM) PartialVersion() string { return p.version }

// TotalCount returns -1: the unit grammar is not enumerable.
func (p *UCUM) TotalCount() int { return -1 }

// Locate validates a unit expression by parsing it.
func (p *UCUM) Locate(code string) (Concept, string) {
	canonical, err := ParseUCUM(code)
	if err != nil {
		return nil, ""
	}
	return &ucumConcept{code: code, canonical: canonical}, ""
}

// Display renders the human form of the expression.
func (p *UCUM) Display(c Concept, languages []string) string {
	return ucumHumanForm(c.Code())
}

// ucumHumanForm renders unit names for the simple and quotient forms;
// anything more structured displays as its own code.
func ucumHumanForm(code string) string {
	num, den, hasDen := strings.Cut(code, "/")
	numName, ok := ucumSimpleName(num)
	if !ok {
		return code
	}
	if !hasDen {
		return numName
	}
	denName, ok := ucumSimpleName(den)
	if !ok {
		return code
	}
	return numName + " per " + denName
}

func ucumSimpleName(code string) (string, bool) {
	if atom, ok := ucumAtoms[code]; ok {
		return atom.name, true
	}
	for pre, prefix := range ucumPrefixes {
		if !strings.HasPrefix(code, pre) {
			continue
		}
		if atom, ok := ucumAtoms[code[len(pre):]]; ok && atom.metric {
			return prefix.name + atom.name, true
		}
	}
	return "", false
}

// Designations returns the human form as the sole designation.
func (p *UCUM) Designations(c Concept) []model.Designation {
	return []model.Designation{{Language: "en", Value: p.Display(c, nil)}}
}

// Definition returns "" — UCUM expressions carry no definitions.
func (p *UCUM) Definition(c Concept) string { return "" }

// Properties returns the canonical decomposition of the expression.
func (p *UCUM) Properties(c Concept, propFilter []string) []model.Property {
	uc := c.(*ucumConcept)
	props := []model.Property{{Code: "canonical", ValueString: uc.canonical.String()}}
	if len(propFilter) == 0 {
		return props
	}
	var out []model.Property
	for _, prop := range props {
		for _, want := range propFilter {
			if prop.Code == want {
				out = append(out, prop)
				break
			}
		}
	}
	return out
}

// IsInactive reports false: unit expressions do not retire.
func (p *UCUM) IsInactive(c Concept) bool { return false }

// IsAbstract reports false.
func (p *UCUM) IsAbstract(c Concept) bool { return false }

// IsDeprecated reports false.
func (p *UCUM) IsDeprecated(c Concept) bool { return false }

// Subsumes treats canonically equal expressions as equivalent; units have
// no subsumption hierarchy beyond that.
func (p *UCUM) Subsumes(a, b Concept) (SubsumptionOutcome, *txserver.Issue) {
	ua, ub := a.(*ucumConcept), b.(*ucumConcept)
	if ua.canonical.Equal(ub.canonical) {
		return Equivalent, nil
	}
	return NotSubsumed, nil
}

// Filter supports canonical matching over the common-unit subset; the
// result is provisional because the grammar admits infinitely many
// expressions with the same canonical form.
func (p *UCUM) Filter(opCtx *txserver.OperationContext, property, op, value string) (FilterContext, *txserver.Issue) {
	if iss := opCtx.DeadCheck("filter:ucum"); iss != nil {
		return nil, iss
	}
	if property != "canonical" || op != "=" {
		return nil, txserver.NotSupported(fmt.Sprintf(
			"filter %s %s is not supported by UCUM", property, op))
	}
	want, err := ParseUCUM(value)
	if err != nil {
		return nil, txserver.BadRequest(fmt.Sprintf("invalid canonical unit %q: %v", value, err))
	}
	var matched []Concept
	for _, code := range p.commonUnits {
		canonical, err := ParseUCUM(code)
		if err != nil {
			continue
		}
		if canonical.Equal(want) {
			matched = append(matched, &ucumConcept{code: code, canonical: canonical})
		}
	}
	return NewProvisionalFilter(matched), nil
}

// Iterator iterates a filter's provisional matches; the full grammar is
// not enumerable.
func (p *UCUM) Iterator(opCtx *txserver.OperationContext, filter FilterContext) (ConceptIterator, *txserver.Issue) {
	if filter == nil {
		return nil, txserver.NotSupported("UCUM concepts cannot be enumerated")
	}
	concepts, ok := ListFilterConcepts(filter)
	if !ok {
		return nil, txserver.NotSupported("foreign filter context")
	}
	return NewSliceIterator(concepts), nil
}

// FiltersNotClosed reports true: UCUM filter sets are provisional.
func (p *UCUM) FiltersNotClosed() bool { return true }

// Close is a no-op.
func (p *UCUM) Close() {}

var _ CodeSystemProvider = (*UCUM)(nil)
