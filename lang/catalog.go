package lang

import (
	"fmt"
	"strings"
)

// Catalog is the message catalog, keyed by message id, with per-language
// translations. Substitution is positional %s.
type Catalog struct {
	messages map[string]map[string]string // id -> language -> format
	fallback string
}

// NewCatalog creates a catalog whose fallback language is fallback.
func NewCatalog(fallback string) *Catalog {
	if fallback == "" {
		fallback = "en"
	}
	return &Catalog{
		messages: make(map[string]map[string]string),
		fallback: fallback,
	}
}

// Define registers a message format for an id and language.
func (c *Catalog) Define(id, lang, format string) {
	if c.messages[id] == nil {
		c.messages[id] = make(map[string]string)
	}
	c.messages[id][lang] = format
}

// Get formats the message for id in the best language from the priority
// list, falling back to the catalog's fallback language, then to the id
// itself.
func (c *Catalog) Get(id string, languages []string, args ...any) string {
	byLang, ok := c.messages[id]
	if !ok {
		return id
	}
	candidates := make([]string, 0, len(byLang))
	for l := range byLang {
		candidates = append(candidates, l)
	}
	format := ""
	if idx := Select(candidates, languages); idx >= 0 {
		format = byLang[candidates[idx]]
	} else if f, ok := byLang[c.fallback]; ok {
		format = f
	} else {
		return id
	}
	if len(args) == 0 {
		return format
	}
	// Positional %s only; widen everything to strings first.
	strs := make([]any, len(args))
	for i, a := range args {
		strs[i] = fmt.Sprint(a)
	}
	return fmt.Sprintf(format, strs...)
}

// DefaultCatalog returns the built-in English catalog for the messages the
// engines emit.
func DefaultCatalog() *Catalog {
	c := NewCatalog("en")
	for id, format := range map[string]string{
		"CODE_NOT_FOUND":            "code '%s' is not known to code system '%s'",
		"CODE_INACTIVE":             "code '%s' is inactive in code system '%s'",
		"CODESYSTEM_NOT_FOUND":      "code system '%s' is not known to this server",
		"VALUESET_NOT_FOUND":        "value set '%s' is not known to this server",
		"NOT_IN_VALUESET":           "code '%s' from system '%s' is not in value set '%s'",
		"DISPLAY_MISMATCH":          "display '%s' does not match any known display for code '%s' (expected '%s')",
		"DISPLAY_LANGUAGE_MISMATCH": "display language '%s' has no designation for code '%s'",
		"VERSION_MISMATCH":          "version '%s' conflicts with pinned version '%s' for system '%s'",
		"EXPANSION_TOO_COSTLY":      "expansion of '%s' exceeds the limit of %s concepts",
		"EXPANSION_LIMITED":         "expansion truncated to %s concepts",
		"CIRCULAR_REFERENCE":        "circular value set reference: %s",
		"FILTER_NOT_SUPPORTED":      "filter %s %s is not supported by code system '%s'",
		"PROPERTY_NOT_SUPPORTED":    "property '%s' is not known to code system '%s'",
	} {
		c.Define(id, "en", format)
	}
	c.Define("CODE_NOT_FOUND", "de", "Code '%s' ist im Codesystem '%s' nicht bekannt")
	c.Define("NOT_IN_VALUESET", "de", "Code '%s' aus System '%s' ist nicht im ValueSet '%s'")
	return c
}

// Join renders a list for interpolation into a message.
func Join(items []string) string {
	return strings.Join(items, ", ")
}
