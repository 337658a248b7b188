package engine

import (
	"github.com/gofhir/txserver"
	"github.com/gofhir/txserver/model"
)

// Translator maps codes across systems through ConceptMap groups. The
// engine is one-hop: no transitive closure across concept maps is
// performed.
type Translator struct{}

// NewTranslator creates a translation engine.
func NewTranslator() *Translator { return &Translator{} }

// Match is one translation result.
type Match struct {
	Relationship model.Relationship
	Coding       model.Coding
	DependsOn    []model.MapDependsOn
	Product      []model.MapDependsOn
	Source       string
}

// Translate finds the targets of a source coding within a concept map.
// target restricts matches to a target system when non-empty; reverse
// swaps the direction.
func (t *Translator) Translate(opCtx *txserver.OperationContext, cm *model.ConceptMap, coding *model.Coding, target string, reverse bool) ([]Match, *txserver.Issue) {
	if iss := opCtx.DeadCheck("translate"); iss != nil {
		return nil, iss
	}

	var matches []Match
	for gi := range cm.Group {
		group := &cm.Group[gi]
		source, dest := group.Source, group.Target
		if reverse {
			source, dest = dest, source
		}
		if coding.System != "" && source != "" && source != coding.System {
			continue
		}
		if target != "" && dest != "" && dest != target {
			continue
		}
		for ei := range group.Element {
			element := &group.Element[ei]
			if !reverse {
				if element.Code != coding.Code {
					continue
				}
				for ti := range element.Target {
					mt := &element.Target[ti]
					matches = append(matches, Match{
						Relationship: mt.Relationship,
						Coding: model.Coding{
							System:  dest,
							Code:    mt.Code,
							Display: mt.Display,
						},
						DependsOn: mt.DependsOn,
						Product:   mt.Product,
						Source:    cm.URL,
					})
				}
				continue
			}
			// Reverse translation walks target entries back to elements.
			for ti := range element.Target {
				mt := &element.Target[ti]
				if mt.Code != coding.Code {
					continue
				}
				matches = append(matches, Match{
					Relationship: invert(mt.Relationship),
					Coding: model.Coding{
						System:  dest,
						Code:    element.Code,
						Display: element.Display,
					},
					DependsOn: mt.DependsOn,
					Product:   mt.Product,
					Source:    cm.URL,
				})
			}
		}
	}
	return matches, nil
}

// invert flips a relationship for reverse translation.
func invert(rel model.Relationship) model.Relationship {
	switch rel {
	case model.RelSourceNarrower:
		return model.RelSourceBroader
	case model.RelSourceBroader:
		return model.RelSourceNarrower
	default:
		return rel
	}
}
