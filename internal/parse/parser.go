package parse

import (
	"regexp"
	"strconv"
	"strings"

	"lumen-backend/internal/catalog"
)

// Test is one recognized lab value in a document.
type Test struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Value     *float64 `json:"value"`
	Unit      string   `json:"unit"`
	NormalMin *float64 `json:"normal_min"`
	NormalMax *float64 `json:"normal_max"`
}

// Medicine is one recognized medicine name in a document.
type Medicine struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Parsed is the structured output of parsing one document's text.
type Parsed struct {
	Tests     []Test     `json:"tests"`
	Medicines []Medicine `json:"medicines"`
	RawText   string     `json:"raw_text"`
}

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	medicineWordRe = regexp.MustCompile(`\b[a-z0-9\-]{4,}\b`)
)

type testMatcher struct {
	def catalog.TestDef
	re  *regexp.Regexp
}

// Parser extracts catalog-known tests and medicines from raw text.
// A parser is bound to one catalog snapshot, so results are consistent
// even if the catalog reloads mid-parse.
type Parser struct {
	snap       *catalog.Snapshot
	testRes    []testMatcher
	medAliases map[string]string
}

// NewParser compiles extraction patterns for the given catalog snapshot.
func NewParser(snap *catalog.Snapshot) *Parser {
	p := &Parser{
		snap:       snap,
		medAliases: make(map[string]string),
	}
	for _, id := range snap.TestIDs {
		def := snap.Tests[id]
		names := make([]string, 0, len(def.Aliases)+1)
		display := def.DisplayName
		if display == "" {
			display = id
		}
		names = append(names, strings.ToLower(display))
		for _, a := range def.Aliases {
			names = append(names, strings.ToLower(a))
		}
		for _, name := range names {
			re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(name) + `\s*[:\-]?\s*(\d+\.?\d*)\s*([a-zA-Z/^\d]+)?`)
			p.testRes = append(p.testRes, testMatcher{def: def, re: re})
		}
	}
	for _, id := range snap.MedicineIDs {
		def := snap.Medicines[id]
		p.medAliases[id] = id
		for _, a := range def.Aliases {
			p.medAliases[strings.ToLower(a)] = id
		}
	}
	return p
}

// Parse extracts all recognizable tests and medicines from text.
// Every pattern occurrence yields a test entry, duplicates included,
// so repeated readings in one report are preserved.
func (p *Parser) Parse(text string) Parsed {
	normalized := normalizeText(text)
	return Parsed{
		Tests:     p.extractTests(normalized),
		Medicines: p.extractMedicines(normalized),
		RawText:   text,
	}
}

func (p *Parser) extractTests(text string) []Test {
	tests := []Test{}
	for _, m := range p.testRes {
		for _, match := range m.re.FindAllStringSubmatch(text, -1) {
			rawValue := match[1]
			rawUnit := match[2]
			if rawUnit == "" {
				rawUnit = m.def.DefaultUnit()
			}

			min, max := m.def.NormalRange()
			name := m.def.DisplayName
			if name == "" {
				name = m.def.ID
			}

			tests = append(tests, Test{
				ID:        m.def.ID,
				Name:      name,
				Value:     safeFloat(rawValue),
				Unit:      p.snap.ResolveUnit(rawUnit),
				NormalMin: min,
				NormalMax: max,
			})
		}
	}
	return tests
}

func (p *Parser) extractMedicines(text string) []Medicine {
	meds := []Medicine{}
	seen := make(map[string]bool)
	for _, word := range medicineWordRe.FindAllString(text, -1) {
		id, ok := p.medAliases[word]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		def := p.snap.Medicines[id]
		name := def.DisplayName
		if name == "" {
			name = id
		}
		meds = append(meds, Medicine{
			ID:       id,
			Name:     name,
			Category: def.Category,
		})
	}
	return meds
}

func normalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " ")))
}

func safeFloat(raw string) *float64 {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}
