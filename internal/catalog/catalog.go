package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
)

//go:embed data/*.json
var embeddedFiles embed.FS

// Range is a closed numeric interval. Nil bounds mean unbounded.
type Range struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

// TestDef describes one lab test known to the catalog.
type TestDef struct {
	ID            string           `json:"-"`
	DisplayName   string           `json:"display_name"`
	Aliases       []string         `json:"aliases"`
	Unit          string           `json:"unit"`
	Units         []string         `json:"units"`
	Ranges        map[string]Range `json:"ranges"`
	NormalMin     *float64         `json:"normal_min"`
	NormalMax     *float64         `json:"normal_max"`
	Meaning       string           `json:"meaning"`
	NormalMeaning string           `json:"normal_meaning"`
	CommonCauses  []string         `json:"common_causes"`
}

// MedicineDef describes one medicine known to the catalog.
type MedicineDef struct {
	ID                 string   `json:"-"`
	DisplayName        string   `json:"display_name"`
	Aliases            []string `json:"aliases"`
	Category           string   `json:"category"`
	GenericName        string   `json:"generic_name"`
	Purpose            string   `json:"purpose"`
	Mechanism          string   `json:"mechanism"`
	HowToTake          string   `json:"how_to_take"`
	CommonSideEffects  []string `json:"common_side_effects"`
	SeriousSideEffects []string `json:"serious_side_effects"`
	DrugInteractions   []string `json:"drug_interactions"`
	Precautions        []string `json:"precautions"`
	GenericAlternative string   `json:"generic_alternative"`
	LifestyleTips      []string `json:"lifestyle_tips"`
}

// Snapshot is an immutable view of the catalog. Lookups against one
// snapshot stay consistent even while a reload replaces the store's
// current snapshot.
type Snapshot struct {
	Tests       map[string]TestDef
	TestIDs     []string
	Medicines   map[string]MedicineDef
	MedicineIDs []string
	Synonyms    map[string]string
	Units       map[string]string
}

// Store holds the current catalog snapshot and supports atomic reloads.
type Store struct {
	dir  string
	snap atomic.Pointer[Snapshot]
}

// New builds a store from the catalog files in dir, falling back to the
// embedded catalog when dir is empty.
func New(dir string) (*Store, error) {
	s := &Store{dir: strings.TrimSpace(dir)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot returns the current catalog snapshot.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Reload re-reads the catalog files and swaps in a new snapshot.
// Readers holding the previous snapshot are unaffected.
func (s *Store) Reload() error {
	snap, err := load(s.dir)
	if err != nil {
		return err
	}
	s.snap.Store(snap)
	return nil
}

func load(dir string) (*Snapshot, error) {
	var tests map[string]TestDef
	if err := loadJSON(dir, "tests.json", &tests); err != nil {
		return nil, err
	}
	var medicines map[string]MedicineDef
	if err := loadJSON(dir, "medicines.json", &medicines); err != nil {
		return nil, err
	}
	var synonyms map[string]string
	if err := loadJSON(dir, "synonyms.json", &synonyms); err != nil {
		return nil, err
	}
	var units map[string]string
	if err := loadJSON(dir, "units.json", &units); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Tests:     make(map[string]TestDef, len(tests)),
		Medicines: make(map[string]MedicineDef, len(medicines)),
		Synonyms:  make(map[string]string, len(synonyms)),
		Units:     make(map[string]string, len(units)),
	}
	for id, def := range tests {
		def.ID = id
		snap.Tests[id] = def
		snap.TestIDs = append(snap.TestIDs, id)
	}
	for id, def := range medicines {
		def.ID = id
		snap.Medicines[id] = def
		snap.MedicineIDs = append(snap.MedicineIDs, id)
	}
	for k, v := range synonyms {
		snap.Synonyms[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for k, v := range units {
		snap.Units[strings.ToLower(strings.TrimSpace(k))] = v
	}
	sort.Strings(snap.TestIDs)
	sort.Strings(snap.MedicineIDs)
	return snap, nil
}

func loadJSON(dir, name string, out any) error {
	var (
		data []byte
		err  error
	)
	if dir != "" {
		data, err = os.ReadFile(filepath.Join(dir, name))
	} else {
		data, err = embeddedFiles.ReadFile("data/" + name)
	}
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse catalog %s: %w", name, err)
	}
	return nil
}

// ResolveTest maps a raw test name or alias to its catalog definition.
func (s *Snapshot) ResolveTest(raw string) (TestDef, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return TestDef{}, false
	}
	if id, ok := s.Synonyms[key]; ok {
		if def, ok := s.Tests[id]; ok {
			return def, true
		}
	}
	if def, ok := s.Tests[key]; ok {
		return def, true
	}
	for _, id := range s.TestIDs {
		def := s.Tests[id]
		for _, alias := range def.Aliases {
			if key == strings.ToLower(alias) {
				return def, true
			}
		}
	}
	return TestDef{}, false
}

// ResolveUnit maps a raw unit string to its canonical form, returning
// the input unchanged when no mapping exists.
func (s *Snapshot) ResolveUnit(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := s.Units[key]; ok {
		return canonical
	}
	return strings.TrimSpace(raw)
}

// NormalRange returns the reference interval for a test. The combined
// range is preferred, then the male range, then the flat min/max fields.
func (d TestDef) NormalRange() (*float64, *float64) {
	if r, ok := d.Ranges["all"]; ok && (r.Min != nil || r.Max != nil) {
		return r.Min, r.Max
	}
	if r, ok := d.Ranges["male"]; ok && (r.Min != nil || r.Max != nil) {
		return r.Min, r.Max
	}
	return d.NormalMin, d.NormalMax
}

// DefaultUnit returns the first known unit for a test.
func (d TestDef) DefaultUnit() string {
	if len(d.Units) > 0 {
		return d.Units[0]
	}
	return d.Unit
}
