// Package instruments maintains the catalog of futures contracts the
// monitor tracks: display name, CFTC contract code, and commodity group.
// The catalog is a JSON file on disk seeded with a built-in default set,
// so a fresh install works before the user curates their own list.
package instruments

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mwcapital/COT-Monitor/internal/analysis/cot"
)

// Instrument is one tracked futures contract.
type Instrument struct {
	Name           string `json:"name"`
	ContractCode   string `json:"contract_code"`
	CommodityGroup string `json:"commodity_group"`
	Exchange       string `json:"exchange,omitempty"`
}

// AssetClass maps the instrument's CFTC commodity group onto the
// monitor's coarse asset buckets.
func (i Instrument) AssetClass() string {
	return cot.AssetClass(i.CommodityGroup)
}

// Store is a mutable instrument catalog backed by a JSON file.
// All methods are safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	path string
	byID map[string]Instrument
}

// defaults seed a fresh catalog. Contract codes follow the CFTC
// commitments-of-traders numbering.
var defaults = []Instrument{
	{Name: "WTI CRUDE OIL", ContractCode: "067651", CommodityGroup: "PETROLEUM AND PRODUCTS", Exchange: "NYMEX"},
	{Name: "NATURAL GAS", ContractCode: "023651", CommodityGroup: "NATURAL GAS", Exchange: "NYMEX"},
	{Name: "GOLD", ContractCode: "088691", CommodityGroup: "PRECIOUS METALS", Exchange: "COMEX"},
	{Name: "SILVER", ContractCode: "084691", CommodityGroup: "PRECIOUS METALS", Exchange: "COMEX"},
	{Name: "COPPER", ContractCode: "085692", CommodityGroup: "BASE METALS", Exchange: "COMEX"},
	{Name: "CORN", ContractCode: "002602", CommodityGroup: "GRAINS AND OILSEEDS", Exchange: "CBT"},
	{Name: "SOYBEANS", ContractCode: "005602", CommodityGroup: "GRAINS AND OILSEEDS", Exchange: "CBT"},
	{Name: "WHEAT SRW", ContractCode: "001602", CommodityGroup: "GRAINS AND OILSEEDS", Exchange: "CBT"},
	{Name: "SUGAR NO. 11", ContractCode: "080732", CommodityGroup: "SOFTS", Exchange: "ICE"},
	{Name: "COFFEE C", ContractCode: "083731", CommodityGroup: "SOFTS", Exchange: "ICE"},
}

// Load opens the catalog at path, creating it from the default set when
// the file does not exist. An empty path falls back to
// $HOME/.cotmonitor/instruments.json.
func Load(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving instruments path: %w", err)
		}
		path = filepath.Join(home, ".cotmonitor", "instruments.json")
	}

	s := &Store{path: path, byID: make(map[string]Instrument)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		for _, inst := range defaults {
			s.byID[key(inst.Name)] = inst
		}
		if err := s.save(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading instruments file: %w", err)
	}

	var list []Instrument
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, inst := range list {
		s.byID[key(inst.Name)] = inst
	}
	return s, nil
}

// List returns all instruments sorted by name.
func (s *Store) List() []Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Instrument, 0, len(s.byID))
	for _, inst := range s.byID {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get looks up an instrument by name, case-insensitively.
func (s *Store) Get(name string) (Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.byID[key(name)]
	return inst, ok
}

// ByCode looks up an instrument by CFTC contract code.
func (s *Store) ByCode(code string) (Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inst := range s.byID {
		if inst.ContractCode == code {
			return inst, true
		}
	}
	return Instrument{}, false
}

// Add inserts or replaces an instrument and persists the catalog.
func (s *Store) Add(inst Instrument) error {
	if strings.TrimSpace(inst.Name) == "" {
		return fmt.Errorf("instrument name is required")
	}
	if strings.TrimSpace(inst.ContractCode) == "" {
		return fmt.Errorf("contract code is required for %q", inst.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[key(inst.Name)] = inst
	return s.save()
}

// Remove deletes an instrument by name and persists the catalog.
// Removing an unknown name is an error so typos surface.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(name)
	if _, ok := s.byID[k]; !ok {
		return fmt.Errorf("unknown instrument %q", name)
	}
	delete(s.byID, k)
	return s.save()
}

// save writes the catalog; callers must hold at least a read lock.
func (s *Store) save() error {
	list := make([]Instrument, 0, len(s.byID))
	for _, inst := range s.byID {
		list = append(list, inst)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating instruments dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing instruments file: %w", err)
	}
	return nil
}

func key(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
