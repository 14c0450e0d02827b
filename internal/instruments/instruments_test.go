package instruments

import (
	"os"
	"path/filepath"
	"testing"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instruments.json")
	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return s, path
}

func TestLoadSeedsDefaults(t *testing.T) {
	s, path := tempStore(t)
	if len(s.List()) == 0 {
		t.Fatal("fresh catalog must carry the default set")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("catalog file not created: %v", err)
	}
	if _, ok := s.Get("gold"); !ok {
		t.Error("lookup must be case-insensitive")
	}
}

func TestAddRemovePersist(t *testing.T) {
	s, path := tempStore(t)
	inst := Instrument{
		Name:           "PLATINUM",
		ContractCode:   "076651",
		CommodityGroup: "NATURAL RESOURCES",
		Exchange:       "NYMEX",
	}
	if err := s.Add(inst); err != nil {
		t.Fatal(err)
	}

	// Reload from disk: the addition must survive.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := reloaded.Get("PLATINUM")
	if !ok || got.ContractCode != "076651" {
		t.Fatalf("reloaded instrument = %+v, %v", got, ok)
	}

	if err := reloaded.Remove("PLATINUM"); err != nil {
		t.Fatal(err)
	}
	if _, ok := reloaded.Get("PLATINUM"); ok {
		t.Error("removed instrument still present")
	}
	if err := reloaded.Remove("PLATINUM"); err == nil {
		t.Error("removing an unknown name must error")
	}
}

func TestAddValidation(t *testing.T) {
	s, _ := tempStore(t)
	if err := s.Add(Instrument{ContractCode: "000000"}); err == nil {
		t.Error("missing name must be rejected")
	}
	if err := s.Add(Instrument{Name: "LEAN HOGS"}); err == nil {
		t.Error("missing contract code must be rejected")
	}
}

func TestByCode(t *testing.T) {
	s, _ := tempStore(t)
	inst, ok := s.ByCode("067651")
	if !ok || inst.Name != "WTI CRUDE OIL" {
		t.Fatalf("ByCode = %+v, %v", inst, ok)
	}
	if _, ok := s.ByCode("999999"); ok {
		t.Error("unknown code must report not found")
	}
}

func TestListSorted(t *testing.T) {
	s, _ := tempStore(t)
	list := s.List()
	for i := 1; i < len(list); i++ {
		if list[i-1].Name > list[i].Name {
			t.Fatalf("list not sorted: %q before %q", list[i-1].Name, list[i].Name)
		}
	}
}

func TestAssetClass(t *testing.T) {
	s, _ := tempStore(t)
	tests := []struct {
		name, want string
	}{
		{"GOLD", "Metals"},
		{"WTI CRUDE OIL", "Energy"},
		{"CORN", "Agriculture"},
	}
	for _, tt := range tests {
		inst, ok := s.Get(tt.name)
		if !ok {
			t.Fatalf("default %q missing", tt.name)
		}
		if got := inst.AssetClass(); got != tt.want {
			t.Errorf("AssetClass(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}
	if got := (Instrument{CommodityGroup: "STOCK INDICES"}).AssetClass(); got != "Other" {
		t.Errorf("unknown group = %q, want Other", got)
	}
}
