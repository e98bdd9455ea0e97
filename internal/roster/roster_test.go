package roster

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRoster(t *testing.T) {
	r := Default()
	if r.Len() != 100 {
		t.Fatalf("Default().Len() = %d, want 100", r.Len())
	}
	if r.Companies[0].Symbol != "AAPL" || r.Companies[0].Name != "Apple Inc." {
		t.Errorf("first company: got %+v", r.Companies[0])
	}
	// "ON" must survive YAML decoding as a string symbol.
	if _, ok := r.Lookup("ON"); !ok {
		t.Error("ON Semiconductor missing from default roster")
	}
}

func TestParse(t *testing.T) {
	doc := []byte(`
name: pair
companies:
  - symbol: aapl
    name: Apple
  - symbol: MSFT
`)
	r, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", r.Len())
	}
	if r.Companies[0].Symbol != "AAPL" {
		t.Errorf("symbol not normalized: %q", r.Companies[0].Symbol)
	}
	if r.Companies[1].Name != "MSFT" {
		t.Errorf("missing name should fall back to symbol, got %q", r.Companies[1].Name)
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"empty":     "name: x\ncompanies: []\n",
		"duplicate": "companies:\n  - symbol: AAPL\n  - symbol: aapl\n",
		"no symbol": "companies:\n  - name: Nameless\n",
		"bad yaml":  "companies: [\n",
	}
	for name, doc := range tests {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoad(t *testing.T) {
	r, err := Load("")
	if err != nil || r.Len() != 100 {
		t.Fatalf("Load(\"\") = %v, %v; want default roster", r, err)
	}

	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte("companies:\n  - symbol: TSLA\n    name: Tesla\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err = Load(path)
	if err != nil {
		t.Fatalf("Load(file) error: %v", err)
	}
	if r.Len() != 1 || r.Companies[0].Symbol != "TSLA" {
		t.Errorf("Load(file): got %+v", r.Companies)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing roster file")
	}
}

func TestFilter(t *testing.T) {
	r := Default()
	f, err := r.Filter([]string{"msft", "AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("Filter() error: %v", err)
	}
	if f.Len() != 2 || f.Companies[0].Symbol != "MSFT" || f.Companies[1].Symbol != "AAPL" {
		t.Errorf("Filter order: got %+v", f.Companies)
	}
	if _, err := r.Filter([]string{"NOPE"}); err == nil {
		t.Error("expected error for unknown symbol")
	}
	if same, _ := r.Filter(nil); same != r {
		t.Error("Filter(nil) should return the roster unchanged")
	}
}

func TestHead(t *testing.T) {
	r := Default()
	if got := r.Head(10).Len(); got != 10 {
		t.Errorf("Head(10).Len() = %d, want 10", got)
	}
	if got := r.Head(0).Len(); got != 100 {
		t.Errorf("Head(0).Len() = %d, want 100", got)
	}
}
