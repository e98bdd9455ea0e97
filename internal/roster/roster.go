// Package roster loads the list of companies a run analyses.
package roster

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

//go:embed nasdaq100.yaml
var nasdaq100YAML []byte

// File is the on-disk roster format.
type File struct {
	Name      string           `yaml:"name"`
	Companies []models.Company `yaml:"companies"`
}

// Roster is an ordered, duplicate-free company list.
type Roster struct {
	Name      string
	Companies []models.Company
}

// Default returns the built-in NASDAQ-100 roster.
func Default() *Roster {
	r, err := Parse(nasdaq100YAML)
	if err != nil {
		panic(fmt.Sprintf("roster: embedded nasdaq100.yaml: %v", err))
	}
	return r
}

// Load reads a roster file; an empty path yields the default roster.
func Load(path string) (*Roster, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roster: read %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("roster: %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a roster document. Symbols are normalized, a missing name
// falls back to the symbol and duplicates are rejected.
func Parse(data []byte) (*Roster, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(f.Companies) == 0 {
		return nil, fmt.Errorf("no companies listed")
	}

	r := &Roster{Name: f.Name, Companies: make([]models.Company, 0, len(f.Companies))}
	seen := make(map[string]bool, len(f.Companies))
	for i, c := range f.Companies {
		sym := utils.NormalizeTicker(c.Symbol)
		if sym == "" {
			return nil, fmt.Errorf("company %d has no symbol", i)
		}
		if seen[sym] {
			return nil, fmt.Errorf("duplicate symbol %s", sym)
		}
		seen[sym] = true
		name := c.Name
		if name == "" {
			name = sym
		}
		r.Companies = append(r.Companies, models.Company{Symbol: sym, Name: name})
	}
	return r, nil
}

// Len returns the number of companies.
func (r *Roster) Len() int { return len(r.Companies) }

// Lookup finds a company by symbol.
func (r *Roster) Lookup(symbol string) (models.Company, bool) {
	symbol = utils.NormalizeTicker(symbol)
	for _, c := range r.Companies {
		if c.Symbol == symbol {
			return c, true
		}
	}
	return models.Company{}, false
}

// Filter keeps only the given symbols, in the order they were requested.
// Unknown symbols are an error so a typo cannot silently shrink a run.
func (r *Roster) Filter(symbols []string) (*Roster, error) {
	if len(symbols) == 0 {
		return r, nil
	}
	out := &Roster{Name: r.Name, Companies: make([]models.Company, 0, len(symbols))}
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		c, ok := r.Lookup(s)
		if !ok {
			return nil, fmt.Errorf("roster: symbol %q is not in roster %q", s, r.Name)
		}
		if seen[c.Symbol] {
			continue
		}
		seen[c.Symbol] = true
		out.Companies = append(out.Companies, c)
	}
	return out, nil
}

// Head returns the first n companies, the quick test mode of the CLI.
func (r *Roster) Head(n int) *Roster {
	if n <= 0 || n >= len(r.Companies) {
		return r
	}
	return &Roster{Name: r.Name, Companies: append([]models.Company(nil), r.Companies[:n]...)}
}
