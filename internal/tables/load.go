package tables

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Paths locates the table files. An empty path selects the built-in table.
type Paths struct {
	Weights    string
	Categories string
	Doses      string
	Aliases    string
}

// Load reads every configured table file and returns validated Tables.
// Files may be JSON or YAML. Any read, parse or validation failure is returned;
// callers treat it as fatal.
func Load(p Paths) (*Tables, error) {
	weights := DefaultWeights()
	if p.Weights != "" {
		weights = map[string]Weights{}
		if err := readTable(p.Weights, &weights); err != nil {
			return nil, err
		}
	}

	categories := DefaultCategories()
	if p.Categories != "" {
		categories = map[string]string{}
		if err := readTable(p.Categories, &categories); err != nil {
			return nil, err
		}
	}

	doses := DefaultDoses()
	if p.Doses != "" {
		doses = map[string]float64{}
		if err := readTable(p.Doses, &doses); err != nil {
			return nil, err
		}
	}

	aliases := DefaultAliases()
	if p.Aliases != "" {
		aliases = map[string]string{}
		if err := readTable(p.Aliases, &aliases); err != nil {
			return nil, err
		}
	}

	t := New(weights, categories, doses, aliases)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Default returns Tables built entirely from the built-in defaults.
func Default() *Tables {
	return New(DefaultWeights(), DefaultCategories(), DefaultDoses(), DefaultAliases())
}

func readTable(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "tables: read %s", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "tables: parse %s", path)
	}
	return nil
}
