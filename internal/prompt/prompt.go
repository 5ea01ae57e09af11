package prompt

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var ErrEmptyCatalog = errors.New("prompt catalog is empty")
var ErrInvalidPrompt = errors.New("invalid prompt")

type HandShape string

const (
	HandGuu   HandShape = "グー"  // rock
	HandChoki HandShape = "チョキ" // scissors
	HandPaa   HandShape = "パー"  // paper
)

func (h HandShape) Valid() bool {
	switch h {
	case HandGuu, HandChoki, HandPaa:
		return true
	default:
		return false
	}
}

// Prompt is one challenge: make ObjectToMake using one hand in Shape1 and
// the other in Shape2.
type Prompt struct {
	ID             string    `json:"id"`
	Shape1         HandShape `json:"shape1"`
	Shape2         HandShape `json:"shape2"`
	ObjectToMake   string    `json:"objectToMake"`
	ObjectToMakeEn string    `json:"objectToMakeEn"`
	FullText       string    `json:"fullText"`
}

type Catalog []Prompt

//go:embed catalog.json
var defaultCatalogJSON []byte

// Default returns the built-in catalog.
func Default() Catalog {
	var c Catalog
	if err := json.Unmarshal(defaultCatalogJSON, &c); err != nil {
		panic("prompt: embedded catalog is invalid: " + err.Error())
	}
	return c
}

// LoadCatalog reads a JSON catalog from path. An empty path yields the
// built-in catalog.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt catalog: %w", err)
	}

	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing prompt catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c Catalog) Validate() error {
	if len(c) == 0 {
		return ErrEmptyCatalog
	}
	seen := make(map[string]bool, len(c))
	for i, p := range c {
		if p.ID == "" {
			return fmt.Errorf("%w: entry %d has no id", ErrInvalidPrompt, i)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidPrompt, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}
