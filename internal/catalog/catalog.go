package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/makeasinger/quizgen/internal/model"
)

//go:embed catalog.yaml
var bundled []byte

var (
	ErrUnknownSector = errors.New("unknown sector")
	ErrUnknownCareer = errors.New("unknown career")
	ErrInvalidLevel  = errors.New("invalid level")
)

// Catalog is the static sector/branch/career tree plus per-level quiz rules
type Catalog struct {
	Levels            int                              `yaml:"levels" json:"levels"`
	DefaultDifficulty model.DifficultyMetadata         `yaml:"default_difficulty" json:"defaultDifficulty"`
	Difficulty        map[int]model.DifficultyMetadata `yaml:"difficulty" json:"difficulty"`
	Sectors           []Sector                         `yaml:"sectors" json:"sectors"`
}

type Sector struct {
	ID          string   `yaml:"id" json:"id"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Branches    []Branch `yaml:"branches" json:"branches"`
}

type Branch struct {
	Name    string   `yaml:"name" json:"name"`
	Careers []string `yaml:"careers" json:"careers"`
}

// Default returns the bundled catalog
func Default() (*Catalog, error) {
	return Parse(bundled)
}

// Load reads a catalog file, falling back to the bundled one when path is empty
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and checks a catalog document
func Parse(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("catalog: document is empty")
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) check() error {
	if c.Levels <= 0 {
		return fmt.Errorf("catalog: levels must be positive")
	}
	if len(c.Sectors) == 0 {
		return fmt.Errorf("catalog: no sectors defined")
	}
	seen := make(map[string]struct{})
	for _, s := range c.Sectors {
		if s.ID == "" {
			return fmt.Errorf("catalog: sector without id")
		}
		if s.ID == model.SoftSkillsID {
			return fmt.Errorf("catalog: sector id %q is reserved", s.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("catalog: duplicate sector %q", s.ID)
		}
		seen[s.ID] = struct{}{}

		// unit ids are sector/career scoped, so a career may appear once per sector
		careers := make(map[string]string)
		for _, b := range s.Branches {
			for _, career := range b.Careers {
				if career == "" {
					return fmt.Errorf("catalog: sector %q branch %q has an empty career", s.ID, b.Name)
				}
				if other, dup := careers[career]; dup {
					return fmt.Errorf("catalog: career %q listed twice in sector %q (branches %q and %q)", career, s.ID, other, b.Name)
				}
				careers[career] = b.Name
			}
		}
		if len(careers) == 0 {
			return fmt.Errorf("catalog: sector %q has no careers", s.ID)
		}
	}
	return nil
}

// Sector looks a sector up by id
func (c *Catalog) Sector(id string) (Sector, bool) {
	for _, s := range c.Sectors {
		if s.ID == id {
			return s, true
		}
	}
	return Sector{}, false
}

// Branch returns the branch name a career belongs to
func (s Sector) Branch(career string) (string, bool) {
	for _, b := range s.Branches {
		for _, c := range b.Careers {
			if c == career {
				return b.Name, true
			}
		}
	}
	return "", false
}

// DifficultyFor returns the time limit and passing score for a level
func (c *Catalog) DifficultyFor(level int) model.DifficultyMetadata {
	if meta, ok := c.Difficulty[level]; ok {
		return meta
	}
	return c.DefaultDifficulty
}
