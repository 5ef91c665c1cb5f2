package catalog

import (
	"fmt"

	"github.com/makeasinger/quizgen/internal/model"
)

// PlanConfig sizes the work units
type PlanConfig struct {
	ChunkSize         int
	QuestionsPerLevel int
	SoftSkillsCount   int
}

// Plan enumerates the work units for a scope in processing order: sectors in
// catalog order, careers by branch, levels ascending, chunks ascending. The
// full scope ends with the soft skills block.
func (c *Catalog) Plan(scope model.Scope, cfg PlanConfig) ([]model.WorkUnit, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("catalog: chunk size must be positive")
	}

	var units []model.WorkUnit
	switch scope.Type {
	case model.ScopeFull:
		for _, s := range c.Sectors {
			units = append(units, c.sectorUnits(s, cfg)...)
		}
		units = append(units, softSkillUnits(cfg)...)

	case model.ScopeSector:
		s, ok := c.Sector(scope.Sector)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSector, scope.Sector)
		}
		units = c.sectorUnits(s, cfg)

	case model.ScopeCareerLevel:
		s, ok := c.Sector(scope.Sector)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSector, scope.Sector)
		}
		branch, ok := s.Branch(scope.Career)
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnknownCareer, scope.Sector, scope.Career)
		}
		if scope.Level < 1 || scope.Level > c.Levels {
			return nil, fmt.Errorf("%w: %d (1-%d)", ErrInvalidLevel, scope.Level, c.Levels)
		}
		units = levelUnits(s.ID, branch, scope.Career, scope.Level, cfg.QuestionsPerLevel, cfg.ChunkSize)

	case model.ScopeSoftSkills:
		units = softSkillUnits(cfg)

	default:
		return nil, fmt.Errorf("catalog: unsupported scope type %q", scope.Type)
	}

	return units, nil
}

func (c *Catalog) sectorUnits(s Sector, cfg PlanConfig) []model.WorkUnit {
	var units []model.WorkUnit
	for _, b := range s.Branches {
		for _, career := range b.Careers {
			for level := 1; level <= c.Levels; level++ {
				units = append(units, levelUnits(s.ID, b.Name, career, level, cfg.QuestionsPerLevel, cfg.ChunkSize)...)
			}
		}
	}
	return units
}

func softSkillUnits(cfg PlanConfig) []model.WorkUnit {
	return levelUnits(model.SoftSkillsID, "", model.SoftSkillsID, 0, cfg.SoftSkillsCount, cfg.ChunkSize)
}

// levelUnits splits total questions into chunks; the last chunk may be short
func levelUnits(sector, branch, career string, level, total, size int) []model.WorkUnit {
	var units []model.WorkUnit
	for chunk, first := 1, 1; first <= total; chunk, first = chunk+1, first+size {
		units = append(units, model.WorkUnit{
			ID:      model.UnitID(sector, career, level, chunk),
			Sector:  sector,
			Branch:  branch,
			Career:  career,
			Level:   level,
			Chunk:   chunk,
			Count:   min(size, total-first+1),
			FirstID: first,
		})
	}
	return units
}
