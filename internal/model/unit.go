package model

import "fmt"

// SoftSkillsID names the soft skills block in unit ids and exports
const SoftSkillsID = "soft_skills"

// WorkUnit is one chunk of questions for a sector/career/level. Units are
// enumerated once per job and never change.
type WorkUnit struct {
	ID      string `json:"id"`
	Sector  string `json:"sector"`
	Branch  string `json:"branch,omitempty"`
	Career  string `json:"career"`
	Level   int    `json:"level"`
	Chunk   int    `json:"chunk"`
	Count   int    `json:"count"`
	FirstID int    `json:"firstId"`
}

// UnitID builds "<sector>/<career>_lvl<level>/<chunk>"
func UnitID(sector, career string, level, chunk int) string {
	if sector == SoftSkillsID {
		return fmt.Sprintf("%s/%s/%d", SoftSkillsID, SoftSkillsID, chunk)
	}
	return fmt.Sprintf("%s/%s_lvl%d/%d", sector, career, level, chunk)
}

// IsSoftSkills reports whether the unit belongs to the soft skills block
func (u WorkUnit) IsSoftSkills() bool {
	return u.Sector == SoftSkillsID
}

// GroupKey identifies the career/level bucket the unit contributes to
func (u WorkUnit) GroupKey() string {
	if u.IsSoftSkills() {
		return SoftSkillsID
	}
	return fmt.Sprintf("%s/%s_lvl%d", u.Sector, u.Career, u.Level)
}
