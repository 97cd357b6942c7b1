package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nemit0/virtualoffice-sim/internal/domain"
)

// PersonaSeed is one operator-supplied roster entry, loaded from a YAML
// file named by PersonaSeedPath. Mirrors the teacher's
// internal/policy.WorkerConfig convention of a documented YAML-tag struct
// per seed-file record.
type PersonaSeed struct {
	Name               string `yaml:"name"`
	Role               string `yaml:"role"`
	Timezone           string `yaml:"timezone"`
	EmailAddress       string `yaml:"email_address"`
	ChatHandle         string `yaml:"chat_handle"`
	WorkHours          string `yaml:"work_hours"`
	BreakFrequency     string `yaml:"break_frequency"`
	CommunicationStyle string `yaml:"communication_style"`
	Skills             string `yaml:"skills"`
	Personality        string `yaml:"personality"`
	Objectives         string `yaml:"objectives"`
	Metrics            string `yaml:"metrics"`
	PlanningGuidelines string `yaml:"planning_guidelines"`
	EventPlaybook      string `yaml:"event_playbook"`
	StatusVocabulary   string `yaml:"status_vocabulary"`
	MarkdownProfile    string `yaml:"markdown_profile"`
	IsDepartmentHead   bool   `yaml:"is_department_head"`
}

type personaSeedFile struct {
	Personas []PersonaSeed `yaml:"personas"`
}

// LoadPersonaSeed reads a roster of personas from a YAML file, in the shape:
//
//	personas:
//	  - name: Alex Rivera
//	    role: Engineering Lead
//	    ...
func LoadPersonaSeed(path string) ([]domain.Persona, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read persona seed %s: %w", path, err)
	}
	var parsed personaSeedFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("config: parse persona seed %s: %w", path, err)
	}

	out := make([]domain.Persona, 0, len(parsed.Personas))
	for _, p := range parsed.Personas {
		if p.Name == "" {
			return nil, fmt.Errorf("config: persona seed %s has an entry with no name", path)
		}
		out = append(out, domain.Persona{
			Name:               p.Name,
			Role:               p.Role,
			Timezone:           p.Timezone,
			EmailAddress:       p.EmailAddress,
			ChatHandle:         p.ChatHandle,
			WorkHours:          p.WorkHours,
			BreakFrequency:     p.BreakFrequency,
			CommunicationStyle: p.CommunicationStyle,
			Skills:             p.Skills,
			Personality:        p.Personality,
			Objectives:         p.Objectives,
			Metrics:            p.Metrics,
			PlanningGuidelines: p.PlanningGuidelines,
			EventPlaybook:      p.EventPlaybook,
			StatusVocabulary:   p.StatusVocabulary,
			MarkdownProfile:    p.MarkdownProfile,
			IsDepartmentHead:   p.IsDepartmentHead,
		})
	}
	return out, nil
}
