// Package config loads the engine's environment-driven configuration,
// following the teacher's internal/policy convention of a documented struct
// with sane defaults, plus optional YAML-backed seed files (locale strings,
// persona rosters) via gopkg.in/yaml.v3.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration holds every environment-driven knob named in spec.md §6.
type Configuration struct {
	HoursPerDay             int
	TickIntervalSeconds     float64
	ContactCooldownTicks    int
	MaxHourlyPlansPerMinute int
	MaxPlanningWorkers      int
	PlannerStrict           bool
	AutoPauseOnProjectEnd   bool
	Locale                  string
	ExternalStakeholders    []string

	// DBPath is the SQLite state store file (DB_PATH in FromEnv).
	DBPath string
	// LocaleOverridePath, if set, is a YAML file merged over the active
	// locale's built-in text/templates/lists (internal/locale.New's
	// overridePath argument).
	LocaleOverridePath string
	// PersonaSeedPath, if set, is a YAML file of personas to create on
	// first run (see LoadPersonaSeed); ignored if personas already exist.
	PersonaSeedPath string
	// SimManagerEmail/SimManagerHandle identify the simulation-manager
	// persona personas address out-of-band questions to.
	SimManagerEmail  string
	SimManagerHandle string
}

// Default returns the configuration with every default from spec.md §6 applied.
func Default() Configuration {
	return Configuration{
		HoursPerDay:             8,
		TickIntervalSeconds:     0,
		ContactCooldownTicks:    10,
		MaxHourlyPlansPerMinute: 10,
		MaxPlanningWorkers:      4,
		PlannerStrict:           false,
		AutoPauseOnProjectEnd:   true,
		Locale:                  "en",
		ExternalStakeholders:    nil,
		DBPath:                  "vdos.db",
		SimManagerEmail:         "sim-manager@vdos.local",
		SimManagerHandle:        "@sim-manager",
	}
}

// FromEnv reads Configuration from the process environment, falling back to
// Default() for any unset or unparsable value.
func FromEnv() Configuration {
	c := Default()

	if v, ok := lookupInt("HOURS_PER_DAY"); ok && v >= 1 {
		c.HoursPerDay = v
	}
	if v, ok := os.LookupEnv("TICK_INTERVAL_SECONDS"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 {
			c.TickIntervalSeconds = f
		}
	}
	if v, ok := lookupInt("CONTACT_COOLDOWN_TICKS"); ok && v >= 0 {
		c.ContactCooldownTicks = v
	}
	if v, ok := lookupInt("MAX_HOURLY_PLANS_PER_MINUTE"); ok && v >= 1 {
		c.MaxHourlyPlansPerMinute = v
	}
	if v, ok := lookupInt("MAX_PLANNING_WORKERS"); ok && v >= 1 {
		c.MaxPlanningWorkers = v
	}
	if v, ok := lookupBool("PLANNER_STRICT"); ok {
		c.PlannerStrict = v
	}
	if v, ok := lookupBool("AUTO_PAUSE_ON_PROJECT_END"); ok {
		c.AutoPauseOnProjectEnd = v
	}
	if v, ok := os.LookupEnv("LOCALE"); ok && v != "" {
		c.Locale = v
	}
	if v, ok := os.LookupEnv("EXTERNAL_STAKEHOLDERS"); ok && v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		c.ExternalStakeholders = out
	}
	if v, ok := os.LookupEnv("DB_PATH"); ok && v != "" {
		c.DBPath = v
	}
	if v, ok := os.LookupEnv("LOCALE_OVERRIDE_PATH"); ok && v != "" {
		c.LocaleOverridePath = v
	}
	if v, ok := os.LookupEnv("PERSONA_SEED_PATH"); ok && v != "" {
		c.PersonaSeedPath = v
	}
	if v, ok := os.LookupEnv("SIM_MANAGER_EMAIL"); ok && v != "" {
		c.SimManagerEmail = v
	}
	if v, ok := os.LookupEnv("SIM_MANAGER_HANDLE"); ok && v != "" {
		c.SimManagerHandle = v
	}

	return c
}

// TickInterval returns the configured auto-tick cadence as a time.Duration;
// zero means max speed (no sleep).
func (c Configuration) TickInterval() time.Duration {
	if c.TickIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TickIntervalSeconds * float64(time.Second))
}

func lookupInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupBool(name string) (bool, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	v = strings.TrimSpace(strings.ToLower(v))
	switch v {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off", "":
		return false, true
	default:
		return false, false
	}
}
