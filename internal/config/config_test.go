package config

import (
	"testing"
	"time"
)

func TestDefaultConfiguration(t *testing.T) {
	c := Default()
	if c.HoursPerDay != 8 {
		t.Errorf("expected 8 hours per day, got %d", c.HoursPerDay)
	}
	if c.AutoPauseOnProjectEnd != true {
		t.Errorf("expected auto-pause on by default")
	}
	if c.DBPath != "vdos.db" {
		t.Errorf("expected default db path vdos.db, got %q", c.DBPath)
	}
	if c.SimManagerEmail == "" || c.SimManagerHandle == "" {
		t.Errorf("expected default sim-manager identity to be set")
	}
}

func TestFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("HOURS_PER_DAY", "6")
	t.Setenv("TICK_INTERVAL_SECONDS", "1.5")
	t.Setenv("CONTACT_COOLDOWN_TICKS", "5")
	t.Setenv("MAX_HOURLY_PLANS_PER_MINUTE", "20")
	t.Setenv("MAX_PLANNING_WORKERS", "2")
	t.Setenv("PLANNER_STRICT", "true")
	t.Setenv("AUTO_PAUSE_ON_PROJECT_END", "false")
	t.Setenv("LOCALE", "fr")
	t.Setenv("EXTERNAL_STAKEHOLDERS", "acme, globex ,initech")
	t.Setenv("DB_PATH", "/tmp/custom.db")
	t.Setenv("LOCALE_OVERRIDE_PATH", "/tmp/override.yaml")
	t.Setenv("PERSONA_SEED_PATH", "/tmp/personas.yaml")
	t.Setenv("SIM_MANAGER_EMAIL", "ops@example.com")
	t.Setenv("SIM_MANAGER_HANDLE", "@ops")

	c := FromEnv()
	if c.HoursPerDay != 6 {
		t.Errorf("expected HoursPerDay=6, got %d", c.HoursPerDay)
	}
	if c.TickIntervalSeconds != 1.5 {
		t.Errorf("expected TickIntervalSeconds=1.5, got %v", c.TickIntervalSeconds)
	}
	if c.ContactCooldownTicks != 5 {
		t.Errorf("expected ContactCooldownTicks=5, got %d", c.ContactCooldownTicks)
	}
	if c.MaxHourlyPlansPerMinute != 20 {
		t.Errorf("expected MaxHourlyPlansPerMinute=20, got %d", c.MaxHourlyPlansPerMinute)
	}
	if c.MaxPlanningWorkers != 2 {
		t.Errorf("expected MaxPlanningWorkers=2, got %d", c.MaxPlanningWorkers)
	}
	if !c.PlannerStrict {
		t.Errorf("expected PlannerStrict=true")
	}
	if c.AutoPauseOnProjectEnd {
		t.Errorf("expected AutoPauseOnProjectEnd=false")
	}
	if c.Locale != "fr" {
		t.Errorf("expected Locale=fr, got %q", c.Locale)
	}
	if len(c.ExternalStakeholders) != 3 || c.ExternalStakeholders[1] != "globex" {
		t.Errorf("unexpected ExternalStakeholders: %v", c.ExternalStakeholders)
	}
	if c.DBPath != "/tmp/custom.db" {
		t.Errorf("expected overridden DBPath, got %q", c.DBPath)
	}
	if c.LocaleOverridePath != "/tmp/override.yaml" {
		t.Errorf("expected overridden LocaleOverridePath, got %q", c.LocaleOverridePath)
	}
	if c.PersonaSeedPath != "/tmp/personas.yaml" {
		t.Errorf("expected overridden PersonaSeedPath, got %q", c.PersonaSeedPath)
	}
	if c.SimManagerEmail != "ops@example.com" || c.SimManagerHandle != "@ops" {
		t.Errorf("expected overridden sim-manager identity, got %q/%q", c.SimManagerEmail, c.SimManagerHandle)
	}
}

func TestFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("HOURS_PER_DAY", "not-a-number")
	t.Setenv("MAX_PLANNING_WORKERS", "0")
	t.Setenv("PLANNER_STRICT", "maybe")

	c := FromEnv()
	d := Default()
	if c.HoursPerDay != d.HoursPerDay {
		t.Errorf("expected invalid HOURS_PER_DAY to fall back to default, got %d", c.HoursPerDay)
	}
	if c.MaxPlanningWorkers != d.MaxPlanningWorkers {
		t.Errorf("expected zero MAX_PLANNING_WORKERS to fall back to default, got %d", c.MaxPlanningWorkers)
	}
	if c.PlannerStrict != d.PlannerStrict {
		t.Errorf("expected unparsable PLANNER_STRICT to fall back to default, got %v", c.PlannerStrict)
	}
}

func TestTickInterval(t *testing.T) {
	c := Configuration{TickIntervalSeconds: 0}
	if c.TickInterval() != 0 {
		t.Errorf("expected zero interval for zero seconds")
	}

	c = Configuration{TickIntervalSeconds: 2}
	if c.TickInterval() != 2*time.Second {
		t.Errorf("expected 2s interval, got %v", c.TickInterval())
	}
}
