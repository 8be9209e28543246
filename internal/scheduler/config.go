package scheduler

import (
	"time"

	"github.com/smallbiznis/sheetseries/internal/config"
)

// Config controls scheduler intervals and job inputs.
type Config struct {
	RunInterval   time.Duration
	JobTimeout    time.Duration
	EnabledJobs   []string
	SubjectHint   string
	LookbackHours int

	RetentionEnabled bool
	RetentionCron    string
	RetentionMonths  int
	Timezone         string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     2 * time.Minute,
		JobTimeout:      5 * time.Minute,
		LookbackHours:   240,
		RetentionCron:   "0 3 * * *",
		RetentionMonths: 6,
		Timezone:        "UTC",
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LookbackHours <= 0 {
		c.LookbackHours = defaults.LookbackHours
	}
	if c.RetentionCron == "" {
		c.RetentionCron = defaults.RetentionCron
	}
	if c.RetentionMonths <= 0 {
		c.RetentionMonths = defaults.RetentionMonths
	}
	if c.Timezone == "" {
		c.Timezone = defaults.Timezone
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	sc := cfg.Scheduler
	return Config{
		RunInterval:      sc.RunInterval,
		EnabledJobs:      sc.EnabledJobs,
		SubjectHint:      sc.SubjectHint,
		LookbackHours:    sc.LookbackHours,
		RetentionEnabled: sc.RetentionEnabled,
		RetentionCron:    sc.RetentionCron,
		RetentionMonths:  sc.RetentionMonths,
		Timezone:         sc.Timezone,
	}.withDefaults()
}
