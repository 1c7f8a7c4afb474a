package sqlite

import (
	"errors"
	"fmt"
	"time"

	robfig "github.com/robfig/cron/v3"
)

const defaultFile = "audit.db"

// Config configures the decision log.
type Config struct {
	// Path of the database file. Relative paths resolve against the data
	// directory.
	Path string `yaml:"path"`
	// Retention is how long decisions are kept. Zero keeps them forever.
	Retention     time.Duration `yaml:"retention"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

func (c *Config) defaults() {
	if c.Path == "" {
		c.Path = defaultFile
	}
	if c.Retention == 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = "0 * * * *"
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Retention < 0 {
		errs = append(errs, errors.New("audit: retention must not be negative"))
	}
	parser := robfig.NewParser(robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow)
	if _, err := parser.Parse(c.PruneSchedule); err != nil {
		errs = append(errs, fmt.Errorf("audit: invalid prune_schedule %q: %w", c.PruneSchedule, err))
	}
	return errors.Join(errs...)
}
