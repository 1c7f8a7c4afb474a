package config

import (
	"errors"
	"fmt"

	"github.com/flemzord/guildbot/internal/core"
)

// requiredModules must be present in every configuration: the bridge is
// useless without a bot to receive updates or a backend to ask for access.
var requiredModules = []string{"backend.guild", "bot.telegram"}

// Validate checks the structural validity of a Config.
// It verifies the version field, that every referenced module ID exists in
// the registry, and that the required modules are configured. Module
// specific settings are validated by the modules themselves.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	for _, id := range requiredModules {
		if _, ok := cfg.Modules[id]; !ok && len(cfg.Modules) > 0 {
			errs = append(errs, fmt.Errorf("config: module %q is required", id))
		}
	}

	return errors.Join(errs...)
}
