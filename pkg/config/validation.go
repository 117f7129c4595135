package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Struct tag validation is declarative via go-playground/validator; rules
// that cannot be expressed in tags live in validateCustomRules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// The default plan must be defined
	if _, ok := cfg.Plans.Definitions[cfg.Plans.Default]; !ok {
		return fmt.Errorf("plans: default plan %q has no definition", cfg.Plans.Default)
	}

	// Every assignment must point at a defined plan
	for user, planID := range cfg.Plans.Assignments {
		if _, ok := cfg.Plans.Definitions[planID]; !ok {
			return fmt.Errorf("plans: user %q assigned to undefined plan %q", user, planID)
		}
	}

	// A badger store needs somewhere to put its files
	if cfg.Metadata.Type == "badger" {
		if path, _ := cfg.Metadata.Badger["path"].(string); path == "" {
			inMemory, _ := cfg.Metadata.Badger["in_memory"].(bool)
			if !inMemory {
				return fmt.Errorf("metadata: badger store requires a path")
			}
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
