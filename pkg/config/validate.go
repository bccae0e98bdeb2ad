package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
)

// Validate checks the configuration against its struct tags plus a few
// cross-field rules the tags cannot express. All failures are collected
// and reported together.
func Validate(cfg *Config) error {
	validate := validator.New()

	var result *multierror.Error

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				result = multierror.Append(result, formatFieldError(fieldErr))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		result = multierror.Append(result,
			fmt.Errorf("metrics port %d conflicts with server port", cfg.Metrics.Port))
	}

	return result.ErrorOrNil()
}

// formatFieldError produces a readable message that keeps the failed tag
// name visible, e.g. "logging.level: failed 'oneof' validation".
func formatFieldError(fieldErr validator.FieldError) error {
	field := strings.ToLower(strings.TrimPrefix(fieldErr.Namespace(), "Config."))
	if fieldErr.Param() != "" {
		return fmt.Errorf("%s: failed '%s=%s' validation (value: %v)",
			field, fieldErr.Tag(), fieldErr.Param(), fieldErr.Value())
	}
	return fmt.Errorf("%s: failed '%s' validation (value: %v)",
		field, fieldErr.Tag(), fieldErr.Value())
}
