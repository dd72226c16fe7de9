package config

import (
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// The temp and store roots must not contain one another: the temp root
	// is wiped at startup and recovery walks the whole store root.
	temp, st := cfg.Store.TempPath(), cfg.Store.StorePath()
	if nested(temp, st) || nested(st, temp) {
		return fmt.Errorf("store: temp_dir %q and store_dir %q must not overlap", temp, st)
	}

	// Registry root names must be unique and must not shadow the built-in ones
	names := map[string]bool{RootTemp: true, RootStore: true}
	for i, root := range cfg.Registry.Roots {
		if names[root.Name] {
			return fmt.Errorf("registry.roots[%d]: duplicate root name %q", i, root.Name)
		}
		names[root.Name] = true
	}

	if cfg.Forwarder.Enabled {
		switch cfg.Forwarder.Sink.Type {
		case "filesystem":
			path, _ := cfg.Forwarder.Sink.Filesystem["path"].(string)
			if path == "" {
				return fmt.Errorf("forwarder.sink.filesystem: path is required")
			}
			if nested(st, path) || nested(path, st) {
				return fmt.Errorf("forwarder.sink.filesystem: path %q must not overlap the store root", path)
			}
		case "s3":
			if bucket, _ := cfg.Forwarder.Sink.S3["bucket"].(string); bucket == "" {
				return fmt.Errorf("forwarder.sink.s3: bucket is required")
			}
		}

		if cfg.Forwarder.Burst > 0 && cfg.Forwarder.RateLimit == 0 {
			return fmt.Errorf("forwarder: burst requires rate_limit")
		}
	}

	return nil
}

// nested reports whether child is parent or lies below it.
func nested(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !filepath.IsAbs(rel) && !startsWithParent(rel))
}

func startsWithParent(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
