package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "\n")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateConfig checks struct constraints and the requirements of the
// selected backends.
func ValidateConfig(cfg *Config) error {
	var errs ValidationErrors

	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{Field: fieldPath(fe), Message: describe(fe)})
		}
	}

	switch cfg.Index.Backend {
	case "postgres":
		if cfg.Database.Host == "" {
			errs = append(errs, ValidationError{Field: "database.host", Message: "is required for the postgres index"})
		}
		if cfg.Database.User == "" {
			errs = append(errs, ValidationError{Field: "database.user", Message: "is required for the postgres index"})
		}
		if cfg.Database.Name == "" {
			errs = append(errs, ValidationError{Field: "database.name", Message: "is required for the postgres index"})
		}
	case "sqlite":
		if cfg.Database.SQLitePath == "" {
			errs = append(errs, ValidationError{Field: "database.sqlite_path", Message: "is required for the sqlite index"})
		}
	}

	if cfg.Environment == Production && cfg.Embedding.Provider == "hashing" {
		errs = append(errs, ValidationError{Field: "embedding.provider", Message: "hashing embeddings are for development and tests only"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// fieldPath turns "Config.Embedding.APIKey" into "Embedding.APIKey".
func fieldPath(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if", "required_with":
		return fmt.Sprintf("is required (%s %s)", fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gt", "gte":
		return fmt.Sprintf("must be %s %s", map[string]string{"gt": ">", "gte": ">="}[fe.Tag()], fe.Param())
	case "ltefield":
		return fmt.Sprintf("must not exceed %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "numeric":
		return "must be numeric"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
