package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config for:
//   - Required fields and value ranges (struct tags)
//   - Duplicate block IDs
//   - Dependencies on blocks the file does not declare
//   - Producer names missing from knownProducers (skipped when it is nil)
//
// Cycles are reported when the schema is built.
func Validate(cfg *ProductConfig, knownProducers []string) error {
	var errs []string

	if err := structValidate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}

	known := make(map[string]struct{}, len(knownProducers))
	for _, name := range knownProducers {
		known[name] = struct{}{}
	}

	ids := make(map[string]int) // id → index
	for i, b := range cfg.Blocks {
		if b.ID == "" {
			continue
		}
		if prev, ok := ids[b.ID]; ok {
			errs = append(errs, fmt.Sprintf("duplicate id %q (first seen at blocks[%d], again at blocks[%d])", b.ID, prev, i))
			continue
		}
		ids[b.ID] = i
	}

	for _, b := range cfg.Blocks {
		if b.ID == "" {
			continue
		}
		for _, dep := range b.DependsOn {
			if dep == b.ID {
				errs = append(errs, fmt.Sprintf("block %s: depends on itself", b.ID))
				continue
			}
			if _, ok := ids[dep]; !ok {
				errs = append(errs, fmt.Sprintf("block %s: depends on undeclared block %q", b.ID, dep))
			}
		}
		if knownProducers == nil {
			continue
		}
		for _, p := range b.Producers {
			if _, ok := known[p]; !ok {
				errs = append(errs, fmt.Sprintf("block %s: unknown producer %q", b.ID, p))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
