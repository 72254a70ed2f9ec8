// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validateInst *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validateInst = validator.New(validator.WithRequiredStructEnabled())
	})
	return validateInst
}

// ValidationError collects every struct-tag failure found in a Config,
// reported together rather than failing on the first one.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Fields, "; "))
}

// Validate checks cfg against its struct tags (go-playground/validator)
// plus the handful of cross-field rules validator tags cannot express.
func Validate(cfg *Config) error {
	var fields []string

	if err := getValidator().Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
		} else {
			fields = append(fields, err.Error())
		}
	}

	if cfg.PageIntervalLow > cfg.PageIntervalHigh {
		fields = append(fields, "PageInterval: low bound must not exceed high bound")
	}
	if !cfg.MinPubDate.IsZero() && !cfg.MaxPubDate.IsZero() && cfg.MinPubDate.After(cfg.MaxPubDate) {
		fields = append(fields, "PubDate: min_pubdate must not be after max_pubdate")
	}
	for _, kw := range cfg.KeywordFilters {
		if strings.TrimSpace(kw) == "" {
			fields = append(fields, "KeywordFilters: entries must not be blank")
			break
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
