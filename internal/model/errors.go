package model

import (
	"fmt"
	"strings"
)

// ConfigError reports that a source cannot run because required settings
// are missing. It is raised at fetch time, before any network call.
type ConfigError struct {
	Source  SourceKind
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s not configured (missing %s)", e.Source, strings.Join(e.Missing, ", "))
}

// NotAuthorizedError reports that no stored credential exists for the
// account a source needs.
type NotAuthorizedError struct {
	Source  SourceKind
	Account string
}

func (e *NotAuthorizedError) Error() string {
	if e.Account == "" {
		return fmt.Sprintf("%s: account not authorized", e.Source)
	}
	return fmt.Sprintf("%s: %s not authorized", e.Source, e.Account)
}
