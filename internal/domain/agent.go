// Package domain holds the value types shared across agentdesk packages.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyName is returned when an agent record has no expert name.
var ErrEmptyName = errors.New("expert name must not be empty")

// ErrInvalidName is returned for expert names that cannot be used as a
// file stem inside the agents directory.
var ErrInvalidName = errors.New("invalid expert name")

// AgentRecord is a named persona used to build role-play prompts.
// Its JSON form is the on-disk agent file format.
type AgentRecord struct {
	ExpertName  string `json:"expertName"`
	Description string `json:"description"`
}

// Validate reports whether the record can be persisted.
func (a AgentRecord) Validate() error {
	return ValidateExpertName(a.ExpertName)
}

// ValidateExpertName rejects names that are empty or would leave the agents
// directory when used as a file stem: path separators, NUL bytes and the
// "." and ".." entries.
func ValidateExpertName(name string) error {
	switch {
	case name == "":
		return ErrEmptyName
	case strings.ContainsAny(name, "/\\\x00"), name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
