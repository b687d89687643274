package domain

import (
	"fmt"
	"slices"
)

// Capability identifies the function an agent serves.
type Capability string

const (
	CapabilityUIGen        Capability = "ui-gen"
	CapabilityErrorFlag    Capability = "error-flag"
	CapabilityPromptRefine Capability = "prompt-refine"
	CapabilityCodeFix      Capability = "code-fix"
)

var allCapabilities = []Capability{
	CapabilityPromptRefine,
	CapabilityUIGen,
	CapabilityErrorFlag,
	CapabilityCodeFix,
}

// Capabilities returns every supported capability in workflow order.
func Capabilities() []Capability {
	return slices.Clone(allCapabilities)
}

// Valid reports whether c is one of the supported capabilities.
func (c Capability) Valid() bool {
	return slices.Contains(allCapabilities, c)
}

// ParseCapability converts a string to a Capability.
func ParseCapability(s string) (Capability, error) {
	c := Capability(s)
	if !c.Valid() {
		return "", fmt.Errorf("capability %q: %w", s, ErrInvalidInput)
	}
	return c, nil
}

// AgentState is the operational status recorded on a descriptor.
type AgentState string

const (
	AgentActive   AgentState = "active"
	AgentInactive AgentState = "inactive"
	AgentError    AgentState = "error"
)

// Valid reports whether s is a known agent state.
func (s AgentState) Valid() bool {
	switch s {
	case AgentActive, AgentInactive, AgentError:
		return true
	}
	return false
}

// AgentDescriptor describes the HTTP agent serving one capability.
type AgentDescriptor struct {
	ID          string     `json:"id"           yaml:"id"`
	DisplayName string     `json:"name"         yaml:"name"`
	Capability  Capability `json:"capability"   yaml:"capability"`
	Endpoint    string     `json:"endpoint"     yaml:"endpoint"`
	Status      AgentState `json:"status"       yaml:"status"`
}
