package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AgentRole selects the behavioral preamble used to build the system prompt.
// The set is closed; unknown role codes are rejected at request time.
type AgentRole string

const (
	RoleCoordinator AgentRole = "coordinator"
	RoleResearcher  AgentRole = "researcher"
	RoleExecutor    AgentRole = "executor"
	RoleReviewer    AgentRole = "reviewer"
	RoleToolCaller  AgentRole = "tool_caller"
)

type roleInfo struct {
	name        string
	description string
}

var roleCatalog = map[AgentRole]roleInfo{
	RoleCoordinator: {
		name:        "Coordinator",
		description: "Responsible for task decomposition, planning and coordinating other agents.",
	},
	RoleResearcher: {
		name:        "Researcher",
		description: "Responsible for information retrieval, data analysis and knowledge gathering.",
	},
	RoleExecutor: {
		name:        "Executor",
		description: "Responsible for carrying out concrete tasks and operations.",
	},
	RoleReviewer: {
		name:        "Reviewer",
		description: "Responsible for result verification, quality checks and feedback.",
	},
	RoleToolCaller: {
		name:        "Tool Caller",
		description: "Responsible for invoking external tools and APIs.",
	},
}

// Valid reports whether r is a known role.
func (r AgentRole) Valid() bool {
	_, ok := roleCatalog[r]
	return ok
}

// DisplayName returns the human-readable role name.
func (r AgentRole) DisplayName() string {
	return roleCatalog[r].name
}

// Description returns the behavioral description used in prompts.
func (r AgentRole) Description() string {
	return roleCatalog[r].description
}

func (r AgentRole) String() string {
	return string(r)
}

// ParseRole resolves a role code, case-insensitively.
func ParseRole(code string) (AgentRole, error) {
	role := AgentRole(strings.ToLower(strings.TrimSpace(code)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown agent role: %q", code)
	}
	return role, nil
}

// UnmarshalJSON accepts role codes in any letter case.
func (r *AgentRole) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}
	role, err := ParseRole(code)
	if err != nil {
		return err
	}
	*r = role
	return nil
}
