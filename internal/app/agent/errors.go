package agent

import "errors"

var (
	ErrAgentNotFound = errors.New("agent_not_found")
	ErrAgentExists   = errors.New("agent_exists")
)
