package domain

import "time"

// Turn is one agent response appended to the discussion.
type Turn struct {
	ID         string    `json:"id"`
	ExpertName string    `json:"expertName"`
	UserInput  string    `json:"userInput,omitempty"`
	Response   string    `json:"response"`
	CreatedAt  time.Time `json:"createdAt"`
}

// AgentEvent is an audit entry for a change to the agent files.
type AgentEvent struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"` // "saved" | "deleted"
	ExpertName string    `json:"expertName"`
	CreatedAt  time.Time `json:"createdAt"`
}
