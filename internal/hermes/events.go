package hermes

type DelegationQueuedEvent struct {
	DelegationID string `json:"delegation_id"`
	AgentType    string `json:"agent_type"`
	Priority     string `json:"priority"`
}

type DelegationStartedEvent struct {
	DelegationID string `json:"delegation_id"`
	AgentType    string `json:"agent_type"`
	Score        int    `json:"score"`
	Bracket      string `json:"bracket"`
	TemplateTier string `json:"template_tier"`
	ResourceTier string `json:"resource_tier"`
	PromptLength int    `json:"prompt_length"`
	TicketID     string `json:"ticket_id,omitempty"`
}

type DelegationRetriedEvent struct {
	DelegationID string `json:"delegation_id"`
	AgentType    string `json:"agent_type"`
	FromTier     string `json:"from_tier"`
	ToTier       string `json:"to_tier"`
	Error        string `json:"error"`
}

type DelegationCompletedEvent struct {
	DelegationID    string  `json:"delegation_id"`
	AgentType       string  `json:"agent_type"`
	DurationSeconds float64 `json:"duration_seconds"`
	Retried         bool    `json:"retried"`
}

type DelegationFailedEvent struct {
	DelegationID string `json:"delegation_id"`
	AgentType    string `json:"agent_type"`
	Error        string `json:"error"`
}

type TicketOpenedEvent struct {
	TicketID  string `json:"ticket_id"`
	Title     string `json:"title"`
	Priority  string `json:"priority"`
	AgentType string `json:"agent_type,omitempty"`
	Auto      bool   `json:"auto"`
}

type TicketTransitionedEvent struct {
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
	Agent    string `json:"agent,omitempty"`
}

type ViolationRecordedEvent struct {
	ViolationID  string `json:"violation_id"`
	AgentType    string `json:"agent_type"`
	FileCategory string `json:"file_category,omitempty"`
	Severity     string `json:"severity"`
	Reason       string `json:"reason,omitempty"`
}
