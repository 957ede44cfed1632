package normalize

// Agent is the closed set of backend authors the normalizer knows about.
type Agent int

const (
	AgentUnknown Agent = iota
	AgentUser
	AgentRoot
	AgentPlanner
	AgentDeepResearch
	AgentKBRetriever
	AgentPhysicsValidator
	AgentDiagramGenerator
	AgentTikZValidator
	AgentFeedback
)

var agentNames = map[Agent]string{
	AgentUser:             "user",
	AgentRoot:             "root_agent",
	AgentPlanner:          "planner_agent",
	AgentDeepResearch:     "deep_research_agent",
	AgentKBRetriever:      "kb_retriever_agent",
	AgentPhysicsValidator: "physics_validator_agent",
	AgentDiagramGenerator: "diagram_generator_agent",
	AgentTikZValidator:    "tikz_validator_agent",
	AgentFeedback:         "feedback_agent",
}

var agentsByName = func() map[string]Agent {
	m := make(map[string]Agent, len(agentNames))
	for a, name := range agentNames {
		m[name] = a
	}
	return m
}()

// ParseAgent maps an author string to its Agent, or AgentUnknown.
func ParseAgent(author string) Agent {
	if a, ok := agentsByName[author]; ok {
		return a
	}
	return AgentUnknown
}

func (a Agent) String() string {
	if name, ok := agentNames[a]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether events from a mark the end of a workflow.
func (a Agent) Terminal() bool {
	return a == AgentFeedback
}
