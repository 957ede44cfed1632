package normalize

import (
	"fmt"
	"strings"

	"github.com/user/feynwatch/pkg/adk"
)

const plannerDetailLimit = 200

type rule struct {
	title  string
	data   string
	detail func(ev *adk.Event) string
}

// agentRules covers every specialist agent. Root, user and unknown authors
// have no entry and are handled (or dropped) by Polled.
var agentRules = map[Agent]rule{
	AgentPlanner: {
		title:  "Planning Request",
		data:   "Analyzing request and creating execution plan",
		detail: plannerDetail,
	},
	AgentDeepResearch: {
		title:  "Deep Research",
		data:   "Performing comprehensive research on physics topic",
		detail: researchDetail,
	},
	AgentKBRetriever: {
		title: "Knowledge Base Search",
		data:  "Searching for similar Feynman diagram examples",
	},
	AgentPhysicsValidator: {
		title: "Physics Validation",
		data:  "Validating particle interactions and physics rules",
	},
	AgentDiagramGenerator: {
		title: "Diagram Generation",
		data:  "Generating TikZ-Feynman LaTeX code",
	},
	AgentTikZValidator: {
		title: "LaTeX Compilation",
		data:  "Compiling and validating TikZ code",
	},
	AgentFeedback: {
		title: "Final Response",
		data:  "Preparing Feynman diagram output",
	},
}

func plannerDetail(ev *adk.Event) string {
	text := []rune(TextOf(ev.Parts(), false))
	if len(text) <= plannerDetailLimit {
		return string(text)
	}
	return string(text[:plannerDetailLimit]) + "..."
}

func researchDetail(ev *adk.Event) string {
	for _, p := range ev.Parts() {
		if p.FunctionCall == nil {
			continue
		}
		if topic, ok := p.FunctionCall.Args["topic"].(string); ok && topic != "" {
			return "Researching: " + topic
		}
		return "Researching: Unknown topic"
	}
	return ""
}

// stepTitles maps the suffix of a step.* push type to the canonical stage
// title, so pushed and polled events land in the same group.
var stepTitles = map[string]string{
	"planning":    "Planning",
	"plan":        "Planning",
	"transfer":    "Agent Transfer",
	"research":    "Deep Research",
	"search":      "Knowledge Base Search",
	"retrieval":   "Knowledge Base Search",
	"validation":  "Physics Validation",
	"generation":  "Diagram Generation",
	"compilation": "LaTeX Compilation",
	"response":    "Final Response",
	"feedback":    "Final Response",
}

// TextOf concatenates the text parts. When excludeFunctionParts is set, a
// part that carries a function call or response contributes nothing even if
// it also has text.
func TextOf(parts []adk.Part, excludeFunctionParts bool) string {
	var b strings.Builder
	for _, p := range parts {
		if excludeFunctionParts && (p.FunctionCall != nil || p.FunctionResponse != nil) {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func transferData(target string) string {
	return fmt.Sprintf("Transferring to %s", target)
}
