package agentcmd

import "strings"

// composePrompt assembles the text handed to the agent CLI for one phase.
// The actual wording of each section is an external-collaborator concern
// (the spec calls these "text templates supplied by an external
// collaborator"); this only fixes the section structure every provider
// builder can rely on being present.
func composePrompt(phase Phase, taskDescription, priorOutput string, screenshots []string) string {
	var b strings.Builder

	switch phase {
	case PhaseExploration:
		b.WriteString("Explore this project to understand how to accomplish the following task. ")
		b.WriteString("Do not modify any files yet.\n\n")
	case PhaseVerification:
		b.WriteString("Verify the following task was completed correctly. ")
		b.WriteString("DO NOT modify or create any files.\n\n")
	case PhaseRevision:
		b.WriteString("Address the issues below and revise the change.\n\n")
	case PhaseContinuation:
		b.WriteString("Continue the task below; summarize the change when finished.\n\n")
	default:
		b.WriteString("Complete the following task.\n\n")
	}

	b.WriteString("Task:\n")
	b.WriteString(taskDescription)
	b.WriteString("\n")

	if priorOutput != "" {
		b.WriteString("\nPrior output:\n")
		b.WriteString(priorOutput)
		b.WriteString("\n")
	}

	for _, s := range screenshots {
		b.WriteString("\nScreenshot: ")
		b.WriteString(s)
	}

	return b.String()
}
