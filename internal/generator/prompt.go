package generator

import (
	"fmt"
	"strings"

	"github.com/caseforge/engine/internal/models"
)

const systemPrompt = "You are a senior QA engineer. You write precise, complete test cases in Markdown."

// BuildPrompt assembles the user prompt for an issue. Manual mode asks for
// step-by-step manual test cases; auto mode asks for an automation-ready
// outline with selectors and assertions.
func BuildPrompt(issue *Issue, mode models.GenerationMode) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate QA test cases for the following JIRA issue.\n\n")
	fmt.Fprintf(&b, "Issue: %s\n", issue.Key)
	fmt.Fprintf(&b, "Title: %s\n\n", issue.Title)

	desc := strings.TrimSpace(issue.Description)
	if desc == "" {
		desc = "(no description provided)"
	}
	fmt.Fprintf(&b, "Description:\n%s\n\n", desc)

	if issue.AttachmentCount > 0 {
		fmt.Fprintf(&b, "The issue has %d attachment(s) that are not included here; note any test cases that depend on attached specifications.\n\n", issue.AttachmentCount)
	}

	switch mode {
	case models.ModeAuto:
		b.WriteString("Produce an automation-ready test suite outline: for each test case include an identifier, preconditions, the automated steps with element selectors or API calls where applicable, and explicit assertions.")
	default:
		b.WriteString("Produce manual test cases: for each test case include an identifier, a title, preconditions, numbered steps, and the expected result. Cover positive, negative, and edge cases.")
	}

	return b.String()
}
