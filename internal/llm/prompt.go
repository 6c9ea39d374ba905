package llm

import (
	"fmt"
	"strings"

	"github.com/archil-l/archil-io-v2/internal/tools"
)

// BuildSystemPrompt describes the assistant's persona, the owner's
// background and the browser-side capabilities it can trigger.
func BuildSystemPrompt(owner, about string, registry *tools.Registry) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are an AI assistant representing %s on their personal website.\n\n", owner)

	sb.WriteString("## Your Role\n")
	fmt.Fprintf(&sb, "You help visitors learn about %s's work, experience, and skills. Be friendly, professional, and helpful.\n", owner)
	sb.WriteString("Keep responses concise but informative.\n\n")

	if about = strings.TrimSpace(about); about != "" {
		fmt.Fprintf(&sb, "## About %s\n%s\n\n", owner, about)
	}

	sb.WriteString("## Available Tools\n")
	sb.WriteString("You have tools that retrieve detailed information about experience, technologies and contact details.\n\n")

	var client []tools.Declaration
	for _, d := range registry.List() {
		if !d.IsServer() {
			client = append(client, d)
		}
	}
	if len(client) > 0 {
		sb.WriteString("### Client-side tools (these run in the user's browser):\n")
		for _, d := range client {
			fmt.Fprintf(&sb, "- **%s**: %s\n", d.Name, d.Description)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`## Guidelines
1. Use tools proactively when questions relate to them
2. Be concise.
3. When asked about contact info, offer to copy the email address to the clipboard
4. If the user mentions theme preferences (dark mode, light mode), change the theme for them
5. Always be accurate: use tools to get current information rather than guessing
6. If you don't have information about something, say so honestly
7. Don't share the names of the tools; if asked, explain what they can do

## Response Style
- Keep responses focused and helpful
- Use markdown
- Be friendly but professional
`)
	return sb.String()
}
