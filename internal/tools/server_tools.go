package tools

import (
	"context"
	"encoding/json"
	"strings"
)

// ExperienceInput filters the experience document.
type ExperienceInput struct {
	Query string `json:"query,omitempty" jsonschema_description:"Optional search term to filter experience"`
}

// TechnologiesInput selects a section of the technologies document.
type TechnologiesInput struct {
	Category string `json:"category,omitempty" jsonschema:"enum=frontend,enum=backend,enum=database,enum=devops,enum=other,enum=all" jsonschema_description:"Technology category to return"`
}

// ContactInfoTool returns the contact document.
func ContactInfoTool(k *Knowledge) Declaration {
	return Declaration{
		Name:        "getContactInfo",
		Description: "Get contact information including email, social links, and website. Use this when the user asks how to contact, reach out, or connect.",
		InputSchema: SchemaFor[NoInput](),
		Executor: ExecutorFunc(func(context.Context, json.RawMessage) (any, error) {
			return k.Read(DocContact), nil
		}),
	}
}

// ExperienceTool returns work history, optionally filtered by a query.
func ExperienceTool(k *Knowledge) Declaration {
	return Declaration{
		Name:        "getExperience",
		Description: "Get work experience history with roles, companies, and descriptions. Use this when the user asks about work history, past jobs, or career.",
		InputSchema: SchemaFor[ExperienceInput](),
		Executor: Typed(func(_ context.Context, in ExperienceInput) (any, error) {
			return filterLines(k.Read(DocExperience), in.Query), nil
		}),
	}
}

// TechnologiesTool returns the technology stack, optionally one category.
func TechnologiesTool(k *Knowledge) Declaration {
	return Declaration{
		Name:        "getTechnologies",
		Description: "Get the technologies, languages and tools used, grouped by category. Use this when the user asks about skills or the tech stack.",
		InputSchema: SchemaFor[TechnologiesInput](),
		Executor: Typed(func(_ context.Context, in TechnologiesInput) (any, error) {
			return section(k.Read(DocTechnologies), in.Category), nil
		}),
	}
}

// filterLines keeps lines containing query, case-insensitively. The whole
// document is returned when the query is empty or matches nothing.
func filterLines(content, query string) string {
	if query == "" {
		return content
	}

	needle := strings.ToLower(query)
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		return content
	}
	return strings.Join(kept, "\n")
}

// section returns the "## <name>" section of content, heading included, up
// to the next "##" line. The whole document is returned otherwise.
func section(content, name string) string {
	if name == "" || strings.EqualFold(name, "all") {
		return content
	}

	heading := "## " + strings.ToLower(name)
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.ToLower(strings.TrimSpace(line)) != heading {
			continue
		}
		end := len(lines)
		for j := i + 1; j < len(lines); j++ {
			if strings.HasPrefix(strings.TrimSpace(lines[j]), "##") {
				end = j
				break
			}
		}
		return strings.TrimRight(strings.Join(lines[i:end], "\n"), "\n ")
	}
	return content
}
