package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/archil-l/archil-io-v2/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Declaration {
	return Declaration{
		Name:        name,
		Description: "echoes its input",
		Executor: ExecutorFunc(func(_ context.Context, input json.RawMessage) (any, error) {
			return input, nil
		}),
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(echoTool("a"), echoTool("b"), echoTool("a"))
	assert.ErrorIs(t, err, ErrDuplicateTool)

	_, err = NewRegistry(Declaration{})
	assert.Error(t, err)
}

func TestRegistryKeepsOrder(t *testing.T) {
	r, err := NewRegistry(echoTool("c"), SetThemeTool(), echoTool("a"))
	require.NoError(t, err)

	var names []string
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"c", "setTheme", "a"}, names)

	decl, ok := r.Lookup("setTheme")
	require.True(t, ok)
	assert.False(t, decl.IsServer())

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestManifestHidesExecutor(t *testing.T) {
	r, err := NewRegistry(echoTool("echo"))
	require.NoError(t, err)

	data, err := json.Marshal(r.Manifest())
	require.NoError(t, err)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 1)

	keys := make([]string, 0)
	for k := range entries[0] {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"name", "description", "input_schema"}, keys)
	assert.Equal(t, "object", entries[0]["input_schema"].(map[string]any)["type"])
}

func TestExecute(t *testing.T) {
	failing := Declaration{
		Name: "failing",
		Executor: ExecutorFunc(func(context.Context, json.RawMessage) (any, error) {
			return nil, errors.New("backend down")
		}),
	}
	panicking := Declaration{
		Name: "panicking",
		Executor: ExecutorFunc(func(context.Context, json.RawMessage) (any, error) {
			panic("boom")
		}),
	}
	structured := Declaration{
		Name: "structured",
		Executor: ExecutorFunc(func(context.Context, json.RawMessage) (any, error) {
			return map[string]int{"count": 3}, nil
		}),
	}
	r, err := NewRegistry(echoTool("echo"), failing, panicking, structured, CopyToClipboardTool())
	require.NoError(t, err)

	ctx := context.Background()

	res := r.Execute(ctx, "echo", json.RawMessage(`{"x":1}`))
	assert.False(t, res.IsError)
	assert.Equal(t, `{"x":1}`, res.Output)

	res = r.Execute(ctx, "structured", nil)
	assert.JSONEq(t, `{"count":3}`, res.Output)

	res = r.Execute(ctx, "failing", nil)
	assert.True(t, res.IsError)
	assert.JSONEq(t, `{"error":"backend down"}`, res.Output)

	res = r.Execute(ctx, "panicking", nil)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Output, "boom")

	res = r.Execute(ctx, "nope", nil)
	assert.True(t, res.IsError)
	assert.ErrorIs(t, res.Err, ErrUnknownTool)
	assert.JSONEq(t, `{"error":"unknown tool: nope"}`, res.Output)

	assert.Panics(t, func() { r.Execute(ctx, "copyToClipboard", json.RawMessage(`{"text":"x"}`)) })
}

func TestTypedRejectsBadInput(t *testing.T) {
	exec := Typed(func(_ context.Context, in ExperienceInput) (any, error) {
		return in.Query, nil
	})

	out, err := exec.Execute(context.Background(), json.RawMessage(`{"query":"go"}`))
	require.NoError(t, err)
	assert.Equal(t, "go", out)

	out, err = exec.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "", out)

	_, err = exec.Execute(context.Background(), json.RawMessage(`{"query":7}`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSchemaFor(t *testing.T) {
	schema := SchemaFor[TechnologiesInput]()
	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "$schema")

	props := schema["properties"].(map[string]any)
	category := props["category"].(map[string]any)
	assert.Equal(t, []any{"frontend", "backend", "database", "devops", "other", "all"}, category["enum"])
	assert.NotContains(t, schema, "required")

	clip := SchemaFor[CopyToClipboardInput]()
	assert.Equal(t, []any{"text"}, clip["required"])

	for _, empty := range []Schema{SchemaFor[NoInput](), SchemaFor[struct{}]()} {
		assert.Equal(t, "object", empty["type"])
		assert.Equal(t, map[string]any{}, empty["properties"])
	}
}

func TestDefaultWithoutDocs(t *testing.T) {
	var r *Registry
	require.NotPanics(t, func() { r = Default(NewKnowledge("", logging.Discard())) })

	names := make([]string, 0)
	for _, entry := range r.Manifest() {
		names = append(names, entry.Name)
		assert.Equal(t, "object", entry.InputSchema["type"], entry.Name)
	}
	assert.Contains(t, names, "getContactInfo")
	assert.Contains(t, names, "checkTheme")
}

func testKnowledge() *Knowledge {
	return NewKnowledgeFS(fstest.MapFS{
		DocContact:      {Data: []byte("Email: me@example.com")},
		DocExperience:   {Data: []byte("## Acme\n- Built Go services\n- Wrote React apps\n## Initech\n- Maintained GO tooling")},
		DocTechnologies: {Data: []byte("# Tech\n\n## frontend\n- React\n\n## Backend\n- Go\n### Libraries\n- cobra\n")},
	}, logging.Discard())
}

func TestDefaultServerTools(t *testing.T) {
	r := Default(testKnowledge())
	ctx := context.Background()

	assert.Equal(t, "Email: me@example.com", r.Execute(ctx, "getContactInfo", json.RawMessage(`{}`)).Output)

	res := r.Execute(ctx, "getExperience", json.RawMessage(`{"query":"go"}`))
	assert.Equal(t, "- Built Go services\n- Maintained GO tooling", res.Output)

	res = r.Execute(ctx, "getExperience", json.RawMessage(`{"query":"cobol"}`))
	assert.Contains(t, res.Output, "## Initech")

	res = r.Execute(ctx, "getTechnologies", json.RawMessage(`{"category":"frontend"}`))
	assert.Equal(t, "## frontend\n- React", res.Output)

	res = r.Execute(ctx, "getTechnologies", json.RawMessage(`{"category":"backend"}`))
	assert.Equal(t, "## Backend\n- Go", res.Output)

	res = r.Execute(ctx, "getTechnologies", json.RawMessage(`{"category":"all"}`))
	assert.Contains(t, res.Output, "# Tech")

	res = r.Execute(ctx, "getTechnologies", json.RawMessage(`{"category":"database"}`))
	assert.Contains(t, res.Output, "# Tech")
}

func TestMissingKnowledgeDocument(t *testing.T) {
	k := NewKnowledgeFS(fstest.MapFS{}, logging.Discard())
	assert.Equal(t, "", k.Read(DocAbout))
}

func TestEmbeddedKnowledge(t *testing.T) {
	k := NewKnowledge("", logging.Discard())
	for _, doc := range []string{DocAbout, DocContact, DocExperience, DocTechnologies} {
		assert.NotEmpty(t, k.Read(doc), doc)
	}
}
