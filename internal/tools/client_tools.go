package tools

// SetThemeInput selects the site theme.
type SetThemeInput struct {
	Theme string `json:"theme" jsonschema:"enum=light,enum=dark,enum=toggle" jsonschema_description:"Theme to apply; toggle flips the current one"`
}

// CopyToClipboardInput is the text to place on the visitor's clipboard.
type CopyToClipboardInput struct {
	Text  string `json:"text" jsonschema_description:"Text to copy"`
	Label string `json:"label,omitempty" jsonschema_description:"Short label shown to the user, such as Email"`
}

// SetThemeTool switches the page between light and dark mode in the browser.
func SetThemeTool() Declaration {
	return Declaration{
		Name:        "setTheme",
		Description: "Switch the website theme between light and dark mode. Call this when the user asks to change the theme, switch appearance, or toggle between modes.",
		InputSchema: SchemaFor[SetThemeInput](),
	}
}

// CheckThemeTool reads the current theme in the browser.
func CheckThemeTool() Declaration {
	return Declaration{
		Name:        "checkTheme",
		Description: "Check the current website theme (light or dark mode). Call this when the user asks what the current theme or color scheme is.",
		InputSchema: SchemaFor[NoInput](),
	}
}

// CopyToClipboardTool copies text in the browser.
func CopyToClipboardTool() Declaration {
	return Declaration{
		Name:        "copyToClipboard",
		Description: "Copy text, such as an email address, to the user's clipboard.",
		InputSchema: SchemaFor[CopyToClipboardInput](),
	}
}

// Default returns the registry served by the relay.
func Default(k *Knowledge) *Registry {
	registry, err := NewRegistry(
		ContactInfoTool(k),
		ExperienceTool(k),
		TechnologiesTool(k),
		SetThemeTool(),
		CheckThemeTool(),
		CopyToClipboardTool(),
	)
	if err != nil {
		panic(err)
	}
	return registry
}
