package formflow

import (
	"embed"
	"io/fs"

	"github.com/goliatone/go-formflow/pkg/model"
)

//go:embed templates/*.json templates/*.yaml
var embeddedTemplates embed.FS

// ExampleTemplates exposes the bundled sample templates (employment intake,
// customer feedback) so callers and the CLI can try the runtime without
// authoring a schema first.
func ExampleTemplates() fs.FS {
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		return embeddedTemplates
	}
	return sub
}

// LoadExampleTemplates parses every bundled template.
func LoadExampleTemplates() ([]model.FormTemplate, error) {
	return LoadTemplates(ExampleTemplates())
}
