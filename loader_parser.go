package formflow

import (
	"context"
	"io/fs"

	"github.com/goliatone/go-formflow/pkg/loader"
	"github.com/goliatone/go-formflow/pkg/model"
	"github.com/goliatone/go-formflow/pkg/openapi"
)

// ParseTemplate decodes and checks a JSON or YAML template document.
func ParseTemplate(data []byte, source string) (model.FormTemplate, error) {
	return loader.Parse(data, source)
}

// LoadTemplates loads every template file in fsys.
func LoadTemplates(fsys fs.FS) ([]model.FormTemplate, error) {
	return loader.LoadFS(fsys)
}

// ImportOpenAPI converts the request body of an OpenAPI operation into a
// template.
func ImportOpenAPI(ctx context.Context, raw []byte, operationID string, opts ...openapi.Option) (model.FormTemplate, error) {
	return openapi.ImportTemplate(ctx, raw, operationID, opts...)
}
