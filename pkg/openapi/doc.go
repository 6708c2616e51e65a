// Package openapi builds form templates from the request body schema of an
// OpenAPI 3 operation. Documents are parsed with kin-openapi; callers only see
// model types.
package openapi
