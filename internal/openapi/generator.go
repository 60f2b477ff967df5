package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/agora-social/agora-admin/internal/model"
	"github.com/agora-social/agora-admin/internal/rbac"
)

// Options controls document generation.
type Options struct {
	BaseURL    string
	Version    string
	CookieName string
}

// Route describes one admin endpoint for documentation purposes. Required
// lists the permissions the guard enforces; Public routes skip the guard.
type Route struct {
	Method      string
	Path        string
	OperationID string
	Summary     string
	Tag         string
	Public      bool
	Required    []rbac.Permission
	Request     string // component schema name, or ""
	Response    string // component schema name
}

// Routes lists the admin API served under /api/v1/admin.
func Routes() []Route {
	return []Route{
		{Method: "POST", Path: "/api/v1/admin/session", OperationID: "login", Summary: "Log in",
			Tag: "session", Public: true, Request: "LoginRequest", Response: "LoginResponse"},
		{Method: "DELETE", Path: "/api/v1/admin/session", OperationID: "logout", Summary: "Log out",
			Tag: "session", Public: true, Response: "SuccessResponse"},
		{Method: "GET", Path: "/api/v1/admin/me", OperationID: "getMe", Summary: "Current admin",
			Tag: "me", Response: "MeResponse"},
		{Method: "POST", Path: "/api/v1/admin/me/2fa", OperationID: "enableTwoFactor", Summary: "Enable TOTP",
			Tag: "me", Response: "TwoFactorEnrollment"},
		{Method: "POST", Path: "/api/v1/admin/admins/{adminId}/sessions/revoke", OperationID: "revokeSessions",
			Summary: "Revoke every session of an admin", Tag: "admins",
			Required: []rbac.Permission{rbac.PermAdminManage}, Response: "RevokeResponse"},
		{Method: "GET", Path: "/api/v1/admin/audit", OperationID: "listAudit", Summary: "List audit entries",
			Tag: "audit", Required: []rbac.Permission{rbac.PermAuditView}, Response: "AuditList"},
	}
}

// Generate builds the OpenAPI 3.1 document for the admin API.
func Generate(opts Options) *openapi3.T {
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	if opts.CookieName == "" {
		opts.CookieName = "agora_admin_session"
	}

	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Agora Admin API",
			Description: "Authentication, session and audit endpoints of the Agora administration console.",
			Version:     opts.Version,
		},
	}
	if opts.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: opts.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = componentSchemas()
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"bearerAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "opaque",
				Description:  "Session token returned by the login endpoint.",
			},
		},
		"cookieAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type: "apiKey",
				In:   "cookie",
				Name: opts.CookieName,
			},
		},
	}
	doc.Components = &components

	doc.Paths = openapi3.NewPaths()
	for _, rt := range Routes() {
		addRoute(doc, rt)
	}
	return doc
}

func addRoute(doc *openapi3.T, rt Route) {
	op := &openapi3.Operation{
		Tags:        []string{rt.Tag},
		Summary:     rt.Summary,
		OperationID: rt.OperationID,
		Responses:   newResponses(rt, ref(rt.Response)),
	}
	if rt.Request != "" {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(ref(rt.Request)),
			},
		}
	}
	if !rt.Public {
		op.Security = &openapi3.SecurityRequirements{
			{"bearerAuth": {}},
			{"cookieAuth": {}},
		}
	}
	if len(rt.Required) > 0 {
		perms := make([]interface{}, len(rt.Required))
		for i, p := range rt.Required {
			perms[i] = p.String()
		}
		op.Extensions = map[string]interface{}{"x-required-permissions": perms}
	}

	switch rt.OperationID {
	case "revokeSessions":
		op.Parameters = openapi3.Parameters{
			{Value: openapi3.NewPathParameter("adminId").WithSchema(openapi3.NewInt64Schema())},
		}
	case "listAudit":
		op.Parameters = auditQueryParameters()
	}

	item := doc.Paths.Value(rt.Path)
	if item == nil {
		item = &openapi3.PathItem{}
		doc.Paths.Set(rt.Path, item)
	}
	item.SetOperation(rt.Method, op)
}

func auditQueryParameters() openapi3.Parameters {
	categories := make([]interface{}, len(model.AuditCategories))
	for i, c := range model.AuditCategories {
		categories[i] = string(c)
	}
	category := openapi3.NewStringSchema()
	category.Enum = categories

	return openapi3.Parameters{
		{Value: openapi3.NewQueryParameter("category").WithSchema(category)},
		{Value: openapi3.NewQueryParameter("admin_id").WithSchema(openapi3.NewInt64Schema())},
		{Value: openapi3.NewQueryParameter("since").
			WithDescription("RFC 3339 timestamp; only entries at or after it.").
			WithSchema(openapi3.NewDateTimeSchema())},
		{Value: openapi3.NewQueryParameter("limit").
			WithSchema(openapi3.NewInt32Schema().WithMin(1).WithMax(500))},
	}
}

// ─── Responses ──────────────────────────────────────────────────────────────

// newResponses builds the success response plus the error responses the
// route can produce.
func newResponses(rt Route, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses(openapi3.WithStatus(200, response("Success", schema)))

	if rt.OperationID == "login" {
		failure := ref("LoginFailure")
		responses.Set("400", response("Malformed request", failure))
		responses.Set("401", response("Invalid credentials or 2FA code", failure))
		responses.Set("403", response("Account disabled", failure))
		responses.Set("423", response("Account locked", failure))
		responses.Set("429", response("Too many login attempts", failure))
		responses.Set("500", response("Internal server error", failure))
		return responses
	}

	errorRef := ref("ErrorResponse")
	if !rt.Public {
		responses.Set("401", response("Authentication required", errorRef))
		responses.Set("429", response("Too many requests", errorRef))
	}
	if len(rt.Required) > 0 {
		responses.Set("403", response("Permission denied", errorRef))
	}
	if rt.OperationID == "revokeSessions" || rt.OperationID == "listAudit" {
		responses.Set("400", response("Bad request", errorRef))
	}
	if rt.OperationID == "revokeSessions" {
		responses.Set("404", response("Admin not found", errorRef))
	}
	if rt.OperationID == "enableTwoFactor" {
		responses.Set("409", response("Two-factor already enabled", errorRef))
	}
	responses.Set("500", response("Internal server error", errorRef))
	return responses
}

func response(description string, schema *openapi3.SchemaRef) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(description).
			WithContent(openapi3.NewContentWithJSONSchemaRef(schema)),
	}
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}
