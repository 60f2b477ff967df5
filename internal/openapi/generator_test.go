package openapi

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

// ─── Document ───────────────────────────────────────────────────────────────

func TestGenerate_Basics(t *testing.T) {
	doc := Generate(Options{BaseURL: "https://admin.example.com", Version: "2.3.4"})

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("OpenAPI = %q, want 3.1.0", doc.OpenAPI)
	}
	if doc.Info.Version != "2.3.4" {
		t.Errorf("version = %q", doc.Info.Version)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "https://admin.example.com" {
		t.Errorf("servers = %+v", doc.Servers)
	}
}

func TestGenerate_NoServerWithoutBaseURL(t *testing.T) {
	doc := Generate(Options{})
	if len(doc.Servers) != 0 {
		t.Errorf("servers = %+v, want none", doc.Servers)
	}
	if doc.Info.Version != "1.0.0" {
		t.Errorf("default version = %q", doc.Info.Version)
	}
}

func TestGenerate_EveryRouteDocumented(t *testing.T) {
	doc := Generate(Options{})
	for _, rt := range Routes() {
		item := doc.Paths.Value(rt.Path)
		if item == nil {
			t.Errorf("path %s missing", rt.Path)
			continue
		}
		op := item.GetOperation(rt.Method)
		if op == nil {
			t.Errorf("%s %s missing", rt.Method, rt.Path)
			continue
		}
		if op.OperationID != rt.OperationID {
			t.Errorf("%s %s operationId = %q, want %q", rt.Method, rt.Path, op.OperationID, rt.OperationID)
		}
	}
}

func TestGenerate_SecuritySchemes(t *testing.T) {
	doc := Generate(Options{CookieName: "sid"})

	bearer := doc.Components.SecuritySchemes["bearerAuth"]
	if bearer == nil || bearer.Value.Scheme != "bearer" {
		t.Fatalf("bearerAuth = %+v", bearer)
	}
	cookie := doc.Components.SecuritySchemes["cookieAuth"]
	if cookie == nil || cookie.Value.In != "cookie" || cookie.Value.Name != "sid" {
		t.Fatalf("cookieAuth = %+v", cookie)
	}
}

func TestGenerate_PublicRoutesHaveNoSecurity(t *testing.T) {
	doc := Generate(Options{})
	for _, rt := range Routes() {
		op := doc.Paths.Value(rt.Path).GetOperation(rt.Method)
		if rt.Public && op.Security != nil {
			t.Errorf("%s %s should be public", rt.Method, rt.Path)
		}
		if !rt.Public && (op.Security == nil || len(*op.Security) != 2) {
			t.Errorf("%s %s should require a session", rt.Method, rt.Path)
		}
	}
}

func TestGenerate_RequiredPermissions(t *testing.T) {
	doc := Generate(Options{})

	op := doc.Paths.Value("/api/v1/admin/audit").GetOperation("GET")
	perms, ok := op.Extensions["x-required-permissions"].([]interface{})
	if !ok || len(perms) != 1 || perms[0] != "audit_logs:view" {
		t.Errorf("x-required-permissions = %v", op.Extensions["x-required-permissions"])
	}
	if op.Responses.Value("403") == nil {
		t.Error("guarded route should document 403")
	}

	me := doc.Paths.Value("/api/v1/admin/me").GetOperation("GET")
	if _, ok := me.Extensions["x-required-permissions"]; ok {
		t.Error("/me needs no permission")
	}
	if me.Responses.Value("403") != nil {
		t.Error("/me should not document 403")
	}
}

func TestGenerate_LoginResponses(t *testing.T) {
	doc := Generate(Options{})
	op := doc.Paths.Value("/api/v1/admin/session").GetOperation("POST")

	for _, code := range []string{"200", "400", "401", "403", "423", "429", "500"} {
		if op.Responses.Value(code) == nil {
			t.Errorf("login should document %s", code)
		}
	}
	if op.RequestBody == nil {
		t.Fatal("login should have a request body")
	}
	login := doc.Components.Schemas["LoginRequest"].Value
	if strings.Join(login.Required, ",") != "email,password" {
		t.Errorf("LoginRequest required = %v", login.Required)
	}
}

func TestGenerate_RefsResolve(t *testing.T) {
	doc := Generate(Options{})
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	const prefix = "#/components/schemas/"
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch x := v.(type) {
		case map[string]interface{}:
			if r, ok := x["$ref"].(string); ok {
				name := strings.TrimPrefix(r, prefix)
				if _, found := doc.Components.Schemas[name]; !found {
					t.Errorf("dangling $ref %q", r)
				}
			}
			for _, child := range x {
				walk(child)
			}
		case []interface{}:
			for _, child := range x {
				walk(child)
			}
		}
	}
	walk(generic)
}

func TestGenerate_AuditCategoryEnum(t *testing.T) {
	doc := Generate(Options{})
	var category *openapi3.Parameter
	for _, p := range doc.Paths.Value("/api/v1/admin/audit").Get.Parameters {
		if p.Value.Name == "category" {
			category = p.Value
		}
	}
	if category == nil {
		t.Fatal("category parameter missing")
	}
	if len(category.Schema.Value.Enum) != 6 {
		t.Errorf("category enum = %v", category.Schema.Value.Enum)
	}
}
