package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/agora-social/agora-admin/internal/model"
)

// componentSchemas returns every named schema the admin routes reference.
func componentSchemas() openapi3.Schemas {
	categories := make([]interface{}, len(model.AuditCategories))
	for i, c := range model.AuditCategories {
		categories[i] = string(c)
	}
	category := openapi3.NewStringSchema()
	category.Enum = categories

	return openapi3.Schemas{
		"ErrorResponse": object(openapi3.Schemas{
			"error": object(openapi3.Schemas{
				"code":    val(openapi3.NewInt32Schema()),
				"message": val(openapi3.NewStringSchema()),
				"context": val(openapi3.NewObjectSchema()),
			}, "code", "message"),
		}, "error"),

		"LoginRequest": object(openapi3.Schemas{
			"email":     val(openapi3.NewStringSchema().WithFormat("email")),
			"password":  val(openapi3.NewStringSchema().WithFormat("password")),
			"totp_code": val(openapi3.NewStringSchema().WithMinLength(6).WithMaxLength(6)),
		}, "email", "password"),

		"LoginSuccess": object(openapi3.Schemas{
			"success": val(openapi3.NewBoolSchema()),
			"token":   val(openapi3.NewStringSchema()),
			"admin":   ref("AdminUser"),
			"role":    ref("AdminRole"),
		}, "success", "token", "admin", "role"),

		"LoginChallenge": object(openapi3.Schemas{
			"requires_2fa": val(openapi3.NewBoolSchema()),
		}, "requires_2fa"),

		"LoginFailure": object(openapi3.Schemas{
			"success":            val(openapi3.NewBoolSchema()),
			"error":              val(openapi3.NewStringSchema()),
			"remaining_attempts": val(openapi3.NewInt32Schema().WithMin(0)),
		}, "success", "error"),

		"LoginResponse": oneOf(ref("LoginSuccess"), ref("LoginChallenge")),

		"SuccessResponse": object(openapi3.Schemas{
			"success": val(openapi3.NewBoolSchema()),
		}, "success"),

		"AdminUser": object(openapi3.Schemas{
			"id":                    val(openapi3.NewInt64Schema()),
			"email":                 val(openapi3.NewStringSchema().WithFormat("email")),
			"name":                  val(openapi3.NewStringSchema()),
			"role_id":               val(openapi3.NewInt64Schema()),
			"is_active":             val(openapi3.NewBoolSchema()),
			"failed_attempts":       val(openapi3.NewInt32Schema()),
			"locked_until":          val(openapi3.NewDateTimeSchema()),
			"last_login_at":         val(openapi3.NewDateTimeSchema()),
			"last_login_ip":         val(openapi3.NewStringSchema()),
			"last_login_user_agent": val(openapi3.NewStringSchema()),
			"created_at":            val(openapi3.NewDateTimeSchema()),
			"updated_at":            val(openapi3.NewDateTimeSchema()),
		}, "id", "email", "role_id", "is_active"),

		"AdminRole": object(openapi3.Schemas{
			"id":          val(openapi3.NewInt64Schema()),
			"name":        val(openapi3.NewStringSchema()),
			"description": val(openapi3.NewStringSchema()),
			"permissions": val(openapi3.NewObjectSchema().WithAdditionalProperties(
				openapi3.NewObjectSchema().WithAdditionalProperties(openapi3.NewBoolSchema()),
			)),
			"created_at": val(openapi3.NewDateTimeSchema()),
			"updated_at": val(openapi3.NewDateTimeSchema()),
		}, "id", "name", "permissions"),

		"SessionInfo": object(openapi3.Schemas{
			"id":               val(openapi3.NewUUIDSchema()),
			"created_at":       val(openapi3.NewDateTimeSchema()),
			"expires_at":       val(openapi3.NewDateTimeSchema()),
			"last_activity_at": val(openapi3.NewDateTimeSchema()),
		}, "id", "created_at", "expires_at"),

		"MeResponse": object(openapi3.Schemas{
			"admin":   ref("AdminUser"),
			"role":    ref("AdminRole"),
			"session": ref("SessionInfo"),
		}, "admin", "role", "session"),

		"TwoFactorEnrollment": object(openapi3.Schemas{
			"secret":      val(openapi3.NewStringSchema()),
			"otpauth_url": val(openapi3.NewStringSchema().WithFormat("uri")),
		}, "secret", "otpauth_url"),

		"RevokeResponse": object(openapi3.Schemas{
			"success": val(openapi3.NewBoolSchema()),
			"revoked": val(openapi3.NewInt64Schema()),
		}, "success", "revoked"),

		"AuditLogEntry": object(openapi3.Schemas{
			"id":          val(openapi3.NewUUIDSchema()),
			"admin_id":    val(openapi3.NewInt64Schema()),
			"actor_email": val(openapi3.NewStringSchema()),
			"category":    val(category),
			"action_type": val(openapi3.NewStringSchema()),
			"target_type": val(openapi3.NewStringSchema()),
			"target_id":   val(openapi3.NewStringSchema()),
			"details":     val(openapi3.NewObjectSchema()),
			"reason":      val(openapi3.NewStringSchema()),
			"ip_address":  val(openapi3.NewStringSchema()),
			"user_agent":  val(openapi3.NewStringSchema()),
			"created_at":  val(openapi3.NewDateTimeSchema()),
		}, "id", "category", "action_type", "created_at"),

		"AuditList": object(openapi3.Schemas{
			"resource": arrayOf(ref("AuditLogEntry")),
			"meta": object(openapi3.Schemas{
				"count": val(openapi3.NewInt32Schema()),
				"limit": val(openapi3.NewInt32Schema()),
			}),
		}, "resource"),
	}
}

func val(s *openapi3.Schema) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: s}
}

func object(props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
	s := openapi3.NewObjectSchema()
	s.Properties = props
	s.Required = required
	return val(s)
}

func oneOf(refs ...*openapi3.SchemaRef) *openapi3.SchemaRef {
	return val(&openapi3.Schema{OneOf: openapi3.SchemaRefs(refs)})
}

func arrayOf(item *openapi3.SchemaRef) *openapi3.SchemaRef {
	s := openapi3.NewArraySchema()
	s.Items = item
	return val(s)
}
