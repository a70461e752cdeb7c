package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Admission Portal API",
        "description": "University admission portal: applications, review workflow and scoring",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Accounts and sessions"},
        {"name": "Courses", "description": "Course catalogue"},
        {"name": "Applications", "description": "Submission and review workflow"},
        {"name": "Smart", "description": "Recommendations, merit lists and admission prediction"},
        {"name": "Notifications", "description": "In-app applicant notifications"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register applicant",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate refresh token",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke refresh token",
                "security": [{"BearerAuth": []}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List courses",
                "parameters": [
                    {"in": "query", "name": "search", "type": "string"},
                    {"in": "query", "name": "all", "type": "boolean"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Create course",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate code", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses/{ref}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Get course by id or code",
                "parameters": [{"in": "path", "name": "ref", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "put": {
                "tags": ["Courses"],
                "summary": "Update course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "ref", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/applications": {
            "get": {
                "tags": ["Applications"],
                "summary": "List applications",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "query", "name": "status", "type": "string", "enum": ["Pending", "Verified", "Approved", "Rejected", "Hold"]},
                    {"in": "query", "name": "course", "type": "string"},
                    {"in": "query", "name": "category", "type": "string"},
                    {"in": "query", "name": "search", "type": "string"},
                    {"in": "query", "name": "page", "type": "integer"},
                    {"in": "query", "name": "pageSize", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Applications"],
                "summary": "Submit application",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Active application exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/me": {
            "get": {
                "tags": ["Applications"],
                "summary": "List my applications",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/applications/stats": {
            "get": {
                "tags": ["Applications"],
                "summary": "Application counts by status",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/applications/{id}": {
            "get": {
                "tags": ["Applications"],
                "summary": "Get application",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/applications/{id}/status": {
            "put": {
                "tags": ["Applications"],
                "summary": "Update application status",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/UpdateStatusRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/applications/{id}/confirm-admission": {
            "post": {
                "tags": ["Applications"],
                "summary": "Confirm admission",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Not approved or already admitted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/bulk-approve": {
            "post": {
                "tags": ["Applications"],
                "summary": "Bulk approve",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/BulkStatusRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/applications/bulk-reject": {
            "post": {
                "tags": ["Applications"],
                "summary": "Bulk reject",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/BulkStatusRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/smart/recommend-courses": {
            "post": {
                "tags": ["Smart"],
                "summary": "Recommend courses",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/smart/predict-admission": {
            "post": {
                "tags": ["Smart"],
                "summary": "Predict admission chance",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/smart/merit-list": {
            "get": {
                "tags": ["Smart"],
                "summary": "Merit list",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "query", "name": "course", "type": "string"},
                    {"in": "query", "name": "category", "type": "string"},
                    {"in": "query", "name": "limit", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/smart/merit-list/export": {
            "get": {
                "tags": ["Smart"],
                "summary": "Export merit list",
                "produces": ["text/csv", "application/pdf"],
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "query", "name": "format", "type": "string", "enum": ["csv", "pdf"]}],
                "responses": {"200": {"description": "File"}}
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List notifications",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/notifications/{id}/read": {
            "patch": {
                "tags": ["Notifications"],
                "summary": "Mark notification read",
                "security": [{"BearerAuth": []}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/notifications/read-all": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Mark all notifications read",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "required": ["email", "password", "full_name"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "full_name": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "UpdateStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["Pending", "Verified", "Approved", "Rejected", "Hold"]},
                "remarks": {"type": "string"}
            }
        },
        "BulkStatusRequest": {
            "type": "object",
            "required": ["applicationIds"],
            "properties": {
                "applicationIds": {"type": "array", "items": {"type": "string"}},
                "remarks": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
