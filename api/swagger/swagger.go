package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "UKCAS Accreditation API",
        "description": "Certificate issuance, approval and public verification for accredited institutes",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Authentication", "description": "Sessions and credentials"},
        {"name": "Certificates", "description": "Certificate issuance and listing"},
        {"name": "Approvals", "description": "Admin decisions on pending certificates"},
        {"name": "Verification", "description": "Public certificate verification"},
        {"name": "Institutes", "description": "Institute records and balances"},
        {"name": "Students", "description": "Student records"},
        {"name": "Courses", "description": "Course records"},
        {"name": "Exports", "description": "Register exports and certificate documents"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout current session",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/auth/change-password": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Change password",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/verify/{certificateId}": {
            "get": {
                "tags": ["Verification"],
                "summary": "Verify a certificate",
                "parameters": [
                    {"name": "certificateId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Certificate not found"},
                    "502": {"description": "Upstream failure"}
                }
            }
        },
        "/certificates": {
            "get": {
                "tags": ["Certificates"],
                "summary": "List certificates",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Certificates"],
                "summary": "Issue a certificate",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IssueCertificateRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate certificate"}
                }
            }
        },
        "/certificates/check": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Check for an existing certificate",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "student_id", "in": "query", "required": true, "type": "string"},
                    {"name": "course_id", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/certificates/export": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export the certificate register",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/certificates/{id}": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Get a certificate",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/certificates/{id}/document": {
            "post": {
                "tags": ["Exports"],
                "summary": "Issue a certificate document link",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Certificate is not approved"}
                }
            }
        },
        "/documents/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a certificate document",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File download"},
                    "401": {"description": "Invalid or expired link"}
                }
            }
        },
        "/admin/certificates/{id}/status": {
            "patch": {
                "tags": ["Approvals"],
                "summary": "Approve or reject a certificate",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Certificate not found"},
                    "409": {"description": "Certificate is no longer pending"},
                    "412": {"description": "Insufficient balance"}
                }
            }
        },
        "/admin/institutes": {
            "get": {
                "tags": ["Institutes"],
                "summary": "List institutes",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Institutes"],
                "summary": "Register an institute",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/institutes/{id}/topup": {
            "post": {
                "tags": ["Institutes"],
                "summary": "Credit an institute balance",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TopUpRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/institutes/{id}/balance": {
            "get": {
                "tags": ["Institutes"],
                "summary": "Read an institute balance",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "IssueCertificateRequest": {
            "type": "object",
            "required": ["student_id", "course_id", "issue_date", "from_date", "to_date"],
            "properties": {
                "student_id": {"type": "string"},
                "course_id": {"type": "string"},
                "issue_date": {"type": "string", "format": "date"},
                "from_date": {"type": "string", "format": "date"},
                "to_date": {"type": "string", "format": "date"}
            }
        },
        "SetStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["APPROVED", "REJECTED"]}
            }
        },
        "TopUpRequest": {
            "type": "object",
            "required": ["amount"],
            "properties": {
                "amount": {"type": "number"},
                "reference": {"type": "string"}
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
