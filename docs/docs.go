// Package docs registers the EdgeGuard OpenAPI document with swag so that
// http-swagger can serve it at /swagger/doc.json.
//
// Regenerate after changing handler annotations:
//
//	swag init -g cmd/server/docs.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "GitHub Repository",
            "url": "https://github.com/tomtom215/edgeguard/issues"
        },
        "license": {
            "name": "AGPL-3.0-or-later",
            "url": "https://www.gnu.org/licenses/agpl-3.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/csrf-token": {
            "get": {
                "tags": ["CSRF"],
                "summary": "Issue a CSRF token",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/csrf.Token"}},
                    "404": {"description": "CSRF protection disabled", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}}
                }
            }
        },
        "/security/audit": {
            "get": {
                "tags": ["Audit"],
                "summary": "Query or export audit events",
                "produces": ["application/json", "text/csv", "text/plain"],
                "parameters": [
                    {"type": "string", "description": "Comma-separated event types", "name": "types", "in": "query"},
                    {"type": "string", "description": "Comma-separated risk levels", "name": "risk", "in": "query"},
                    {"type": "string", "description": "RFC 3339 lower bound (inclusive)", "name": "start", "in": "query"},
                    {"type": "string", "description": "RFC 3339 upper bound (inclusive)", "name": "end", "in": "query"},
                    {"type": "string", "description": "User id", "name": "user", "in": "query"},
                    {"type": "string", "description": "Client IP", "name": "ip", "in": "query"},
                    {"type": "string", "description": "success, failure or warning", "name": "outcome", "in": "query"},
                    {"type": "integer", "description": "Page size (default 100, max 1000)", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Page offset", "name": "offset", "in": "query"},
                    {"type": "string", "description": "json, csv or cef", "name": "format", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.AuditQueryResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}}
                }
            },
            "post": {
                "tags": ["Audit"],
                "summary": "Record an audit event",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "CSRF token", "name": "X-CSRF-Token", "in": "header", "required": true},
                    {"description": "Event", "name": "event", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.AuditIngestRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/api.AuditIngestResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}}
                }
            }
        },
        "/security/audit/stats": {
            "get": {
                "tags": ["Audit"],
                "summary": "Audit statistics",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "RFC 3339 start", "name": "start", "in": "query"},
                    {"type": "string", "description": "RFC 3339 end", "name": "end", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}}
                }
            }
        },
        "/security/scan": {
            "post": {
                "tags": ["Scanner"],
                "summary": "Run a vulnerability scan",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "CSRF token", "name": "X-CSRF-Token", "in": "header", "required": true},
                    {"description": "Scan request", "name": "scan", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.ScanRequest"}},
                    {"enum": ["warnings"], "type": "string", "description": "quick scans only: warnings wraps the result as {vulnerabilities, warnings}", "name": "include", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "quick scan findings or full scan result; X-Scan-Warnings counts failed checks", "schema": {"type": "array", "items": {"$ref": "#/definitions/scanner.Vulnerability"}}, "headers": {"X-Scan-Warnings": {"type": "integer", "description": "quick scan checks that failed"}}},
                    "202": {"description": "full scan still running", "schema": {"$ref": "#/definitions/api.ScanAccepted"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}},
                    "502": {"description": "target unreachable", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}},
                    "503": {"description": "scan queue full", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}}
                }
            }
        },
        "/security/scan/jobs/{id}": {
            "get": {
                "tags": ["Scanner"],
                "summary": "Get a scan job",
                "produces": ["application/json"],
                "parameters": [{"type": "string", "description": "Job id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}}
                }
            },
            "delete": {
                "tags": ["Scanner"],
                "summary": "Cancel a scan job",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "CSRF token", "name": "X-CSRF-Token", "in": "header", "required": true},
                    {"type": "string", "description": "Job id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}}
                }
            }
        },
        "/security/vulnerabilities": {
            "get": {
                "tags": ["Scanner"],
                "summary": "List vulnerabilities",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "open, acknowledged or resolved", "name": "status", "in": "query"},
                    {"type": "string", "description": "critical, high, medium or low", "name": "severity", "in": "query"},
                    {"type": "string", "description": "Vulnerability type", "name": "type", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.VulnerabilityList"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}}
                }
            }
        },
        "/security/vulnerabilities/{id}": {
            "patch": {
                "tags": ["Scanner"],
                "summary": "Change a vulnerability status",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "CSRF token", "name": "X-CSRF-Token", "in": "header", "required": true},
                    {"type": "string", "description": "Vulnerability id", "name": "id", "in": "path", "required": true},
                    {"description": "New status", "name": "update", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.StatusUpdateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/scanner.Vulnerability"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}}
                }
            }
        },
        "/security/status": {
            "get": {
                "tags": ["Status"],
                "summary": "Security status",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/gateway.ErrorBody"}}
                }
            }
        }
    },
    "definitions": {
        "gateway.ErrorBody": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "CSRF_TOKEN_MISSING"},
                "message": {"type": "string"}
            }
        },
        "csrf.Token": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "expiresAt": {"type": "string", "format": "date-time"}
            }
        },
        "api.AuditIngestRequest": {
            "type": "object",
            "required": ["eventType", "source", "outcome"],
            "properties": {
                "eventType": {"type": "string", "example": "LOGIN_FAILURE"},
                "details": {"type": "object"},
                "source": {"type": "string"},
                "userId": {"type": "string"},
                "outcome": {"type": "string", "enum": ["success", "failure", "warning"]},
                "riskLevel": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
                "tags": {"type": "array", "items": {"type": "string"}}
            }
        },
        "api.AuditIngestResponse": {
            "type": "object",
            "properties": {"id": {"type": "string"}}
        },
        "api.AuditQueryResponse": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"type": "object"}},
                "total": {"type": "integer"},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"}
            }
        },
        "api.ScanRequest": {
            "type": "object",
            "required": ["scanType", "targets"],
            "properties": {
                "scanType": {"type": "string", "enum": ["quick", "full"]},
                "targets": {"type": "array", "items": {"type": "string"}},
                "depth": {"type": "integer"},
                "timeout": {"type": "integer", "description": "seconds"},
                "aggressive": {"type": "boolean"},
                "checkSSL": {"type": "boolean"},
                "followRedirects": {"type": "boolean"},
                "scanTypes": {"type": "array", "items": {"type": "string", "enum": ["headers", "cookies", "tls", "errors", "banner", "cors", "files"]}}
            }
        },
        "api.ScanAccepted": {
            "type": "object",
            "properties": {
                "jobId": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "api.StatusUpdateRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {"status": {"type": "string", "enum": ["open", "acknowledged", "resolved"]}}
        },
        "api.VulnerabilityList": {
            "type": "object",
            "properties": {
                "vulnerabilities": {"type": "array", "items": {"$ref": "#/definitions/scanner.Vulnerability"}},
                "total": {"type": "integer"}
            }
        },
        "scanner.Vulnerability": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string"},
                "severity": {"type": "string", "enum": ["critical", "high", "medium", "low"]},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "location": {"type": "string"},
                "impact": {"type": "string"},
                "recommendation": {"type": "string"},
                "status": {"type": "string", "enum": ["open", "acknowledged", "resolved"]},
                "discoveredAt": {"type": "string", "format": "date-time"},
                "lastSeenAt": {"type": "string", "format": "date-time"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "EdgeGuard API",
	Description:      "Edge security gateway: rate limiting, CSRF protection, audit logging, vulnerability scanning and security status.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
