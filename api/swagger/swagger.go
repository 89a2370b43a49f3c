package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Student Risk API",
        "description": "Dropout risk scoring, intervention tracking and class analytics",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Auth", "description": "Login and current principal"},
        {"name": "Risk", "description": "Scoring, assessment and follow-up of risk records"},
        {"name": "Interventions", "description": "Append-only intervention timeline per risk record"},
        {"name": "Analytics", "description": "Class attendance, comparison and evasion trends"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange credentials for an access token",
                "security": [],
                "parameters": [
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Token issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"},
                    "403": {"description": "Inactive account"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current principal",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthenticated"}}
            }
        },
        "/risk/score": {
            "post": {
                "tags": ["Risk"],
                "summary": "Score an indicator snapshot without persisting",
                "parameters": [
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/ScoreRequest"}}
                ],
                "responses": {"200": {"description": "Score, level and factors", "schema": {"$ref": "#/definitions/RiskResult"}}}
            }
        },
        "/students/{id}/risk/assess": {
            "post": {
                "tags": ["Risk"],
                "summary": "Load indicators, score and upsert the open risk record of a student",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "body", "schema": {"$ref": "#/definitions/AssessRequest"}}
                ],
                "responses": {
                    "200": {"description": "Assessment"},
                    "404": {"description": "Student has no active enrollment"}
                }
            }
        },
        "/classes/{classId}/risk/reassess": {
            "post": {
                "tags": ["Risk"],
                "summary": "Queue a reassessment of every active student in a class",
                "parameters": [
                    {"in": "path", "name": "classId", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Job queued"},
                    "409": {"description": "Reassessment already pending"},
                    "503": {"description": "Queue unavailable"}
                }
            }
        },
        "/risk-records": {
            "get": {
                "tags": ["Risk"],
                "summary": "List risk records",
                "parameters": [
                    {"in": "query", "name": "classId", "type": "string"},
                    {"in": "query", "name": "studentId", "type": "string"},
                    {"in": "query", "name": "level", "type": "string", "description": "Comma separated: low,medium,high,critical"},
                    {"in": "query", "name": "status", "type": "string", "enum": ["open", "monitoring", "resolved"]},
                    {"in": "query", "name": "page", "type": "integer"},
                    {"in": "query", "name": "page_size", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/risk-records/{id}": {
            "get": {
                "tags": ["Risk"],
                "summary": "Get a risk record",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/risk-records/{id}/status": {
            "patch": {
                "tags": ["Risk"],
                "summary": "Move a risk record between open, monitoring and resolved",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateRiskStatusRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid status"}, "404": {"description": "Not found"}}
            }
        },
        "/risk-records/{id}/export": {
            "get": {
                "tags": ["Risk"],
                "summary": "Download the risk record with its intervention timeline",
                "produces": ["application/pdf", "text/csv"],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "query", "name": "format", "type": "string", "enum": ["pdf", "csv"], "default": "pdf"}
                ],
                "responses": {"200": {"description": "Attachment"}, "400": {"description": "Unsupported format"}, "404": {"description": "Not found"}}
            }
        },
        "/risk-records/{id}/interventions": {
            "get": {
                "tags": ["Interventions"],
                "summary": "Intervention timeline, newest first",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Interventions"],
                "summary": "Log an intervention",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/CreateInterventionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created; meta.message carries the notification text"},
                    "400": {"description": "Validation failure"},
                    "404": {"description": "Risk record not found"},
                    "503": {"description": "Persistence failure; meta.retryable is true"}
                }
            }
        },
        "/interventions/{id}": {
            "patch": {
                "tags": ["Interventions"],
                "summary": "Record outcome or follow-up of an intervention",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateInterventionRequest"}}
                ],
                "responses": {"200": {"description": "Updated"}, "404": {"description": "Not found"}}
            }
        },
        "/analytics/classes/{classId}/attendance": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Attendance percentage per active student",
                "parameters": [{"in": "path", "name": "classId", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/analytics/classes/compare": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Compare attendance, grades and risk across classes",
                "parameters": [{"in": "query", "name": "classIds", "required": true, "type": "string", "description": "Comma separated class ids"}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "classIds missing"}}
            }
        },
        "/analytics/evasions/trend": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Monthly evasion counts and trend direction",
                "parameters": [
                    {"in": "query", "name": "classId", "type": "string"},
                    {"in": "query", "name": "months", "type": "integer", "minimum": 6, "maximum": 36}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/analytics/system": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Instrumentation snapshot",
                "responses": {"200": {"description": "OK"}}
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
        "ScoreRequest": {
            "type": "object",
            "properties": {
                "attendancePercentage": {"type": "number"},
                "gradeAverage": {"type": "number"},
                "absencesLast30Days": {"type": "integer"},
                "missedActivities": {"type": "integer"},
                "classEvasionRate": {"type": "number"},
                "pendingDeclarations": {"type": "integer"}
            }
        },
        "RiskResult": {
            "type": "object",
            "properties": {
                "score": {"type": "integer", "minimum": 0, "maximum": 100},
                "level": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
                "factors": {"type": "array", "items": {"type": "string"}}
            }
        },
        "AssessRequest": {
            "type": "object",
            "properties": {
                "classId": {"type": "string"}
            }
        },
        "UpdateRiskStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["open", "monitoring", "resolved"]}
            }
        },
        "CreateInterventionRequest": {
            "type": "object",
            "required": ["studentId", "interventionType", "description"],
            "properties": {
                "studentId": {"type": "string"},
                "interventionType": {"type": "string", "enum": ["phone_call", "meeting", "family_contact", "academic_support", "psychological_support", "financial_support", "home_visit", "other"]},
                "description": {"type": "string", "minLength": 10},
                "outcome": {"type": "string", "enum": ["positive", "neutral", "negative", "pending"]},
                "followUpDate": {"type": "string", "format": "date-time"},
                "followUpNotes": {"type": "string"}
            }
        },
        "UpdateInterventionRequest": {
            "type": "object",
            "properties": {
                "outcome": {"type": "string", "enum": ["positive", "neutral", "negative", "pending"]},
                "followUpDate": {"type": "string", "format": "date-time"},
                "followUpNotes": {"type": "string", "maxLength": 2000}
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
