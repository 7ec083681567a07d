package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Scheduler API",
        "description": "Timetable generation and editing for school class-sections",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Scheduler", "description": "Scheduling sessions, generation and manual edits"},
        {"name": "Timetables", "description": "Accepted timetable versions"},
        {"name": "Observability", "description": "Metrics summary"}
    ],
    "paths": {
        "/scheduler/sessions": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Open a scheduling session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Catalog cannot be scheduled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Too many sessions", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduler/sessions/{id}": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "Get the current schedule of a session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Scheduler"],
                "summary": "Close a session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduler/sessions/{id}/generate": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Run the allocation engine",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/GenerateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Generation already running", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduler/sessions/{id}/cancel": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Cancel a running generation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduler/sessions/{id}/assignments": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Place one lesson block",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PlaceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduler/sessions/{id}/assignments/import": {
            "post": {
                "tags": ["Scheduler"],
                "summary": "Import assignments without validation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ImportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduler/sessions/{id}/assignments/{assignmentId}": {
            "delete": {
                "tags": ["Scheduler"],
                "summary": "Remove an assignment and the rest of its block",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "assignmentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/scheduler/sessions/{id}/conflicts": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "List violations of the current schedule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduler/sessions/{id}/teacher-load": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "Teacher workload report",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduler/sessions/{id}/room-utilization": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "Room utilization report",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduler/sessions/{id}/timetable.pdf": {
            "get": {
                "tags": ["Scheduler"],
                "summary": "Printable timetable of one section",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "sectionId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF document", "schema": {"type": "file"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduler/sessions/{id}/accept": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Store the current schedule as a new timetable version",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/AcceptRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Schedule has high severity violations", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Persistence disabled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduler/timetables": {
            "get": {
                "tags": ["Timetables"],
                "summary": "List timetable versions for a set of sections",
                "parameters": [
                    {"name": "sectionIds", "in": "query", "required": true, "type": "string", "description": "Comma separated section ids"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/scheduler/timetables/{id}": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Get a timetable version with its slots",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Metrics summary",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "PeriodSlot": {
            "type": "object",
            "properties": {
                "day": {"type": "string", "enum": ["MON", "TUE", "WED", "THU", "FRI", "SAT"]},
                "period": {"type": "integer"}
            }
        },
        "ConstraintSetting": {
            "type": "object",
            "properties": {
                "enabled": {"type": "boolean"},
                "weight": {"type": "number"}
            }
        },
        "CreateSessionRequest": {
            "type": "object",
            "properties": {
                "sectionIds": {"type": "array", "items": {"type": "string"}},
                "coreSubjects": {"type": "array", "items": {"type": "string"}},
                "constraints": {"type": "object", "additionalProperties": {"$ref": "#/definitions/ConstraintSetting"}},
                "catalog": {"type": "object", "description": "Inline catalog; loaded from the database when omitted"}
            }
        },
        "GenerateRequest": {
            "type": "object",
            "properties": {
                "sectionIds": {"type": "array", "items": {"type": "string"}},
                "subjectIds": {"type": "array", "items": {"type": "string"}}
            }
        },
        "PlaceRequest": {
            "type": "object",
            "required": ["sectionId", "subjectId"],
            "properties": {
                "sectionId": {"type": "string"},
                "subjectId": {"type": "string"},
                "preferredSlot": {"$ref": "#/definitions/PeriodSlot"},
                "teacherId": {"type": "string"},
                "roomId": {"type": "string"},
                "strict": {"type": "boolean"},
                "lock": {"type": "boolean"},
                "force": {"type": "boolean"}
            }
        },
        "ImportAssignment": {
            "type": "object",
            "required": ["sectionId", "subjectId", "teacherId", "roomId"],
            "properties": {
                "sectionId": {"type": "string"},
                "subjectId": {"type": "string"},
                "teacherId": {"type": "string"},
                "roomId": {"type": "string"},
                "slot": {"$ref": "#/definitions/PeriodSlot"},
                "blockId": {"type": "string"},
                "locked": {"type": "boolean"}
            }
        },
        "ImportRequest": {
            "type": "object",
            "required": ["assignments"],
            "properties": {
                "assignments": {"type": "array", "items": {"$ref": "#/definitions/ImportAssignment"}}
            }
        },
        "AcceptRequest": {
            "type": "object",
            "properties": {
                "publish": {"type": "boolean"},
                "allowViolations": {"type": "boolean"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
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
