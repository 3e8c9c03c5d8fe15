// Package docs registers the gateway's OpenAPI document with swaggo/swag so
// the /swagger UI route can serve it. Normally produced by `swag init`
// scanning the @Summary/@Router annotations on the handlers in
// internal/http/handlers; committed by hand here since this module's build
// never invokes the swag CLI.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "Inbound WhatsApp webhook gateway that relays conversations to an LLM and replies with TwiML-style XML.",
        "title": "whatsapp-llm-gateway",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Report process and dependency health",
                "responses": {
                    "200": {"description": "all components healthy"},
                    "503": {"description": "one or more components unhealthy"}
                }
            }
        },
        "/webhook/whatsapp": {
            "post": {
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["text/xml"],
                "tags": ["Webhook"],
                "summary": "Receive an inbound WhatsApp message",
                "parameters": [
                    {"name": "From", "in": "formData", "required": true, "type": "string"},
                    {"name": "Body", "in": "formData", "required": true, "type": "string"},
                    {"name": "MessageSid", "in": "formData", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "TwiML response document"},
                    "400": {"description": "malformed payload"},
                    "403": {"description": "signature verification failed"},
                    "415": {"description": "unsupported content type"},
                    "429": {"description": "rate limit exceeded"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger metadata, populated with the values the
// gateway was built with.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "whatsapp-llm-gateway",
	Description:      "Inbound WhatsApp webhook gateway that relays conversations to an LLM and replies with TwiML-style XML.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
