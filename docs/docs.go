// Package docs holds the generated swagger spec served at /swagger, kept
// hand-maintained here the way swag init would emit it for the REST
// surface that sits alongside the websocket channel.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Reports process liveness, live session count, and the active identity mode.",
                "produces": ["application/json"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/sessions": {
            "get": {
                "description": "Lists durable sessions merged with live attachability.",
                "produces": ["application/json"],
                "summary": "List sessions",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/api/notify/{sessionId}/{kind}": {
            "post": {
                "description": "Publishes a needs-input or completed notification for a session. Restricted to loopback callers.",
                "produces": ["application/json"],
                "summary": "Publish a notification",
                "parameters": [
                    {"type": "string", "name": "sessionId", "in": "path", "required": true},
                    {"type": "string", "name": "kind", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "invalid kind"},
                    "403": {"description": "non-loopback caller"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported swagger spec, filled at startup from
// process configuration (host) before the router mounts ginSwagger.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "termhubd",
	Description:      "Remote multi-client terminal service: PTY sessions multiplexed over a websocket channel.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
