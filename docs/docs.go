// Package docs swagger文档（swag init生成格式）
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/books": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["图书"],
                "summary": "写入图书",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.IngestBookRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/books/search": {
            "get": {
                "produces": ["application/json"],
                "tags": ["图书"],
                "summary": "搜索图书",
                "parameters": [
                    {"type": "string", "name": "q", "in": "query", "required": true},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/books/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["图书"],
                "summary": "图书详情",
                "parameters": [{"type": "string", "description": "图书ID或slug", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/books/{id}/editions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["图书"],
                "summary": "版本列表",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/books/{id}/external-ids": {
            "get": {
                "produces": ["application/json"],
                "tags": ["外部标识"],
                "summary": "外部标识（反向）",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/external-ids/{source}/{external_id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["外部标识"],
                "summary": "外部标识（正向）",
                "parameters": [
                    {"type": "string", "name": "source", "in": "path", "required": true},
                    {"type": "string", "name": "external_id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/backfill": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["运维"],
                "summary": "安排回填",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.ScheduleBackfillRequest"}}],
                "responses": {"202": {"description": "Accepted", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/bestsellers/sync": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["运维"],
                "summary": "同步畅销榜",
                "parameters": [{"name": "request", "in": "body", "schema": {"$ref": "#/definitions/dto.SyncBestsellersRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/tokens": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["运维"],
                "summary": "签发服务令牌",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.IssueTokenRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        },
        "/api/v1/tokens/revoke": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["运维"],
                "summary": "吊销服务令牌",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.RevokeTokenRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}}
            }
        }
    },
    "definitions": {
        "dto.IngestBookRequest": {
            "type": "object",
            "required": ["title"],
            "properties": {
                "title": {"type": "string", "example": "Dune"},
                "subtitle": {"type": "string"},
                "authors": {"type": "array", "items": {"type": "string"}},
                "categories": {"type": "array", "items": {"type": "string"}},
                "publisher": {"type": "string"},
                "published_date": {"type": "string", "example": "2005-08-02"},
                "language": {"type": "string", "example": "en"},
                "page_count": {"type": "integer"},
                "description": {"type": "string"},
                "isbn13": {"type": "string", "example": "978-0-441-01359-3"},
                "isbn10": {"type": "string"},
                "source": {"type": "string", "example": "GOOGLE_BOOKS"},
                "external_id": {"type": "string"},
                "image_links": {"type": "array", "items": {"$ref": "#/definitions/dto.ImageLinkInput"}},
                "dimensions": {"$ref": "#/definitions/dto.DimensionsInput"}
            }
        },
        "dto.ImageLinkInput": {
            "type": "object",
            "required": ["type", "url"],
            "properties": {
                "type": {"type": "string", "enum": ["smallThumbnail", "thumbnail", "small", "medium", "large", "extraLarge"]},
                "url": {"type": "string"},
                "width": {"type": "integer"},
                "height": {"type": "integer"},
                "high_res": {"type": "boolean"},
                "provider": {"type": "string"}
            }
        },
        "dto.DimensionsInput": {
            "type": "object",
            "properties": {
                "height": {"type": "string"},
                "width": {"type": "string"},
                "thickness": {"type": "string"}
            }
        },
        "dto.ScheduleBackfillRequest": {
            "type": "object",
            "required": ["source", "source_id"],
            "properties": {
                "source": {"type": "string", "example": "GOOGLE_BOOKS"},
                "source_id": {"type": "string", "example": "isbn:9780441013593"},
                "priority": {"type": "integer"}
            }
        },
        "dto.SyncBestsellersRequest": {
            "type": "object",
            "properties": {"list": {"type": "string", "example": "hardcover-fiction"}}
        },
        "dto.IssueTokenRequest": {
            "type": "object",
            "required": ["service", "scopes"],
            "properties": {
                "service": {"type": "string"},
                "scopes": {"type": "array", "items": {"type": "string"}}
            }
        },
        "dto.RevokeTokenRequest": {
            "type": "object",
            "required": ["token_id"],
            "properties": {"token_id": {"type": "string"}}
        },
        "response.Response": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "message": {"type": "string"},
                "data": {}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo 文档元信息
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Book Catalog API",
	Description:      "规范图书目录：身份解析、合并写入、版本聚类、去重搜索",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
