package shared

import (
	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

var JsonAPI = sonic.Config{
	UseNumber:            true,
	EscapeHTML:           false,
	SortMapKeys:          false,
	CompactMarshaler:     true,
	NoQuoteTextMarshaler: true,
	NoNullSliceOrMap:     true,
}.Froze()

var (
	successResponse       = mustMarshal(Response{Code: 200, Message: "Success"})
	createdResponse       = mustMarshal(Response{Code: 201, Message: "Created"})
	notFoundResponse      = mustMarshal(Response{Code: 404, Message: "Not Found"})
	unauthorizedResponse  = mustMarshal(Response{Code: 401, Message: "Unauthorized"})
	badRequestResponse    = mustMarshal(Response{Code: 400, Message: "Bad Request"})
	forbiddenResponse     = mustMarshal(Response{Code: 403, Message: "Forbidden"})
	internalErrorResponse = mustMarshal(Response{Code: 500, Message: "Internal Server Error"})
)

func mustMarshal(v interface{}) []byte {
	b, _ := JsonAPI.Marshal(v)
	return b
}

func writePrebaked(c *fiber.Ctx, httpCode int, body []byte) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Status(httpCode).Send(body)
}

func ResponseJSON(c *fiber.Ctx, httpCode int, message string, data interface{}) error {
	if data == nil {
		switch httpCode {
		case 200:
			if message == "Success" {
				return writePrebaked(c, httpCode, successResponse)
			}
		case 201:
			if message == "Created" {
				return writePrebaked(c, httpCode, createdResponse)
			}
		case 400:
			if message == "Bad Request" {
				return writePrebaked(c, httpCode, badRequestResponse)
			}
		case 401:
			if message == "Unauthorized" {
				return writePrebaked(c, httpCode, unauthorizedResponse)
			}
		case 403:
			if message == "Forbidden" {
				return writePrebaked(c, httpCode, forbiddenResponse)
			}
		case 404:
			if message == "Not Found" {
				return writePrebaked(c, httpCode, notFoundResponse)
			}
		case 500:
			if message == "Internal Server Error" {
				return writePrebaked(c, httpCode, internalErrorResponse)
			}
		}
	}

	body, err := JsonAPI.Marshal(Response{
		Code:    httpCode,
		Message: message,
		Data:    data,
	})
	if err != nil {
		return err
	}
	return writePrebaked(c, httpCode, body)
}

// ResponseRaw writes a payload without the Response envelope. Gate rejections
// use this: their wire shapes predate the envelope and clients parse them.
func ResponseRaw(c *fiber.Ctx, httpCode int, payload interface{}) error {
	body, err := JsonAPI.Marshal(payload)
	if err != nil {
		return err
	}
	return writePrebaked(c, httpCode, body)
}

func ResponseOK(c *fiber.Ctx, data interface{}) error {
	return ResponseJSON(c, 200, "Success", data)
}

func ResponseNotFound(c *fiber.Ctx) error {
	return ResponseJSON(c, 404, "Not Found", nil)
}

func ResponseUnauthorized(c *fiber.Ctx) error {
	return ResponseJSON(c, 401, "Unauthorized", nil)
}

func ResponseBadRequest(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "Bad Request"
	}
	return ResponseJSON(c, 400, message, nil)
}

func ResponseForbidden(c *fiber.Ctx) error {
	return ResponseJSON(c, 403, "Forbidden", nil)
}

func ResponseInternalError(c *fiber.Ctx, err error) error {
	return ResponseJSON(c, 500, "Internal Server Error", err.Error())
}
