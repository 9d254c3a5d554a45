package influx

import (
	"errors"
	"fmt"

	"github.com/valyala/fastjson"
)

// WriteError is a non-2xx response from the write endpoint.
type WriteError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int
	// Code is the Influx error code (e.g. "invalid", "unauthorized").
	Code string
	// Message is the server's description, or the raw body when the
	// response was not JSON.
	Message string
}

func (e *WriteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("influx: write failed (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("influx: write failed: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsWriteError reports whether err is a *WriteError with the given status.
func IsWriteError(err error, status int) bool {
	var we *WriteError
	return errors.As(err, &we) && we.StatusCode == status
}

// parseWriteError builds a WriteError from a response body of the form
// {"code":"invalid","message":"..."}.
func (c *Client) parseWriteError(status int, body []byte) *WriteError {
	we := &WriteError{StatusCode: status}

	p := c.parser.Get()
	defer c.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil || v.Type() != fastjson.TypeObject {
		we.Message = string(body)
		return we
	}
	we.Code = string(v.GetStringBytes("code"))
	we.Message = string(v.GetStringBytes("message"))
	if we.Message == "" {
		we.Message = string(body)
	}
	return we
}
