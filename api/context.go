package api

import (
	"encoding/json"
	"net/http"
)

// Json shortcut for response bodies.
type Json map[string]any

// Context carries one API request.
type Context struct {
	Writer  http.ResponseWriter
	Request *http.Request

	params map[string]string
}

// (*Context).Param returns the value of a :name path segment.
func (c *Context) Param(key string) string {
	return c.params[key]
}

// (*Context).JSON writes obj as a JSON response with status code.
func (c *Context) JSON(code int, obj any) {
	c.Writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	c.Writer.WriteHeader(code)

	_ = json.NewEncoder(c.Writer).Encode(obj)
}
