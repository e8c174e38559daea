package api

import (
	"encoding/json"
	"errors"
	"reflect"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sunublog/sunublog/internal/blog"
)

// Response is the envelope around every API body
type Response struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    interface{}       `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func success(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func fail(c *gin.Context, status int, message string, fields map[string]string) {
	c.JSON(status, Response{
		Success: false,
		Message: message,
		Errors:  fields,
	})
}

// bind decodes the JSON body into dst. An empty body leaves dst untouched.
func bind(c *gin.Context, dst interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return blog.FieldError(typeErr.Field, "has an invalid type")
		}
		return errMalformedBody
	}
	return nil
}

// bodyID is a snowflake id in a request body, sent either as a JSON string
// or as a number
type bodyID int64

// UnmarshalJSON accepts 123 and "123"
func (id *bodyID) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return &json.UnmarshalTypeError{Value: string(data), Type: reflect.TypeOf(int64(0))}
	}
	*id = bodyID(n)
	return nil
}

// paramID parses a snowflake id path parameter. Unparseable ids cannot name
// an existing row, so they are reported as not found.
func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errNotFound
	}
	return id, nil
}

// pageFrom reads ?page= and ?per_page=. Services clamp the values.
func pageFrom(c *gin.Context) blog.Page {
	number, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("per_page"))
	return blog.Page{Number: number, Size: size}
}

func queryBool(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}
