package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/justyntemme/readlog/internal/library"
	"github.com/justyntemme/readlog/internal/ocr"
)

var registerTagNames sync.Once

// useJSONFieldNames makes validator report json names (coverUrl) instead
// of Go field names (CoverURL)
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
}

// bindJSON decodes the request body into dst and converts every decode or
// validation failure into a *library.ValidationError
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return translateBindError(err)
	}
	return nil
}

func translateBindError(err error) error {
	var verrs validator.ValidationErrors
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError

	switch {
	case errors.As(err, &verrs):
		out := &library.ValidationError{}
		for _, fe := range verrs {
			out.Add(fe.Field(), validationMessage(fe))
		}
		return out
	case errors.As(err, &typeErr):
		if typeErr.Field == "" {
			return library.NewValidationError("body", "must be a JSON object")
		}
		return library.NewValidationError(typeErr.Field, "must be of type "+jsonKind(typeErr.Type))
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return library.NewValidationError("body", "must be valid JSON")
	case errors.Is(err, io.EOF):
		return library.NewValidationError("body", "is required")
	default:
		return library.NewValidationError("body", err.Error())
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}

// writeError maps service errors onto status codes. Unknown errors are
// logged and reported with the generic fallback message.
func (h *Handler) writeError(c *gin.Context, err error, fallback string) {
	var verr *library.ValidationError
	var notFound *library.NotFoundError
	var conflict *library.ConflictError
	var extraction *ocr.ExtractionError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "fields": verr.Fields})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Message})
	case errors.As(err, &extraction):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    "Failed to extract text from image",
			"provider": extraction.Provider,
		})
	default:
		h.log.Error(fallback,
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(ContextRequestID)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// jsonKind names a Go type the way a JSON client would
func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}
