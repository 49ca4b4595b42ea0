package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("delivery_area", func(fl validator.FieldLevel) bool {
		return enums.DeliveryArea(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.DateOnly, fl.Field().String())
		return err == nil
	})
	return v
}

// DecodeJSONBody reads exactly one JSON object of at most 1 MiB into dest,
// rejecting unknown fields, then runs the validate tags.
func DecodeJSONBody(r *http.Request, dest any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return decodeError(err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	return Validate(dest)
}

func decodeError(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		sizeErr   *http.MaxBytesError
	)
	invalid := func(msg string, details any) error {
		e := pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg)
		if details != nil {
			e = e.WithDetails(details)
		}
		return e
	}

	switch {
	case errors.Is(err, io.EOF):
		return invalid("request body is empty", nil)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return invalid("request body is truncated", nil)
	case errors.As(err, &syntaxErr):
		return invalid(fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset), nil)
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return invalid("invalid request body", map[string]string{field: "must be " + typeErr.Type.String()})
	case errors.As(err, &sizeErr):
		return invalid(fmt.Sprintf("request body exceeds %d bytes", sizeErr.Limit), nil)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return invalid("invalid request body", map[string]string{field: "is not allowed"})
	}
	return invalid("invalid request body", nil)
}

// Validate runs the struct tags of dest.
func Validate(dest any) error {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe)] = validationMessage(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

// fieldPath drops the root struct name: "lines[0].quantity" rather than
// "createOrderRequest.lines[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

var fixedMessages = map[string]string{
	"required":      "is required",
	"latitude":      "must be a valid coordinate",
	"longitude":     "must be a valid coordinate",
	"delivery_area": "must be one of [north east south west]",
	"isodate":       "must be a date in YYYY-MM-DD format",
}

var paramMessages = map[string]string{
	"min":   "must be at least %s",
	"gte":   "must be at least %s",
	"max":   "must be at most %s",
	"lte":   "must be at most %s",
	"gt":    "must be greater than %s",
	"ne":    "must not be %s",
	"oneof": "must be one of [%s]",
}

func validationMessage(fe validator.FieldError) string {
	if msg, ok := fixedMessages[fe.Tag()]; ok {
		return msg
	}
	if format, ok := paramMessages[fe.Tag()]; ok {
		return fmt.Sprintf(format, fe.Param())
	}
	return "is invalid"
}
