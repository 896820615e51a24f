package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

var requestValidator = validator.New()

// decodeAndValidate matches lobby/internal/api/validation.go's
// decodeAndValidate: reject unknown fields, reject trailing data, run
// struct tags, and translate the first validation failure into the
// offending field's name, rather than a prose message.
func decodeAndValidate(body io.Reader, dst any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid_body")
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid_body")
	}

	if err := requestValidator.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			field := strings.ToLower(validationErrors[0].Field())
			return fmt.Errorf("%s", field)
		}
		return fmt.Errorf("invalid_body")
	}

	return nil
}
