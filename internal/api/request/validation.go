package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// schemaRegex matches unquoted Postgres identifiers as tenant provisioning
// creates them.
var schemaRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

func init() {
	validate.RegisterValidation("schema", func(fl validator.FieldLevel) bool {
		return schemaRegex.MatchString(fl.Field().String())
	})
}

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

func RequireID(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing required ID")
	}
	return s, nil
}

// RequireSchema validates a tenant schema name taken from the URL.
func RequireSchema(s string) (string, error) {
	if !schemaRegex.MatchString(s) {
		return "", fmt.Errorf("invalid tenant schema %q", s)
	}
	return s, nil
}
