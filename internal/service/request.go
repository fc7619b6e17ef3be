package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
)

// ErrInvalidRequest marks malformed or out-of-range caller input.
var ErrInvalidRequest = errors.New("invalid request")

var validate = validator.New(validator.WithRequiredStructEnabled())

// newRequestID is swapped in tests.
var newRequestID = uuid.NewString

// DecodeRequest decodes and validates a JSON forecast request. A missing
// request id is filled with a fresh UUID. When the JSON decodes but fails
// validation the decoded fields are returned alongside the error so callers
// can echo them in a rejection.
func DecodeRequest(data []byte) (domain.ForecastRequest, error) {
	var req domain.ForecastRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.ForecastRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := ValidateRequest(req); err != nil {
		return req, err
	}
	if req.RequestID == "" {
		req.RequestID = newRequestID()
	}
	return req, nil
}

// ValidateRequest checks field constraints: city and pollutant are required
// and the horizon is between 1 and 30 days.
func ValidateRequest(req domain.ForecastRequest) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", ErrInvalidRequest, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
