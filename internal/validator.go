package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const validResponse = "VALID"

// GatewayValidator asks the gateway to confirm that a notification came from it.
type GatewayValidator struct {
	url    string
	client *resty.Client
}

func NewGatewayValidator(validateUrl string, timeout time.Duration) *GatewayValidator {
	return &GatewayValidator{
		url:    validateUrl,
		client: newRestClient(timeout),
	}
}

// Validate posts the notification body back to the gateway.
// A transport failure or error status wraps ErrValidationCall; any answer other
// than VALID wraps ErrValidationFailed.
func (v *GatewayValidator) Validate(ctx context.Context, body string) error {
	response, err := v.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(body).
		Post(v.url)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidationCall, err)
	}
	if response.IsError() {
		return fmt.Errorf("%w: status %s", ErrValidationCall, response.Status())
	}
	answer := strings.TrimSpace(response.String())
	if answer != validResponse {
		return fmt.Errorf("%w: gateway answered %q", ErrValidationFailed, answer)
	}
	return nil
}
