package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// classify translates reviewer transport errors into messages that name the
// failure class. The result always ends up inside a denied verdict's reason,
// so it has to read well to an operator.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("reviewer timed out: %w", err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("reviewer call cancelled: %w", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401:
			return fmt.Errorf("reviewer authentication failed: %w", err)
		case apiErr.HTTPStatusCode == 429:
			return fmt.Errorf("reviewer rate limited: %w", err)
		case apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("reviewer server error: %w", err)
		}
		return fmt.Errorf("reviewer rejected request: %w", err)
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "dial tcp") {
		return fmt.Errorf("reviewer unreachable: %w", err)
	}

	return fmt.Errorf("reviewer call failed: %w", err)
}
