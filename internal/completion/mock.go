package completion

import "context"

const defaultMockResponse = `{"answer": "No completion provider is configured; this is a canned response.", "confidence": "low", "supporting_clauses": [], "explanation": "Mock completion service."}`

// MockService returns canned completions for tests and offline use.
type MockService struct {
	// Respond, when set, computes the completion from the prompt.
	Respond func(prompt string) (string, error)
}

// NewMockService returns a service that calls respond for each prompt, or
// returns a fixed well-formed JSON answer when respond is nil.
func NewMockService(respond func(prompt string) (string, error)) *MockService {
	return &MockService{Respond: respond}
}

// Complete returns the canned completion.
func (s *MockService) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Respond != nil {
		return s.Respond(prompt)
	}
	return defaultMockResponse, nil
}

// Close is a no-op for MockService.
func (s *MockService) Close() error {
	return nil
}
