package domain

// ValidationOutcome is the result of semantic policy validation.
// Messages is non-empty whenever Succeeded is false.
type ValidationOutcome struct {
	Succeeded bool
	Messages  []string
}

// Valid builds a successful outcome.
func Valid() ValidationOutcome {
	return ValidationOutcome{Succeeded: true, Messages: []string{}}
}

// Invalid builds a failed outcome carrying the supplied messages.
func Invalid(messages ...string) ValidationOutcome {
	return ValidationOutcome{Succeeded: false, Messages: append([]string{}, messages...)}
}

// ValidationResponse is the public answer of the validation endpoint.
type ValidationResponse struct {
	IsValid  bool     `json:"isValid"`
	Messages []string `json:"messages"`
}

// ResponseFromOutcome freezes an outcome into the response shape. Messages is never nil.
func ResponseFromOutcome(outcome ValidationOutcome) ValidationResponse {
	messages := make([]string, len(outcome.Messages))
	copy(messages, outcome.Messages)
	return ValidationResponse{IsValid: outcome.Succeeded, Messages: messages}
}
