package generation

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	systemGenerate = `You are an expert React developer. Generate a single self-contained React
component written in TypeScript with Tailwind CSS classes for the user's
description. Reply with the component code in one fenced code block.`

	systemImprove = `You are an expert React developer. Improve the given component according
to the feedback. Keep its public props unless the feedback asks otherwise.
Reply with the full updated component in one fenced code block.`

	systemExplain = `You are a senior engineer explaining code to a non-programmer. Describe
what the component renders, which props it accepts and how it behaves.
Reply in plain prose without code blocks.`

	systemTests = `You are an expert in React Testing Library and Jest. Write a test file
covering rendering, props and user interaction for the given component.
Reply with the test file in one fenced code block.`

	systemValidate = `You review React components for correctness, accessibility and security.
Reply with JSON only, no prose, in the form
{"valid": true|false, "issues": ["..."]}. Use an empty issues list when
the component is valid.`
)

// extractCode returns the body of the first fenced code block in text, or
// the trimmed text when it has no fence.
func extractCode(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return strings.TrimSpace(text)
	}
	body := text[start+3:]
	// Drop the info string ("tsx", "typescript") on the opening fence line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

var errNoJSONObject = errors.New("no JSON object in provider output")

// parseValidation reads the {valid, issues} object from the provider's
// reply, tolerating prose or fences around it.
func parseValidation(text string) (*Validation, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, errNoJSONObject
	}

	var raw struct {
		Valid  *bool    `json:"valid"`
		Issues []string `json:"issues"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, err
	}
	if raw.Valid == nil {
		return nil, errors.New(`provider output lacks "valid"`)
	}
	v := &Validation{Valid: *raw.Valid, Issues: raw.Issues}
	if v.Issues == nil {
		v.Issues = []string{}
	}
	return v, nil
}
