package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scribe/api/internal/workspace"
)

// Generator produces a structured note from the plain text of a source note.
type Generator interface {
	Generate(ctx context.Context, templateType workspace.TemplateType, sourceText string) (string, error)
}

// OpenAIGenerator calls the OpenAI chat completions API with a per-template
// system prompt.
type OpenAIGenerator struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func NewOpenAIGenerator(baseURL, apiKey, model string) *OpenAIGenerator {
	return &OpenAIGenerator{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	MaxTokens        int           `json:"max_tokens"`
	PresencePenalty  float64       `json:"presence_penalty"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, templateType workspace.TemplateType, sourceText string) (string, error) {
	if g.apiKey == "" {
		return "", generationErr(FailureService, errors.New("no API key configured"))
	}

	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(templateType)},
			{Role: "user", Content: sourceText},
		},
		Temperature:      0,
		MaxTokens:        2000,
		PresencePenalty:  0.1,
		FrequencyPenalty: 0.2,
	})
	if err != nil {
		return "", generationErr(FailureService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", generationErr(FailureService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", generationErr(FailureNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", generationErr(FailureNetwork, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil && resp.StatusCode == http.StatusOK {
		return "", generationErr(FailureMalformed, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", generationErr(FailureQuota, apiError(resp.StatusCode, parsed))
	case resp.StatusCode >= 500:
		return "", generationErr(FailureService, apiError(resp.StatusCode, parsed))
	case resp.StatusCode != http.StatusOK:
		return "", generationErr(FailureService, apiError(resp.StatusCode, parsed))
	}

	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", generationErr(FailureMalformed, errors.New("response contained no completion"))
	}
	return parsed.Choices[0].Message.Content, nil
}

func apiError(status int, parsed chatResponse) error {
	message := "unknown error"
	if parsed.Error != nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}
	return fmt.Errorf("OpenAI API error: %d - %s", status, message)
}

const basePrompt = `You are a professional medical note writer. Analyze the patient notes and create a well-formatted %s note.
Format your response with clear sections and structure.
Present each section header on its own line with a colon at the end.
Do not provide any additional explanations, comments, or analysis outside the template itself.
Use only information present in the original notes.`

func systemPrompt(templateType workspace.TemplateType) string {
	prompt := fmt.Sprintf(basePrompt, templateType)
	switch templateType {
	case workspace.TemplateSOAP:
		return prompt + `
The SOAP note must have these specific sections:
Subjective: Patient's reported symptoms and concerns
Objective: Observable findings and measurements
Assessment: Clinical assessment of the patient's condition
Plan: Treatment plan and next steps`
	case workspace.TemplatePIRP:
		return prompt + `
The PIRP note must have these specific sections:
Problem: Identify the main clinical problems
Intervention: Describe interventions performed
Response: Document the patient's response to interventions
Plan: Detail the ongoing care plan`
	case workspace.TemplateDAP:
		return prompt + `
The DAP note must have these specific sections:
Data: Relevant patient information and observations
Assessment: Clinical assessment of the conditions
Plan: Treatment strategy and recommendations`
	case workspace.TemplatePIE:
		return prompt + `
The PIE note must have these specific sections:
Problem: Identify the patient's medical problems
Intervention: List the interventions performed
Evaluation: Evaluate the effectiveness of interventions`
	case workspace.TemplateSIRP:
		return prompt + `
The SIRP note must have these specific sections:
Situation: Current patient situation and context
Intervention: Interventions performed
Response: Patient's response to interventions
Plan: Next steps in treatment`
	case workspace.TemplateGIRP:
		return prompt + `
The GIRP note must have these specific sections:
Goal: Treatment goals for the patient
Intervention: Interventions performed or planned
Response: Patient's response to interventions
Plan: Ongoing plan and next steps`
	default:
		return prompt + `
Organize the information in a structured way that follows standard medical documentation practices.`
	}
}
