// Package research holds the LLM-backed collaborators of a portfolio run: the
// per-symbol researcher and the holistic decision aggregator. Both return
// typed data; prompt contents and model choice stay opaque to the core.
package research

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
)

const defaultModel = "gemini-2.5-flash"

// LLMClient is a thin JSON-mode client for the Gemini REST API.
type LLMClient struct {
	http   *resty.Client
	apiKey string
	model  string
}

// NewLLMClient returns a client for the given model (empty selects a default).
func NewLLMClient(apiKey, model string) *LLMClient {
	if model == "" {
		model = defaultModel
	}
	return &LLMClient{
		http:   resty.New().SetBaseURL("https://generativelanguage.googleapis.com/v1beta"),
		apiKey: apiKey,
		model:  model,
	}
}

type generateRequest struct {
	SystemInstruction *content         `json:"system_instruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"response_mime_type"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// generateJSON sends one prompt and unmarshals the model's JSON reply into
// out.
func (c *LLMClient) generateJSON(ctx context.Context, systemInstruction, prompt string, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("LLM client not configured: missing API key")
	}

	req := generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseMIMEType: "application/json"},
	}
	if systemInstruction != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemInstruction}}}
	}

	var resp generateResponse
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(req).
		SetResult(&resp).
		Post(fmt.Sprintf("/models/%s:generateContent", c.model))
	if err != nil {
		return fmt.Errorf("LLM request failed: %w", err)
	}
	if httpResp.IsError() {
		return fmt.Errorf("LLM API error %d: %s", httpResp.StatusCode(), httpResp.String())
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return fmt.Errorf("no candidates in LLM response")
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("failed to parse LLM JSON output: %w. Raw: %s", err, text)
	}
	return nil
}
