// Package gemini implements the AI policy-analysis client. It is a
// stateless request wrapper: prompt composition is deterministic, there is
// no retry, no streaming, and no request deduplication — if two analyses
// race, the later response wins at the caller.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pacifymap/incident-map-service/internal/domain"
	"github.com/pacifymap/incident-map-service/internal/observability"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-1.5-flash"

	apiKeyPlaceholder = "your-api-key-here"
)

// InsightKind selects one of the fixed focused questions.
type InsightKind string

const (
	InsightSafetyImpact   InsightKind = "safety_impact"
	InsightConstitutional InsightKind = "constitutional"
	InsightEffectiveness  InsightKind = "effectiveness"
	InsightComparison     InsightKind = "comparison"
	InsightUnintended     InsightKind = "unintended"
	InsightImplementation InsightKind = "implementation"
)

// insightQuestions maps each kind to its fixed question.
var insightQuestions = map[InsightKind]string{
	InsightSafetyImpact:   "What measurable impact has this policy likely had on public safety and gun violence rates?",
	InsightConstitutional: "What are the main constitutional considerations and Second Amendment implications of this policy?",
	InsightEffectiveness:  "Based on available evidence, how effective has this type of policy been at achieving its stated goals?",
	InsightComparison:     "How does this policy compare to similar laws in other states, and what do the differences suggest?",
	InsightUnintended:     "What unintended consequences, positive or negative, might this policy have produced?",
	InsightImplementation: "What practical challenges arise in implementing and enforcing this policy?",
}

// Client calls the generative-language API. A missing or placeholder key
// disables the client without any network call.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	model      string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an analysis client. The key is read once; pass the
// value of AI_API_KEY.
func NewClient(apiKey string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		logger:     logger,
		metrics:    metrics,
	}
}

// Configured reports whether a usable API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.apiKey != apiKeyPlaceholder
}

// Analyze requests an analysis of the policy. With an empty question the
// response is the five-section structured report; with a question it is a
// focused answer without section headers.
func (c *Client) Analyze(ctx context.Context, p domain.Policy, question string) (string, error) {
	kind := "structured"
	if question != "" {
		kind = "question"
	}
	return c.generate(ctx, kind, BuildPrompt(p, question))
}

// Insight requests the fixed focused question for the given kind.
func (c *Client) Insight(ctx context.Context, p domain.Policy, kind InsightKind) (string, error) {
	q, ok := insightQuestions[kind]
	if !ok {
		return "", fmt.Errorf("unknown insight kind %q", kind)
	}
	return c.generate(ctx, string(kind), BuildPrompt(p, q))
}

func (c *Client) generate(ctx context.Context, kind, prompt string) (string, error) {
	if !c.Configured() {
		c.metrics.AnalysisRequests.WithLabelValues(kind, "not_configured").Inc()
		return "", domain.ErrNotConfigured
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     0.4,
			MaxOutputTokens: 2048,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.AnalysisRequests.WithLabelValues(kind, "error").Inc()
		return "", &domain.UpstreamError{Err: err}
	}
	defer resp.Body.Close()
	c.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		c.metrics.AnalysisRequests.WithLabelValues(kind, "error").Inc()
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return "", &domain.UpstreamError{Status: resp.StatusCode}
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		c.metrics.AnalysisRequests.WithLabelValues(kind, "error").Inc()
		return "", &domain.UpstreamError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		c.metrics.AnalysisRequests.WithLabelValues(kind, "empty").Inc()
		return "", &domain.UpstreamError{Err: fmt.Errorf("empty response")}
	}

	c.metrics.AnalysisRequests.WithLabelValues(kind, "success").Inc()
	return gr.Candidates[0].Content.Parts[0].Text, nil
}

// BuildPrompt composes the deterministic analysis prompt from a policy
// record. Without a question it asks for the five named sections with
// ## headers and short bulleted lines; with one it asks for a focused
// response without headers.
func BuildPrompt(p domain.Policy, question string) string {
	var b strings.Builder

	b.WriteString("You are analyzing a state firearm policy for an interactive gun-violence map.\n\n")
	fmt.Fprintf(&b, "State: %s\n", p.State)
	fmt.Fprintf(&b, "Law class: %s\n", p.LawClass)
	fmt.Fprintf(&b, "Effect: %s\n", p.Effect)
	fmt.Fprintf(&b, "Effective date: %s\n", p.EffectiveDate)
	fmt.Fprintf(&b, "Statute text: %s\n", p.OriginalContent)
	if p.HumanExplanation != "" {
		fmt.Fprintf(&b, "Summary: %s\n", p.HumanExplanation)
	}
	if s := p.StateStats; s != nil {
		fmt.Fprintf(&b, "State mass-shooting history: %d incidents (%.1f per year), %d killed, %d injured.\n",
			s.Total, s.AvgPerYear, s.Killed, s.Injured)
	}
	b.WriteString("\n")

	if question != "" {
		fmt.Fprintf(&b, "Question: %s\n", question)
		b.WriteString("Give a focused, factual response to the question only. Do not use section headers.\n")
		return b.String()
	}

	b.WriteString("Structure the analysis into exactly these five sections, each introduced with a ## header:\n")
	b.WriteString("## Policy Summary\n")
	b.WriteString("## Constitutional Analysis\n")
	b.WriteString("## Safety Impact\n")
	b.WriteString("## State Context\n")
	b.WriteString("## Key Takeaways\n")
	b.WriteString("Use short bulleted lines inside each section.\n")
	return b.String()
}

// Request/response wire types for the generateContent endpoint.

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}
