// Package gate implements the semantic-review safety gate: an optional
// second opinion from an LLM that can veto a rule-approved upgrade. The gate
// fails closed; no error path returns an approval.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/nwops/upgraded/pkg/models"
)

const systemPrompt = `You are a network upgrade safety reviewer. You receive a device, its upgrade policy, recent health metrics, and a rule-based decision. Decide whether the upgrade should proceed.

Guidelines:
- Prioritize network stability and safety.
- Consider firmware compatibility and vendor recommendations.
- Evaluate recent error patterns and resource utilization.
- If unsure or data is incomplete, err on the side of caution and deny.

Respond with ONLY valid JSON in this exact format:
{"approve": true/false, "reason": "concise explanation", "confidence": 0.0-1.0}`

// ChatClient is the slice of the OpenAI client the gate uses. *openai.Client
// satisfies it; tests substitute fakes.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config controls the safety gate.
type Config struct {
	Enabled bool
	Model   string
	Timeout time.Duration
}

// SafetyGate obtains a final verdict for a rule-evaluated upgrade request.
type SafetyGate struct {
	client ChatClient
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a SafetyGate. A nil clock uses time.Now.
func New(client ChatClient, cfg Config, logger *zap.Logger, now func() time.Time) *SafetyGate {
	if now == nil {
		now = time.Now
	}
	return &SafetyGate{client: client, cfg: cfg, logger: logger, now: now}
}

// opinion is the reviewer's parsed response. All fields are required;
// decoding uses pointers so a missing field is detectable.
type opinion struct {
	Approve    bool
	Reason     string
	Confidence float64
}

// Review returns the final verdict for the request. When the gate is
// disabled the rule verdict passes through unmodified. When enabled, a
// successful review replaces approve/reason/confidence; target version,
// risk score and pre-checks always carry over from the rule verdict, since
// the gate reasons about safety, never version selection. Any failure while
// obtaining the opinion yields a denial naming the gate failure.
func (g *SafetyGate) Review(ctx context.Context, device *models.Device, pol models.Policy, snap *models.HealthSnapshot, rule models.Verdict) models.Verdict {
	if !g.cfg.Enabled {
		return rule
	}

	op, err := g.obtain(ctx, device, pol, snap, rule)
	if err != nil {
		g.logger.Warn("safety gate failed, denying",
			zap.String("device_id", device.ID), zap.Error(err))
		return models.Verdict{
			Approve:       false,
			Reason:        fmt.Sprintf("safety gate failed (fail closed): %v", err),
			Conditions:    rule.Conditions,
			TargetVersion: rule.TargetVersion,
			Confidence:    0,
			Source:        models.VerdictSourceGate,
			RiskScore:     rule.RiskScore,
			PreChecks:     rule.PreChecks,
			EvaluatedAt:   g.now().UTC(),
		}
	}

	g.logger.Info("safety gate verdict",
		zap.String("device_id", device.ID),
		zap.Bool("approve", op.Approve),
		zap.Float64("confidence", op.Confidence),
	)

	return models.Verdict{
		Approve:       op.Approve,
		Reason:        op.Reason,
		Conditions:    rule.Conditions,
		TargetVersion: rule.TargetVersion,
		Confidence:    op.Confidence,
		Source:        models.VerdictSourceGate,
		RiskScore:     rule.RiskScore,
		PreChecks:     rule.PreChecks,
		EvaluatedAt:   g.now().UTC(),
	}
}

// obtain performs the review call. Returning an error (rather than a
// degraded opinion) is what lets Review enforce fail-closed structurally.
func (g *SafetyGate) obtain(ctx context.Context, device *models.Device, pol models.Policy, snap *models.HealthSnapshot, rule models.Verdict) (*opinion, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	prompt, err := buildPrompt(device, pol, snap, rule)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Temperature: 0.1,
		MaxTokens:   1024,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("reviewer returned no choices")
	}

	return parseOpinion(resp.Choices[0].Message.Content)
}

func buildPrompt(device *models.Device, pol models.Policy, snap *models.HealthSnapshot, rule models.Verdict) (string, error) {
	payload := map[string]any{
		"device":          device,
		"policy":          pol,
		"health_snapshot": snap,
		"rule_verdict":    rule,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return "UPGRADE REQUEST:\n" + string(data), nil
}

// parseOpinion decodes the reviewer's JSON. Missing or out-of-range fields
// are gate failures, never defaults.
func parseOpinion(content string) (*opinion, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw struct {
		Approve    *bool    `json:"approve"`
		Reason     *string  `json:"reason"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("reviewer returned invalid JSON: %w", err)
	}
	if raw.Approve == nil || raw.Reason == nil || raw.Confidence == nil {
		return nil, fmt.Errorf("reviewer response missing required fields")
	}

	conf := *raw.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return &opinion{Approve: *raw.Approve, Reason: *raw.Reason, Confidence: conf}, nil
}
