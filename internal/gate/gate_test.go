package gate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nwops/upgraded/internal/testutil"
	"github.com/nwops/upgraded/pkg/models"
)

type fakeChat struct {
	content string
	err     error
	calls   int
	lastReq openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func newGate(chat ChatClient, enabled bool) *SafetyGate {
	cfg := Config{Enabled: enabled, Model: "gpt-4o-mini", Timeout: 5 * time.Second}
	return New(chat, cfg, testutil.Logger(), testutil.NewClock().Now)
}

func ruleVerdict(approve bool) models.Verdict {
	return models.Verdict{
		Approve:       approve,
		Reason:        "rule reason",
		Conditions:    []string{"cpu_avg 45.0% (limit 75.0%): pass"},
		TargetVersion: "17.3.1",
		Confidence:    0.8,
		Source:        models.VerdictSourceRule,
		RiskScore:     10,
		PreChecks:     []string{"config_backup"},
	}
}

func reviewArgs() (*models.Device, models.Policy, *models.HealthSnapshot) {
	device := testutil.NewDevice()
	return &device, testutil.NewPolicy(), testutil.NewSnapshot(device.ID, 45, 60, 0)
}

func TestReviewDisabledPassesThrough(t *testing.T) {
	chat := &fakeChat{}
	g := newGate(chat, false)
	device, pol, snap := reviewArgs()

	rule := ruleVerdict(true)
	v := g.Review(context.Background(), device, pol, snap, rule)

	if chat.calls != 0 {
		t.Errorf("reviewer called %d times with gate disabled, want 0", chat.calls)
	}
	if v.Source != models.VerdictSourceRule {
		t.Errorf("Source = %q, want rule verdict unchanged", v.Source)
	}
	if !v.Approve {
		t.Error("Approve = false, want rule approval preserved")
	}
}

func TestReviewApproves(t *testing.T) {
	chat := &fakeChat{content: `{"approve": true, "reason": "metrics look safe", "confidence": 0.92}`}
	g := newGate(chat, true)
	device, pol, snap := reviewArgs()

	v := g.Review(context.Background(), device, pol, snap, ruleVerdict(true))

	if !v.Approve {
		t.Fatalf("Approve = false, want true; reason: %s", v.Reason)
	}
	if v.Source != models.VerdictSourceGate {
		t.Errorf("Source = %q, want %q", v.Source, models.VerdictSourceGate)
	}
	if v.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", v.Confidence)
	}
	if v.Reason != "metrics look safe" {
		t.Errorf("Reason = %q, want reviewer reason", v.Reason)
	}
	// Version selection and advisory data stay with the rule verdict.
	if v.TargetVersion != "17.3.1" {
		t.Errorf("TargetVersion = %q, want carried over", v.TargetVersion)
	}
	if v.RiskScore != 10 {
		t.Errorf("RiskScore = %d, want carried over 10", v.RiskScore)
	}
	if len(v.PreChecks) != 1 {
		t.Errorf("PreChecks = %v, want carried over", v.PreChecks)
	}
}

func TestReviewVetoesRuleApproval(t *testing.T) {
	chat := &fakeChat{content: `{"approve": false, "reason": "error spike last hour", "confidence": 0.7}`}
	g := newGate(chat, true)
	device, pol, snap := reviewArgs()

	v := g.Review(context.Background(), device, pol, snap, ruleVerdict(true))

	if v.Approve {
		t.Fatal("Approve = true, want reviewer veto to stand")
	}
	if v.Reason != "error spike last hour" {
		t.Errorf("Reason = %q, want reviewer reason", v.Reason)
	}
}

func TestReviewFailsClosed(t *testing.T) {
	tests := []struct {
		name string
		chat *fakeChat
	}{
		{"transport error", &fakeChat{err: errors.New("connection refused")}},
		{"timeout", &fakeChat{err: context.DeadlineExceeded}},
		{"invalid json", &fakeChat{content: "the upgrade looks fine to me"}},
		{"missing fields", &fakeChat{content: `{"approve": true}`}},
		{"empty response", &fakeChat{content: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGate(tt.chat, true)
			device, pol, snap := reviewArgs()

			v := g.Review(context.Background(), device, pol, snap, ruleVerdict(true))

			if v.Approve {
				t.Fatal("Approve = true, want denial on gate failure")
			}
			if v.Source != models.VerdictSourceGate {
				t.Errorf("Source = %q, want %q", v.Source, models.VerdictSourceGate)
			}
			if v.Confidence != 0 {
				t.Errorf("Confidence = %v, want 0", v.Confidence)
			}
			if !strings.Contains(v.Reason, "safety gate failed (fail closed)") {
				t.Errorf("Reason = %q, want fail-closed marker", v.Reason)
			}
			if v.TargetVersion != "17.3.1" {
				t.Errorf("TargetVersion = %q, want carried over on denial", v.TargetVersion)
			}
		})
	}
}

func TestReviewSendsContext(t *testing.T) {
	chat := &fakeChat{content: `{"approve": true, "reason": "ok", "confidence": 0.9}`}
	g := newGate(chat, true)
	device, pol, snap := reviewArgs()

	g.Review(context.Background(), device, pol, snap, ruleVerdict(true))

	if len(chat.lastReq.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want system + user", len(chat.lastReq.Messages))
	}
	user := chat.lastReq.Messages[1].Content
	for _, want := range []string{device.ID, "health_snapshot", "rule_verdict", "17.3.1"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
	if chat.lastReq.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want configured model", chat.lastReq.Model)
	}
}

func TestParseOpinion(t *testing.T) {
	tests := []struct {
		name    string
		content string
		approve bool
		conf    float64
		wantErr bool
	}{
		{"plain json", `{"approve": true, "reason": "ok", "confidence": 0.9}`, true, 0.9, false},
		{"fenced json", "```json\n{\"approve\": false, \"reason\": \"no\", \"confidence\": 0.5}\n```", false, 0.5, false},
		{"confidence clamped high", `{"approve": true, "reason": "ok", "confidence": 3.2}`, true, 1, false},
		{"confidence clamped low", `{"approve": true, "reason": "ok", "confidence": -0.4}`, true, 0, false},
		{"missing reason", `{"approve": true, "confidence": 0.9}`, false, 0, true},
		{"not json", "approved!", false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := parseOpinion(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseOpinion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if op.Approve != tt.approve {
				t.Errorf("Approve = %v, want %v", op.Approve, tt.approve)
			}
			if op.Confidence != tt.conf {
				t.Errorf("Confidence = %v, want %v", op.Confidence, tt.conf)
			}
		})
	}
}
