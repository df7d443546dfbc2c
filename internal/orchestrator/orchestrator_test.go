package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nwops/upgraded/internal/audit"
	"github.com/nwops/upgraded/internal/automation"
	"github.com/nwops/upgraded/internal/gate"
	"github.com/nwops/upgraded/internal/inventory"
	"github.com/nwops/upgraded/internal/policy"
	"github.com/nwops/upgraded/internal/telemetry"
	"github.com/nwops/upgraded/internal/testutil"
	"github.com/nwops/upgraded/pkg/models"
)

type fakeReader struct {
	cpu  float64
	mem  float64
	errs int64
}

func (r *fakeReader) CPUAvg(_ context.Context, _, _ string) (float64, error)     { return r.cpu, nil }
func (r *fakeReader) MemFreeMin(_ context.Context, _, _ string) (float64, error) { return r.mem, nil }
func (r *fakeReader) CriticalErrors(_ context.Context, _, _ string) (int64, error) {
	return r.errs, nil
}

type fakeChat struct {
	err error
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: `{"approve": true, "reason": "ok", "confidence": 0.9}`}},
		},
	}, nil
}

// fakeRunner records invocations and serves canned per-mode results. The
// optional block channel holds Run open until closed, for concurrency tests.
type fakeRunner struct {
	mu      sync.Mutex
	modes   []automation.Mode
	results map[automation.Mode]*automation.Result
	errs    map[automation.Mode]error
	block   chan struct{}
	started chan struct{}
}

func (r *fakeRunner) Run(_ context.Context, _, _ string, mode automation.Mode) (*automation.Result, error) {
	r.mu.Lock()
	r.modes = append(r.modes, mode)
	r.mu.Unlock()

	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.block != nil {
		<-r.block
	}
	if err := r.errs[mode]; err != nil {
		return nil, err
	}
	if res := r.results[mode]; res != nil {
		return res, nil
	}
	return &automation.Result{Success: true, ExitCode: 0, Stdout: "ok"}, nil
}

func (r *fakeRunner) calls() []automation.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]automation.Mode(nil), r.modes...)
}

type harness struct {
	orch     *Orchestrator
	devices  inventory.DeviceRepository
	recorder audit.Recorder
	runner   *fakeRunner
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	reader      telemetry.Reader
	chat        gate.ChatClient
	gateEnabled bool
}

func withReader(r telemetry.Reader) harnessOption {
	return func(c *harnessConfig) { c.reader = r }
}

func withGate(chat gate.ChatClient) harnessOption {
	return func(c *harnessConfig) { c.chat = chat; c.gateEnabled = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := harnessConfig{
		reader: &fakeReader{cpu: 45, mem: 60},
		chat:   &fakeChat{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	db := testutil.NewStore(t)
	ctx := context.Background()
	if err := db.Migrate(ctx, "inventory", inventory.Migrations); err != nil {
		t.Fatalf("migrate inventory: %v", err)
	}
	if err := db.Migrate(ctx, "audit", audit.Migrations); err != nil {
		t.Fatalf("migrate audit: %v", err)
	}

	logger := testutil.Logger()
	clock := testutil.NewClock()

	devices := inventory.NewSQLiteDeviceRepository(db.DB())
	policies := inventory.NewSQLitePolicyRepository(db.DB())
	recorder := audit.NewSQLiteRecorder(db.DB(), nil)

	defaults := policy.Defaults{
		MaxCPUPercent:         75,
		MinFreeMemPercent:     25,
		BlockIfCriticalErrors: true,
		Window:                "2h",
	}
	resolver := policy.NewResolver(policies, defaults)
	window := policy.NewWindowChecker(policy.WindowConfig{}, clock.Now)
	evaluator := policy.NewEvaluator(window, nil, logger, clock.Now)
	health := telemetry.NewHealthAggregator(cfg.reader, time.Second, logger, clock.Now)
	safetyGate := gate.New(cfg.chat, gate.Config{
		Enabled: cfg.gateEnabled,
		Model:   "gpt-4o-mini",
		Timeout: time.Second,
	}, logger, clock.Now)

	runner := &fakeRunner{
		results: map[automation.Mode]*automation.Result{},
		errs:    map[automation.Mode]error{},
	}

	orch := New(devices, resolver, health, evaluator, safetyGate, runner, recorder, defaults.Window, logger)

	return &harness{orch: orch, devices: devices, recorder: recorder, runner: runner}
}

func (h *harness) seedDevice(t *testing.T, id string) models.Device {
	t.Helper()
	device := testutil.NewDevice(testutil.WithID(id))
	if err := h.devices.Create(context.Background(), &device); err != nil {
		t.Fatalf("seed device: %v", err)
	}
	return device
}

func TestEvaluateRecordsVerdict(t *testing.T) {
	h := newHarness(t)
	h.seedDevice(t, "r1")
	ctx := context.Background()

	eval, err := h.orch.Evaluate(ctx, "r1")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !eval.Verdict.Approve {
		t.Errorf("Approve = false, want true; reason: %s", eval.Verdict.Reason)
	}
	if eval.Snapshot == nil || eval.Snapshot.Status != models.HealthHealthy {
		t.Errorf("Snapshot = %+v, want healthy", eval.Snapshot)
	}
	if got := h.runner.calls(); len(got) != 0 {
		t.Errorf("runner invoked %v during evaluation, want none", got)
	}

	events, err := h.recorder.ListEvents(ctx, "r1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Event != "verdict" {
		t.Errorf("events = %+v, want single verdict event", events)
	}
}

func TestEvaluateUnknownDevice(t *testing.T) {
	h := newHarness(t)
	if _, err := h.orch.Evaluate(context.Background(), "ghost"); !errors.Is(err, inventory.ErrNotFound) {
		t.Errorf("Evaluate() error = %v, want ErrNotFound", err)
	}
}

func TestUpgradeDeniedSkipsBackend(t *testing.T) {
	h := newHarness(t, withReader(&fakeReader{cpu: 95, mem: 60}))
	h.seedDevice(t, "r1")

	record, err := h.orch.Upgrade(context.Background(), "r1", ModeExecute)
	if err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if record.Status != models.StatusDenied {
		t.Errorf("Status = %q, want denied", record.Status)
	}
	if record.CompletedAt == nil {
		t.Error("CompletedAt = nil, want terminal stamp")
	}
	if got := h.runner.calls(); len(got) != 0 {
		t.Errorf("runner invoked %v for a denied verdict, want none", got)
	}
}

func TestUpgradePrecheckFailure(t *testing.T) {
	h := newHarness(t)
	h.seedDevice(t, "r1")
	h.runner.results[automation.ModeCheck] = &automation.Result{Success: false, ExitCode: 2, Stderr: "unreachable"}

	record, err := h.orch.Upgrade(context.Background(), "r1", ModeExecute)
	if err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if record.Status != models.StatusPrecheckFailed {
		t.Errorf("Status = %q, want precheck_failed", record.Status)
	}
	if !strings.Contains(string(record.Detail), "unreachable") {
		t.Errorf("Detail = %s, want backend stderr preserved", record.Detail)
	}
	if got := h.runner.calls(); len(got) != 1 || got[0] != automation.ModeCheck {
		t.Errorf("runner calls = %v, want [check] only", got)
	}
}

func TestUpgradeRunnerInvocationError(t *testing.T) {
	h := newHarness(t)
	h.seedDevice(t, "r1")
	h.runner.errs[automation.ModeCheck] = errors.New("ansible-playbook: executable file not found")

	record, err := h.orch.Upgrade(context.Background(), "r1", ModeExecute)
	if err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if record.Status != models.StatusPrecheckFailed {
		t.Errorf("Status = %q, want precheck_failed", record.Status)
	}
	if !strings.Contains(string(record.Detail), "executable file not found") {
		t.Errorf("Detail = %s, want invocation error", record.Detail)
	}
}

func TestUpgradePlanOnly(t *testing.T) {
	h := newHarness(t)
	h.seedDevice(t, "r1")

	record, err := h.orch.Upgrade(context.Background(), "r1", ModePlanOnly)
	if err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if record.Status != models.StatusSuccess {
		t.Errorf("Status = %q, want success", record.Status)
	}
	if !strings.Contains(string(record.Detail), `"plan_only":true`) {
		t.Errorf("Detail = %s, want plan_only marker", record.Detail)
	}
	if got := h.runner.calls(); len(got) != 1 || got[0] != automation.ModeCheck {
		t.Errorf("runner calls = %v, want [check] only in plan mode", got)
	}
}

func TestUpgradeExecuteSuccess(t *testing.T) {
	h := newHarness(t)
	h.seedDevice(t, "r1")
	ctx := context.Background()

	record, err := h.orch.Upgrade(ctx, "r1", ModeExecute)
	if err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if record.Status != models.StatusSuccess {
		t.Errorf("Status = %q, want success", record.Status)
	}
	if record.TargetVersion != "17.3.1" {
		t.Errorf("TargetVersion = %q, want 17.3.1", record.TargetVersion)
	}

	want := []automation.Mode{automation.ModeCheck, automation.ModeApply}
	got := h.runner.calls()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("runner calls = %v, want %v", got, want)
	}

	// The audit trail covers every transition.
	events, err := h.recorder.ListEvents(ctx, "r1", 20)
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool, len(events))
	for _, e := range events {
		seen[e.Event] = true
	}
	for _, want := range []string{"attempt_created", "status_precheck", "status_running", "status_success"} {
		if !seen[want] {
			t.Errorf("missing audit event %q", want)
		}
	}
}

func TestUpgradeExecuteApplyFails(t *testing.T) {
	h := newHarness(t)
	h.seedDevice(t, "r1")
	h.runner.results[automation.ModeApply] = &automation.Result{Success: false, ExitCode: 4, Stderr: "image verify failed"}

	record, err := h.orch.Upgrade(context.Background(), "r1", ModeExecute)
	if err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if record.Status != models.StatusFailed {
		t.Errorf("Status = %q, want failed", record.Status)
	}
	if !strings.Contains(string(record.Detail), "image verify failed") {
		t.Errorf("Detail = %s, want apply stderr", record.Detail)
	}
}

func TestUpgradeGateFailureDenies(t *testing.T) {
	h := newHarness(t, withGate(&fakeChat{err: errors.New("connection refused")}))
	h.seedDevice(t, "r1")

	record, err := h.orch.Upgrade(context.Background(), "r1", ModeExecute)
	if err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if record.Status != models.StatusDenied {
		t.Errorf("Status = %q, want denied when the gate is unreachable", record.Status)
	}
	if !strings.Contains(record.Verdict.Reason, "safety gate failed") {
		t.Errorf("Reason = %q, want gate failure named", record.Verdict.Reason)
	}
	if got := h.runner.calls(); len(got) != 0 {
		t.Errorf("runner invoked %v despite gate denial, want none", got)
	}
}

func TestUpgradeBlockedByOpenAttempt(t *testing.T) {
	h := newHarness(t)
	h.seedDevice(t, "r1")
	ctx := context.Background()

	// Leftover from a crashed run: pending row, no lock held.
	stale := &models.UpgradeRecord{DeviceID: "r1", Status: models.StatusRunning}
	if err := h.recorder.CreateAttempt(ctx, stale); err != nil {
		t.Fatal(err)
	}

	if _, err := h.orch.Upgrade(ctx, "r1", ModeExecute); !errors.Is(err, ErrAttemptInFlight) {
		t.Errorf("Upgrade() error = %v, want ErrAttemptInFlight", err)
	}
	if _, err := h.orch.Evaluate(ctx, "r1"); !errors.Is(err, ErrAttemptInFlight) {
		t.Errorf("Evaluate() error = %v, want ErrAttemptInFlight", err)
	}
}

func TestUpgradeUnknownDevice(t *testing.T) {
	h := newHarness(t)
	if _, err := h.orch.Upgrade(context.Background(), "ghost", ModeExecute); !errors.Is(err, inventory.ErrNotFound) {
		t.Errorf("Upgrade() error = %v, want ErrNotFound", err)
	}
}

func TestConcurrentUpgradesSameDevice(t *testing.T) {
	h := newHarness(t)
	h.seedDevice(t, "r1")
	h.runner.block = make(chan struct{})
	h.runner.started = make(chan struct{}, 1)

	first := make(chan error, 1)
	go func() {
		_, err := h.orch.Upgrade(context.Background(), "r1", ModeExecute)
		first <- err
	}()

	// Wait until the first attempt holds the device inside the runner.
	select {
	case <-h.runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first upgrade never reached the runner")
	}

	if _, err := h.orch.Upgrade(context.Background(), "r1", ModeExecute); !errors.Is(err, ErrAttemptInFlight) {
		t.Errorf("second Upgrade() error = %v, want ErrAttemptInFlight", err)
	}

	close(h.runner.block)
	if err := <-first; err != nil {
		t.Errorf("first Upgrade() error = %v", err)
	}
}

func TestRollback(t *testing.T) {
	h := newHarness(t)
	device := h.seedDevice(t, "r1")

	record, err := h.orch.Rollback(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if record.Kind != models.AttemptRollback {
		t.Errorf("Kind = %q, want rollback", record.Kind)
	}
	if record.Status != models.StatusSuccess {
		t.Errorf("Status = %q, want success", record.Status)
	}
	if record.TargetVersion != device.CurrentVersion {
		t.Errorf("TargetVersion = %q, want current version %q", record.TargetVersion, device.CurrentVersion)
	}
	if got := h.runner.calls(); len(got) != 1 || got[0] != automation.ModeRollback {
		t.Errorf("runner calls = %v, want [rollback]", got)
	}
}

func TestRollbackFailure(t *testing.T) {
	h := newHarness(t)
	h.seedDevice(t, "r1")
	h.runner.results[automation.ModeRollback] = &automation.Result{Success: false, ExitCode: 1}

	record, err := h.orch.Rollback(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if record.Status != models.StatusFailed {
		t.Errorf("Status = %q, want failed", record.Status)
	}
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	h.seedDevice(t, "r1")
	ctx := context.Background()

	if _, err := h.orch.Upgrade(ctx, "r1", ModeExecute); err != nil {
		t.Fatal(err)
	}

	records, err := h.orch.History(ctx, "r1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len = %d, want 1", len(records))
	}
	if records[0].Status != models.StatusSuccess {
		t.Errorf("Status = %q, want success", records[0].Status)
	}

	if _, err := h.orch.History(ctx, "ghost", 10); !errors.Is(err, inventory.ErrNotFound) {
		t.Errorf("History() error = %v, want ErrNotFound for unknown device", err)
	}
}
