package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/credential"
	"github.com/rhuss/datagem/pkg/provider"
	"github.com/rhuss/datagem/pkg/sandbox"
	"github.com/rhuss/datagem/pkg/storage"
	"github.com/rhuss/datagem/pkg/storage/memory"
)

// step is one scripted response of the fake provider. Either err is
// returned from Stream or the events are sent on the channel.
type step struct {
	err    error
	events []provider.ProviderEvent
}

func textStep(chunks ...string) step {
	var evs []provider.ProviderEvent
	for _, c := range chunks {
		evs = append(evs, provider.ProviderEvent{Type: provider.ProviderEventTextDelta, Delta: c})
	}
	evs = append(evs, provider.ProviderEvent{Type: provider.ProviderEventDone, FinishReason: "stop"})
	return step{events: evs}
}

func toolStep(name, args string) step {
	return step{events: []provider.ProviderEvent{
		{Type: provider.ProviderEventToolCallDone, ToolCallIndex: 0, ToolCallID: "call_" + name, FunctionName: name, Delta: args},
		{Type: provider.ProviderEventDone, FinishReason: "tool_calls"},
	}}
}

// scriptedProvider replays steps in order and records every request.
type scriptedProvider struct {
	mu       sync.Mutex
	steps    []step
	requests []*provider.ProviderRequest
	ctxs     []context.Context
	caps     provider.ProviderCapabilities
}

func newScriptedProvider(steps ...step) *scriptedProvider {
	return &scriptedProvider{
		steps: steps,
		caps:  provider.ProviderCapabilities{Streaming: true, ToolCalling: true},
	}
}

func (p *scriptedProvider) Name() string                                { return "scripted" }
func (p *scriptedProvider) Capabilities() provider.ProviderCapabilities { return p.caps }
func (p *scriptedProvider) Close() error                                { return nil }

func (p *scriptedProvider) Complete(context.Context, *provider.ProviderRequest) (*provider.ProviderResponse, error) {
	return nil, errors.New("not used")
}

func (p *scriptedProvider) ListModels(context.Context, string) ([]provider.ModelInfo, error) {
	return nil, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, req *provider.ProviderRequest) (<-chan provider.ProviderEvent, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.ctxs = append(p.ctxs, ctx)
	if len(p.steps) == 0 {
		p.mu.Unlock()
		return nil, errors.New("script exhausted")
	}
	s := p.steps[0]
	p.steps = p.steps[1:]
	p.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan provider.ProviderEvent)
	go func() {
		defer close(ch)
		for _, ev := range s.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (p *scriptedProvider) Requests() []*provider.ProviderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*provider.ProviderRequest(nil), p.requests...)
}

// fakeRunner records sandbox requests and returns a fixed message.
type fakeRunner struct {
	mu       sync.Mutex
	requests []sandbox.Request
	message  string
	block    chan struct{} // when set, Execute signals it and waits for ctx
}

func (r *fakeRunner) Execute(ctx context.Context, req sandbox.Request) sandbox.Result {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	if r.block != nil {
		close(r.block)
		<-ctx.Done()
		return sandbox.Result{Classification: sandbox.Timeout, Message: "cancelled"}
	}
	return sandbox.Result{Classification: sandbox.Success, Message: r.message, Stdout: r.message}
}

func (r *fakeRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func newTestEngine(t *testing.T, p provider.Provider, keys []string, runner sandbox.Runner, store storage.Store, cfg Config) (*Engine, *credential.Pool) {
	t.Helper()
	pool, err := credential.New(keys)
	if err != nil {
		t.Fatalf("credential.New: %v", err)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	e, err := New(p, pool, runner, store, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, pool
}

// collect ranges over the sequence and returns every chunk.
func collect(seq func(func(string) bool)) []string {
	var chunks []string
	for chunk := range seq {
		chunks = append(chunks, chunk)
	}
	return chunks
}

var salesData = api.Dataset{
	{"region": "north", "sales": 120.5},
	{"region": "south", "sales": 98.0},
}

func TestNew_Validation(t *testing.T) {
	pool, _ := credential.New([]string{"k"})
	p := newScriptedProvider()
	r := &fakeRunner{}

	if _, err := New(nil, pool, r, nil, Config{Model: "m"}); err == nil {
		t.Error("expected error for nil provider")
	}
	if _, err := New(p, nil, r, nil, Config{Model: "m"}); err == nil {
		t.Error("expected error for nil pool")
	}
	if _, err := New(p, pool, nil, nil, Config{Model: "m"}); err == nil {
		t.Error("expected error for nil runner")
	}
	if _, err := New(p, pool, r, nil, Config{}); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestStream_PlainAnswer(t *testing.T) {
	p := newScriptedProvider(textStep("The dataset ", "has 2 rows."))
	store := memory.New(0)
	e, _ := newTestEngine(t, p, []string{"key-1"}, &fakeRunner{}, store, Config{})

	sess, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "How many rows?", Dataset: salesData})
	chunks := collect(seq)

	if got := strings.Join(chunks, ""); got != "The dataset has 2 rows." {
		t.Errorf("output = %q", got)
	}
	if len(chunks) != 2 {
		t.Errorf("chunks = %q, want 2 deltas", chunks)
	}
	if sess.State() != StateDone {
		t.Errorf("state = %s, want done", sess.State())
	}

	turns := sess.Transcript.Turns()
	if len(turns) != 2 || turns[0].Role != api.RoleUser || turns[1].Role != api.RoleModel {
		t.Fatalf("transcript = %+v", turns)
	}
	if turns[1].Content != "The dataset has 2 rows." {
		t.Errorf("model turn = %q", turns[1].Content)
	}

	req := p.Requests()[0]
	if req.APIKey != "key-1" {
		t.Errorf("APIKey = %q", req.APIKey)
	}
	if !req.Stream {
		t.Error("request not streaming")
	}
	if req.Messages[0].Role != "system" || !strings.Contains(req.Messages[0].Content, "2 rows") {
		t.Errorf("system message = %+v", req.Messages[0])
	}
	if len(req.Tools) != 1 || req.Tools[0].Function.Name != "run_python_code" {
		t.Errorf("tools = %+v", req.Tools)
	}

	uid, _ := store.GetOrCreateUser(context.Background(), storage.DefaultIdentity)
	hist, _ := store.History(context.Background(), uid, 10)
	if len(hist) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(hist))
	}
	if hist[0].Role != api.RoleModel || hist[0].Content != "The dataset has 2 rows." {
		t.Errorf("persisted answer = %+v", hist[0])
	}
	if hist[1].Role != api.RoleUser || hist[1].Content != "How many rows?" {
		t.Errorf("persisted question = %+v", hist[1])
	}
}

func TestStream_ToolLoop(t *testing.T) {
	p := newScriptedProvider(
		toolStep("run_python_code", `{"code":"print(df['sales'].sum())"}`),
		textStep("Total sales are 218.5."),
	)
	runner := &fakeRunner{message: "218.5"}
	e, _ := newTestEngine(t, p, []string{"key-1"}, runner, nil, Config{})

	sess, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "Total sales?", Dataset: salesData})
	chunks := collect(seq)

	if got := strings.Join(chunks, ""); got != "Total sales are 218.5." {
		t.Errorf("output = %q", got)
	}
	if sess.State() != StateDone {
		t.Errorf("state = %s", sess.State())
	}
	if runner.Calls() != 1 {
		t.Fatalf("runner calls = %d, want 1", runner.Calls())
	}
	if got := runner.requests[0]; got.Code != "print(df['sales'].sum())" || len(got.Dataset) != 2 {
		t.Errorf("sandbox request = %+v", got)
	}

	turns := sess.Transcript.Turns()
	wantRoles := []api.Role{api.RoleUser, api.RoleModel, api.RoleTool, api.RoleModel}
	if len(turns) != len(wantRoles) {
		t.Fatalf("transcript = %+v", turns)
	}
	for i, r := range wantRoles {
		if turns[i].Role != r {
			t.Errorf("turn[%d].Role = %s, want %s", i, turns[i].Role, r)
		}
	}
	if turns[2].Content != "218.5" || turns[2].ToolCallID != "call_run_python_code" {
		t.Errorf("tool turn = %+v", turns[2])
	}

	second := p.Requests()[1]
	n := len(second.Messages)
	if second.Messages[n-2].Role != "assistant" || len(second.Messages[n-2].ToolCalls) != 1 {
		t.Errorf("assistant tool call message = %+v", second.Messages[n-2])
	}
	if second.Messages[n-1].Role != "tool" || second.Messages[n-1].ToolCallID != "call_run_python_code" {
		t.Errorf("tool message = %+v", second.Messages[n-1])
	}
	if sess.ToolCalls() != 1 {
		t.Errorf("ToolCalls = %d", sess.ToolCalls())
	}
}

// sequenceRunner returns its results in order and records the code it ran.
type sequenceRunner struct {
	mu      sync.Mutex
	results []sandbox.Result
	codes   []string
}

func (r *sequenceRunner) Execute(_ context.Context, req sandbox.Request) sandbox.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, req.Code)
	res := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	return res
}

func TestStream_ModelRetriesAfterRuntimeError(t *testing.T) {
	const failure = "Code execution failed (exit code 1):\n\n--- Errors/Warnings ---\nKeyError: 'revenue'"
	p := newScriptedProvider(
		toolStep("run_python_code", `{"code":"print(df['revenue'].sum())"}`),
		toolStep("run_python_code", `{"code":"print(df['sales'].sum())"}`),
		textStep("Total sales are 218.5."),
	)
	runner := &sequenceRunner{results: []sandbox.Result{
		{Classification: sandbox.RuntimeError, ExitCode: 1, Message: failure},
		{Classification: sandbox.Success, Stdout: "218.5\n", Message: "218.5\n"},
	}}
	e, _ := newTestEngine(t, p, []string{"key-1"}, runner, nil, Config{})

	sess, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "Total sales?", Dataset: salesData})
	chunks := collect(seq)

	if got := strings.Join(chunks, ""); got != "Total sales are 218.5." {
		t.Errorf("output = %q", got)
	}
	if sess.State() != StateDone {
		t.Fatalf("state = %s, err = %v", sess.State(), sess.Err())
	}
	if len(runner.codes) != 2 || runner.codes[1] != "print(df['sales'].sum())" {
		t.Errorf("sandbox ran %q, want the failing then the corrected code", runner.codes)
	}

	turns := sess.Transcript.Turns()
	wantRoles := []api.Role{api.RoleUser, api.RoleModel, api.RoleTool, api.RoleModel, api.RoleTool, api.RoleModel}
	if len(turns) != len(wantRoles) {
		t.Fatalf("transcript has %d turns, want %d: %+v", len(turns), len(wantRoles), turns)
	}
	for i, r := range wantRoles {
		if turns[i].Role != r {
			t.Errorf("turn[%d].Role = %s, want %s", i, turns[i].Role, r)
		}
	}
	if turns[2].Content != failure {
		t.Errorf("failed tool turn = %q", turns[2].Content)
	}

	reqs := p.Requests()
	if len(reqs) != 3 {
		t.Fatalf("model requests = %d, want 3", len(reqs))
	}
	retry := reqs[1].Messages
	last := retry[len(retry)-1]
	if last.Role != "tool" || !strings.Contains(last.Content, "KeyError: 'revenue'") {
		t.Errorf("retry request ends with %+v, want the runtime error as a tool message", last)
	}
	if sess.ToolCalls() != 2 {
		t.Errorf("ToolCalls = %d, want 2", sess.ToolCalls())
	}
}

func TestStream_QuotaRotation(t *testing.T) {
	p := newScriptedProvider(
		step{err: api.NewTooManyRequestsError("Resource has been exhausted")},
		textStep("Answer from the second key."),
	)
	e, pool := newTestEngine(t, p, []string{"key-1", "key-2"}, &fakeRunner{}, nil, Config{})

	sess, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "hi"})
	chunks := collect(seq)

	if got := strings.Join(chunks, ""); got != "Answer from the second key." {
		t.Errorf("output = %q", got)
	}
	if sess.State() != StateDone {
		t.Errorf("state = %s", sess.State())
	}

	reqs := p.Requests()
	if len(reqs) != 2 || reqs[0].APIKey != "key-1" || reqs[1].APIKey != "key-2" {
		t.Fatalf("request keys = %v", keysOf(reqs))
	}
	if idx, _ := pool.Current(); idx != 1 {
		t.Errorf("pool current = %d, want 1", idx)
	}
	if sess.SlotIndex() != 1 {
		t.Errorf("SlotIndex = %d, want 1", sess.SlotIndex())
	}
	if st := pool.Status(); st.LastQuotaError == "" {
		t.Error("last quota error not recorded")
	}
}

func TestStream_QuotaAfterEmissionIsNotRetried(t *testing.T) {
	p := newScriptedProvider(
		step{events: []provider.ProviderEvent{
			{Type: provider.ProviderEventTextDelta, Delta: "Partial "},
			{Type: provider.ProviderEventError, Err: api.NewTooManyRequestsError("quota exceeded")},
		}},
		textStep("must not be requested"),
	)
	e, _ := newTestEngine(t, p, []string{"key-1", "key-2"}, &fakeRunner{}, nil, Config{})

	sess, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "hi"})
	chunks := collect(seq)

	if len(p.Requests()) != 1 {
		t.Fatalf("requests = %d, want 1", len(p.Requests()))
	}
	if len(chunks) != 2 || chunks[0] != "Partial " {
		t.Fatalf("chunks = %q", chunks)
	}
	if !strings.HasPrefix(chunks[1], api.DiagnosticPrefix) {
		t.Errorf("diagnostic = %q", chunks[1])
	}
	if sess.State() != StateFailed {
		t.Errorf("state = %s", sess.State())
	}
}

func TestStream_AllKeysExhausted(t *testing.T) {
	tests := []struct {
		name string
		keys []string
	}{
		{name: "single key", keys: []string{"key-1"}},
		{name: "two keys", keys: []string{"key-1", "key-2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newScriptedProvider(
				step{err: api.NewTooManyRequestsError("quota exceeded")},
				step{err: api.NewTooManyRequestsError("quota exceeded")},
			)
			e, _ := newTestEngine(t, p, tt.keys, &fakeRunner{}, nil, Config{})

			sess, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "hi"})
			chunks := collect(seq)

			if len(chunks) != 1 {
				t.Fatalf("chunks = %q, want one diagnostic", chunks)
			}
			if !strings.HasPrefix(chunks[0], "\n[Stream Error] ") || !strings.Contains(chunks[0], "exhausted their quota") {
				t.Errorf("diagnostic = %q", chunks[0])
			}
			if !errors.Is(sess.Err(), credential.ErrExhausted) {
				t.Errorf("err = %v, want ErrExhausted", sess.Err())
			}
			if got := len(p.Requests()); got != len(tt.keys) {
				t.Errorf("requests = %d, want %d", got, len(tt.keys))
			}
		})
	}
}

func TestStream_QuotaRetriesDisabled(t *testing.T) {
	p := newScriptedProvider(step{err: api.NewTooManyRequestsError("quota exceeded")})
	e, _ := newTestEngine(t, p, []string{"key-1", "key-2"}, &fakeRunner{}, nil, Config{QuotaRetries: -1})

	_, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "hi"})
	chunks := collect(seq)

	if len(p.Requests()) != 1 {
		t.Errorf("requests = %d, want 1", len(p.Requests()))
	}
	if len(chunks) != 1 || !strings.Contains(chunks[0], "API quota exceeded") {
		t.Errorf("chunks = %q", chunks)
	}
}

func TestStream_TransportError(t *testing.T) {
	p := newScriptedProvider(step{err: api.NewServerError("backend unavailable: connection refused")})
	e, pool := newTestEngine(t, p, []string{"key-1", "key-2"}, &fakeRunner{}, nil, Config{})

	sess, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "hi"})
	chunks := collect(seq)

	if len(chunks) != 1 || chunks[0] != api.DiagnosticPrefix+"backend unavailable: connection refused" {
		t.Errorf("chunks = %q", chunks)
	}
	if len(p.Requests()) != 1 {
		t.Errorf("requests = %d, want 1", len(p.Requests()))
	}
	if idx, _ := pool.Current(); idx != 0 {
		t.Errorf("pool rotated on a non-quota error: current = %d", idx)
	}
	if sess.State() != StateFailed {
		t.Errorf("state = %s", sess.State())
	}
}

func TestStream_ToolLimit(t *testing.T) {
	var steps []step
	for i := 0; i < 5; i++ {
		steps = append(steps, toolStep("run_python_code", `{"code":"print(1)"}`))
	}
	p := newScriptedProvider(steps...)
	runner := &fakeRunner{message: "1"}
	e, _ := newTestEngine(t, p, []string{"key-1"}, runner, nil, Config{MaxToolCalls: 2})

	sess, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "loop forever"})
	chunks := collect(seq)

	if runner.Calls() != 2 {
		t.Errorf("runner calls = %d, want 2", runner.Calls())
	}
	if len(p.Requests()) != 3 {
		t.Errorf("requests = %d, want 3", len(p.Requests()))
	}
	if len(chunks) != 1 || !strings.HasPrefix(chunks[0], api.DiagnosticPrefix) || !strings.Contains(chunks[0], "tool call limit") {
		t.Errorf("chunks = %q", chunks)
	}
	if !errors.Is(sess.Err(), ErrToolLimit) {
		t.Errorf("err = %v, want ErrToolLimit", sess.Err())
	}
}

func TestStream_UnknownToolBecomesToolError(t *testing.T) {
	p := newScriptedProvider(
		toolStep("delete_everything", `{}`),
		textStep("Sorry, I can only run Python."),
	)
	e, _ := newTestEngine(t, p, []string{"key-1"}, &fakeRunner{}, nil, Config{})

	sess, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "hi"})
	chunks := collect(seq)

	if strings.Join(chunks, "") != "Sorry, I can only run Python." {
		t.Errorf("chunks = %q", chunks)
	}
	turns := sess.Transcript.Turns()
	tool := turns[2]
	if tool.Role != api.RoleTool || !strings.Contains(tool.Content, `unknown tool "delete_everything"`) {
		t.Errorf("tool turn = %+v", tool)
	}
	if !strings.Contains(tool.Content, "run_python_code") {
		t.Errorf("tool turn does not list available tools: %q", tool.Content)
	}
	if sess.State() != StateDone {
		t.Errorf("state = %s", sess.State())
	}
}

func TestStream_InvalidArgumentsBecomeToolError(t *testing.T) {
	p := newScriptedProvider(
		toolStep("run_python_code", `{not json`),
		textStep("fixed"),
	)
	runner := &fakeRunner{}
	e, _ := newTestEngine(t, p, []string{"key-1"}, runner, nil, Config{})

	sess, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "hi"})
	collect(seq)

	if runner.Calls() != 0 {
		t.Errorf("runner called with invalid arguments")
	}
	tool := sess.Transcript.Turns()[2]
	if !strings.HasPrefix(tool.Content, "Error: ") {
		t.Errorf("tool turn = %q", tool.Content)
	}
}

func TestStream_ConsumerBreakCancelsUpstream(t *testing.T) {
	p := newScriptedProvider(textStep("one ", "two ", "three"))
	e, _ := newTestEngine(t, p, []string{"key-1"}, &fakeRunner{}, nil, Config{})

	sess, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "hi"})
	var got []string
	for chunk := range seq {
		got = append(got, chunk)
		break
	}

	if len(got) != 1 || got[0] != "one " {
		t.Errorf("got = %q", got)
	}
	if sess.State() != StateFailed {
		t.Errorf("state = %s, want failed", sess.State())
	}
	if p.ctxs[0].Err() == nil {
		t.Error("upstream context not cancelled after consumer stopped")
	}
}

func TestStream_CancelKillsSandbox(t *testing.T) {
	p := newScriptedProvider(toolStep("run_python_code", `{"code":"while True: pass"}`))
	runner := &fakeRunner{block: make(chan struct{})}
	e, _ := newTestEngine(t, p, []string{"key-1"}, runner, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-runner.block
		cancel()
	}()

	sess, seq := e.Stream(ctx, &api.ChatRequest{Message: "spin"})
	chunks := collect(seq)

	if len(chunks) != 0 {
		t.Errorf("chunks after cancellation = %q", chunks)
	}
	if !errors.Is(sess.Err(), context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", sess.Err())
	}
	if len(p.Requests()) != 1 {
		t.Errorf("model requested again after cancellation")
	}
}

func TestStream_SingleUse(t *testing.T) {
	p := newScriptedProvider(textStep("once"), textStep("twice"))
	e, _ := newTestEngine(t, p, []string{"key-1"}, &fakeRunner{}, nil, Config{})

	_, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "hi"})
	first := collect(seq)
	second := collect(seq)

	if len(first) != 1 || len(second) != 0 {
		t.Errorf("first = %q, second = %q", first, second)
	}
}

func TestStream_MissingCapabilities(t *testing.T) {
	p := newScriptedProvider(textStep("never"))
	p.caps = provider.ProviderCapabilities{Streaming: true}
	e, _ := newTestEngine(t, p, []string{"key-1"}, &fakeRunner{}, nil, Config{})

	sess, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "hi"})
	chunks := collect(seq)

	if len(chunks) != 1 || !strings.HasPrefix(chunks[0], api.DiagnosticPrefix) {
		t.Errorf("chunks = %q", chunks)
	}
	if len(p.Requests()) != 0 {
		t.Errorf("provider called despite missing capabilities")
	}
	if sess.State() != StateFailed {
		t.Errorf("state = %s", sess.State())
	}
}

func TestStream_LoadsHistory(t *testing.T) {
	store := memory.New(0)
	ctx := context.Background()
	uid, _ := store.GetOrCreateUser(ctx, "")
	store.AppendMessage(ctx, uid, api.RoleUser, "earlier question")
	store.AppendMessage(ctx, uid, api.RoleModel, "earlier answer")

	p := newScriptedProvider(textStep("ok"))
	e, _ := newTestEngine(t, p, []string{"key-1"}, &fakeRunner{}, store, Config{HistoryLimit: 10})

	_, seq := e.Stream(ctx, &api.ChatRequest{Message: "follow-up"})
	collect(seq)

	msgs := p.Requests()[0].Messages
	if len(msgs) != 4 {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[1].Content != "earlier question" || msgs[2].Content != "earlier answer" || msgs[3].Content != "follow-up" {
		t.Errorf("history order wrong: %+v", msgs[1:])
	}
	if msgs[2].Role != "assistant" {
		t.Errorf("model history role = %q", msgs[2].Role)
	}
}

func TestStream_ConcurrentSessionsShareOnePool(t *testing.T) {
	var steps []step
	for i := 0; i < 8; i++ {
		steps = append(steps, textStep("ok"))
	}
	p := newScriptedProvider(steps...)
	e, _ := newTestEngine(t, p, []string{"key-1", "key-2"}, &fakeRunner{}, nil, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, seq := e.Stream(context.Background(), &api.ChatRequest{Message: "hi"})
			if got := strings.Join(collect(seq), ""); got != "ok" {
				t.Errorf("output = %q", got)
			}
			if sess.State() != StateDone {
				t.Errorf("state = %s", sess.State())
			}
		}()
	}
	wg.Wait()
}

func TestDiagnosticMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"exhausted", credential.ErrExhausted, "All API keys have exhausted their quota. Please try again later."},
		{"quota", api.NewTooManyRequestsError("slow down"), "API quota exceeded: slow down"},
		{"api error", api.NewModelError("bad model"), "bad model"},
		{"plain", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := diagnosticMessage(tt.err); got != tt.want {
				t.Errorf("diagnosticMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func keysOf(reqs []*provider.ProviderRequest) []string {
	var keys []string
	for _, r := range reqs {
		keys = append(keys, r.APIKey)
	}
	return keys
}
