package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/wolfman30/hrconsult-assistant/internal/session"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

type completionStep struct {
	result    CompletionResult
	err       error
	fragments []string
	// block waits for cancellation after emitting fragments.
	block   bool
	started chan struct{}
}

type scriptedCompletion struct {
	mu       sync.Mutex
	steps    []completionStep
	requests []CompletionRequest
}

func (s *scriptedCompletion) next(req CompletionRequest) completionStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return completionStep{result: CompletionResult{Text: "default reply", Tokens: 3}}
	}
	step := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	return step
}

func (s *scriptedCompletion) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	step := s.next(req)
	if step.started != nil {
		close(step.started)
	}
	if step.block {
		<-ctx.Done()
	}
	if ctx.Err() != nil {
		return CompletionResult{}, fmt.Errorf("%w: %w", ErrCompletionFailure, ctx.Err())
	}
	return step.result, step.err
}

func (s *scriptedCompletion) Stream(ctx context.Context, req CompletionRequest, onFragment func(string)) (CompletionResult, error) {
	step := s.next(req)
	if step.started != nil {
		close(step.started)
	}
	var text strings.Builder
	for _, f := range step.fragments {
		if ctx.Err() != nil {
			break
		}
		text.WriteString(f)
		if onFragment != nil {
			onFragment(f)
		}
	}
	if step.block {
		<-ctx.Done()
	}
	if ctx.Err() != nil {
		return CompletionResult{Text: text.String(), Tokens: EstimateTokens(text.String()), Estimated: true, Aborted: true}, nil
	}
	return step.result, step.err
}

func (s *scriptedCompletion) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type stubTools struct {
	mu    sync.Mutex
	calls []ToolCall
}

func (s *stubTools) Definitions() []openai.Tool {
	return []openai.Tool{{Type: openai.ToolTypeFunction, Function: &openai.FunctionDefinition{Name: "get_pricing"}}}
}

func (s *stubTools) Execute(_ context.Context, _ string, call ToolCall) (string, bool) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	return `{"rows":[{"tier":"single report","amount":"₹499"}]}`, true
}

type recordingCapturer struct {
	mu       sync.Mutex
	sessions []string
	history  [][]ChatMessage
}

func (r *recordingCapturer) Notify(sessionID string, history []ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, sessionID)
	r.history = append(r.history, history)
}

func newTestService(t *testing.T, completion CompletionClient, opts ...ServiceOption) (*Service, *MemoryLog, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore(time.Hour, 0)
	t.Cleanup(store.Close)
	log := NewMemoryLog()
	svc := NewService(store, log, completion, ServiceConfig{MaxToolRounds: 3}, logging.Default(), opts...)
	return svc, log, store
}

func containsState(states []TurnState, want TurnState) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}

func TestService_NewSessionHasZeroCounters(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedCompletion{})
	conv, err := svc.StartSession(context.Background(), "")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	got, err := svc.GetSession(context.Background(), conv.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.TotalMessages != 0 || got.TotalTokens != 0 || got.Status != session.StatusActive {
		t.Fatalf("unexpected new session %#v", got)
	}
}

func TestService_TurnAppendsMessagesAndUpdatesCounters(t *testing.T) {
	completion := &scriptedCompletion{steps: []completionStep{{result: CompletionResult{Text: "We offer recruitment and payroll services.", Tokens: 40}}}}
	capturer := &recordingCapturer{}
	svc, log, _ := newTestService(t, completion, WithLeadCapturer(capturer))

	result, err := svc.Turn(context.Background(), TurnRequest{SessionID: "s-1", Message: "What services do you offer?"}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if result.State != TurnRendered || result.Failed || result.Aborted {
		t.Fatalf("unexpected result %#v", result)
	}
	if result.Intent != IntentServices {
		t.Fatalf("expected services intent, got %s", result.Intent)
	}

	conv, err := svc.GetSession(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if conv.TotalMessages != 2 {
		t.Fatalf("expected 2 messages counted, got %d", conv.TotalMessages)
	}
	wantTokens := EstimateTokens("What services do you offer?") + 40
	if conv.TotalTokens != wantTokens {
		t.Fatalf("expected %d tokens, got %d", wantTokens, conv.TotalTokens)
	}

	msgs, _ := log.List(context.Background(), conv.ID, 0)
	if len(msgs) != 2 || msgs[0].Role != ChatRoleUser || msgs[1].Role != ChatRoleAssistant {
		t.Fatalf("unexpected log %#v", msgs)
	}
	if len(capturer.sessions) != 1 || capturer.sessions[0] != "s-1" {
		t.Fatalf("expected lead capture notified once, got %v", capturer.sessions)
	}
	if n := len(capturer.history[0]); n != 2 {
		t.Fatalf("expected 2 messages handed to lead capture, got %d", n)
	}
}

func TestService_PricingToolRoundTrip(t *testing.T) {
	completion := &scriptedCompletion{steps: []completionStep{
		{result: CompletionResult{
			ToolCalls: []ToolCall{{ID: "call_1", Name: "get_pricing", Arguments: `{"tool_id":"resume-builder"}`}},
			Tokens:    20,
		}},
		{result: CompletionResult{Text: "The Resume Builder costs ₹499 for a single report.", Tokens: 30}},
	}}
	tools := &stubTools{}
	svc, _, _ := newTestService(t, completion, WithTools(tools))

	result, err := svc.Turn(context.Background(), TurnRequest{SessionID: "s-price", Message: "What's your pricing for the resume tool?"}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if len(tools.calls) != 1 || tools.calls[0].Arguments != `{"tool_id":"resume-builder"}` {
		t.Fatalf("unexpected tool calls %#v", tools.calls)
	}
	if !strings.Contains(result.Reply.Content, "₹499") {
		t.Fatalf("expected price in reply, got %q", result.Reply.Content)
	}
	if result.CTA == nil || result.CTA.Kind != "pricing" || result.CTA.Path != "/services" {
		t.Fatalf("expected pricing CTA, got %#v", result.CTA)
	}
	if result.Tokens != 50 {
		t.Fatalf("expected tokens summed across rounds, got %d", result.Tokens)
	}
	for _, want := range []TurnState{TurnAwaitingCompletion, TurnToolRequested, TurnAwaitingToolResults, TurnRendered} {
		if !containsState(result.Transitions, want) {
			t.Fatalf("expected transition %s in %v", want, result.Transitions)
		}
	}

	second := completion.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != openai.ChatMessageRoleTool || last.ToolCallID != "call_1" || !strings.Contains(last.Content, "₹499") {
		t.Fatalf("expected tool result fed back, got %#v", last)
	}
	if len(second.Messages[len(second.Messages)-2].ToolCalls) != 1 {
		t.Fatalf("expected assistant tool-call message before tool result")
	}
}

func TestService_ToolRoundsAreBounded(t *testing.T) {
	loop := completionStep{result: CompletionResult{
		Text:      "Checking again.",
		ToolCalls: []ToolCall{{ID: "call_x", Name: "get_pricing", Arguments: `{"tool_id":"x"}`}},
	}}
	completion := &scriptedCompletion{steps: []completionStep{loop}}
	store := session.NewMemoryStore(time.Hour, 0)
	defer store.Close()
	svc := NewService(store, NewMemoryLog(), completion, ServiceConfig{MaxToolRounds: 2}, nil, WithTools(&stubTools{}))

	result, err := svc.Turn(context.Background(), TurnRequest{SessionID: "s-loop", Message: "price?"}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if completion.requestCount() != 3 {
		t.Fatalf("expected 3 completion requests, got %d", completion.requestCount())
	}
	final := completion.requests[2]
	if len(final.Tools) != 0 {
		t.Fatalf("expected final request without tools")
	}
	if !strings.Contains(final.SystemPrompt, forceAnswerInstruction) {
		t.Fatalf("expected force-answer instruction in final prompt")
	}
	if result.Reply == nil || result.Reply.Content != "Checking again." {
		t.Fatalf("unexpected reply %#v", result.Reply)
	}
}

func TestService_CompletionFailureAppendsApology(t *testing.T) {
	completion := &scriptedCompletion{steps: []completionStep{{err: fmt.Errorf("%w: 502", ErrCompletionFailure)}}}
	capturer := &recordingCapturer{}
	svc, log, _ := newTestService(t, completion, WithLeadCapturer(capturer))

	result, err := svc.Turn(context.Background(), TurnRequest{SessionID: "s-fail", Message: "hello"}, nil)
	if err != nil {
		t.Fatalf("Turn should render failures, got %v", err)
	}
	if !result.Failed || result.State != TurnRendered {
		t.Fatalf("unexpected result %#v", result)
	}
	if result.Reply.Content != ApologyMessage || result.Reply.Metadata["error"] != "true" {
		t.Fatalf("expected apology reply, got %#v", result.Reply)
	}
	if len(result.QuickReplies) != 3 || result.QuickReplies[0] != "Try again" {
		t.Fatalf("expected retry quick replies, got %v", result.QuickReplies)
	}
	conv, _ := svc.GetSession(context.Background(), "s-fail")
	msgs, _ := log.List(context.Background(), conv.ID, 0)
	if len(msgs) != 2 {
		t.Fatalf("expected user + apology in log, got %d", len(msgs))
	}
	if len(capturer.sessions) != 0 {
		t.Fatalf("lead capture should not run after a failed turn")
	}
}

func TestService_DeadlineIsFailureNotAbort(t *testing.T) {
	completion := &scriptedCompletion{steps: []completionStep{{block: true}}}
	svc, _, _ := newTestService(t, completion)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	result, err := svc.Turn(ctx, TurnRequest{SessionID: "s-deadline", Message: "hello"}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !result.Failed || result.Aborted {
		t.Fatalf("expected failure, got %#v", result)
	}
}

func TestService_StreamAbortKeepsPartialTextWithoutApology(t *testing.T) {
	completion := &scriptedCompletion{steps: []completionStep{{fragments: []string{"Our payroll ", "package"}, block: true}}}
	svc, log, _ := newTestService(t, completion)

	var fragments []string
	result, err := svc.Turn(context.Background(), TurnRequest{SessionID: "s-abort", Message: "tell me about payroll", Stream: true}, func(f string) {
		fragments = append(fragments, f)
		if len(fragments) == 2 {
			svc.Cancel("s-abort")
		}
	})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !result.Aborted || result.Failed || result.State != TurnRendered {
		t.Fatalf("unexpected result %#v", result)
	}

	conv, _ := svc.GetSession(context.Background(), "s-abort")
	msgs, _ := log.List(context.Background(), conv.ID, 0)
	if len(msgs) != 2 {
		t.Fatalf("expected user + partial reply, got %d", len(msgs))
	}
	partial := msgs[1]
	if partial.Content != "Our payroll package" || partial.Metadata["aborted"] != "true" {
		t.Fatalf("unexpected partial reply %#v", partial)
	}
	for _, m := range msgs {
		if m.Content == ApologyMessage || m.Metadata["error"] == "true" {
			t.Fatalf("abort must not append an error message: %#v", m)
		}
	}
}

func TestService_AbortBeforeAnyTextAppendsNothing(t *testing.T) {
	started := make(chan struct{})
	completion := &scriptedCompletion{steps: []completionStep{{block: true, started: started}}}
	svc, log, _ := newTestService(t, completion)

	go func() {
		<-started
		svc.Cancel("s-abort-empty")
	}()
	result, err := svc.Turn(context.Background(), TurnRequest{SessionID: "s-abort-empty", Message: "hi", Stream: true}, nil)
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !result.Aborted || result.Reply != nil {
		t.Fatalf("expected aborted turn without reply, got %#v", result)
	}
	conv, _ := svc.GetSession(context.Background(), "s-abort-empty")
	msgs, _ := log.List(context.Background(), conv.ID, 0)
	if len(msgs) != 1 {
		t.Fatalf("expected only the user message, got %d", len(msgs))
	}
}

func TestService_OneTurnInFlightPerSession(t *testing.T) {
	started := make(chan struct{})
	completion := &scriptedCompletion{steps: []completionStep{{block: true, started: started}}}
	svc, _, _ := newTestService(t, completion)

	done := make(chan *TurnResult, 1)
	go func() {
		res, _ := svc.Turn(context.Background(), TurnRequest{SessionID: "s-busy", Message: "first"}, nil)
		done <- res
	}()
	<-started

	if _, err := svc.Turn(context.Background(), TurnRequest{SessionID: "s-busy", Message: "second"}, nil); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("expected ErrTurnInFlight, got %v", err)
	}
	if !svc.Cancel("s-busy") {
		t.Fatalf("expected Cancel to find the in-flight turn")
	}
	select {
	case res := <-done:
		if res == nil || !res.Aborted {
			t.Fatalf("expected first turn aborted, got %#v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first turn did not finish after cancel")
	}
	if svc.Cancel("s-busy") {
		t.Fatalf("expected no turn in flight after completion")
	}
}

func TestService_RejectsEmptyMessage(t *testing.T) {
	svc, _, _ := newTestService(t, &scriptedCompletion{})
	if _, err := svc.Turn(context.Background(), TurnRequest{SessionID: "s", Message: "   "}, nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := svc.Turn(context.Background(), TurnRequest{Message: "hi"}, nil); !errors.Is(err, session.ErrMissingSessionID) {
		t.Fatalf("expected ErrMissingSessionID, got %v", err)
	}
}

func TestService_LeadCaptureSeesMessagesOutsideHistoryWindow(t *testing.T) {
	store := session.NewMemoryStore(time.Hour, 0)
	t.Cleanup(store.Close)
	log := NewMemoryLog()
	capturer := &recordingCapturer{}
	completion := &scriptedCompletion{}
	svc := NewService(store, log, completion, ServiceConfig{MaxToolRounds: 3, HistoryWindow: 4}, logging.Default(), WithLeadCapturer(capturer))

	turns := []string{"Hi, I'm Asha Menon from Acme Textiles."}
	for i := 0; i < 12; i++ {
		turns = append(turns, fmt.Sprintf("Question %d about payroll compliance", i))
	}
	turns = append(turns, "You can reach me at asha@acme.in")
	for _, msg := range turns {
		if _, err := svc.Turn(context.Background(), TurnRequest{SessionID: "s-long", Message: msg}, nil); err != nil {
			t.Fatalf("Turn: %v", err)
		}
	}

	// The completion prompt stays windowed.
	completion.mu.Lock()
	lastPrompt := completion.requests[len(completion.requests)-1].Messages
	completion.mu.Unlock()
	if len(lastPrompt) > 4+1 {
		t.Fatalf("completion prompt should hold the window plus the new message, got %d", len(lastPrompt))
	}

	capturer.mu.Lock()
	defer capturer.mu.Unlock()
	last := capturer.history[len(capturer.history)-1]
	if len(last) != 2*len(turns) {
		t.Fatalf("expected the full %d-message transcript, got %d", 2*len(turns), len(last))
	}
	if !strings.Contains(last[0].Content, "Asha Menon") {
		t.Fatalf("first message missing from capture transcript: %q", last[0].Content)
	}
	if !strings.Contains(last[len(last)-2].Content, "asha@acme.in") {
		t.Fatalf("latest user message missing from capture transcript")
	}
}
