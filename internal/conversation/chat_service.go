package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/wolfman30/hrconsult-assistant/internal/observability/metrics"
	"github.com/wolfman30/hrconsult-assistant/internal/session"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

const (
	defaultMaxToolRounds = 3
	defaultHistoryWindow = 20
)

// TurnState tracks where a chat turn is in its lifecycle.
type TurnState string

const (
	TurnIdle                TurnState = "idle"
	TurnAwaitingCompletion  TurnState = "awaiting_completion"
	TurnToolRequested       TurnState = "tool_requested"
	TurnAwaitingToolResults TurnState = "awaiting_tool_results"
	TurnRendered            TurnState = "rendered"
)

// ToolExecutor runs model-requested operations. Execute never fails: errors are
// encoded in the returned JSON payload and ok reports whether the call succeeded.
type ToolExecutor interface {
	Definitions() []openai.Tool
	Execute(ctx context.Context, sessionID string, call ToolCall) (payload string, ok bool)
}

// LeadCapturer receives the transcript of a completed turn. Implementations must
// not block the caller.
type LeadCapturer interface {
	Notify(sessionID string, history []ChatMessage)
}

// ServiceConfig controls prompts and completion behaviour.
type ServiceConfig struct {
	SystemPrompt  string
	Completion    CompletionConfig
	MaxToolRounds int
	HistoryWindow int
}

// TurnRequest is one user message submitted to a session.
type TurnRequest struct {
	SessionID string
	Message   string
	Stream    bool
	Transport string
}

// TurnResult is what the caller renders after a turn.
type TurnResult struct {
	SessionID    string      `json:"session_id"`
	Reply        *Message    `json:"reply,omitempty"`
	State        TurnState   `json:"state"`
	Transitions  []TurnState `json:"-"`
	Intent       Intent      `json:"intent"`
	QuickReplies []string    `json:"quick_replies,omitempty"`
	CTA          *CTA        `json:"cta,omitempty"`
	ToolCalls    []string    `json:"tool_calls,omitempty"`
	Tokens       int         `json:"tokens"`
	Failed       bool        `json:"failed,omitempty"`
	Aborted      bool        `json:"aborted,omitempty"`
}

func (r *TurnResult) transition(state TurnState) {
	r.State = state
	r.Transitions = append(r.Transitions, state)
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

func WithTools(tools ToolExecutor) ServiceOption {
	return func(s *Service) { s.tools = tools }
}

func WithLeadCapturer(capturer LeadCapturer) ServiceOption {
	return func(s *Service) { s.leads = capturer }
}

func WithMetrics(m *metrics.ChatMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service orchestrates chat turns: session bookkeeping, message log, completion
// and tool round-trips, then hands the transcript to lead capture.
type Service struct {
	sessions   session.Store
	log        Log
	completion CompletionClient
	tools      ToolExecutor
	leads      LeadCapturer
	metrics    *metrics.ChatMetrics
	logger     *logging.Logger
	cfg        ServiceConfig
	now        func() time.Time

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

func NewService(sessions session.Store, log Log, completion CompletionClient, cfg ServiceConfig, logger *logging.Logger, opts ...ServiceOption) *Service {
	if sessions == nil {
		panic("conversation: session store cannot be nil")
	}
	if log == nil {
		panic("conversation: message log cannot be nil")
	}
	if completion == nil {
		panic("conversation: completion client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	s := &Service{
		sessions:   sessions,
		log:        log,
		completion: completion,
		logger:     logger.Component("conversation"),
		cfg:        cfg,
		now:        time.Now,
		inflight:   make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// StartSession creates (or resets) a conversation. An empty id gets a generated one.
func (s *Service) StartSession(ctx context.Context, sessionID string) (*session.Conversation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return s.sessions.Create(ctx, sessionID)
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*session.Conversation, error) {
	return s.sessions.Get(ctx, sessionID)
}

// Messages lists the most recent limit messages of a session, oldest first.
func (s *Service) Messages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	conv, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.log.List(ctx, conv.ID, limit)
}

// Cancel aborts the in-flight turn for a session. It reports whether a turn was running.
func (s *Service) Cancel(sessionID string) bool {
	s.mu.Lock()
	cancel, ok := s.inflight[sessionID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (s *Service) begin(ctx context.Context, sessionID string) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[sessionID]; busy {
		return nil, nil, ErrTurnInFlight
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.inflight[sessionID] = cancel
	done := func() {
		s.mu.Lock()
		delete(s.inflight, sessionID)
		s.mu.Unlock()
		cancel()
	}
	return turnCtx, done, nil
}

// Turn runs one chat turn. onFragment receives streamed text when req.Stream is
// set. Completion failures and aborts are rendered, not returned: the error
// return is reserved for bad input, busy sessions and storage failures.
func (s *Service) Turn(ctx context.Context, req TurnRequest, onFragment func(string)) (*TurnResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, session.ErrMissingSessionID
	}
	transport := req.Transport
	if transport == "" {
		transport = "http"
	}

	turnCtx, done, err := s.begin(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer done()

	conv, err := s.sessions.Get(turnCtx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		conv, err = s.sessions.Create(turnCtx, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}

	prior, err := s.log.List(turnCtx, conv.ID, s.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}
	userMsg, err := s.log.Append(turnCtx, conv.ID, ChatRoleUser, message, EstimateTokens(message), nil)
	if err != nil {
		return nil, fmt.Errorf("conversation: append user message: %w", err)
	}

	result := &TurnResult{SessionID: sessionID, State: TurnIdle, Intent: Classify(message)}
	history := append(toChatMessages(prior), ChatMessage{Role: ChatRoleUser, Content: userMsg.Content})

	completion, runErr := s.run(turnCtx, sessionID, history, req.Stream, onFragment, result)
	// Only an explicit cancel is an abort; a deadline is a failure.
	aborted := errors.Is(turnCtx.Err(), context.Canceled)
	if !aborted && completion.Aborted && runErr == nil {
		runErr = fmt.Errorf("%w: stream interrupted", ErrCompletionFailure)
	}

	// Writes below must land even if the turn context was cancelled.
	writeCtx := context.WithoutCancel(turnCtx)
	appended := 1
	switch {
	case aborted:
		result.Aborted = true
		if completion.Text != "" {
			reply, err := s.log.Append(writeCtx, conv.ID, ChatRoleAssistant, completion.Text, completion.Tokens, map[string]string{"aborted": "true"})
			if err != nil {
				return nil, fmt.Errorf("conversation: append partial reply: %w", err)
			}
			result.Reply = &reply
			appended++
		}
		result.QuickReplies = QuickReplies(result.Intent)
	case runErr != nil:
		s.logger.Error("completion failed", "session_id", sessionID, "error", runErr)
		result.Failed = true
		reply, err := s.log.Append(writeCtx, conv.ID, ChatRoleAssistant, ApologyMessage, 0, map[string]string{"error": "true"})
		if err != nil {
			return nil, fmt.Errorf("conversation: append apology: %w", err)
		}
		result.Reply = &reply
		result.QuickReplies = RetryQuickReplies()
		appended++
	default:
		reply, err := s.log.Append(writeCtx, conv.ID, ChatRoleAssistant, completion.Text, completion.Tokens, nil)
		if err != nil {
			return nil, fmt.Errorf("conversation: append reply: %w", err)
		}
		result.Reply = &reply
		result.QuickReplies = QuickReplies(result.Intent)
		result.CTA = ExtractCTA(completion.Text)
		appended++
	}

	if _, err := s.sessions.Update(writeCtx, sessionID, session.Patch{
		MessagesDelta: appended,
		TokensDelta:   userMsg.Tokens + result.Tokens,
	}); err != nil {
		s.logger.Warn("failed to update session counters", "session_id", sessionID, "error", err)
	}
	result.transition(TurnRendered)

	outcome := "rendered"
	switch {
	case result.Aborted:
		outcome = "aborted"
	case result.Failed:
		outcome = "failed"
	}
	s.metrics.ObserveTurn(transport, outcome)
	s.logger.Info("chat turn rendered",
		"session_id", sessionID,
		"outcome", outcome,
		"tool_calls", len(result.ToolCalls),
		"tokens", result.Tokens,
	)

	if outcome == "rendered" && s.leads != nil {
		transcript := append(history, ChatMessage{Role: ChatRoleAssistant, Content: completion.Text})
		if s.cfg.HistoryWindow > 0 && len(prior) >= s.cfg.HistoryWindow {
			transcript = s.fullTranscript(writeCtx, conv.ID, transcript)
		}
		s.leads.Notify(sessionID, transcript)
	}
	return result, nil
}

// fullTranscript reloads the whole log for lead capture, since contact details
// given early in a long chat fall outside the completion window. On a read
// error the windowed transcript is used.
func (s *Service) fullTranscript(ctx context.Context, conversationID string, windowed []ChatMessage) []ChatMessage {
	all, err := s.log.List(ctx, conversationID, 0)
	if err != nil {
		s.logger.Warn("failed to load full transcript for lead capture", "conversation_id", conversationID, "error", err)
		return windowed
	}
	return toChatMessages(all)
}

// run drives completion and tool rounds until the model answers in text.
func (s *Service) run(ctx context.Context, sessionID string, history []ChatMessage, stream bool, onFragment func(string), result *TurnResult) (CompletionResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+4)
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	systemPrompt := buildSystemPrompt(s.cfg.SystemPrompt, s.now())

	var last CompletionResult
	for round := 0; ; round++ {
		req := CompletionRequest{
			SystemPrompt: systemPrompt,
			Messages:     messages,
			Config:       s.cfg.Completion,
		}
		toolsAllowed := s.tools != nil && round < s.cfg.MaxToolRounds
		if toolsAllowed {
			req.Tools = s.tools.Definitions()
		} else if round > 0 {
			req.SystemPrompt = systemPrompt + "\n\n" + forceAnswerInstruction
		}

		result.transition(TurnAwaitingCompletion)
		started := time.Now()
		var err error
		if stream {
			last, err = s.completion.Stream(ctx, req, onFragment)
			s.metrics.ObserveCompletionLatency("stream", time.Since(started).Seconds())
		} else {
			last, err = s.completion.Complete(ctx, req)
			s.metrics.ObserveCompletionLatency("complete", time.Since(started).Seconds())
		}
		result.Tokens += last.Tokens
		if err != nil {
			return last, err
		}
		if last.Aborted {
			return last, nil
		}
		if len(last.ToolCalls) == 0 || !toolsAllowed {
			if strings.TrimSpace(last.Text) == "" {
				return last, fmt.Errorf("%w: empty response", ErrCompletionFailure)
			}
			return last, nil
		}

		result.transition(TurnToolRequested)
		calls := make([]openai.ToolCall, 0, len(last.ToolCalls))
		for _, call := range last.ToolCalls {
			calls = append(calls, openai.ToolCall{
				ID:       call.ID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: call.Name, Arguments: call.Arguments},
			})
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   last.Text,
			ToolCalls: calls,
		})

		result.transition(TurnAwaitingToolResults)
		for _, call := range last.ToolCalls {
			payload, ok := s.tools.Execute(ctx, sessionID, call)
			s.metrics.ObserveToolCall(call.Name, ok)
			result.ToolCalls = append(result.ToolCalls, call.Name)
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    payload,
				Name:       call.Name,
				ToolCallID: call.ID,
			})
		}
		if ctx.Err() != nil {
			return CompletionResult{Aborted: true}, nil
		}
	}
}
