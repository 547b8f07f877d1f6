// Package orchestrator runs conversation turns: it feeds customer input to
// the model, dispatches the functions the model asks for and recovers from
// model failures.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/angelmondragon/voicecommerce-backend/internal/functions"
	"github.com/angelmondragon/voicecommerce-backend/internal/intent"
	"github.com/angelmondragon/voicecommerce-backend/internal/llm"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
	"github.com/angelmondragon/voicecommerce-backend/internal/uisync"
	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
	"github.com/angelmondragon/voicecommerce-backend/pkg/metrics"
)

const tracerName = "github.com/angelmondragon/voicecommerce-backend/internal/orchestrator"

type functionHandler interface {
	Handle(ctx context.Context, sessionID uuid.UUID, call functions.Call) functions.Response
}

type sessionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*sessions.Session, error)
	Update(ctx context.Context, id uuid.UUID, fn func(*sessions.Session) error) (*sessions.Session, error)
}

type sessionLocker interface {
	Lock(ctx context.Context, id uuid.UUID) (func(), error)
}

type intentDriver interface {
	Advance(ctx context.Context, id uuid.UUID, in intent.Intent) (*sessions.Session, error)
}

type Params struct {
	Config     config.OrchestratorConfig
	Sampling   *llm.SamplingOptions
	Client     llm.Client // nil serves every turn through the classifier
	Functions  functionHandler
	Tools      []llm.ToolDefinition
	Classifier *intent.Classifier
	Sessions   sessionStore
	Locks      sessionLocker
	Driver     intentDriver
	Emitter    uisync.Emitter
	Toasts     *uisync.Toasts
	Metrics    *metrics.OrchestratorMetrics
	Logger     *logger.Logger
	Tracer     trace.Tracer
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
}

// Transcript is one speech recognition result.
type Transcript struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	IsFinal    bool      `json:"isFinal"`
	Timestamp  time.Time `json:"timestamp"`
}

type Mode string

const (
	ModeModel Mode = "model"
	ModeRules Mode = "rules"
)

// CallRecord summarizes one dispatched function call.
type CallRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Success   bool           `json:"success"`
	ErrorCode pkgerrors.Code `json:"errorCode,omitempty"`
	Attempts  int            `json:"attempts"`
}

// Turn is the outcome of one customer input.
type Turn struct {
	SessionID  uuid.UUID          `json:"sessionId"`
	Mode       Mode               `json:"mode"`
	Text       string             `json:"text,omitempty"`
	Intent     *intent.Intent     `json:"intent,omitempty"`
	Calls      []CallRecord       `json:"functionCalls,omitempty"`
	State      enums.SessionState `json:"state"`
	Attempts   int                `json:"attempts"`
	Compaction CompactionResult   `json:"compaction,omitempty"`
}

type sessionRuntime struct {
	rate    *RateTracker
	history *ContextTracker

	mu       sync.Mutex
	retries  int
	degraded bool
	cancel   context.CancelFunc
}

func (rt *sessionRuntime) setCancel(cancel context.CancelFunc) {
	rt.mu.Lock()
	rt.cancel = cancel
	rt.mu.Unlock()
}

func (rt *sessionRuntime) stop() {
	rt.mu.Lock()
	cancel := rt.cancel
	rt.cancel = nil
	rt.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (rt *sessionRuntime) isDegraded() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.degraded
}

// failed counts a failed model attempt and returns the running count.
func (rt *sessionRuntime) failed() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.retries++
	return rt.retries
}

// succeeded clears the failure count and returns what it was.
func (rt *sessionRuntime) succeeded() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	prev := rt.retries
	rt.retries = 0
	return prev
}

// Orchestrator is the conversation loop. Turns for one session run one at
// a time; distinct sessions run in parallel.
type Orchestrator struct {
	cfg        config.OrchestratorConfig
	sampling   *llm.SamplingOptions
	client     llm.Client
	functions  functionHandler
	tools      []llm.ToolDefinition
	classifier *intent.Classifier
	sessions   sessionStore
	locks      sessionLocker
	driver     intentDriver
	emitter    uisync.Emitter
	toasts     *uisync.Toasts
	metrics    *metrics.OrchestratorMetrics
	logg       *logger.Logger
	tracer     trace.Tracer
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	runtimes map[uuid.UUID]*sessionRuntime
}

func New(p Params) (*Orchestrator, error) {
	switch {
	case p.Functions == nil:
		return nil, fmt.Errorf("function dispatcher required")
	case p.Classifier == nil:
		return nil, fmt.Errorf("intent classifier required")
	case p.Sessions == nil:
		return nil, fmt.Errorf("session store required")
	case p.Locks == nil:
		return nil, fmt.Errorf("session locker required")
	case p.Driver == nil:
		return nil, fmt.Errorf("state machine driver required")
	case p.Toasts == nil:
		return nil, fmt.Errorf("toasts required")
	case p.Config.MaxRetryAttempts < 1:
		return nil, fmt.Errorf("max retry attempts must be positive")
	case p.Config.CallTimeout <= 0:
		return nil, fmt.Errorf("model call timeout must be positive")
	}
	o := &Orchestrator{
		cfg:        p.Config,
		sampling:   p.Sampling,
		client:     p.Client,
		functions:  p.Functions,
		tools:      p.Tools,
		classifier: p.Classifier,
		sessions:   p.Sessions,
		locks:      p.Locks,
		driver:     p.Driver,
		emitter:    p.Emitter,
		toasts:     p.Toasts,
		metrics:    p.Metrics,
		logg:       p.Logger,
		tracer:     p.Tracer,
		now:        p.Now,
		sleep:      p.Sleep,
		runtimes:   map[uuid.UUID]*sessionRuntime{},
	}
	if o.tools == nil {
		o.tools = functions.Tools()
	}
	if o.emitter == nil {
		o.emitter = uisync.Nop{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sleep == nil {
		o.sleep = sleepCtx
	}
	return o, nil
}

func (o *Orchestrator) runtime(id uuid.UUID) *sessionRuntime {
	o.mu.Lock()
	defer o.mu.Unlock()
	rt, ok := o.runtimes[id]
	if !ok {
		rt = &sessionRuntime{
			rate: NewRateTracker(RateLimits{
				RequestsPerMinute: o.cfg.RequestsPerMinute,
				TokensPerMinute:   o.cfg.TokensPerMinute,
				RequestsPerHour:   o.cfg.RequestsPerHour,
				TokensPerHour:     o.cfg.TokensPerHour,
			}, o.now),
			history: NewContextTracker(o.cfg.SummarizeThreshold, o.cfg.HardContextLimit, o.cfg.KeepRecentTurns),
		}
		o.runtimes[id] = rt
	}
	return rt
}

// History returns the session's conversation as the model sees it.
func (o *Orchestrator) History(sessionID uuid.UUID) []llm.Message {
	return o.runtime(sessionID).history.Messages()
}

// Shutdown cancels the session's in-flight turn, including pending retries,
// and forgets its runtime.
func (o *Orchestrator) Shutdown(sessionID uuid.UUID) {
	o.mu.Lock()
	rt, ok := o.runtimes[sessionID]
	delete(o.runtimes, sessionID)
	o.mu.Unlock()
	if ok {
		rt.stop()
	}
}

// Close shuts every session down.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	ids := make([]uuid.UUID, 0, len(o.runtimes))
	for id := range o.runtimes {
		ids = append(ids, id)
	}
	o.mu.Unlock()
	for _, id := range ids {
		o.Shutdown(id)
	}
}

// HandleTranscript feeds final, confident transcripts into the loop. It
// returns nil for results that do not start a turn.
func (o *Orchestrator) HandleTranscript(ctx context.Context, sessionID uuid.UUID, tr Transcript) (*Turn, error) {
	if !tr.IsFinal || strings.TrimSpace(tr.Text) == "" {
		return nil, nil
	}
	if tr.Confidence < o.cfg.MinConfidence {
		o.emit(ctx, sessionID, o.toasts.New(enums.ToastKindWarning, uisync.MsgPleaseRepeat))
		if o.logg != nil {
			logCtx := o.logg.WithField(o.logg.WithSessionID(ctx, sessionID.String()), "confidence", tr.Confidence)
			o.logg.Debug(logCtx, "orchestrator.transcript.low_confidence")
		}
		return nil, nil
	}
	return o.ProcessInput(ctx, sessionID, tr.Text)
}

// HandleIntent serves a turn through the rule-based classifier.
func (o *Orchestrator) HandleIntent(ctx context.Context, sessionID uuid.UUID, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "input is empty")
	}
	unlock, err := o.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "wait for session")
	}
	defer unlock()
	return o.ruleTurn(ctx, sessionID, text)
}

// ProcessInput runs one model turn for the session. Failed attempts are
// retried per failure category up to the configured attempt budget; quota
// exhaustion switches the session to the rule-based path for good.
func (o *Orchestrator) ProcessInput(ctx context.Context, sessionID uuid.UUID, input string) (*Turn, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "input is empty")
	}
	unlock, err := o.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "wait for session")
	}
	defer unlock()

	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rt := o.runtime(sessionID)
	if o.client == nil || rt.isDegraded() || sess.Context.DegradedMode {
		return o.ruleTurn(ctx, sessionID, input)
	}

	ctx, cancel := context.WithCancel(ctx)
	rt.setCancel(cancel)
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "orchestrator.process_input", trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
		attribute.String("session.state", string(sess.State)),
	))
	defer span.End()
	logCtx := ctx
	if o.logg != nil {
		logCtx = o.logg.WithSessionID(ctx, sessionID.String())
		o.logg.Info(logCtx, "orchestrator.turn.start")
	}

	st := &turnState{pending: []llm.Message{llm.UserMessage(input)}}
	summarized := false
	for attempt := 1; ; attempt++ {
		err := o.attempt(ctx, rt, sessionID, st)
		if err == nil {
			if rt.succeeded() > 0 {
				o.recordRetries(ctx, sessionID, 0, "")
			}
			turn, ferr := o.finish(ctx, rt, sessionID, st, attempt)
			span.SetAttributes(attribute.Int("turn.attempts", attempt), attribute.Int("turn.calls", len(st.calls)))
			return turn, ferr
		}

		typed := pkgerrors.As(err)
		if typed == nil || pkgerrors.MetadataFor(typed.Code()).Category != pkgerrors.CategoryLLM {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		o.recordRetries(ctx, sessionID, rt.failed(), string(typed.Code()))
		o.metrics.IncLLMError(string(typed.Code()))
		span.RecordError(typed)

		rec := o.recoveryFor(typed, attempt, summarized)
		if rec.degrade {
			o.degrade(ctx, rt, sessionID, typed)
			o.emit(ctx, sessionID, o.toasts.ForError(typed))
			span.SetStatus(codes.Error, string(typed.Code()))
			return nil, typed
		}
		if rec.summarize {
			summarized = true
			if _, cerr := rt.history.Compact(ctx, o.summarizer(rt)); cerr != nil && o.logg != nil {
				o.logg.Warn(o.logg.WithField(logCtx, "error", cerr.Error()), "orchestrator.context.summary_failed")
			}
		}
		if !rec.retry {
			o.emit(ctx, sessionID, o.toasts.ForError(typed))
			span.SetStatus(codes.Error, string(typed.Code()))
			if o.logg != nil {
				o.logg.Error(o.logg.WithField(logCtx, "attempts", attempt), "orchestrator.turn.failed", typed)
			}
			return nil, typed
		}

		o.metrics.IncRetry(string(typed.Code()))
		if o.logg != nil {
			o.logg.Warn(o.logg.WithFields(logCtx, map[string]any{
				"attempt":  attempt,
				"code":     string(typed.Code()),
				"delay_ms": rec.delay.Milliseconds(),
			}), "orchestrator.turn.retry")
		}
		if err := o.sleep(ctx, rec.delay); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return nil, typed
		}
	}
}

type turnState struct {
	pending    []llm.Message
	calls      []CallRecord
	rounds     int
	text       string
	compaction CompactionResult
}

// attempt runs model rounds until the model answers without function calls
// or the round budget is spent. Work already dispatched is kept in st so a
// retried attempt resumes rather than repeating it.
func (o *Orchestrator) attempt(ctx context.Context, rt *sessionRuntime, sessionID uuid.UUID, st *turnState) error {
	for {
		pendingTokens := llm.EstimateMessageTokens(st.pending)
		if err := rt.rate.Check(rt.history.Size() + pendingTokens); err != nil {
			return err
		}
		result, err := rt.history.Fit(ctx, pendingTokens, o.summarizer(rt))
		if err != nil && o.logg != nil {
			o.logg.Warn(o.logg.WithField(o.logg.WithSessionID(ctx, sessionID.String()), "error", err.Error()), "orchestrator.context.summary_failed")
		}
		if result == CompactionCleared {
			o.emit(ctx, sessionID, o.toasts.New(enums.ToastKindInfo, uisync.MsgContextTrimmed))
		}
		if result != CompactionNone {
			st.compaction = result
		}

		sess, err := o.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		messages := systemMessages(sess)
		messages = append(messages, rt.history.Messages()...)
		messages = append(messages, st.pending...)

		resp, err := o.callModel(ctx, messages, o.tools)
		if err != nil {
			return err
		}
		o.record(rt, messages, resp)

		if len(resp.ToolCalls) == 0 || st.rounds >= o.cfg.MaxToolRounds {
			if len(resp.ToolCalls) > 0 && o.logg != nil {
				o.logg.Warn(o.logg.WithField(o.logg.WithSessionID(ctx, sessionID.String()), "ignored_calls", len(resp.ToolCalls)), "orchestrator.tool_rounds_exhausted")
			}
			st.text = strings.TrimSpace(resp.Content)
			st.pending = append(st.pending, llm.AssistantMessage(st.text, nil))
			return nil
		}

		st.rounds++
		st.pending = append(st.pending, llm.AssistantMessage(resp.Content, resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			res, tries := o.dispatch(ctx, sessionID, call)
			rec := CallRecord{ID: call.ID, Name: call.Name, Success: res.OK(), Attempts: tries}
			if res.Error != nil {
				rec.ErrorCode = res.Error.Code
			}
			st.calls = append(st.calls, rec)
			st.pending = append(st.pending, llm.ToolMessage(call.ID, call.Name, res.Content()))
		}
	}
}

// dispatch runs one function call, retrying retryable failures with capped
// exponential backoff. Business failures go straight back to the model.
func (o *Orchestrator) dispatch(ctx context.Context, sessionID uuid.UUID, call llm.ToolCall) (functions.Response, int) {
	fc := functions.Call{ID: call.ID, Name: call.Name, Parameters: call.Arguments}
	for attempt := 0; ; attempt++ {
		resp := o.functions.Handle(ctx, sessionID, fc)
		if resp.OK() || !resp.Error.Retryable || attempt >= o.cfg.DispatchRetries {
			return resp, attempt + 1
		}
		o.metrics.IncRetry("dispatch")
		if err := o.sleep(ctx, backoff(o.cfg.DispatchBackoff, o.cfg.DispatchBackoffCap, attempt)); err != nil {
			return resp, attempt + 1
		}
	}
}

// callModel calls the model under the per-call timeout. A call that outlives
// the timeout is abandoned.
func (o *Orchestrator) callModel(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (*llm.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	started := o.now()
	resp, err := o.client.Chat(callCtx, messages, tools, o.sampling)
	if err == nil && resp == nil {
		err = errors.New("model returned no response")
	}
	if err != nil {
		if ctx.Err() != nil {
			o.metrics.ObserveModelCall("cancelled", o.now().Sub(started))
			return nil, ctx.Err()
		}
		o.metrics.ObserveModelCall("error", o.now().Sub(started))
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTimeout, err, fmt.Sprintf("model call exceeded %s", o.cfg.CallTimeout))
		}
		return nil, llm.ClassifyError(err)
	}
	o.metrics.ObserveModelCall("ok", o.now().Sub(started))
	return resp, nil
}

func (o *Orchestrator) record(rt *sessionRuntime, messages []llm.Message, resp *llm.Response) {
	tokens := resp.Usage.TotalTokens
	if tokens <= 0 {
		tokens = llm.EstimateMessageTokens(messages) + llm.EstimateTokens(resp.Content)
	}
	rt.rate.Record(tokens)
}

func (o *Orchestrator) summarizer(rt *sessionRuntime) Summarizer {
	return func(ctx context.Context, turns []llm.Message) (string, error) {
		messages := []llm.Message{llm.SystemMessage(summaryPrompt), llm.UserMessage(transcript(turns))}
		resp, err := o.callModel(ctx, messages, nil)
		if err != nil {
			return "", err
		}
		o.record(rt, messages, resp)
		return resp.Content, nil
	}
}

func (o *Orchestrator) finish(ctx context.Context, rt *sessionRuntime, sessionID uuid.UUID, st *turnState, attempts int) (*Turn, error) {
	rt.history.Append(st.pending...)
	if st.text != "" {
		o.emit(ctx, sessionID, uisync.UIUpdate{
			Panel: uisync.PanelChat,
			View:  "message",
			Data:  map[string]any{"role": llm.RoleAssistant, "text": st.text},
		})
	}
	turn := &Turn{
		SessionID:  sessionID,
		Mode:       ModeModel,
		Text:       st.text,
		Calls:      st.calls,
		Attempts:   attempts,
		Compaction: st.compaction,
	}
	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	turn.State = sess.State
	if o.logg != nil {
		logCtx := o.logg.WithFields(o.logg.WithSessionID(ctx, sessionID.String()), map[string]any{
			"attempts": attempts,
			"calls":    len(st.calls),
			"state":    string(sess.State),
		})
		o.logg.Info(logCtx, "orchestrator.turn.done")
	}
	return turn, nil
}

// recordRetries mirrors the runtime failure count onto the state context.
// An empty lastErr keeps the previous one.
func (o *Orchestrator) recordRetries(ctx context.Context, sessionID uuid.UUID, count int, lastErr string) {
	if _, err := o.sessions.Update(ctx, sessionID, func(s *sessions.Session) error {
		s.Context.ModelFailures = count
		if lastErr != "" {
			s.Context.LastError = lastErr
		}
		return nil
	}); err != nil && o.logg != nil {
		o.logg.Error(o.logg.WithSessionID(ctx, sessionID.String()), "orchestrator.retries.persist_failed", err)
	}
}

// degrade marks the session as served by rules from now on.
func (o *Orchestrator) degrade(ctx context.Context, rt *sessionRuntime, sessionID uuid.UUID, cause *pkgerrors.Error) {
	rt.mu.Lock()
	rt.degraded = true
	rt.mu.Unlock()

	if _, err := o.sessions.Update(ctx, sessionID, func(s *sessions.Session) error {
		s.Context.DegradedMode = true
		s.Context.LastError = string(cause.Code())
		return nil
	}); err != nil && o.logg != nil {
		o.logg.Error(o.logg.WithSessionID(ctx, sessionID.String()), "orchestrator.degrade.persist_failed", err)
	}
	o.emit(ctx, sessionID, uisync.UIUpdate{
		Panel: uisync.PanelSystem,
		View:  "degraded",
		Data:  map[string]any{"reason": string(cause.Code()), "message": o.toasts.Text(uisync.MsgDegraded)},
	})
	if o.logg != nil {
		o.logg.Warn(o.logg.WithSessionID(ctx, sessionID.String()), "orchestrator.degraded")
	}
}

func (o *Orchestrator) emit(ctx context.Context, sessionID uuid.UUID, ev uisync.Event) {
	if err := o.emitter.Emit(ctx, sessionID, ev); err != nil && o.logg != nil {
		o.logg.Warn(o.logg.WithField(o.logg.WithSessionID(ctx, sessionID.String()), "error", err.Error()), "orchestrator.emit_failed")
	}
}
