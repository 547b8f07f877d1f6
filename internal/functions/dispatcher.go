package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/angelmondragon/voicecommerce-backend/internal/uisync"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
	"github.com/angelmondragon/voicecommerce-backend/pkg/metrics"
)

// Call is one function invocation requested by the model.
type Call struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
}

type CallError struct {
	Code      pkgerrors.Code `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   any            `json:"details,omitempty"`
}

// Response is the outcome of a call. Exactly one of Result and Error is set.
type Response struct {
	ID     string     `json:"id"`
	Result any        `json:"result"`
	Error  *CallError `json:"error"`
}

// Result is the shape business outcomes take when handed back to the model.
type Result struct {
	Success      bool           `json:"success"`
	ErrorCode    pkgerrors.Code `json:"errorCode,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Data         any            `json:"data,omitempty"`
}

func (r Response) OK() bool {
	return r.Error == nil
}

func (r Response) Payload() Result {
	if r.Error != nil {
		return Result{Success: false, ErrorCode: r.Error.Code, ErrorMessage: r.Error.Message}
	}
	return Result{Success: true, Data: r.Result}
}

// Content renders the response for a tool message.
func (r Response) Content() string {
	raw, err := json.Marshal(r.Payload())
	if err != nil {
		return fmt.Sprintf(`{"success":false,"errorCode":%q,"errorMessage":"unencodable result"}`, pkgerrors.CodeInternal)
	}
	return string(raw)
}

type runner func(ctx context.Context, sessionID uuid.UUID, raw json.RawMessage) (any, error)

type entry struct {
	decl   Declaration
	schema *jsonschema.Schema
	run    runner
}

// bind decodes raw parameters into P, checks them and runs fn.
func bind[P any](check func(*P) error, fn func(ctx context.Context, sessionID uuid.UUID, p P) (any, error)) runner {
	return func(ctx context.Context, sessionID uuid.UUID, raw json.RawMessage) (any, error) {
		var p P
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode parameters")
		}
		if err := check(&p); err != nil {
			return nil, err
		}
		return fn(ctx, sessionID, p)
	}
}

func checked[P any](p *P) error {
	return validateParams(p)
}

// Dispatcher routes model function calls to the business engines.
type Dispatcher struct {
	entries map[string]entry
	deps    Deps
	emitter uisync.Emitter
	toasts  *uisync.Toasts
	metrics *metrics.OrchestratorMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewDispatcher compiles every declaration's schema and wires its handler.
func NewDispatcher(deps Deps, emitter uisync.Emitter, toasts *uisync.Toasts, om *metrics.OrchestratorMetrics, logg *logger.Logger) (*Dispatcher, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if toasts == nil {
		return nil, fmt.Errorf("toasts required")
	}
	if emitter == nil {
		emitter = uisync.Nop{}
	}
	d := &Dispatcher{
		entries: map[string]entry{},
		deps:    deps,
		emitter: emitter,
		toasts:  toasts,
		metrics: om,
		logg:    logg,
		now:     time.Now,
	}
	if deps.Now != nil {
		d.now = deps.Now
	}

	runners := d.runners()
	for _, decl := range Declarations() {
		run, ok := runners[decl.Name]
		if !ok {
			return nil, fmt.Errorf("no handler for function %s", decl.Name)
		}
		schema, err := compileSchema(decl)
		if err != nil {
			return nil, err
		}
		d.entries[decl.Name] = entry{decl: decl, schema: schema, run: run}
	}
	return d, nil
}

func compileSchema(decl Declaration) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(decl.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode %s schema: %w", decl.Name, err)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://voicecommerce.local/functions/%s.schema.json", decl.Name)
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load %s schema: %w", decl.Name, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", decl.Name, err)
	}
	return schema, nil
}

func (d *Dispatcher) Declarations() []Declaration {
	return Declarations()
}

// Handle executes one call. It never returns an error: every failure is
// folded into the response.
func (d *Dispatcher) Handle(ctx context.Context, sessionID uuid.UUID, call Call) (resp Response) {
	started := d.now()
	resp.ID = call.ID
	defer func() {
		if r := recover(); r != nil {
			resp.Result = nil
			resp.Error = toCallError(pkgerrors.Newf(pkgerrors.CodeInternal, "function %s panicked: %v", call.Name, r))
		}
		d.metrics.ObserveDispatch(call.Name, resp.Error == nil, d.now().Sub(started))
	}()

	result, err := d.dispatch(ctx, sessionID, call)
	if err != nil {
		resp.Error = toCallError(err)
		if resp.Error.Code == pkgerrors.CodeFunctionCall {
			// malformed calls are never retried as-is
			resp.Error.Retryable = false
		}
		d.report(ctx, sessionID, call, err)
		return resp
	}
	resp.Result = result
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, sessionID uuid.UUID, call Call) (any, error) {
	name := strings.TrimSpace(call.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeFunctionCall, "function name is required")
	}
	e, ok := d.entries[name]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeFunctionCall, "unknown function %q", name)
	}

	raw := bytes.TrimSpace(call.Parameters)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeFunctionCall, err, "parameters are not valid json")
	}
	if _, isObject := doc.(map[string]any); !isObject {
		return nil, pkgerrors.Newf(pkgerrors.CodeFunctionCall, "parameters for %s must be an object", name)
	}
	if err := e.schema.Validate(doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("parameters for %s do not match the schema", name)).
			WithDetails(map[string]any{"function": name, "error": err.Error()})
	}
	return e.run(ctx, sessionID, raw)
}

// report logs a failed call and shows business failures to the customer.
func (d *Dispatcher) report(ctx context.Context, sessionID uuid.UUID, call Call, err error) {
	if d.logg != nil {
		logCtx := d.logg.WithSessionID(ctx, sessionID.String())
		logCtx = d.logg.WithFields(logCtx, map[string]any{"function": call.Name, "call_id": call.ID})
		d.logg.Warn(logCtx, "functions.call_failed: "+err.Error())
	}
	switch pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).Category {
	case pkgerrors.CategoryBusiness, pkgerrors.CategoryPayment:
		_ = d.emitter.Emit(ctx, sessionID, d.toasts.ForError(err))
	}
}

func toCallError(err error) *CallError {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, err.Error())
	}
	return &CallError{
		Code:      typed.Code(),
		Message:   typed.Message(),
		Retryable: typed.Retryable(),
		Details:   typed.Details(),
	}
}
