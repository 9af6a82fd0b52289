package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qmuntal/stateless"

	"github.com/comigor/mentor-go/internal/config"
	"github.com/comigor/mentor-go/internal/history"
	"github.com/comigor/mentor-go/internal/llm"
	"github.com/comigor/mentor-go/internal/logger"
	"github.com/comigor/mentor-go/internal/pipeline"
)

// ErrEmptyQuery is returned by Ask before any service call when the query is blank.
var ErrEmptyQuery = errors.New("query is empty")

// Round states
type roundState string

const (
	stateIdle      roundState = "Idle"
	stateRendering roundState = "Rendering"
	stateInvoking  roundState = "Invoking"
	stateRecording roundState = "Recording"
	stateDone      roundState = "Done"   // Terminal: reply recorded
	stateFailed    roundState = "Failed" // Terminal: nothing recorded
)

// Round triggers
type roundTrigger string

const (
	triggerAsk      roundTrigger = "Ask"
	triggerRendered roundTrigger = "Rendered"
	triggerReplied  roundTrigger = "Replied"
	triggerRecorded roundTrigger = "Recorded"
	triggerFailed   roundTrigger = "Failed"
)

// Agent answers queries with the session's prior turns as context and records
// each successful exchange.
type Agent struct {
	store        *history.Store
	pipeline     *pipeline.Pipeline
	systemPrompt string
}

// New creates an agent over store. The system prompt comes from configuration.
func New(llmClient llm.Client, store *history.Store, appCfg config.Config) *Agent {
	systemPrompt := appCfg.Mentor.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = config.DefaultSystemPrompt
	}
	return &Agent{
		store:        store,
		pipeline:     pipeline.New(llmClient, appCfg.LLM),
		systemPrompt: systemPrompt,
	}
}

// Store returns the session store the agent reads and writes.
func (a *Agent) Store() *history.Store {
	return a.store
}

// round carries data between state actions of one Ask.
type round struct {
	sessionID string
	query     string
	turns     []history.Turn
	payload   pipeline.Payload
	reply     string
	err       error
}

// Ask runs one conversational round for sessionID and returns the reply.
// On success exactly two turns (user, assistant) are appended; on failure
// none are. Rounds on the same session are serialized.
func (a *Agent) Ask(ctx context.Context, sessionID, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrEmptyQuery
	}

	h := a.store.GetOrCreate(sessionID)
	if err := h.Lock(ctx); err != nil {
		return "", fmt.Errorf("wait for session %s: %w", sessionID, err)
	}
	defer h.Unlock()

	r := &round{sessionID: sessionID, query: query}
	fsm := a.newRoundMachine(h, r)

	if err := fsm.FireCtx(ctx, triggerAsk); err != nil {
		logger.L.Error("round state machine failed", "session", sessionID, "error", err)
		if r.err != nil {
			return "", r.err
		}
		return "", fmt.Errorf("round state machine: %w", err)
	}

	switch fsm.MustState() {
	case stateDone:
		return r.reply, nil
	case stateFailed:
		if r.err != nil {
			return "", r.err
		}
		return "", errors.New("round failed without a specific error")
	default:
		return "", fmt.Errorf("round ended in an unexpected state: %v", fsm.MustState())
	}
}

func (a *Agent) newRoundMachine(h *history.History, r *round) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(stateIdle)

	fail := func(ctx context.Context, err error) error {
		r.err = err
		return fsm.FireCtx(ctx, triggerFailed)
	}

	fsm.Configure(stateIdle).
		Permit(triggerAsk, stateRendering)

	// Read prior turns and build the prompt.
	fsm.Configure(stateRendering).
		OnEntry(func(ctx context.Context, _ ...any) error {
			turns, err := h.Turns()
			if err != nil {
				return fail(ctx, fmt.Errorf("read history: %w", err))
			}
			r.turns = turns
			r.payload = pipeline.Render(a.systemPrompt, turns, r.query)
			logger.L.Debug("prompt rendered", "session", r.sessionID, "history_turns", len(turns))
			return fsm.FireCtx(ctx, triggerRendered)
		}).
		Permit(triggerRendered, stateInvoking).
		Permit(triggerFailed, stateFailed)

	// Call the language model service. Its errors pass through untouched.
	fsm.Configure(stateInvoking).
		OnEntry(func(ctx context.Context, _ ...any) error {
			reply, err := a.pipeline.Invoke(ctx, r.payload)
			if err != nil {
				return fail(ctx, err)
			}
			r.reply = reply
			return fsm.FireCtx(ctx, triggerReplied)
		}).
		Permit(triggerReplied, stateRecording).
		Permit(triggerFailed, stateFailed)

	// Record the exchange as one atomic pair.
	fsm.Configure(stateRecording).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if err := h.Append(history.UserTurn(r.query), history.AssistantTurn(r.reply)); err != nil {
				return fail(ctx, fmt.Errorf("record turns: %w", err))
			}
			return fsm.FireCtx(ctx, triggerRecorded)
		}).
		Permit(triggerRecorded, stateDone).
		Permit(triggerFailed, stateFailed)

	fsm.Configure(stateDone).
		OnEntry(func(ctx context.Context, _ ...any) error {
			logger.L.Info("round completed", "session", r.sessionID, "history_turns", len(r.turns)+2)
			return nil
		})

	fsm.Configure(stateFailed).
		OnEntry(func(ctx context.Context, _ ...any) error {
			logger.L.Warn("round failed", "session", r.sessionID, "error", r.err)
			return nil
		})

	return fsm
}
