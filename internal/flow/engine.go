package flow

import (
	"context"
	"fmt"

	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
	"github.com/peiyulin/carelink-linebot-go/internal/session"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

// User-facing flow control messages
const (
	CancelledMessage = "好的，已取消這次的操作。需要幫忙時隨時輸入「幫助」喔!"
	ExpiredMessage   = "這次的操作已經超過時間，先幫您取消了。想繼續的話請重新開始喔!"
	brokenFlowReply  = "不好意思，剛才的操作出了點問題，已經幫您重置。請重新開始喔!"
)

// Engine walks users through registered flows. It owns the transition
// rules; the per-flow step handlers own validation and data accumulation.
type Engine struct {
	flows   map[Name]*Definition
	store   *session.Store
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewEngine creates a flow engine
func NewEngine(store *session.Store, log *logger.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		flows:   make(map[Name]*Definition),
		store:   store,
		log:     log.WithModule("flow"),
		metrics: m,
	}
}

// Register adds a flow definition. Panics on duplicate or malformed
// definitions; registration happens once at startup.
func (e *Engine) Register(d *Definition) {
	if len(d.Steps) == 0 {
		panic(fmt.Sprintf("flow %s has no steps", d.Name))
	}
	for _, s := range d.Steps {
		if d.Handlers[s] == nil {
			panic(fmt.Sprintf("flow %s step %s has no handler", d.Name, s))
		}
	}
	if _, exists := e.flows[d.Name]; exists {
		panic(fmt.Sprintf("flow %s registered twice", d.Name))
	}
	e.flows[d.Name] = d
}

// Definition returns a registered flow definition.
func (e *Engine) Definition(name Name) (*Definition, bool) {
	d, ok := e.flows[name]
	return d, ok
}

// Start begins a flow for the user, discarding any active flow, and
// returns the first step's prompt.
func (e *Engine) Start(ctx context.Context, userID string, name Name) (string, error) {
	d, ok := e.flows[name]
	if !ok {
		return "", fmt.Errorf("unknown flow %q", name)
	}
	if err := e.store.StartFlow(ctx, userID, string(d.Name), string(d.FirstStep()), nil, d.Timeout); err != nil {
		return "", fmt.Errorf("start flow %s: %w", name, err)
	}
	e.log.WithUserID(userID).Infof("started flow %s", name)
	return d.StartPrompt, nil
}

// HandleInput processes one message for a session with an active flow and
// returns the reply text. The caller holds the user's lock and has already
// applied lazy expiry, so sess.FlowName is a live flow here.
func (e *Engine) HandleInput(ctx context.Context, sess *storage.Session, input string) (string, error) {
	userID := sess.UserID

	if IsCancel(input) {
		if err := e.store.Clear(ctx, userID); err != nil {
			return "", fmt.Errorf("cancel flow: %w", err)
		}
		e.metrics.RecordFlowOutcome(sess.FlowName, "cancelled")
		e.log.WithUserID(userID).Infof("flow %s cancelled", sess.FlowName)
		return CancelledMessage, nil
	}

	d, ok := e.flows[Name(sess.FlowName)]
	if !ok {
		// A flow name no release knows about, likely left by an older
		// deploy. Reset rather than trap the user.
		e.log.WithUserID(userID).Warnf("unknown flow %q in session, clearing", sess.FlowName)
		if err := e.store.Clear(ctx, userID); err != nil {
			return "", fmt.Errorf("clear unknown flow: %w", err)
		}
		return brokenFlowReply, nil
	}

	step := Step(sess.CurrentStep)
	handler, ok := d.Handlers[step]
	if !ok {
		e.log.WithUserID(userID).Warnf("flow %s has no handler for step %q, clearing", d.Name, step)
		if err := e.store.Clear(ctx, userID); err != nil {
			return "", fmt.Errorf("clear broken flow: %w", err)
		}
		return brokenFlowReply, nil
	}

	outcome := handler(ctx, userID, input, sess.StepData)

	switch outcome.Kind {
	case OutcomeReject:
		e.metrics.RecordFlowOutcome(sess.FlowName, "rejected")
		return outcome.Message, nil

	case OutcomeAdvance:
		next := d.NextStep(step)
		if next == "" {
			return "", fmt.Errorf("flow %s advanced past final step %s", d.Name, step)
		}
		if err := e.store.Advance(ctx, userID, string(next), outcome.Data); err != nil {
			return "", fmt.Errorf("advance flow %s: %w", d.Name, err)
		}
		return outcome.Message, nil

	case OutcomeComplete:
		msg := outcome.Message
		if d.OnComplete != nil {
			completed, err := d.OnComplete(ctx, userID, outcome.Data)
			if err != nil {
				return "", fmt.Errorf("complete flow %s: %w", d.Name, err)
			}
			if completed != "" {
				msg = completed
			}
		}
		if err := e.store.Clear(ctx, userID); err != nil {
			return "", fmt.Errorf("clear completed flow %s: %w", d.Name, err)
		}
		e.metrics.RecordFlowOutcome(sess.FlowName, "completed")
		e.log.WithUserID(userID).Infof("flow %s completed", d.Name)
		return msg, nil

	default:
		return "", fmt.Errorf("flow %s step %s returned unknown outcome %d", d.Name, step, outcome.Kind)
	}
}
