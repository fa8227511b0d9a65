package flow

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
	"github.com/peiyulin/carelink-linebot-go/internal/session"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

const testFlow Name = "test_flow"

func newTestEngine(t *testing.T) (*Engine, *session.Store) {
	t.Helper()
	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	log := logger.NewWithWriter("error", io.Discard)
	store := session.NewStore(db, log)
	return NewEngine(store, log, metrics.New(prometheus.NewRegistry())), store
}

// registerTestFlow wires a two step flow: a name step that rejects short
// input, then a confirm step that completes on 確認.
func registerTestFlow(e *Engine, completed *map[string]string) {
	e.Register(&Definition{
		Name:        testFlow,
		Steps:       []Step{"await_name", "await_confirm"},
		Timeout:     10 * time.Minute,
		StartPrompt: "請輸入名稱",
		Handlers: map[Step]StepHandler{
			"await_name": func(ctx context.Context, userID, input string, data map[string]string) Outcome {
				if len(strings.TrimSpace(input)) < 2 {
					return Reject("名稱太短")
				}
				return Advance(map[string]string{"name": strings.TrimSpace(input)}, "請輸入 確認")
			},
			"await_confirm": func(ctx context.Context, userID, input string, data map[string]string) Outcome {
				if strings.TrimSpace(input) != "確認" {
					return Reject("請輸入 確認")
				}
				return Complete(data, "完成")
			},
		},
		OnComplete: func(ctx context.Context, userID string, data map[string]string) (string, error) {
			*completed = data
			return "", nil
		},
	})
}

func TestEngineHappyPath(t *testing.T) {
	e, store := newTestEngine(t)
	var completed map[string]string
	registerTestFlow(e, &completed)
	ctx := context.Background()

	prompt, err := e.Start(ctx, "U1", testFlow)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if prompt != "請輸入名稱" {
		t.Errorf("prompt = %q", prompt)
	}

	sess, _, err := store.Get(ctx, "U1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	reply, err := e.HandleInput(ctx, sess, "王小明")
	if err != nil {
		t.Fatalf("HandleInput() error = %v", err)
	}
	if reply != "請輸入 確認" {
		t.Errorf("reply = %q", reply)
	}

	sess, _, err = store.Get(ctx, "U1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sess.CurrentStep != "await_confirm" || sess.StepData["name"] != "王小明" {
		t.Errorf("session = %+v, want await_confirm with name", sess)
	}

	reply, err = e.HandleInput(ctx, sess, "確認")
	if err != nil {
		t.Fatalf("HandleInput() error = %v", err)
	}
	if reply != "完成" {
		t.Errorf("reply = %q, want 完成", reply)
	}
	if completed["name"] != "王小明" {
		t.Errorf("completed data = %v, want name 王小明", completed)
	}

	sess, _, err = store.Get(ctx, "U1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sess.FlowName != "" {
		t.Errorf("FlowName = %q, want cleared after completion", sess.FlowName)
	}
}

func TestEngineRejectKeepsStep(t *testing.T) {
	e, store := newTestEngine(t)
	var completed map[string]string
	registerTestFlow(e, &completed)
	ctx := context.Background()

	if _, err := e.Start(ctx, "U1", testFlow); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sess, _, _ := store.Get(ctx, "U1")
	reply, err := e.HandleInput(ctx, sess, "A")
	if err != nil {
		t.Fatalf("HandleInput() error = %v", err)
	}
	if reply != "名稱太短" {
		t.Errorf("reply = %q, want rejection message", reply)
	}

	sess, _, _ = store.Get(ctx, "U1")
	if sess.CurrentStep != "await_name" {
		t.Errorf("CurrentStep = %q, want unchanged await_name", sess.CurrentStep)
	}
}

func TestEngineCancelFromAnyStep(t *testing.T) {
	e, store := newTestEngine(t)
	var completed map[string]string
	registerTestFlow(e, &completed)
	ctx := context.Background()

	for _, input := range []string{"取消", "cancel", " CANCEL "} {
		t.Run(input, func(t *testing.T) {
			if _, err := e.Start(ctx, "U1", testFlow); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			sess, _, _ := store.Get(ctx, "U1")
			if _, err := e.HandleInput(ctx, sess, "王小明"); err != nil {
				t.Fatalf("HandleInput() error = %v", err)
			}

			sess, _, _ = store.Get(ctx, "U1")
			reply, err := e.HandleInput(ctx, sess, input)
			if err != nil {
				t.Fatalf("HandleInput() error = %v", err)
			}
			if reply != CancelledMessage {
				t.Errorf("reply = %q, want cancel acknowledgment", reply)
			}

			sess, _, _ = store.Get(ctx, "U1")
			if sess.FlowName != "" || len(sess.StepData) != 0 {
				t.Errorf("session = %+v, want no flow state after cancel", sess)
			}
		})
	}
}

func TestEngineUnknownFlowResets(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	if err := store.StartFlow(ctx, "U1", "retired_flow", "step1", nil, time.Minute); err != nil {
		t.Fatalf("StartFlow() error = %v", err)
	}
	sess, _, _ := store.Get(ctx, "U1")
	reply, err := e.HandleInput(ctx, sess, "哈囉")
	if err != nil {
		t.Fatalf("HandleInput() error = %v", err)
	}
	if reply == "" {
		t.Error("reply empty, want reset notice")
	}

	sess, _, _ = store.Get(ctx, "U1")
	if sess.FlowName != "" {
		t.Errorf("FlowName = %q, want cleared", sess.FlowName)
	}
}

func TestEngineRestartDiscardsOldData(t *testing.T) {
	e, store := newTestEngine(t)
	var completed map[string]string
	registerTestFlow(e, &completed)
	ctx := context.Background()

	if _, err := e.Start(ctx, "U1", testFlow); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	sess, _, _ := store.Get(ctx, "U1")
	if _, err := e.HandleInput(ctx, sess, "王小明"); err != nil {
		t.Fatalf("HandleInput() error = %v", err)
	}

	// Starting again resets to the first step with empty data.
	if _, err := e.Start(ctx, "U1", testFlow); err != nil {
		t.Fatalf("Start() again error = %v", err)
	}
	sess, _, _ = store.Get(ctx, "U1")
	if sess.CurrentStep != "await_name" || len(sess.StepData) != 0 {
		t.Errorf("session = %+v, want fresh first step", sess)
	}
}
