package group

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/peiyulin/carelink-linebot-go/internal/config"
	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
	"github.com/peiyulin/carelink-linebot-go/internal/flow"
)

// Flow steps, in order
const (
	stepAwaitTitle    flow.Step = "await_title"
	stepAwaitDatetime flow.Step = "await_datetime"
	stepAwaitLocation flow.Step = "await_location"
	stepAwaitCapacity flow.Step = "await_capacity"
	stepAwaitConfirm  flow.Step = "await_confirm"
)

// Step data keys
const (
	dataTitle    = "title"
	dataAt       = "at"
	dataLocation = "location"
	dataCapacity = "capacity"
)

const createPrompt = "👥 好的，我們來開一個揪團!\n\n" +
	"第一步，請告訴我活動名稱，例如:\n「陽明山賞花一日遊」\n\n" +
	"(輸入「取消」可以隨時取消)"

var confirmWords = []string{"確認", "好", "ok", "yes"}

func (h *Handler) registerFlows(timeout time.Duration) {
	h.engine.Register(&flow.Definition{
		Name: flow.CreateGroup,
		Steps: []flow.Step{
			stepAwaitTitle, stepAwaitDatetime, stepAwaitLocation,
			stepAwaitCapacity, stepAwaitConfirm,
		},
		Handlers: map[flow.Step]flow.StepHandler{
			stepAwaitTitle:    h.handleTitle,
			stepAwaitDatetime: h.handleDatetime,
			stepAwaitLocation: h.handleLocation,
			stepAwaitCapacity: h.handleCapacity,
			stepAwaitConfirm:  h.handleConfirm,
		},
		OnComplete:  h.completeCreate,
		Timeout:     timeout,
		StartPrompt: createPrompt,
	})
}

func (h *Handler) handleTitle(_ context.Context, _ string, input string, data map[string]string) flow.Outcome {
	title, err := flow.ParseTitle(input)
	if err != nil {
		return flow.Reject("活動名稱" + validationMessage(err))
	}
	return flow.Advance(merged(data, dataTitle, title),
		"👍 「"+title+"」聽起來很棒!\n\n"+
			"什麼時候出發呢?請輸入日期，例如:\n「4/20」或「4/20 9:30」")
}

func (h *Handler) handleDatetime(_ context.Context, _ string, input string, data map[string]string) flow.Outcome {
	at, err := flow.ParseAppointmentDate(input, time.Now().In(config.Taiwan))
	if err != nil {
		return flow.Reject(validationMessage(err))
	}
	return flow.Advance(merged(data, dataAt, strconv.FormatInt(at.Unix(), 10)),
		"🗓️ 好的，"+at.Format("1/2 15:04")+" 出發!\n\n"+
			"在哪裡集合呢?請輸入地點，例如:\n「台北車站東三門」")
}

func (h *Handler) handleLocation(_ context.Context, _ string, input string, data map[string]string) flow.Outcome {
	location, err := flow.ParseTitle(input)
	if err != nil {
		return flow.Reject("集合地點" + validationMessage(err))
	}
	return flow.Advance(merged(data, dataLocation, location),
		"📍 集合地點:"+location+"\n\n"+
			"最多幾個人參加呢?請輸入人數 (含您自己，2 到 50 人)")
}

func (h *Handler) handleCapacity(_ context.Context, _ string, input string, data map[string]string) flow.Outcome {
	capacity, err := flow.ParseCapacity(input)
	if err != nil {
		return flow.Reject(validationMessage(err))
	}
	next := merged(data, dataCapacity, strconv.Itoa(capacity))
	return flow.Advance(next, summaryText(next))
}

// handleConfirm accepts a confirmation word and rejects anything else,
// re-showing the summary so the user can cancel or confirm again.
func (h *Handler) handleConfirm(_ context.Context, _ string, input string, data map[string]string) flow.Outcome {
	normalized := flow.Normalize(input)
	for _, w := range confirmWords {
		if normalized == w {
			return flow.Complete(data, "")
		}
	}
	return flow.Reject("請輸入「確認」建立揪團，或輸入「取消」放棄。\n\n" + summaryText(data))
}

func (h *Handler) completeCreate(ctx context.Context, userID string, data map[string]string) (string, error) {
	at, err := strconv.ParseInt(data[dataAt], 10, 64)
	if err != nil {
		return "", errors.New("group data corrupted: " + err.Error())
	}
	capacity, err := strconv.Atoi(data[dataCapacity])
	if err != nil {
		return "", errors.New("group data corrupted: " + err.Error())
	}

	g, err := h.db.CreateGroup(ctx, userID, data[dataTitle], at, data[dataLocation], capacity)
	if err != nil {
		return "", err
	}
	return "🎉 揪團「" + g.Title + "」建立好了!\n\n" +
		"其他人輸入「揪團」就可以看到並報名喔!\n" +
		"輸入「我的揪團」可以隨時查看狀況。", nil
}

func summaryText(data map[string]string) string {
	at, _ := strconv.ParseInt(data[dataAt], 10, 64)
	return "📋 幫您整理一下:\n\n" +
		"活動:" + data[dataTitle] + "\n" +
		"時間:" + time.Unix(at, 0).In(config.Taiwan).Format("2006/1/2 15:04") + "\n" +
		"地點:" + data[dataLocation] + "\n" +
		"人數:最多 " + data[dataCapacity] + " 人\n\n" +
		"沒問題的話請輸入「確認」!"
}

// merged returns a copy of data with one extra key. Handlers return full
// replacement snapshots, never mutations of the session's map.
func merged(data map[string]string, key, value string) map[string]string {
	next := make(map[string]string, len(data)+1)
	for k, v := range data {
		next[k] = v
	}
	next[key] = value
	return next
}

func validationMessage(err error) string {
	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return "格式好像不太對，請再試一次"
}
