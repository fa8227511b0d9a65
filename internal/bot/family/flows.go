package family

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
	"github.com/peiyulin/carelink-linebot-go/internal/flow"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

// Flow steps, in order
const (
	stepAwaitName    flow.Step = "await_name"
	stepAwaitPhone   flow.Step = "await_phone"
	stepAwaitConfirm flow.Step = "await_confirm"
)

// Step data keys
const (
	dataName     = "name"
	dataRelation = "relation"
	dataPhone    = "phone"
)

const addPrompt = "👨‍👩‍👧 好的，我們來新增一位家人!\n\n" +
	"請告訴我稱呼，例如:\n「小明」或「兒子 小明」\n\n" +
	"(輸入「取消」可以隨時取消)"

// relationWords are recognized as a leading relation label.
var relationWords = map[string]bool{
	"兒子": true, "女兒": true, "孫子": true, "孫女": true,
	"先生": true, "太太": true, "媳婦": true, "女婿": true,
	"看護": true, "朋友": true, "鄰居": true,
}

// phonePattern accepts Taiwanese numbers after dashes and spaces are
// stripped: 09 mobiles and 0X landlines.
var phonePattern = regexp.MustCompile(`^0\d{8,9}$`)

var confirmWords = []string{"確認", "好", "ok", "yes"}

func (h *Handler) registerFlows(timeout time.Duration) {
	h.engine.Register(&flow.Definition{
		Name:  flow.AddFamily,
		Steps: []flow.Step{stepAwaitName, stepAwaitPhone, stepAwaitConfirm},
		Handlers: map[flow.Step]flow.StepHandler{
			stepAwaitName:    h.handleName,
			stepAwaitPhone:   h.handlePhone,
			stepAwaitConfirm: h.handleConfirm,
		},
		OnComplete:  h.completeAdd,
		Timeout:     timeout,
		StartPrompt: addPrompt,
	})
}

func (h *Handler) handleName(_ context.Context, _ string, input string, data map[string]string) flow.Outcome {
	fields := strings.Fields(input)

	relation := ""
	name := strings.TrimSpace(input)
	if len(fields) == 2 && relationWords[fields[0]] {
		relation = fields[0]
		name = fields[1]
	}
	if name == "" || len([]rune(name)) > 20 {
		return flow.Reject("稱呼要在 20 個字以內喔!例如「小明」或「兒子 小明」")
	}

	next := map[string]string{dataName: name}
	if relation != "" {
		next[dataRelation] = relation
	}
	return flow.Advance(next,
		"📒 好的，要記下「"+displayName(next)+"」。\n\n電話號碼是多少呢?例如:\n「0912-345-678」")
}

func (h *Handler) handlePhone(_ context.Context, _ string, input string, data map[string]string) flow.Outcome {
	phone, err := parsePhone(input)
	if err != nil {
		return flow.Reject(validationMessage(err))
	}

	next := merged(data, dataPhone, phone)
	return flow.Advance(next,
		"📋 幫您確認一下:\n\n"+
			"稱呼:"+displayName(next)+"\n"+
			"電話:"+phone+"\n\n"+
			"沒問題的話請輸入「確認」!")
}

func (h *Handler) handleConfirm(_ context.Context, _ string, input string, data map[string]string) flow.Outcome {
	normalized := flow.Normalize(input)
	for _, w := range confirmWords {
		if normalized == w {
			return flow.Complete(data, "")
		}
	}
	return flow.Reject("請輸入「確認」儲存，或輸入「取消」放棄喔!")
}

func (h *Handler) completeAdd(ctx context.Context, userID string, data map[string]string) (string, error) {
	if _, err := h.db.CreateFamilyLink(ctx, &storage.FamilyLink{
		UserID:      userID,
		ContactName: data[dataName],
		Phone:       data[dataPhone],
		Relation:    data[dataRelation],
	}); err != nil {
		return "", err
	}
	return "✅ 記好了!「" + displayName(data) + "」已經加入您的家人名單。\n\n" +
		"輸入「家人」隨時可以查看和撥打電話喔!", nil
}

// parsePhone strips separators and validates the digits.
func parsePhone(input string) (string, error) {
	phone := strings.NewReplacer("-", "", " ", "", "(", "", ")", "").Replace(strings.TrimSpace(input))
	if !phonePattern.MatchString(phone) {
		return "", apperrors.NewValidationError("phone",
			"電話號碼好像不太對喔!請輸入 0 開頭的號碼，例如「0912-345-678」")
	}
	return phone, nil
}

func displayName(data map[string]string) string {
	if data[dataRelation] != "" {
		return data[dataRelation] + " " + data[dataName]
	}
	return data[dataName]
}

// merged returns a copy of data with one extra key.
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
