package health

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/peiyulin/carelink-linebot-go/internal/config"
	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
	"github.com/peiyulin/carelink-linebot-go/internal/flow"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

const stepAwaitDetail flow.Step = "await_detail"

// Step data keys
const (
	dataTitle      = "title"
	dataTimes      = "times"
	dataAt         = "at"
	dataLocation   = "location"
	dataDepartment = "department"
)

const medicationPrompt = "💊 請告訴我藥品名稱和提醒時間，例如:\n" +
	"「阿斯匹靈 早上 晚上」\n" +
	"「血壓藥 8點 20點30分」\n\n" +
	"沒有寫時間的話，我會預設早上 8 點提醒您。\n" +
	"(輸入「取消」可以取消)"

const appointmentPrompt = "🏥 請告訴我回診的日期、醫院和科別，例如:\n" +
	"「1/15 高雄長庚 心臟科」\n" +
	"「3/2 14:30 台大醫院」\n\n" +
	"(輸入「取消」可以取消)"

func (h *Handler) registerFlows(timeout time.Duration) {
	h.engine.Register(&flow.Definition{
		Name:        flow.AddMedication,
		Steps:       []flow.Step{stepAwaitDetail},
		Handlers:    map[flow.Step]flow.StepHandler{stepAwaitDetail: h.handleMedicationDetail},
		OnComplete:  h.completeMedication,
		Timeout:     timeout,
		StartPrompt: medicationPrompt,
	})
	h.engine.Register(&flow.Definition{
		Name:        flow.AddAppointment,
		Steps:       []flow.Step{stepAwaitDetail},
		Handlers:    map[flow.Step]flow.StepHandler{stepAwaitDetail: h.handleAppointmentDetail},
		OnComplete:  h.completeAppointment,
		Timeout:     timeout,
		StartPrompt: appointmentPrompt,
	})
}

// handleMedicationDetail reads name and times from one message. The first
// field is the medication name; the whole message contributes time signals.
func (h *Handler) handleMedicationDetail(_ context.Context, _ string, input string, _ map[string]string) flow.Outcome {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return flow.Reject("請告訴我藥品名稱喔!例如「阿斯匹靈 早上 晚上」")
	}

	title, err := flow.ParseTitle(fields[0])
	if err != nil {
		return flow.Reject("藥品名稱" + validationMessage(err) + "，例如「阿斯匹靈 早上 晚上」")
	}

	times := flow.ParseReminderTimes(input)
	return flow.Complete(map[string]string{
		dataTitle: title,
		dataTimes: strings.Join(times, ","),
	}, "")
}

func (h *Handler) completeMedication(ctx context.Context, userID string, data map[string]string) (string, error) {
	times := strings.Split(data[dataTimes], ",")
	if _, err := h.db.CreateReminder(ctx, &storage.HealthReminder{
		UserID: userID,
		Kind:   storage.ReminderMedication,
		Title:  data[dataTitle],
		Times:  times,
	}); err != nil {
		return "", err
	}
	return "✅ 好的!已經幫您設定「" + data[dataTitle] + "」的吃藥提醒:\n" +
		"⏰ " + strings.Join(times, "、") + "\n\n" +
		"時間到我會傳訊息提醒您喔!輸入「健康」可以查看所有提醒。", nil
}

// handleAppointmentDetail reads date, hospital and department from one
// message. Date and time tokens are consumed by the parser; the remaining
// tokens become location and department in order.
func (h *Handler) handleAppointmentDetail(_ context.Context, _ string, input string, _ map[string]string) flow.Outcome {
	at, err := flow.ParseAppointmentDate(input, time.Now().In(config.Taiwan))
	if err != nil {
		return flow.Reject(validationMessage(err) + "\n例如「1/15 高雄長庚 心臟科」")
	}

	var rest []string
	for _, f := range strings.Fields(input) {
		if strings.ContainsAny(f, "/:") {
			continue
		}
		rest = append(rest, f)
	}
	data := map[string]string{
		dataAt: strconv.FormatInt(at.Unix(), 10),
	}
	if len(rest) > 0 {
		data[dataLocation] = rest[0]
	}
	if len(rest) > 1 {
		data[dataDepartment] = rest[1]
	}
	return flow.Complete(data, "")
}

func (h *Handler) completeAppointment(ctx context.Context, userID string, data map[string]string) (string, error) {
	at, err := strconv.ParseInt(data[dataAt], 10, 64)
	if err != nil {
		return "", errors.New("appointment data corrupted: " + err.Error())
	}

	title := data[dataDepartment]
	if title == "" {
		title = data[dataLocation]
	}
	if title == "" {
		title = "回診"
	}
	if _, err := h.db.CreateReminder(ctx, &storage.HealthReminder{
		UserID:        userID,
		Kind:          storage.ReminderAppointment,
		Title:         title,
		AppointmentAt: at,
		Location:      data[dataLocation],
		Department:    data[dataDepartment],
	}); err != nil {
		return "", err
	}

	when := time.Unix(at, 0).In(config.Taiwan).Format("2006/1/2 15:04")
	reply := "✅ 好的!已經幫您記下回診提醒:\n🗓️ " + when
	if data[dataLocation] != "" {
		reply += "\n🏥 " + data[dataLocation]
	}
	if data[dataDepartment] != "" {
		reply += " " + data[dataDepartment]
	}
	return reply + "\n\n前一天我會提醒您喔!", nil
}

func validationMessage(err error) string {
	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return "格式好像不太對，請再試一次"
}
