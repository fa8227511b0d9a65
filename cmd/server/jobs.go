// Package main provides the CareLink bot server entry point.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/peiyulin/carelink-linebot-go/internal/config"
	"github.com/peiyulin/carelink-linebot-go/internal/lineutil"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
	"github.com/peiyulin/carelink-linebot-go/internal/session"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

// dispatchReminders checks for due health reminders every minute and
// pushes them to their owners.
func dispatchReminders(ctx context.Context, db *storage.DB, pusher *lineutil.Pusher, log *logger.Logger) {
	log = log.WithModule("reminders")
	ticker := time.NewTicker(config.ReminderDispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dispatchDueReminders(ctx, db, pusher, log)
		}
	}
}

// dispatchDueReminders runs one dispatch pass. Medication reminders match
// on the current wall-clock minute in Taiwan time; appointment reminders
// fire once when the visit enters the 24 hour window.
func dispatchDueReminders(ctx context.Context, db *storage.DB, pusher *lineutil.Pusher, log *logger.Logger) {
	now := time.Now().In(config.Taiwan)
	hhmm := now.Format("15:04")
	minuteStart := now.Truncate(time.Minute).Unix()

	meds, err := db.DueMedicationReminders(ctx, hhmm, minuteStart)
	if err != nil {
		log.WithError(err).Error("Query due medication reminders failed")
	}
	for _, r := range meds {
		text := fmt.Sprintf("💊 吃藥時間到囉!\n\n記得服用「%s」喔!", r.Title)
		if err := pusher.PushText(r.UserID, "reminder", text); err != nil {
			log.WithError(err).WithUserID(r.UserID).Error("Push medication reminder failed")
			continue
		}
		if err := db.MarkReminderSent(ctx, r.ID); err != nil {
			log.WithError(err).WithField("reminder_id", r.ID).Error("Mark reminder sent failed")
		}
	}

	appts, err := db.DueAppointmentReminders(ctx, now.Unix(), now.Add(24*time.Hour).Unix())
	if err != nil {
		log.WithError(err).Error("Query due appointment reminders failed")
	}
	for _, r := range appts {
		at := time.Unix(r.AppointmentAt, 0).In(config.Taiwan)
		text := fmt.Sprintf("🏥 回診提醒:%s\n\n🕐 時間:%s", r.Title, at.Format("2006/1/2 15:04"))
		if r.Location != "" {
			text += "\n📍 地點:" + r.Location
		}
		text += "\n\n記得帶健保卡喔!"
		if err := pusher.PushText(r.UserID, "reminder", text); err != nil {
			log.WithError(err).WithUserID(r.UserID).Error("Push appointment reminder failed")
			continue
		}
		if err := db.MarkReminderSent(ctx, r.ID); err != nil {
			log.WithError(err).WithField("reminder_id", r.ID).Error("Mark reminder sent failed")
		}
	}

	if len(meds) > 0 || len(appts) > 0 {
		log.WithField("medications", len(meds)).
			WithField("appointments", len(appts)).
			Info("Dispatched due reminders")
	}
}

// sweepSessions periodically deletes sessions whose flow expired long
// ago. Expiry itself is handled lazily on access; this only reclaims
// storage for users who never came back.
func sweepSessions(ctx context.Context, store *session.Store, log *logger.Logger) {
	log = log.WithModule("sweep")
	ticker := time.NewTicker(config.SessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.Sweep(ctx)
			if err != nil {
				log.WithError(err).Error("Session sweep failed")
				continue
			}
			if deleted > 0 {
				log.WithField("deleted", deleted).Info("Swept expired sessions")
			}
		}
	}
}

// updateActiveFlowGauge refreshes the active flow count gauge.
func updateActiveFlowGauge(ctx context.Context, store *session.Store, m *metrics.Metrics, log *logger.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := store.ActiveFlows(ctx)
			if err != nil {
				log.WithError(err).Warn("Count active flows failed")
				continue
			}
			m.ActiveFlowGauge.Set(float64(count))
		}
	}
}

// seedActivities fills the recommendation pool on first boot so the
// activity module has content before an operator loads real data.
func seedActivities(ctx context.Context, db *storage.DB, log *logger.Logger) {
	now := time.Now().In(config.Taiwan)
	at := func(daysAhead int, hour int) int64 {
		d := now.AddDate(0, 0, daysAhead)
		return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, config.Taiwan).Unix()
	}

	seed := []storage.Activity{
		{Title: "太極拳晨練", Category: "運動", Location: "大安森林公園", Description: "適合初學者的太極拳團練,歡迎自由參加。", ScheduledAt: at(1, 7)},
		{Title: "銀髮瑜伽班", Category: "運動", Location: "社區活動中心", Description: "溫和伸展課程,備有椅子輔助。", ScheduledAt: at(2, 9)},
		{Title: "歌仔戲欣賞會", Category: "藝文", Location: "市立文化中心", Description: "經典劇目欣賞,免費入場。", ScheduledAt: at(3, 14)},
		{Title: "書法入門班", Category: "藝文", Location: "樂齡學習中心", Description: "文房四寶現場提供,從永字八法開始。", ScheduledAt: at(4, 10)},
		{Title: "卡拉OK 歡唱同樂", Category: "音樂", Location: "里民活動中心", Description: "老歌點唱,茶水點心免費。", ScheduledAt: at(5, 14)},
		{Title: "河濱健走團", Category: "戶外", Location: "淡水河濱步道", Description: "慢速健走一小時,志工隨行。", ScheduledAt: at(6, 8)},
		{Title: "園藝療癒工作坊", Category: "戶外", Location: "士林官邸", Description: "親手種植小盆栽,成品帶回家。", ScheduledAt: at(7, 10)},
		{Title: "懷舊電影欣賞", Category: "藝文", Location: "圖書館視聽室", Description: "經典國片放映與映後茶敘。", ScheduledAt: at(8, 14)},
	}

	if err := db.SeedActivities(ctx, seed); err != nil {
		log.WithError(err).Warn("Seed activities failed")
		return
	}
	log.Info("Activity recommendation pool ready")
}
