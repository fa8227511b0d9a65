// Package weather implements the weather module: current conditions with
// a rain heads-up, cached per city and deduplicated so a burst of
// requests for the same city costs one upstream call.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"golang.org/x/sync/singleflight"

	"github.com/peiyulin/carelink-linebot-go/internal/bot"
	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
	"github.com/peiyulin/carelink-linebot-go/internal/lineutil"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/openweather"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

// forecastSlots covers the next 24 hours in 3-hour steps.
const forecastSlots = 8

// cityAliases maps common Taiwanese city names to the English names the
// weather API resolves most reliably. 臺 spellings included.
var cityAliases = map[string]string{
	"台北": "Taipei", "臺北": "Taipei",
	"新北": "New Taipei", "台中": "Taichung", "臺中": "Taichung",
	"台南": "Tainan", "臺南": "Tainan",
	"高雄": "Kaohsiung", "桃園": "Taoyuan", "基隆": "Keelung",
	"新竹": "Hsinchu", "嘉義": "Chiayi", "宜蘭": "Yilan",
	"花蓮": "Hualien", "台東": "Taitung", "臺東": "Taitung",
	"屏東": "Pingtung", "南投": "Nantou", "彰化": "Changhua",
	"雲林": "Yunlin", "苗栗": "Miaoli",
}

// weatherClient is the upstream dependency. nil means the feature is not
// configured.
type weatherClient interface {
	Current(ctx context.Context, city string) (*openweather.Weather, error)
	Forecast(ctx context.Context, city string, limit int) ([]openweather.ForecastEntry, error)
	Enabled() bool
}

// report is the cached unit: conditions plus the rain outlook.
type report struct {
	Current  openweather.Weather `json:"current"`
	RainSoon bool                `json:"rain_soon"`
}

// Handler serves the weather module
type Handler struct {
	client   weatherClient
	db       *storage.DB
	log      *logger.Logger
	cacheTTL time.Duration
	group    singleflight.Group
}

// New creates the weather module. client may be nil.
func New(client weatherClient, db *storage.DB, log *logger.Logger, cacheTTL time.Duration) *Handler {
	return &Handler{
		client:   client,
		db:       db,
		log:      log.WithModule("weather"),
		cacheTTL: cacheTTL,
	}
}

func (h *Handler) Name() string { return "weather" }

func (h *Handler) Kinds() []keyword.Kind {
	return []keyword.Kind{keyword.KindWeather}
}

func (h *Handler) Actions() []string { return nil }

func (h *Handler) HandleCommand(ctx context.Context, userID string, cmd keyword.Result) []messaging_api.MessageInterface {
	if h.client == nil || !h.client.Enabled() {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessage("🙏 不好意思，天氣查詢目前沒有開放喔!"),
		}
	}
	if cmd.Query == "" {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessage("想查哪裡的天氣呢?請在「天氣」後面加上城市，例如:\n「天氣 台北」\n「天氣 高雄」"),
		}
	}

	rep, err := h.lookup(ctx, cmd.Query)
	if errors.Is(err, apperrors.ErrNotFound) {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessage("🤔 找不到「" + cmd.Query + "」這個城市耶，換個名字試試看?"),
		}
	}
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("weather lookup %q failed", cmd.Query)
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}
	return h.render(cmd.Query, rep)
}

func (h *Handler) HandlePostback(context.Context, string, bot.Postback) []messaging_api.MessageInterface {
	return nil
}

// lookup serves from the cache when fresh, otherwise fetches once per
// city no matter how many users ask at the same moment.
func (h *Handler) lookup(ctx context.Context, query string) (*report, error) {
	city := query
	if alias, ok := cityAliases[strings.TrimSpace(query)]; ok {
		city = alias
	}

	if payload, ok, err := h.db.GetCachedWeather(ctx, city, h.cacheTTL); err != nil {
		h.log.WithError(err).Warnf("weather cache read for %s failed", city)
	} else if ok {
		var rep report
		if err := json.Unmarshal([]byte(payload), &rep); err == nil {
			return &rep, nil
		}
		h.log.Warnf("weather cache entry for %s corrupted, refetching", city)
	}

	v, err, _ := h.group.Do(city, func() (any, error) {
		return h.fetch(ctx, city)
	})
	if err != nil {
		return nil, err
	}
	return v.(*report), nil
}

func (h *Handler) fetch(ctx context.Context, city string) (*report, error) {
	current, err := h.client.Current(ctx, city)
	if err != nil {
		return nil, err
	}

	rep := &report{Current: *current}
	entries, err := h.client.Forecast(ctx, city, forecastSlots)
	if err != nil {
		// The rain outlook is best-effort; current conditions still count.
		h.log.WithError(err).Warnf("forecast for %s failed", city)
	}
	for _, e := range entries {
		if e.Rain {
			rep.RainSoon = true
			break
		}
	}

	payload, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("encode weather report: %w", err)
	}
	if err := h.db.PutCachedWeather(ctx, city, string(payload)); err != nil {
		h.log.WithError(err).Warnf("weather cache write for %s failed", city)
	}
	return rep, nil
}

func (h *Handler) render(query string, rep *report) []messaging_api.MessageInterface {
	w := rep.Current

	header := lineutil.NewHeroBox("🌤️ "+query+"天氣", w.Description)
	body := lineutil.NewFlexBox("vertical",
		lineutil.NewKeyValueRow("溫度", fmt.Sprintf("%.0f°C (體感 %.0f°C)", w.Temp, w.FeelsLike)),
		lineutil.NewKeyValueRow("高低溫", fmt.Sprintf("%.0f°C / %.0f°C", w.TempMax, w.TempMin)),
		lineutil.NewKeyValueRow("濕度", fmt.Sprintf("%d%%", w.Humidity)),
		lineutil.NewKeyValueRow("風速", fmt.Sprintf("%.1f m/s", w.WindSpeed)),
	).WithSpacing("sm").WithPaddingAll("lg")

	return []messaging_api.MessageInterface{
		lineutil.NewFlexMessage("🌤️ "+query+"天氣", &messaging_api.FlexCarousel{
			Contents: []messaging_api.FlexBubble{lineutil.NewBubble(header, body, nil)},
		}),
		lineutil.NewTextMessage(advisory(rep)),
	}
}

// advisory turns the numbers into one line of practical advice.
func advisory(rep *report) string {
	w := rep.Current
	switch {
	case rep.RainSoon:
		return "🌧️ 接下來可能會下雨，出門記得帶傘喔!"
	case w.Temp >= 30:
		return "☀️ 今天比較熱，多喝水、注意防曬喔!"
	case w.Temp <= 15:
		return "🧣 天氣比較涼，出門記得多穿一件喔!"
	case w.Humidity >= 85:
		return "💧 濕氣比較重，毛巾衣物記得晾乾喔!"
	default:
		return "😊 天氣不錯，很適合出門走走喔!"
	}
}
