// Package bot contains the handler contract and the dispatch orchestrator.
// Each module (health, group, tour, activity, weather, family) implements
// Handler; the Processor decides per inbound event whether the user is
// mid-flow or issuing a one-shot command and routes accordingly.
package bot

import (
	"context"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
)

// Handler is implemented by every bot module
type Handler interface {
	// Name identifies the module in logs and metrics.
	Name() string

	// Kinds lists the routed command kinds this module serves.
	Kinds() []keyword.Kind

	// Actions lists the postback action names this module serves.
	Actions() []string

	// HandleCommand processes a routed one-shot command.
	HandleCommand(ctx context.Context, userID string, cmd keyword.Result) []messaging_api.MessageInterface

	// HandlePostback processes a button tap previously issued by this
	// module. pb.Action is guaranteed to be one of Actions().
	HandlePostback(ctx context.Context, userID string, pb Postback) []messaging_api.MessageInterface
}
