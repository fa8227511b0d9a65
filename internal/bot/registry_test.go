package bot

import (
	"context"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
	"github.com/peiyulin/carelink-linebot-go/internal/lineutil"
)

// fakeModule implements Handler for registry and processor tests. It
// records the last command and postback it received.
type fakeModule struct {
	name    string
	kinds   []keyword.Kind
	actions []string
	reply   string
	panics  bool

	lastCmd    *keyword.Result
	lastAction string
}

func (f *fakeModule) Name() string          { return f.name }
func (f *fakeModule) Kinds() []keyword.Kind { return f.kinds }
func (f *fakeModule) Actions() []string     { return f.actions }

func (f *fakeModule) HandleCommand(ctx context.Context, userID string, cmd keyword.Result) []messaging_api.MessageInterface {
	if f.panics {
		panic("module blew up")
	}
	f.lastCmd = &cmd
	return []messaging_api.MessageInterface{lineutil.NewTextMessage(f.reply)}
}

func (f *fakeModule) HandlePostback(ctx context.Context, userID string, pb Postback) []messaging_api.MessageInterface {
	if f.panics {
		panic("module blew up")
	}
	f.lastAction = pb.Action
	return []messaging_api.MessageInterface{lineutil.NewTextMessage(f.reply)}
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	weather := &fakeModule{name: "weather", kinds: []keyword.Kind{keyword.KindWeather}}
	group := &fakeModule{
		name:    "group",
		kinds:   []keyword.Kind{keyword.KindGroupList, keyword.KindMyGroups},
		actions: []string{"join_group", "leave_group"},
	}
	reg.Register(weather)
	reg.Register(group)

	if got := reg.ForKind(keyword.KindWeather); got != weather {
		t.Errorf("ForKind(weather) = %v, want weather module", got)
	}
	if got := reg.ForKind(keyword.KindMyGroups); got != group {
		t.Errorf("ForKind(my_groups) = %v, want group module", got)
	}
	if got := reg.ForKind(keyword.KindHealthMenu); got != nil {
		t.Errorf("ForKind(unclaimed) = %v, want nil", got)
	}
	if got := reg.ForAction("join_group"); got != group {
		t.Errorf("ForAction(join_group) = %v, want group module", got)
	}
	if got := reg.ForAction("nope"); got != nil {
		t.Errorf("ForAction(unclaimed) = %v, want nil", got)
	}
}

func TestRegistryDuplicateKindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate kind")
		}
	}()

	reg := NewRegistry()
	reg.Register(&fakeModule{name: "a", kinds: []keyword.Kind{keyword.KindWeather}})
	reg.Register(&fakeModule{name: "b", kinds: []keyword.Kind{keyword.KindWeather}})
}

func TestRegistryDuplicateActionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate action")
		}
	}()

	reg := NewRegistry()
	reg.Register(&fakeModule{name: "a", actions: []string{"join_group"}})
	reg.Register(&fakeModule{name: "b", actions: []string{"join_group"}})
}
