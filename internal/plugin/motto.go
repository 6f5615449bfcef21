package plugin

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/kbessonov/roomhub/internal/chat"
	"github.com/kbessonov/roomhub/internal/store"
	"github.com/kbessonov/roomhub/pkg/chaterr"
)

// MottoPlugin stores a short text displayed next to the user's name,
// in the user directory's per-plugin store. Called without a value it
// echoes the stored motto back to the caller.
type MottoPlugin struct {
	chat.BaseCommand
}

func NewMottoPlugin(room *chat.Room) *MottoPlugin {
	return &MottoPlugin{BaseCommand: chat.NewBaseCommand(room)}
}

func (p *MottoPlugin) Name() string { return "motto" }

func (p *MottoPlugin) Rules() map[string]*chat.Rule {
	return map[string]*chat.Rule{
		"motto": {CoolDown: time.Second},
	}
}

func (p *MottoPlugin) Run(alias, param string, conn *chat.Connection) error {
	user := conn.Session().User()
	if user.IsGuest() {
		return chaterr.New(chaterr.Permission, "guests cannot set a motto")
	}
	users := p.Room().Deps().Users
	if users == nil {
		return chaterr.New(chaterr.Collaborator, "user directory unavailable")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if strings.TrimSpace(param) == "" {
		raw, err := users.GetPluginData(ctx, user.ID, p.Name())
		if err != nil {
			return chaterr.Wrap(chaterr.Collaborator, "load motto", err)
		}
		var motto string
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &motto); err != nil {
				return chaterr.Wrap(chaterr.Collaborator, "decode motto", err)
			}
		}
		if motto == "" {
			motto = "(none)"
		}
		info := chat.NewMessage(p.Room().ID, store.User{Username: "system"}, "Your motto: "+motto)
		conn.Send("message", info.Sanitized())
		return nil
	}

	value, err := json.Marshal(param)
	if err != nil {
		return chaterr.Wrap(chaterr.Collaborator, "encode motto", err)
	}
	if err := users.SavePluginData(ctx, user.ID, p.Name(), value); err != nil {
		return chaterr.Wrap(chaterr.Collaborator, "save motto", err)
	}
	return nil
}
