package plugin

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kbessonov/roomhub/internal/chat"
	"github.com/kbessonov/roomhub/internal/store"
	"github.com/kbessonov/roomhub/pkg/chaterr"
)

var rightPattern = regexp.MustCompile(`^\d{1,3}$`)

// SetRightCommand changes a registered user's right level. A connected
// target sees the new level immediately; persistence goes through the
// user directory.
type SetRightCommand struct {
	chat.BaseCommand
}

func NewSetRightCommand(room *chat.Room) *SetRightCommand {
	return &SetRightCommand{BaseCommand: chat.NewBaseCommand(room)}
}

func (c *SetRightCommand) Name() string { return "setright" }
func (c *SetRightCommand) OpOnly() bool { return true }

func (c *SetRightCommand) Rules() map[string]*chat.Rule {
	return map[string]*chat.Rule{
		"setright": {
			MinCount: 2,
			MaxCount: 2,
			Params: []chat.ParamRule{
				{Name: "username", Pattern: usernamePattern, Info: "username"},
				{Name: "right", Pattern: rightPattern, Info: "0-999"},
			},
		},
	}
}

func (c *SetRightCommand) Run(alias, param string, conn *chat.Connection) error {
	username, levelStr, _ := strings.Cut(param, " ")
	level, err := strconv.Atoi(levelStr)
	if err != nil {
		return chaterr.New(chaterr.ParamFormat, "right level must be a number")
	}

	users := c.Room().Deps().Users
	if users == nil {
		return chaterr.New(chaterr.Collaborator, "user directory unavailable")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	target, err := users.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return chaterr.Newf(chaterr.UnknownCommand, "user %s not found", username)
		}
		return chaterr.Wrap(chaterr.Collaborator, "resolve user", err)
	}
	if err := users.SetRight(ctx, target.ID, level); err != nil {
		return chaterr.Wrap(chaterr.Collaborator, "set right", err)
	}

	if registry := c.Room().Deps().Sessions; registry != nil {
		if sess, ok := registry.Find(strings.ToLower(username)); ok {
			u := sess.User()
			u.Right = level
			sess.SetUser(u)
		}
	}
	return nil
}
