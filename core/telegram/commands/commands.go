// Package commands declares the bot command menu.
package commands

import (
	"context"
	"log/slog"
	"sort"

	"github.com/ltzehan/thermobot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Command is one entry of the bot menu.
type Command struct {
	Name        string
	Description string
	Hidden      bool
}

// Default is the menu of the temperature bot. Names match the commands the
// conversation engine understands.
var Default = []Command{
	{Name: "/start", Description: "Set up or restart your temperature reporting"},
	{Name: "/forcesubmit", Description: "Submit a reading now"},
	{Name: "/remind", Description: "Change your reminder times"},
}

// Menu returns the visible commands sorted by name.
func Menu(cmds []Command) []tele.Command {
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Hidden || c.Name == "" || c.Name[0] != '/' {
			continue
		}
		list = append(list, tele.Command{Text: c.Name, Description: c.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// Publish sets the Telegram command menu. Failures are logged only.
func Publish(ctx context.Context, bot *tele.Bot, cmds []Command) {
	menu := Menu(cmds)
	if err := bot.SetCommands(menu); err != nil {
		logger.Error(ctx, logger.CompTG, "commands.set",
			logger.Err(err),
		)
		return
	}
	logger.Debug(ctx, logger.CompTG, "commands.set",
		slog.Int("total", len(menu)),
	)
}
