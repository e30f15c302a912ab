package bot

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/warikan/internal/commands"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/group"
	"go.uber.org/zap"
)

type Bot struct {
	session  *discordgo.Session
	warikan  *commands.Warikan
	reminder *reminderWorker
	logger   *zap.Logger
}

// New creates the Discord session and wires the handlers. reminderTick is
// how often due reminders are checked.
func New(token string, repo db.Repository, svc *group.Service, logger *zap.Logger, reminderTick time.Duration) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	bot := &Bot{
		session: session,
		warikan: commands.NewWarikan(svc, logger.Named("commands")),
		logger:  logger,
	}
	bot.reminder = newReminderWorker(session, repo, svc, logger.Named("reminder"), reminderTick)

	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onInteractionCreate)

	session.Identify.Intents = discordgo.IntentsGuilds

	return bot, nil
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.reminder.start()
	b.logger.Info("discord bot is running")
	return nil
}

func (b *Bot) Stop() error {
	b.reminder.stop()
	return b.session.Close()
}
