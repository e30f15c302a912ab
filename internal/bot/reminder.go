package bot

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/warikan/internal/db"
	"go.uber.org/zap"
)

const autoPostNote = "\n\n※このメッセージは自動投稿です"

// reminderWorker periodically posts unpaid settlement reminders to channels.
type reminderWorker struct {
	store    reminderStore
	messages reminderMessages
	session  reminderSession
	logger   *zap.Logger
	interval time.Duration

	now   func() time.Time
	sleep func(time.Duration)

	stopChan chan struct{}
	done     chan struct{}
}

type reminderStore interface {
	DueReminders(ctx context.Context, now time.Time) ([]db.ReminderDue, error)
	MarkReminderSent(ctx context.Context, groupID int64, sentAt, nextDue time.Time) error
	DelayReminder(ctx context.Context, groupID int64, nextDue time.Time) error
}

type reminderMessages interface {
	ReminderMessage(ctx context.Context, groupID int64) (string, error)
}

// Minimal session interface for sending channel messages.
type reminderSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func newReminderWorker(session reminderSession, store reminderStore, messages reminderMessages, logger *zap.Logger, interval time.Duration) *reminderWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &reminderWorker{
		store:    store,
		messages: messages,
		session:  session,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		sleep:    time.Sleep,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *reminderWorker) start() {
	if w == nil {
		return
	}
	go w.loop()
}

// stop waits for an in-flight tick to finish.
func (w *reminderWorker) stop() {
	if w == nil {
		return
	}
	select {
	case <-w.stopChan:
		return
	default:
	}
	close(w.stopChan)
	<-w.done
}

func (w *reminderWorker) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-w.stopChan:
			return
		}
	}
}

func (w *reminderWorker) tick(ctx context.Context) {
	now := w.now()
	targets, err := w.store.DueReminders(ctx, now)
	if err != nil {
		w.logger.Error("failed to load due reminders", zap.Error(err))
		return
	}

	for _, t := range targets {
		log := w.logger.With(zap.Int64("group_id", t.GroupID), zap.String("channel_id", t.ChannelID))

		msg, err := w.messages.ReminderMessage(ctx, t.GroupID)
		if err != nil {
			log.Error("failed to build reminder message", zap.Error(err))
			continue
		}
		if msg == "" {
			continue
		}
		if err := w.sendWithRetry(ctx, t.ChannelID, msg+autoPostNote); err != nil {
			log.Warn("failed to send reminder", zap.Error(err))
			// back off instead of retrying every tick
			backoff := 2 * time.Minute
			if t.IntervalMinutes > 0 {
				if limit := time.Duration(t.IntervalMinutes) * time.Minute; backoff > limit {
					backoff = limit
				}
			}
			if derr := w.store.DelayReminder(ctx, t.GroupID, now.Add(backoff)); derr != nil {
				log.Error("failed to delay reminder", zap.Error(derr))
			}
			continue
		}
		next := now.Add(time.Duration(t.IntervalMinutes) * time.Minute)
		if err := w.store.MarkReminderSent(ctx, t.GroupID, now, next); err != nil {
			log.Error("failed to mark reminder sent", zap.Error(err))
			continue
		}
		log.Debug("reminder sent", zap.Time("next_due_at", next))
	}
}

func (w *reminderWorker) sendWithRetry(ctx context.Context, channelID, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		_, err := w.session.ChannelMessageSend(channelID, content, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTemporaryOrTimeout(err) || attempt == maxAttempts {
			break
		}
		w.sleep(time.Duration(300+rand.Intn(500)) * time.Millisecond)
	}
	return lastErr
}

func isTemporaryOrTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
