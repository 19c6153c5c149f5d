package reminders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"gorm.io/gorm"

	"wysibot/dal"
	"wysibot/models"
)

type sentMessage struct {
	to  string
	msg *discordgo.MessageSend
}

type fakeMessenger struct {
	mu         sync.Mutex
	channel    []sentMessage
	dms        []sentMessage
	channelErr error
	dmErr      map[string]error
}

func (f *fakeMessenger) SendChannelMessage(_ context.Context, channelID string, msg *discordgo.MessageSend) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = append(f.channel, sentMessage{to: channelID, msg: msg})
	return f.channelErr
}

func (f *fakeMessenger) SendDirectMessage(_ context.Context, userID string, msg *discordgo.MessageSend) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.dmErr[userID]; err != nil {
		return err
	}
	f.dms = append(f.dms, sentMessage{to: userID, msg: msg})
	return nil
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []uint
	out   Outcome
	panic map[uint]bool
}

func (f *fakeRunner) Execute(_ context.Context, cfg *models.ReminderConfig) Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, cfg.ID)
	shouldPanic := f.panic[cfg.ID]
	f.mu.Unlock()
	if shouldPanic {
		panic("boom")
	}
	if f.out.Status == "" {
		return Outcome{Status: models.StatusSuccess}
	}
	return f.out
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func mustSave(t *testing.T, db *gorm.DB, cfg *models.ReminderConfig, roles ...string) *models.ReminderConfig {
	t.Helper()
	if err := dal.SaveReminderConfig(context.Background(), cfg, roles, db); err != nil {
		t.Fatalf("SaveReminderConfig: %v", err)
	}
	return cfg
}

func wysi(guildID string) *models.ReminderConfig {
	cfg := NewConfig(guildID, models.ReminderWYSI, "chan-"+guildID)
	cfg.Enabled = true
	return cfg
}

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}
