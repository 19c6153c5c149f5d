package bot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"wysibot/models"
	"wysibot/reminders"
)

func TestOptionMap(t *testing.T) {
	opts := optionMap([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "zone", Type: discordgo.ApplicationCommandOptionString, Value: "Asia/Tokyo"},
		{Name: "dms", Type: discordgo.ApplicationCommandOptionBoolean, Value: false},
		{Name: "menu", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(12)},
	})

	if zone, ok := opts.str("zone"); !ok || zone != "Asia/Tokyo" {
		t.Errorf("zone = %q, %v", zone, ok)
	}
	if dms, ok := opts.boolean("dms"); !ok || dms {
		t.Errorf("dms = %v, %v; want false, true", dms, ok)
	}
	if id, ok := opts.integer("menu"); !ok || id != 12 {
		t.Errorf("menu = %d, %v", id, ok)
	}
	if _, ok := opts.str("missing"); ok {
		t.Error("missing option reported as set")
	}
	if _, ok := opts.str("dms"); ok {
		t.Error("bool option read as string")
	}
}

func TestFormatStatus(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	next := time.Date(2025, 3, 14, 19, 27, 0, 0, time.UTC)
	now := time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC)
	cfg := &models.ReminderConfig{ReminderType: models.ReminderWYSI, ChannelID: "c1", Enabled: true}

	got := formatStatus(&reminders.Status{Config: cfg, NextDue: &next}, tokyo, now)
	for _, want := range []string{
		"**WYSI** in <#c1>",
		"Next: Sat 15 Mar 04:27 JST (27 minutes from now)",
		"Last run: never",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("status %q does not contain %q", got, want)
		}
	}

	msg := "1 of 2 direct messages failed"
	cfg.Enabled = false
	got = formatStatus(&reminders.Status{
		Config: cfg,
		LastRun: &models.ReminderLog{
			TriggeredBy:   models.TriggerManual,
			ExecutedAt:    now.Add(-2 * time.Hour),
			Status:        models.StatusPartial,
			ErrorMessage:  &msg,
			UsersNotified: 1,
		},
	}, time.UTC, now)
	for _, want := range []string{"(disabled)", "2 hours ago", "manual", "partial", "1 user notified", "Error: " + msg} {
		if !strings.Contains(got, want) {
			t.Errorf("status %q does not contain %q", got, want)
		}
	}
	if strings.Contains(got, "Next:") {
		t.Errorf("disabled reminder shows a next run: %q", got)
	}
}

func TestFormatOutcome(t *testing.T) {
	cases := []struct {
		outcome reminders.Outcome
		want    string
	}{
		{reminders.Outcome{Status: models.StatusSuccess, Notified: 1200}, "Sent! 1,200 users notified by DM."},
		{reminders.Outcome{Status: models.StatusPartial, Notified: 1, Err: errors.New("dm closed")}, "Sent, but some DMs failed (1 user notified): dm closed"},
		{reminders.Outcome{Status: models.StatusError, Err: errors.New("missing access")}, "Failed to send the reminder: missing access"},
	}
	for _, tc := range cases {
		if got := formatOutcome(tc.outcome); got != tc.want {
			t.Errorf("formatOutcome(%v) = %q, want %q", tc.outcome.Status, got, tc.want)
		}
	}
}

func TestFormatSettings(t *testing.T) {
	got := formatSettings(models.UserSettings{Timezone: "Europe/London", DMRemindersEnabled: false})
	if got != "Your timezone is Europe/London and reminder DMs are off." {
		t.Errorf("formatSettings() = %q", got)
	}
}

func TestCommandsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, cmd := range botCommands {
		if seen[cmd.Name] {
			t.Errorf("duplicate command %s", cmd.Name)
		}
		seen[cmd.Name] = true
	}
	for _, name := range []string{"remind-subscribe", "remind-unsubscribe", "remind-test", "remind-status", "timezone"} {
		if !seen[name] {
			t.Errorf("missing command %s", name)
		}
	}
}
