package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"wysibot/dal"
	"wysibot/dal/daltest"
	"wysibot/discordutils"
	"wysibot/models"
)

func subscribe(t *testing.T, ctx context.Context, cfg *models.ReminderConfig, exec *Executor, users ...string) {
	t.Helper()
	for _, u := range users {
		if err := dal.Subscribe(ctx, u, cfg.ID, exec.db); err != nil {
			t.Fatalf("Subscribe(%s): %v", u, err)
		}
	}
}

func TestExecute_PartialWhenSomeDMsTimeOut(t *testing.T) {
	ctx := context.Background()
	db := daltest.New(t)
	cfg := mustSave(t, db, wysi("g1"), "r1")

	m := &fakeMessenger{dmErr: map[string]error{
		"u2": context.DeadlineExceeded,
		"u3": context.DeadlineExceeded,
	}}
	exec := NewExecutor(db, m, 2)
	subscribe(t, ctx, cfg, exec, "u1", "u2", "u3")

	out := exec.Execute(ctx, cfg)
	if out.Status != models.StatusPartial || out.Notified != 1 {
		t.Fatalf("outcome = %+v; want partial with 1 notified", out)
	}
	if !errors.Is(out.Err, context.DeadlineExceeded) || !strings.Contains(out.Err.Error(), "2 of 3") {
		t.Fatalf("Err = %v", out.Err)
	}
	if len(m.channel) != 1 || m.channel[0].to != cfg.ChannelID {
		t.Fatalf("channel sends = %+v", m.channel)
	}
	// Timeouts are transient; subscriptions stay.
	if subs, _ := dal.ListSubscriptions(ctx, cfg.ID, db); len(subs) != 3 {
		t.Fatalf("expected 3 subscriptions kept, got %d", len(subs))
	}
}

func TestExecute_UnreachableSubscriberIsRemoved(t *testing.T) {
	ctx := context.Background()
	db := daltest.New(t)
	cfg := mustSave(t, db, wysi("g1"))

	m := &fakeMessenger{dmErr: map[string]error{
		"gone": fmt.Errorf("open DM channel: %w", discordutils.ErrUnreachable),
	}}
	exec := NewExecutor(db, m, 4)
	subscribe(t, ctx, cfg, exec, "stays", "gone")

	out := exec.Execute(ctx, cfg)
	if out.Status != models.StatusPartial || out.Notified != 1 || out.Unsubscribed != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	subs, _ := dal.ListSubscriptions(ctx, cfg.ID, db)
	if len(subs) != 1 || subs[0].UserID != "stays" {
		t.Fatalf("subscriptions = %+v", subs)
	}
}

func TestExecute_SkipsUsersWithDMsDisabled(t *testing.T) {
	ctx := context.Background()
	db := daltest.New(t)
	cfg := mustSave(t, db, wysi("g1"))

	m := &fakeMessenger{}
	exec := NewExecutor(db, m, 4)
	subscribe(t, ctx, cfg, exec, "quiet", "loud")
	if err := dal.UpsertUserSettings(ctx, models.UserSettings{UserID: "quiet", Timezone: "UTC"}, db); err != nil {
		t.Fatalf("UpsertUserSettings: %v", err)
	}

	out := exec.Execute(ctx, cfg)
	if out.Status != models.StatusSuccess || out.Notified != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(m.dms) != 1 || m.dms[0].to != "loud" {
		t.Fatalf("dms = %+v", m.dms)
	}
}

func TestExecute_ChannelFailureIsError(t *testing.T) {
	ctx := context.Background()
	db := daltest.New(t)
	cfg := mustSave(t, db, wysi("g1"))

	m := &fakeMessenger{channelErr: errors.New("missing access")}
	exec := NewExecutor(db, m, 1)
	subscribe(t, ctx, cfg, exec, "u1")

	out := exec.Execute(ctx, cfg)
	if out.Status != models.StatusError || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Notified != 1 {
		t.Fatalf("DMs should still go out, notified = %d", out.Notified)
	}
}

func TestExecute_NoSubscribersIsSuccess(t *testing.T) {
	db := daltest.New(t)
	cfg := mustSave(t, db, wysi("g1"))

	out := NewExecutor(db, &fakeMessenger{}, 1).Execute(context.Background(), cfg)
	if out.Status != models.StatusSuccess || out.Err != nil || out.Notified != 0 {
		t.Fatalf("outcome = %+v", out)
	}
}
