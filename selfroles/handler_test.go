package selfroles

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"wysibot/dal"
	"wysibot/dal/daltest"
	"wysibot/metrics"
	"wysibot/models"
)

func TestRadioPressSwapsRoles(t *testing.T) {
	db := daltest.New(t)
	guild := newFakeGuild("red", "green", "blue")
	cfg := deployedMenu(t, db, models.SelectionRadio, "red", "green", "blue")
	guild.members[testUser] = []string{"red", "unrelated"}

	h := NewHandler(db, guild, DefaultCooldown)
	res := h.Handle(context.Background(), press(cfg, "blue", t0()))

	if res.Outcome != OutcomeSwapped {
		t.Fatalf("outcome = %q (%v), want swapped", res.Outcome, res.Err)
	}
	if !slices.Equal(res.Removed, []string{"red"}) {
		t.Errorf("removed = %v, want [red]", res.Removed)
	}
	if got := guild.held(testUser); !slices.Equal(got, []string{"blue", "unrelated"}) {
		t.Errorf("held = %v, want [blue unrelated]", got)
	}
	if !strings.Contains(res.Message, "<@&red>") || !strings.Contains(res.Message, "<@&blue>") {
		t.Errorf("message = %q", res.Message)
	}
}

func TestMultiplePressTogglesIndependently(t *testing.T) {
	db := daltest.New(t)
	guild := newFakeGuild("news", "events")
	cfg := deployedMenu(t, db, models.SelectionMultiple, "news", "events")
	h := NewHandler(db, guild, DefaultCooldown)
	ctx := context.Background()

	if res := h.Handle(ctx, press(cfg, "news", t0())); res.Outcome != OutcomeAdded {
		t.Fatalf("first press = %q, want added", res.Outcome)
	}
	// A different role is not throttled by the first one's cooldown.
	if res := h.Handle(ctx, press(cfg, "events", t0().Add(time.Second))); res.Outcome != OutcomeAdded {
		t.Fatalf("second role = %q, want added", res.Outcome)
	}
	if got := guild.held(testUser); !slices.Equal(got, []string{"events", "news"}) {
		t.Fatalf("held = %v", got)
	}

	res := h.Handle(ctx, press(cfg, "news", t0().Add(6*time.Second)))
	if res.Outcome != OutcomeRemoved {
		t.Fatalf("toggle off = %q, want removed", res.Outcome)
	}
	if got := guild.held(testUser); !slices.Equal(got, []string{"events"}) {
		t.Errorf("held = %v, want [events]", got)
	}
}

func TestCooldownRejectsRepeatPress(t *testing.T) {
	db := daltest.New(t)
	guild := newFakeGuild("news")
	cfg := deployedMenu(t, db, models.SelectionMultiple, "news")
	h := NewHandler(db, guild, DefaultCooldown)
	ctx := context.Background()

	h.Handle(ctx, press(cfg, "news", t0()))
	before := guild.mutations
	rejected := testutil.ToFloat64(metrics.SelfRolePresses.WithLabelValues(string(OutcomeCooldown)))

	res := h.Handle(ctx, press(cfg, "news", t0().Add(2*time.Second)))
	if res.Outcome != OutcomeCooldown {
		t.Fatalf("outcome = %q, want cooldown", res.Outcome)
	}
	if !strings.Contains(res.Message, "from now") {
		t.Errorf("message = %q, want a relative retry time", res.Message)
	}
	if guild.mutations != before {
		t.Errorf("mutations = %d, want %d", guild.mutations, before)
	}
	if got := testutil.ToFloat64(metrics.SelfRolePresses.WithLabelValues(string(OutcomeCooldown))); got != rejected+1 {
		t.Errorf("cooldown presses = %v, want %v", got, rejected+1)
	}

	// Once the cooldown has passed the press goes through.
	if res := h.Handle(ctx, press(cfg, "news", t0().Add(DefaultCooldown))); res.Outcome != OutcomeRemoved {
		t.Errorf("after cooldown = %q, want removed", res.Outcome)
	}
}

func TestConcurrentPressesMutateOnce(t *testing.T) {
	db := daltest.New(t)
	guild := newFakeGuild("news")
	cfg := deployedMenu(t, db, models.SelectionMultiple, "news")
	h := NewHandler(db, guild, DefaultCooldown)
	ctx := context.Background()

	const presses = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)
	for i := 0; i < presses; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := h.Handle(ctx, press(cfg, "news", t0()))
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if outcomes[OutcomeAdded] != 1 || outcomes[OutcomeCooldown] != presses-1 {
		t.Fatalf("outcomes = %v, want 1 added and %d cooldown", outcomes, presses-1)
	}
	if guild.mutations != 1 {
		t.Errorf("mutations = %d, want 1", guild.mutations)
	}
	if got := guild.held(testUser); !slices.Equal(got, []string{"news"}) {
		t.Errorf("held = %v, want [news]", got)
	}
}

func TestHierarchyRejectionReleasesCooldown(t *testing.T) {
	db := daltest.New(t)
	guild := newFakeGuild("news")
	guild.authority.TopPosition = 1
	cfg := deployedMenu(t, db, models.SelectionMultiple, "news")
	h := NewHandler(db, guild, DefaultCooldown)
	ctx := context.Background()

	res := h.Handle(ctx, press(cfg, "news", t0()))
	if res.Outcome != OutcomeHierarchy {
		t.Fatalf("outcome = %q, want hierarchy", res.Outcome)
	}
	if guild.mutations != 0 {
		t.Errorf("mutations = %d, want 0", guild.mutations)
	}
	if _, err := dal.GetCooldown(ctx, testUser, "news", testGuild, t0(), db); !errors.Is(err, dal.ErrNotFound) {
		t.Errorf("cooldown still held: %v", err)
	}

	guild.authority.TopPosition = 10
	if res := h.Handle(ctx, press(cfg, "news", t0().Add(time.Second))); res.Outcome != OutcomeAdded {
		t.Errorf("retry = %q, want added", res.Outcome)
	}
}

func TestManagedRoleIsOutOfReach(t *testing.T) {
	db := daltest.New(t)
	guild := newFakeGuild("booster")
	guild.roles[0].Managed = true
	cfg := deployedMenu(t, db, models.SelectionMultiple, "booster")

	res := NewHandler(db, guild, DefaultCooldown).Handle(context.Background(), press(cfg, "booster", t0()))
	if res.Outcome != OutcomeHierarchy {
		t.Errorf("outcome = %q, want hierarchy", res.Outcome)
	}
}

func TestStalePresses(t *testing.T) {
	db := daltest.New(t)
	guild := newFakeGuild("news", "gone")
	cfg := deployedMenu(t, db, models.SelectionMultiple, "news")
	other := deployedMenuAt(t, db, "msg-2", "missing")
	h := NewHandler(db, guild, DefaultCooldown)
	ctx := context.Background()

	cases := map[string]Press{
		"malformed id":  {GuildID: testGuild, UserID: testUser, MessageID: testMessage, CustomID: "selfrole_x_news"},
		"other prefix":  {GuildID: testGuild, UserID: testUser, MessageID: testMessage, CustomID: "remind_1"},
		"unknown role":  press(cfg, "gone", t0()),
		"wrong message": {GuildID: testGuild, UserID: testUser, MessageID: "msg-old", CustomID: CustomID(cfg.ID, "news")},
		"wrong guild":   {GuildID: "guild-2", UserID: testUser, MessageID: testMessage, CustomID: CustomID(cfg.ID, "news")},
		"role deleted":  {GuildID: testGuild, UserID: testUser, MessageID: "msg-2", CustomID: CustomID(other.ID, "missing")},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			p.At = t0()
			res := h.Handle(ctx, p)
			if res.Outcome != OutcomeStale || res.Message != msgStale {
				t.Errorf("got %q %q, want stale", res.Outcome, res.Message)
			}
		})
	}

	if err := dal.DeleteSelfRoleConfig(ctx, cfg.ID, db); err != nil {
		t.Fatal(err)
	}
	if res := h.Handle(ctx, press(cfg, "news", t0())); res.Outcome != OutcomeStale {
		t.Errorf("deleted config = %q, want stale", res.Outcome)
	}
	if guild.mutations != 0 {
		t.Errorf("mutations = %d, want 0", guild.mutations)
	}
}

func deployedMenuAt(t *testing.T, db *gorm.DB, messageID string, roleIDs ...string) *models.SelfRoleConfig {
	t.Helper()
	cfg := &models.SelfRoleConfig{GuildID: testGuild, ChannelID: testChannel, Title: "Other", SelectionType: models.SelectionMultiple}
	for i, id := range roleIDs {
		cfg.Roles = append(cfg.Roles, models.SelfRoleRole{RoleID: id, Emoji: string(rune('A' + i))})
	}
	ctx := context.Background()
	if err := dal.CreateSelfRoleConfig(ctx, cfg, db); err != nil {
		t.Fatal(err)
	}
	if err := dal.SetSelfRoleMessageID(ctx, cfg.ID, messageID, db); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestRadioRemovalFailureStillGrants(t *testing.T) {
	db := daltest.New(t)
	guild := newFakeGuild("red", "green", "blue")
	guild.members[testUser] = []string{"red", "green"}
	guild.removeErr["red"] = errDiscord
	cfg := deployedMenu(t, db, models.SelectionRadio, "red", "green", "blue")

	res := NewHandler(db, guild, DefaultCooldown).Handle(context.Background(), press(cfg, "blue", t0()))
	if res.Outcome != OutcomeSwapped {
		t.Fatalf("outcome = %q, want swapped", res.Outcome)
	}
	if !slices.Equal(res.Removed, []string{"green"}) {
		t.Errorf("removed = %v, want [green]", res.Removed)
	}
	if !strings.Contains(res.Message, "couldn't remove <@&red>") {
		t.Errorf("message = %q", res.Message)
	}
	if got := guild.held(testUser); !slices.Equal(got, []string{"blue", "red"}) {
		t.Errorf("held = %v, want [blue red]", got)
	}
}

func TestRadioSkipsRolesOutOfReach(t *testing.T) {
	db := daltest.New(t)
	guild := newFakeGuild("red", "blue")
	guild.roles[0].Managed = true
	guild.members[testUser] = []string{"red"}
	cfg := deployedMenu(t, db, models.SelectionRadio, "red", "blue")

	res := NewHandler(db, guild, DefaultCooldown).Handle(context.Background(), press(cfg, "blue", t0()))
	if res.Outcome != OutcomeAdded {
		t.Fatalf("outcome = %q, want added", res.Outcome)
	}
	if got := guild.held(testUser); !slices.Equal(got, []string{"blue", "red"}) {
		t.Errorf("held = %v", got)
	}
	if !strings.Contains(res.Message, "couldn't remove <@&red>") {
		t.Errorf("message = %q, want it to name the role left in place", res.Message)
	}
	if guild.removeCalls != 0 {
		t.Errorf("remove calls = %d, want 0", guild.removeCalls)
	}
}

func TestAddFailureReleasesCooldown(t *testing.T) {
	db := daltest.New(t)
	guild := newFakeGuild("news")
	guild.addErr["news"] = errDiscord
	cfg := deployedMenu(t, db, models.SelectionMultiple, "news")
	h := NewHandler(db, guild, DefaultCooldown)
	ctx := context.Background()

	res := h.Handle(ctx, press(cfg, "news", t0()))
	if res.Outcome != OutcomeFailed || !errors.Is(res.Err, errDiscord) {
		t.Fatalf("got %q %v, want failed", res.Outcome, res.Err)
	}
	if res.Message != msgFailed {
		t.Errorf("message = %q", res.Message)
	}

	delete(guild.addErr, "news")
	if res := h.Handle(ctx, press(cfg, "news", t0().Add(time.Second))); res.Outcome != OutcomeAdded {
		t.Errorf("retry = %q, want added", res.Outcome)
	}
}

func TestRadioMenuStaysExclusive(t *testing.T) {
	db := daltest.New(t)
	roleIDs := []string{"a", "b", "c", "d"}
	guild := newFakeGuild(roleIDs...)
	cfg := deployedMenu(t, db, models.SelectionRadio, roleIDs...)
	h := NewHandler(db, guild, 0)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 50; i++ {
		roleID := roleIDs[rng.Intn(len(roleIDs))]
		res := h.Handle(ctx, press(cfg, roleID, t0().Add(time.Duration(i)*time.Second)))
		if res.Outcome == OutcomeFailed {
			t.Fatalf("press %d failed: %v", i, res.Err)
		}
		if held := guild.held(testUser); len(held) > 1 {
			t.Fatalf("after press %d on %s the member holds %v", i, roleID, held)
		}
	}
}
