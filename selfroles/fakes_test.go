package selfroles

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"gorm.io/gorm"

	"wysibot/dal"
	"wysibot/discordutils"
	"wysibot/models"
)

const (
	testGuild   = "guild-1"
	testUser    = "user-1"
	testChannel = "chan-1"
	testMessage = "msg-1"
)

var errDiscord = errors.New("discord is down")

type fakeGuild struct {
	mu          sync.Mutex
	roles       []*discordgo.Role
	members     map[string][]string
	authority   discordutils.Authority
	addErr      map[string]error
	removeErr   map[string]error
	mutations   int
	removeCalls int
}

func newFakeGuild(roleIDs ...string) *fakeGuild {
	g := &fakeGuild{
		members:   map[string][]string{},
		authority: discordutils.Authority{TopPosition: 100, CanManageRoles: true},
		addErr:    map[string]error{},
		removeErr: map[string]error{},
	}
	for i, id := range roleIDs {
		g.roles = append(g.roles, &discordgo.Role{ID: id, Name: "Role " + id, Position: i + 1})
	}
	return g
}

func (g *fakeGuild) MemberRoleIDs(_ context.Context, _, userID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.members[userID]), nil
}

func (g *fakeGuild) Roles(context.Context, string) ([]*discordgo.Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roles, nil
}

func (g *fakeGuild) BotAuthority(context.Context, string) (discordutils.Authority, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authority, nil
}

func (g *fakeGuild) AddRole(_ context.Context, _, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.addErr[roleID]; err != nil {
		return err
	}
	g.mutations++
	if !slices.Contains(g.members[userID], roleID) {
		g.members[userID] = append(g.members[userID], roleID)
	}
	return nil
}

func (g *fakeGuild) RemoveRole(_ context.Context, _, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeCalls++
	if err := g.removeErr[roleID]; err != nil {
		return err
	}
	g.mutations++
	g.members[userID] = slices.DeleteFunc(g.members[userID], func(id string) bool { return id == roleID })
	return nil
}

func (g *fakeGuild) held(userID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := slices.Clone(g.members[userID])
	slices.Sort(out)
	return out
}

type fakePublisher struct {
	sent    []*discordgo.MessageSend
	edits   []*discordgo.MessageEdit
	editErr error
	nextID  int
}

func (p *fakePublisher) SendMessage(_ context.Context, _ string, msg *discordgo.MessageSend) (string, error) {
	p.sent = append(p.sent, msg)
	p.nextID++
	return "posted-" + strconv.Itoa(p.nextID), nil
}

func (p *fakePublisher) EditMessage(_ context.Context, edit *discordgo.MessageEdit) error {
	p.edits = append(p.edits, edit)
	return p.editErr
}

// deployedMenu stores a menu and marks it as posted as testMessage.
func deployedMenu(t *testing.T, db *gorm.DB, selection models.SelectionType, roleIDs ...string) *models.SelfRoleConfig {
	t.Helper()
	cfg := &models.SelfRoleConfig{
		GuildID:       testGuild,
		ChannelID:     testChannel,
		Title:         "Pick a colour",
		SelectionType: selection,
	}
	emojis := []string{"🔴", "🟢", "🔵", "🟡", "🟣", "🟠"}
	for i, id := range roleIDs {
		cfg.Roles = append(cfg.Roles, models.SelfRoleRole{RoleID: id, Emoji: emojis[i%len(emojis)] + string(rune('a'+i))})
	}
	ctx := context.Background()
	if err := dal.CreateSelfRoleConfig(ctx, cfg, db); err != nil {
		t.Fatalf("create config: %v", err)
	}
	if err := dal.SetSelfRoleMessageID(ctx, cfg.ID, testMessage, db); err != nil {
		t.Fatalf("set message id: %v", err)
	}
	msg := testMessage
	cfg.MessageID = &msg
	return cfg
}

func press(cfg *models.SelfRoleConfig, roleID string, at time.Time) Press {
	return Press{
		GuildID:   testGuild,
		UserID:    testUser,
		MessageID: testMessage,
		CustomID:  CustomID(cfg.ID, roleID),
		At:        at,
	}
}

func t0() time.Time {
	return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
}
