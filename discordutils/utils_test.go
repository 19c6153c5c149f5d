package discordutils

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func restErr(code int) error {
	return &discordgo.RESTError{
		Response:     &http.Response{Status: "403 Forbidden", StatusCode: http.StatusForbidden},
		ResponseBody: []byte(`{"message":"nope"}`),
		Message:      &discordgo.APIErrorMessage{Code: code, Message: "nope"},
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"closed DMs", restErr(discordgo.ErrCodeCannotSendMessagesToThisUser), ErrUnreachable},
		{"unknown user", restErr(discordgo.ErrCodeUnknownUser), ErrUnreachable},
		{"unknown member", restErr(discordgo.ErrCodeUnknownMember), ErrUnreachable},
		{"unknown message", restErr(discordgo.ErrCodeUnknownMessage), ErrUnknownMessage},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); !errors.Is(got, tc.want) {
			t.Fatalf("%s: Classify = %v; want %v", tc.name, got, tc.want)
		}
	}

	other := restErr(discordgo.ErrCodeMissingPermissions)
	if got := Classify(other); got != other {
		t.Fatalf("unrelated REST error should pass through, got %v", got)
	}
	if got := Classify(context.DeadlineExceeded); got != context.DeadlineExceeded {
		t.Fatalf("non-REST error should pass through, got %v", got)
	}
	if Classify(nil) != nil {
		t.Fatal("nil should stay nil")
	}
}

func TestMemberPermissionsAndPosition(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "g1", Position: 0, Permissions: discordgo.PermissionSendMessages},
		{ID: "mod", Position: 5, Permissions: discordgo.PermissionManageRoles},
		{ID: "admin", Position: 9, Permissions: discordgo.PermissionAdministrator},
		{ID: "fun", Position: 3},
	}

	perms := MemberPermissions("g1", []string{"fun", "mod"}, roles)
	if perms&discordgo.PermissionManageRoles == 0 || perms&discordgo.PermissionSendMessages == 0 {
		t.Fatalf("expected @everyone and mod permissions, got %b", perms)
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		t.Fatal("admin permission must not leak")
	}
	if top := HighestRolePosition([]string{"fun", "mod"}, roles); top != 5 {
		t.Fatalf("HighestRolePosition = %d; want 5", top)
	}
	if top := HighestRolePosition(nil, roles); top != 0 {
		t.Fatalf("HighestRolePosition(nil) = %d; want 0", top)
	}

	member := &discordgo.Member{GuildID: "g1", Roles: []string{"admin"}}
	if !MemberHasAdminPermissions(member, roles) {
		t.Fatal("admin role should grant admin permissions")
	}
	if MemberHasAdminPermissions(&discordgo.Member{GuildID: "g1", Roles: []string{"fun"}}, roles) {
		t.Fatal("fun role should not grant admin permissions")
	}
	if !MemberHasAdminPermissions(&discordgo.Member{Permissions: discordgo.PermissionAdministrator}, nil) {
		t.Fatal("resolved interaction permissions should count")
	}
}

func TestMemberHasAdminPermissions_ThroughEveryone(t *testing.T) {
	roles := []*discordgo.Role{
		{ID: "g1", Permissions: discordgo.PermissionAdministrator},
		{ID: "fun"},
	}
	if !MemberHasAdminPermissions(&discordgo.Member{GuildID: "g1"}, roles) {
		t.Fatal("an administrator @everyone role should grant admin permissions")
	}
	if MemberHasAdminPermissions(&discordgo.Member{GuildID: "g2", Roles: []string{"fun"}}, roles) {
		t.Fatal("another guild's @everyone must not count")
	}
	if RoleAllowsAdminPermissions(nil) {
		t.Fatal("nil role must not allow admin permissions")
	}
	if !RoleAllowsAdminPermissions(roles[0]) || RoleAllowsAdminPermissions(roles[1]) {
		t.Fatal("RoleAllowsAdminPermissions disagrees with role permissions")
	}
}

func TestAuthorityCanManage(t *testing.T) {
	a := Authority{TopPosition: 5, CanManageRoles: true}
	if !a.CanManage(&discordgo.Role{Position: 4}) {
		t.Fatal("role below the bot should be manageable")
	}
	if a.CanManage(&discordgo.Role{Position: 5}) {
		t.Fatal("role level with the bot must not be manageable")
	}
	if a.CanManage(&discordgo.Role{Position: 1, Managed: true}) {
		t.Fatal("integration-managed roles must not be manageable")
	}
	if (Authority{TopPosition: 9}).CanManage(&discordgo.Role{Position: 1}) {
		t.Fatal("without Manage Roles nothing is manageable")
	}
}

func TestMemberHasRoleAndFindRole(t *testing.T) {
	if !MemberHasRole([]string{"a", "b"}, "b") || MemberHasRole([]string{"a"}, "b") {
		t.Fatal("MemberHasRole mismatch")
	}
	roles := []*discordgo.Role{{ID: "a"}, {ID: "b", Name: "Bee"}}
	if r, ok := FindRole("b", roles); !ok || r.Name != "Bee" {
		t.Fatalf("FindRole = %v, %v", r, ok)
	}
	if _, ok := FindRole("z", roles); ok {
		t.Fatal("FindRole should miss")
	}
}
