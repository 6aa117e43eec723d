package services

import (
	"testing"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/pkg/response"
)

func TestAuthorize(t *testing.T) {
	admin := &Caller{UserID: 1, Permissions: []models.TeamPermission{{TeamID: 10, UserID: 1, Role: models.TeamRoleAdmin}}}
	member := &Caller{UserID: 2, Permissions: []models.TeamPermission{{TeamID: 10, UserID: 2, Role: models.TeamRoleMember}}}
	outsider := &Caller{UserID: 3, Permissions: []models.TeamPermission{{TeamID: 20, UserID: 3, Role: models.TeamRoleAdmin}}}

	tests := []struct {
		name    string
		caller  *Caller
		policy  Policy
		res     Resource
		allowed bool
		message string
	}{
		{"nil caller", nil, PolicyMember, Resource{Kind: "links", TeamID: 10}, false, "You are not a member of this team"},
		{"outsider", outsider, PolicyMember, Resource{Kind: "links", TeamID: 10}, false, "You are not a member of this team"},
		{"member reads", member, PolicyMember, Resource{Kind: "links", TeamID: 10}, true, ""},
		{"member needs admin", member, PolicyAdmin, Resource{Kind: "scorecard data", TeamID: 10}, false, "Only team admins can update scorecard data"},
		{"admin passes admin", admin, PolicyAdmin, Resource{Kind: "scorecard data", TeamID: 10}, true, ""},
		{"owner edits own", member, PolicyOwnerOrAdmin, Resource{Kind: "links", TeamID: 10, OwnerID: 2}, true, ""},
		{"member edits other's", member, PolicyOwnerOrAdmin, Resource{Kind: "links", TeamID: 10, OwnerID: 1}, false, "You can only update your own links"},
		{"owner edits public", member, PolicyOwnerOrAdmin, Resource{Kind: "links", TeamID: 10, OwnerID: 2, Visibility: models.VisibilityPublic}, false, "Only Admins can update Public links"},
		{"admin edits public", admin, PolicyOwnerOrAdmin, Resource{Kind: "links", TeamID: 10, OwnerID: 2, Visibility: models.VisibilityPublic}, true, ""},
		{"member escalates", member, PolicyMember, Resource{Kind: "links", TeamID: 10, NewVisibility: models.VisibilityPublic}, false, "Only Admins can update Public links"},
		{"member stays private", member, PolicyMember, Resource{Kind: "links", TeamID: 10, NewVisibility: models.VisibilityPrivate}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.caller, "update", tt.policy, tt.res)
			if tt.allowed {
				if err != nil {
					t.Errorf("Authorize() error = %v, expected nil", err)
				}
				return
			}
			if !response.IsForbidden(err) {
				t.Fatalf("Authorize() error = %v, expected ForbiddenError", err)
			}
			if err.Error() != tt.message {
				t.Errorf("message = %q, expected %q", err.Error(), tt.message)
			}
		})
	}
}

func TestRequireSystemAdmin(t *testing.T) {
	if err := RequireSystemAdmin(&Caller{IsSystemAdmin: true}, "approve teams"); err != nil {
		t.Errorf("system admin should pass, got %v", err)
	}
	err := RequireSystemAdmin(&Caller{}, "approve teams")
	if !response.IsForbidden(err) {
		t.Errorf("expected ForbiddenError, got %v", err)
	}
}

func TestPermissionService_LoadCaller(t *testing.T) {
	f := newFixture(t)

	if !f.admin.IsTeamAdmin(f.team.ID) {
		t.Error("alice should be team admin")
	}
	if f.member.IsTeamAdmin(f.team.ID) || !f.member.IsTeamMember(f.team.ID) {
		t.Error("bob should be a plain member")
	}
	if f.other.IsTeamMember(f.team.ID) {
		t.Error("carol should not belong to the payments team")
	}

	svc := NewPermissionService(f.db)
	if _, err := svc.LoadCaller(9999); !response.IsUnauthorized(err) {
		t.Errorf("unknown user error = %v, expected UnauthorizedError", err)
	}
}
