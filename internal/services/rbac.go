package services

import (
	"errors"
	"fmt"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/pkg/response"
	"gorm.io/gorm"
)

// Caller is the authenticated identity every mutating operation receives.
// Permissions hold the caller's team memberships.
type Caller struct {
	UserID        uint                    `json:"user_id"`
	Username      string                  `json:"username"`
	IsSystemAdmin bool                    `json:"is_system_admin"`
	Permissions   []models.TeamPermission `json:"permissions"`
}

// RoleIn returns the caller's role in a team.
func (c *Caller) RoleIn(teamID uint) (string, bool) {
	if c == nil {
		return "", false
	}
	for _, p := range c.Permissions {
		if p.TeamID == teamID {
			return p.Role, true
		}
	}
	return "", false
}

func (c *Caller) IsTeamMember(teamID uint) bool {
	_, ok := c.RoleIn(teamID)
	return ok
}

func (c *Caller) IsTeamAdmin(teamID uint) bool {
	role, ok := c.RoleIn(teamID)
	return ok && role == models.TeamRoleAdmin
}

// TeamIDs lists every team the caller belongs to.
func (c *Caller) TeamIDs() []uint {
	if c == nil {
		return nil
	}
	ids := make([]uint, 0, len(c.Permissions))
	for _, p := range c.Permissions {
		ids = append(ids, p.TeamID)
	}
	return ids
}

// Policy is the minimum standing a caller needs on a resource's team.
type Policy int

const (
	PolicyMember Policy = iota
	PolicyAdmin
	PolicyOwnerOrAdmin
)

// Resource describes what is being acted on. Kind is a plural noun used in
// error messages ("links", "turnover entries").
type Resource struct {
	Kind          string
	TeamID        uint
	OwnerID       uint
	Visibility    string // current visibility, if the resource has one
	NewVisibility string // requested visibility on create or update
}

// Authorize is the single policy check for team-scoped resources. It
// returns a ForbiddenError describing the first rule the caller fails.
func Authorize(caller *Caller, action string, policy Policy, res Resource) error {
	if caller == nil || !caller.IsTeamMember(res.TeamID) {
		return response.NewForbidden("You are not a member of this team")
	}
	admin := caller.IsTeamAdmin(res.TeamID)

	switch policy {
	case PolicyAdmin:
		if !admin {
			return response.NewForbidden(fmt.Sprintf("Only team admins can %s %s", action, res.Kind))
		}
	case PolicyOwnerOrAdmin:
		if admin {
			break
		}
		if res.Visibility == models.VisibilityPublic {
			return response.NewForbidden(fmt.Sprintf("Only Admins can %s Public %s", action, res.Kind))
		}
		if res.OwnerID != caller.UserID {
			return response.NewForbidden(fmt.Sprintf("You can only %s your own %s", action, res.Kind))
		}
	}

	if res.NewVisibility == models.VisibilityPublic && !admin {
		return response.NewForbidden(fmt.Sprintf("Only Admins can %s Public %s", action, res.Kind))
	}
	return nil
}

// RequireSystemAdmin guards directory operations such as team approval.
func RequireSystemAdmin(caller *Caller, action string) error {
	if caller == nil || !caller.IsSystemAdmin {
		return response.NewForbidden(fmt.Sprintf("Only system administrators can %s", action))
	}
	return nil
}

// PermissionService resolves callers from stored users and memberships.
type PermissionService struct {
	db *gorm.DB
}

func NewPermissionService(db *gorm.DB) *PermissionService {
	return &PermissionService{db: db}
}

// LoadCaller builds the Caller for an authenticated user id.
func (s *PermissionService) LoadCaller(userID uint) (*Caller, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewUnauthorized("User not found")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, response.NewUnauthorized("User is disabled")
	}

	var perms []models.TeamPermission
	if err := s.db.Where("user_id = ?", userID).Find(&perms).Error; err != nil {
		return nil, err
	}

	return &Caller{
		UserID:        user.ID,
		Username:      user.Username,
		IsSystemAdmin: user.Role == models.UserRoleAdmin,
		Permissions:   perms,
	}, nil
}
