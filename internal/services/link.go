package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/pkg/response"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LinkService struct {
	db *gorm.DB
}

func NewLinkService(db *gorm.DB) *LinkService {
	return &LinkService{db: db}
}

type CreateLinkRequest struct {
	TeamID        uint     `json:"team_id" binding:"required"`
	ApplicationID *uint    `json:"application_id"`
	Title         string   `json:"title" binding:"required,max=300"`
	URL           string   `json:"url" binding:"required,url,max=2000"`
	Description   string   `json:"description" binding:"max=2000"`
	Tags          []string `json:"tags" binding:"omitempty,max=50,dive,max=50"`
	Visibility    string   `json:"visibility" binding:"omitempty,oneof=private public"`
}

type UpdateLinkRequest struct {
	ApplicationID *uint     `json:"application_id"`
	Title         *string   `json:"title" binding:"omitempty,min=1,max=300"`
	URL           *string   `json:"url" binding:"omitempty,url,max=2000"`
	Description   *string   `json:"description" binding:"omitempty,max=2000"`
	Tags          *[]string `json:"tags" binding:"omitempty,max=50,dive,max=50"`
	Visibility    string    `json:"visibility" binding:"omitempty,oneof=private public"`
}

type ListLinksRequest struct {
	TeamID        uint   `form:"team_id" binding:"required"`
	ApplicationID *uint  `form:"application_id"`
	Tag           string `form:"tag"`
	Search        string `form:"search"`
}

type BulkUpdateLinksRequest struct {
	LinkIDs       []uint   `json:"link_ids" binding:"required,min=1,max=500"`
	AddTags       []string `json:"add_tags" binding:"omitempty,max=50,dive,max=50"`
	Visibility    string   `json:"visibility" binding:"omitempty,oneof=private public"`
	ApplicationID *uint    `json:"application_id"`
}

func (s *LinkService) loadLink(id uint) (*models.Link, error) {
	var link models.Link
	if err := s.db.First(&link, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("Link not found")
		}
		return nil, err
	}
	return &link, nil
}

func (s *LinkService) checkApplication(teamID uint, appID *uint) error {
	if appID == nil {
		return nil
	}
	var count int64
	if err := s.db.Model(&models.Application{}).Where("id = ? AND team_id = ?", *appID, teamID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return response.NewNotFound("Application not found in this team")
	}
	return nil
}

// CreateLink adds a bookmark. Members create private links; only team
// admins may create public ones.
func (s *LinkService) CreateLink(caller *Caller, req *CreateLinkRequest) (*models.Link, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if _, err := loadTeam(s.db, req.TeamID); err != nil {
		return nil, err
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = models.VisibilityPrivate
	}
	if err := Authorize(caller, "create", PolicyMember, Resource{Kind: "links", TeamID: req.TeamID, NewVisibility: visibility}); err != nil {
		return nil, err
	}
	if err := s.checkApplication(req.TeamID, req.ApplicationID); err != nil {
		return nil, err
	}

	link := &models.Link{
		TeamID:        req.TeamID,
		ApplicationID: req.ApplicationID,
		Title:         strings.TrimSpace(req.Title),
		URL:           strings.TrimSpace(req.URL),
		Description:   req.Description,
		Tags:          mergeTags(nil, req.Tags),
		Visibility:    visibility,
		CreatedBy:     caller.UserID,
	}
	if err := s.db.Create(link).Error; err != nil {
		return nil, err
	}
	return link, nil
}

// UpdateLink edits a link. Public links are admin-only; private links may
// be edited by their creator or a team admin.
func (s *LinkService) UpdateLink(caller *Caller, id uint, req *UpdateLinkRequest) (*models.Link, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	link, err := s.loadLink(id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(caller, "update", PolicyOwnerOrAdmin, linkResource(link, req.Visibility)); err != nil {
		return nil, err
	}
	if err := s.checkApplication(link.TeamID, req.ApplicationID); err != nil {
		return nil, err
	}

	if req.ApplicationID != nil {
		link.ApplicationID = req.ApplicationID
	}
	if req.Title != nil {
		link.Title = strings.TrimSpace(*req.Title)
	}
	if req.URL != nil {
		link.URL = strings.TrimSpace(*req.URL)
	}
	if req.Description != nil {
		link.Description = *req.Description
	}
	if req.Tags != nil {
		link.Tags = mergeTags(nil, *req.Tags)
	}
	if req.Visibility != "" {
		link.Visibility = req.Visibility
	}
	if err := s.db.Save(link).Error; err != nil {
		return nil, err
	}
	return link, nil
}

func (s *LinkService) DeleteLink(caller *Caller, id uint) error {
	link, err := s.loadLink(id)
	if err != nil {
		return err
	}
	if err := Authorize(caller, "delete", PolicyOwnerOrAdmin, linkResource(link, "")); err != nil {
		return err
	}
	return s.db.Delete(link).Error
}

func linkResource(link *models.Link, newVisibility string) Resource {
	return Resource{
		Kind:          "links",
		TeamID:        link.TeamID,
		OwnerID:       link.CreatedBy,
		Visibility:    link.Visibility,
		NewVisibility: newVisibility,
	}
}

// ListLinks returns public links plus the caller's private ones. Team
// admins see every link.
func (s *LinkService) ListLinks(caller *Caller, req *ListLinksRequest) ([]models.Link, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if err := Authorize(caller, "view", PolicyMember, Resource{Kind: "links", TeamID: req.TeamID}); err != nil {
		return nil, err
	}

	query := s.db.Where("team_id = ?", req.TeamID)
	if !caller.IsTeamAdmin(req.TeamID) {
		query = query.Where("visibility = ? OR created_by = ?", models.VisibilityPublic, caller.UserID)
	}
	if req.ApplicationID != nil {
		query = query.Where("application_id = ?", *req.ApplicationID)
	}
	if search := strings.TrimSpace(req.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(url) LIKE ? OR LOWER(description) LIKE ?", like, like, like)
	}

	var links []models.Link
	if err := query.Order("title ASC, id ASC").Find(&links).Error; err != nil {
		return nil, err
	}
	if tag := strings.TrimSpace(req.Tag); tag != "" {
		filtered := links[:0]
		for _, l := range links {
			if hasTag(l.Tags, tag) {
				filtered = append(filtered, l)
			}
		}
		links = filtered
	}
	return links, nil
}

// BulkUpdateLinks applies one change set to many links. Each link is
// authorized on its own and failures are reported per link. Tag additions
// are merged into each row's existing tags; other fields are written in a
// single batched update.
func (s *LinkService) BulkUpdateLinks(caller *Caller, req *BulkUpdateLinksRequest) (*BulkResult, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if len(req.AddTags) == 0 && req.Visibility == "" && req.ApplicationID == nil {
		return nil, response.NewBadRequest("No changes requested")
	}

	linkIDs := uniqueIDs(req.LinkIDs)
	var links []models.Link
	if err := s.db.Where("id IN ?", linkIDs).Find(&links).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.Link, len(links))
	for i := range links {
		byID[links[i].ID] = &links[i]
	}

	result := &BulkResult{}
	var allowed []*models.Link
	for _, id := range linkIDs {
		link, ok := byID[id]
		if !ok {
			result.fail(fmt.Sprintf("link %d", id), response.NewNotFound("Link not found"))
			continue
		}
		if err := Authorize(caller, "update", PolicyOwnerOrAdmin, linkResource(link, req.Visibility)); err != nil {
			result.fail(fmt.Sprintf("link %d", id), err)
			continue
		}
		if err := s.checkApplication(link.TeamID, req.ApplicationID); err != nil {
			result.fail(fmt.Sprintf("link %d", id), err)
			continue
		}
		allowed = append(allowed, link)
	}

	updates := map[string]interface{}{}
	if req.Visibility != "" {
		updates["visibility"] = req.Visibility
	}
	if req.ApplicationID != nil {
		updates["application_id"] = *req.ApplicationID
	}

	if len(req.AddTags) > 0 {
		for _, link := range allowed {
			row := map[string]interface{}{"tags": datatypes.JSONSlice[string](mergeTags(link.Tags, req.AddTags))}
			for k, v := range updates {
				row[k] = v
			}
			if err := s.db.Model(&models.Link{}).Where("id = ?", link.ID).Updates(row).Error; err != nil {
				result.fail(fmt.Sprintf("link %d", link.ID), err)
				continue
			}
			result.Count++
		}
	} else if len(allowed) > 0 {
		ids := make([]uint, 0, len(allowed))
		for _, link := range allowed {
			ids = append(ids, link.ID)
		}
		if err := s.db.Model(&models.Link{}).Where("id IN ?", ids).Updates(updates).Error; err != nil {
			for _, id := range ids {
				result.fail(fmt.Sprintf("link %d", id), err)
			}
		} else {
			result.Count = len(ids)
		}
	}

	result.summarize("Updated", len(linkIDs))
	return result, nil
}

// mergeTags appends additions to existing, trimming blanks and dropping
// case-insensitive duplicates while keeping first-seen order.
func mergeTags(existing, additions []string) []string {
	seen := make(map[string]bool, len(existing)+len(additions))
	out := make([]string, 0, len(existing)+len(additions))
	for _, list := range [][]string{existing, additions} {
		for _, tag := range list {
			tag = strings.TrimSpace(tag)
			key := strings.ToLower(tag)
			if tag == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, tag)
		}
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
