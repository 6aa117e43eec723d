package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/pkg/response"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// validate re-checks request structs with the same `binding` tags gin uses,
// so services stay safe when called outside a handler.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

func validateInput(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return response.NewBadRequest(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed on '%s=%s'", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
		}
	}
	return response.NewBadRequest("invalid request: " + strings.Join(msgs, "; "))
}

// isUniqueViolation detects duplicate key errors. TranslateError covers the
// bundled drivers; the string checks catch connections opened without it.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

func validatePeriod(year, month int) error {
	if year < 2000 || year > 2100 {
		return response.NewBadRequest(fmt.Sprintf("year %d is out of range", year))
	}
	if month < 1 || month > 12 {
		return response.NewBadRequest(fmt.Sprintf("month %d is out of range (1-12)", month))
	}
	return nil
}

// BulkResult summarizes a multi-item operation. Per-item failures are
// collected instead of aborting the batch.
type BulkResult struct {
	Count   int      `json:"count"`
	Failed  int      `json:"failed"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func (r *BulkResult) fail(label string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", label, err.Error()))
}

func (r *BulkResult) summarize(verb string, total int) {
	r.Message = fmt.Sprintf("%s %d of %d items", verb, r.Count, total)
	if r.Failed > 0 {
		r.Message += fmt.Sprintf("; %d failed", r.Failed)
	}
}

// uniqueIDs drops repeated ids, keeping first-seen order.
func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func loadTeam(db *gorm.DB, teamID uint) (*models.Team, error) {
	var team models.Team
	if err := db.First(&team, teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("Team not found")
		}
		return nil, err
	}
	return &team, nil
}

func loadApplication(db *gorm.DB, appID uint) (*models.Application, error) {
	var app models.Application
	if err := db.First(&app, appID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("Application not found")
		}
		return nil, err
	}
	return &app, nil
}

func uintPtr(v uint) *uint { return &v }

func timePtr(t time.Time) *time.Time { return &t }
