package services

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/pkg/response"
	"gorm.io/gorm"
)

type SystemConfigService struct {
	db *gorm.DB
}

func NewSystemConfigService(db *gorm.DB) *SystemConfigService {
	return &SystemConfigService{db: db}
}

func (s *SystemConfigService) Get(key string) (string, error) {
	var cfg models.SystemConfig
	if err := s.db.Where(&models.SystemConfig{Key: key}).First(&cfg).Error; err != nil {
		return "", err
	}
	return cfg.Value, nil
}

func (s *SystemConfigService) GetWithDefault(key, defaultValue string) string {
	value, err := s.Get(key)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetInt reads an integer config, falling back on missing or bad values.
func (s *SystemConfigService) GetInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s.GetWithDefault(key, "")))
	if err != nil {
		return defaultValue
	}
	return v
}

func (s *SystemConfigService) Set(key, value string) error {
	var cfg models.SystemConfig
	err := s.db.Where(&models.SystemConfig{Key: key}).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = models.SystemConfig{
			Key:   key,
			Value: value,
		}
		return s.db.Create(&cfg).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&cfg).Update("value", value).Error
}

func (s *SystemConfigService) GetByGroup(group string) ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	if err := s.db.Where(&models.SystemConfig{Group: group}).Order("id ASC").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func (s *SystemConfigService) List() ([]models.SystemConfig, error) {
	var configs []models.SystemConfig
	if err := s.db.Order("id ASC").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

type UpdateSystemConfigRequest struct {
	Value string `json:"value"`
}

// Update changes an existing key; typed keys are checked before writing.
func (s *SystemConfigService) Update(caller *Caller, key string, req *UpdateSystemConfigRequest) (*models.SystemConfig, error) {
	if err := RequireSystemAdmin(caller, "change system settings"); err != nil {
		return nil, err
	}
	var cfg models.SystemConfig
	if err := s.db.Where(&models.SystemConfig{Key: key}).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("Config not found")
		}
		return nil, err
	}

	value := strings.TrimSpace(req.Value)
	switch cfg.Type {
	case "int":
		if n, err := strconv.Atoi(value); err != nil || n < 0 {
			return nil, response.NewBadRequest(key + " must be a non-negative integer")
		}
	case "bool":
		if _, err := strconv.ParseBool(value); err != nil {
			return nil, response.NewBadRequest(key + " must be true or false")
		}
	}

	if err := s.db.Model(&cfg).Update("value", value).Error; err != nil {
		return nil, err
	}
	LogInfo("SystemConfig", "Update", "Updated "+key, &caller.UserID, "", "", nil)
	return &cfg, nil
}
