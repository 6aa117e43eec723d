package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ensemble/backend/internal/config"
	"github.com/ensemble/backend/internal/models"
	"github.com/ensemble/backend/pkg/logger"
)

// normalize_tla upper-cases and trims application TLAs written before the
// API started normalizing them.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	db := models.GetDB()

	fmt.Println("Connected to database successfully!")
	fmt.Println("")

	var apps []models.Application
	if err := db.Order("id ASC").Find(&apps).Error; err != nil {
		logger.Fatalf("Failed to query applications: %v", err)
	}

	fmt.Printf("%-5s %-40s %-10s %-10s\n", "ID", "Name", "Before", "After")
	fmt.Println("--------------------------------------------------------------------")
	updated := 0
	for _, app := range apps {
		normalized := strings.ToUpper(strings.TrimSpace(app.TLA))
		if normalized == app.TLA {
			continue
		}
		if err := db.Model(&models.Application{}).Where("id = ?", app.ID).Update("tla", normalized).Error; err != nil {
			logger.Fatalf("Failed to update application %d: %v", app.ID, err)
		}
		fmt.Printf("%-5d %-40s %-10s %-10s\n", app.ID, app.Name, app.TLA, normalized)
		updated++
	}

	fmt.Println("")
	fmt.Printf("Updated %d of %d applications\n", updated, len(apps))
}
