package dto

import (
	"time"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// DashboardResponse captures the school-wide dashboard payload.
type DashboardResponse struct {
	Stats           models.GlobalStats          `json:"stats"`
	IncidentRanking []models.ClassIncidentCount `json:"incident_ranking"`
	Performance     models.GlobalPerformance    `json:"performance"`
	GeneratedAt     time.Time                   `json:"generated_at"`
}
