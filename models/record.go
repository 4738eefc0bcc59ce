package models

import (
	"time"

	"github.com/guregu/null/v6/zero"
	"gorm.io/gorm"
)

type DownloadRecord struct {
	ID             uint           `json:"-"`
	DownloadID     string         `gorm:"not null;uniqueIndex;size:36" json:"download_id"`
	ManifestURL    string         `gorm:"not null" json:"manifest_url"`
	OutputPath     string         `gorm:"not null;index" json:"output_path"`
	Status         string         `gorm:"not null;index" json:"status"`
	FailedIn       zero.String    `json:"failed_in"`
	Reason         zero.String    `json:"reason"`
	BytesWritten   int64          `json:"bytes_written"`
	TotalSegments  int            `json:"total_segments"`
	FailedSegments int            `json:"failed_segments"`
	Warning        bool           `gorm:"default:false" json:"warning"`
	Severe         bool           `gorm:"default:false" json:"severe"`
	Resumed        bool           `gorm:"default:false" json:"resumed"`
	ElapsedMS      int64          `json:"elapsed_ms"`
	CreatedAt      time.Time      `json:"-"`
	UpdatedAt      time.Time      `json:"-"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func NewDownloadRecord(outcome *DownloadOutcome) *DownloadRecord {
	return &DownloadRecord{
		DownloadID:     outcome.ID,
		ManifestURL:    outcome.ManifestURL,
		OutputPath:     outcome.OutputPath,
		Status:         string(outcome.Status),
		FailedIn:       zero.StringFrom(string(outcome.FailedIn)),
		Reason:         zero.StringFrom(outcome.ReasonText),
		BytesWritten:   outcome.BytesWritten,
		TotalSegments:  outcome.TotalSegments,
		FailedSegments: outcome.FailedSegments,
		Warning:        outcome.Warning,
		Severe:         outcome.Severe,
		Resumed:        outcome.Resumed,
		ElapsedMS:      outcome.Elapsed.Milliseconds(),
	}
}
