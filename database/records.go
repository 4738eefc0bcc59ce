package database

import (
	"hlsgrab/models"

	"gorm.io/gorm"
)

// StoreOutcome records a finished download. It is a no-op when no
// database is configured.
func StoreOutcome(outcome *models.DownloadOutcome) error {
	if DB == nil {
		return nil
	}
	return DB.Create(models.NewDownloadRecord(outcome)).Error
}

func GetRecentRecords(limit int) ([]*models.DownloadRecord, error) {
	var records []*models.DownloadRecord
	err := DB.
		Order("created_at DESC").
		Limit(limit).
		Find(&records).
		Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetRecordByOutputPath returns the newest record written to outputPath.
func GetRecordByOutputPath(outputPath string) (*models.DownloadRecord, error) {
	var record models.DownloadRecord
	err := recordsByOutputPath(DB, outputPath).
		First(&record).
		Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func recordsByOutputPath(db *gorm.DB, outputPath string) *gorm.DB {
	return db.
		Where("output_path = ?", outputPath).
		Order("created_at DESC")
}
