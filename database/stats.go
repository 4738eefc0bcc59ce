package database

import (
	"hlsgrab/enums"
	"hlsgrab/models"
)

func GetDownloadsCount() (int64, error) {
	var count int64
	err := DB.
		Model(&models.DownloadRecord{}).
		Count(&count).
		Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func GetFailedDownloadsCount() (int64, error) {
	var count int64
	err := DB.
		Model(&models.DownloadRecord{}).
		Where("status = ?", enums.OutcomeStatusFailed).
		Count(&count).
		Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func GetDailyDownloadsCount() (int64, error) {
	var count int64
	err := DB.
		Model(&models.DownloadRecord{}).
		Where("DATE(created_at) = DATE(NOW())").
		Count(&count).
		Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func GetTotalBytesWritten() (int64, error) {
	var total int64
	err := DB.
		Model(&models.DownloadRecord{}).
		Select("COALESCE(SUM(bytes_written), 0)").
		Scan(&total).
		Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
