// internal/store/ledger.go
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gestionpro/license-server/internal/models"
)

// DefaultHistoryLimit bounds RecentHistory queries when no limit is given.
const DefaultHistoryLimit = 50

// Ledger is the durable record of every license and its activation history.
// Both persistence backends (postgres and sqlite) satisfy it through the
// same gorm implementation; the driver is a deployment decision.
//
// All license writes are single conditional updates: the returned row count
// is the caller's only signal for distinguishing an applied transition from
// a lost race.
type Ledger interface {
	Lookup(key string) (*models.License, error)
	LookupUnexpired(key string) (*models.License, error)
	Activate(key, machineID, fingerprint string) (int64, error)
	RecordValidation(key, machineID, fingerprint string) (int64, error)
	AppendHistory(key, machineID, fingerprint string, action models.HistoryAction, success bool, ipAddress string) error
	Issue(key string, expirationDate *time.Time, maxTransfers int, customerEmail *string) error
	Revoke(key string) (int64, error)
	RecentHistory(key string, limit int) ([]models.ActivationHistory, error)
	GlobalHistory(limit int) ([]models.ActivationHistory, error)
	Search(term string) (*models.License, error)
	All() ([]models.License, error)
	Ping() error
}

// ErrDuplicateKey is returned by Issue when the key already exists.
var ErrDuplicateKey = errors.New("license key already exists")

type gormLedger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) Ledger {
	return &gormLedger{db: db}
}

func (l *gormLedger) Lookup(key string) (*models.License, error) {
	var license models.License
	if err := l.db.Where("key = ?", key).First(&license).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &license, nil
}

// LookupUnexpired filters out licenses past their expiration date in the
// query itself, so an expired key reads exactly like a nonexistent one.
func (l *gormLedger) LookupUnexpired(key string) (*models.License, error) {
	var license models.License
	err := l.db.
		Where("key = ? AND (expiration_date IS NULL OR expiration_date > ?)", key, time.Now().UTC()).
		First(&license).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &license, nil
}

// Activate binds the license to a machine, conditioned on status still being
// "inactive". Two concurrent activators race on this predicate; exactly one
// sees a row count of 1.
func (l *gormLedger) Activate(key, machineID, fingerprint string) (int64, error) {
	result := l.db.Model(&models.License{}).
		Where("key = ? AND status = ?", key, models.LicenseStatusInactive).
		Updates(map[string]interface{}{
			"status":               models.LicenseStatusActive,
			"machine_id":           machineID,
			"hardware_fingerprint": fingerprint,
			"activation_date":      time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to activate license: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RecordValidation stamps the validation, conditioned on the full binding
// still matching. A row count of 0 means the binding changed underneath the
// caller's read.
func (l *gormLedger) RecordValidation(key, machineID, fingerprint string) (int64, error) {
	result := l.db.Model(&models.License{}).
		Where("key = ? AND machine_id = ? AND hardware_fingerprint = ? AND status = ?",
			key, machineID, fingerprint, models.LicenseStatusActive).
		Updates(map[string]interface{}{
			"last_validation":  time.Now().UTC(),
			"validation_count": gorm.Expr("validation_count + 1"),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to record validation: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (l *gormLedger) AppendHistory(key, machineID, fingerprint string, action models.HistoryAction, success bool, ipAddress string) error {
	record := &models.ActivationHistory{
		LicenseKey:          key,
		MachineID:           machineID,
		HardwareFingerprint: fingerprint,
		Action:              action,
		Success:             success,
		IPAddress:           ipAddress,
		Timestamp:           time.Now().UTC(),
	}
	if err := l.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to append activation history: %w", err)
	}
	return nil
}

func (l *gormLedger) Issue(key string, expirationDate *time.Time, maxTransfers int, customerEmail *string) error {
	license := &models.License{
		Key:            key,
		Status:         models.LicenseStatusInactive,
		ExpirationDate: expirationDate,
		MaxTransfers:   maxTransfers,
		CustomerEmail:  customerEmail,
	}
	if err := l.db.Create(license).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to issue license: %w", err)
	}
	return nil
}

// Revoke moves a license to the terminal "revoked" status. Administrative
// only; no transition out of "revoked" exists.
func (l *gormLedger) Revoke(key string) (int64, error) {
	result := l.db.Model(&models.License{}).
		Where("key = ? AND status <> ?", key, models.LicenseStatusRevoked).
		Update("status", models.LicenseStatusRevoked)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to revoke license: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (l *gormLedger) RecentHistory(key string, limit int) ([]models.ActivationHistory, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var records []models.ActivationHistory
	err := l.db.
		Where("license_key = ?", key).
		Order("timestamp DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch activation history: %w", err)
	}
	return records, nil
}

func (l *gormLedger) GlobalHistory(limit int) ([]models.ActivationHistory, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var records []models.ActivationHistory
	err := l.db.
		Order("timestamp DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch activation history: %w", err)
	}
	return records, nil
}

func (l *gormLedger) Search(term string) (*models.License, error) {
	var license models.License
	if err := l.db.Where("key LIKE ?", "%"+term+"%").First(&license).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &license, nil
}

func (l *gormLedger) All() ([]models.License, error) {
	var licenses []models.License
	if err := l.db.Order("activation_date DESC").Find(&licenses).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch licenses: %w", err)
	}
	return licenses, nil
}

func (l *gormLedger) Ping() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
