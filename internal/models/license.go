// internal/models/license.go
package models

import (
	"time"
)

type LicenseStatus string

const (
	LicenseStatusInactive LicenseStatus = "inactive"
	LicenseStatusActive   LicenseStatus = "active"
	LicenseStatusRevoked  LicenseStatus = "revoked"
)

// HistoryAction is the fixed vocabulary recorded in activation_history.
// The fraud heuristic only recognizes these values.
type HistoryAction string

const (
	ActionActivationSuccess     HistoryAction = "ACTIVATION_SUCCESS"
	ActionActivationFailed      HistoryAction = "ACTIVATION_FAILED"
	ActionReactivation          HistoryAction = "REACTIVATION"
	ActionFraudAttempt          HistoryAction = "FRAUD_ATTEMPT"
	ActionTransferLimitExceeded HistoryAction = "TRANSFER_LIMIT_EXCEEDED"
	ActionValidationFailed      HistoryAction = "VALIDATION_FAILED"
	ActionServerError           HistoryAction = "SERVER_ERROR"
	ActionRevoked               HistoryAction = "REVOKED"
)

// License is one row per issued key. A license is bound to at most one
// machine: status "active" implies MachineID and HardwareFingerprint are set.
type License struct {
	ID                  uint          `json:"id" gorm:"primaryKey"`
	Key                 string        `json:"key" gorm:"uniqueIndex;not null"`
	Status              LicenseStatus `json:"status" gorm:"type:varchar(20);not null;default:'inactive';index"`
	MachineID           *string       `json:"machine_id"`
	HardwareFingerprint *string       `json:"hardware_fingerprint"`
	ActivationDate      *time.Time    `json:"activation_date"`
	LastValidation      *time.Time    `json:"last_validation"`
	ValidationCount     int           `json:"validation_count" gorm:"not null;default:0"`
	MaxValidations      int           `json:"max_validations" gorm:"not null;default:1000"`
	ExpirationDate      *time.Time    `json:"expiration_date"`
	CustomerEmail       *string       `json:"customer_email,omitempty"`
	CustomerInfo        *string       `json:"customer_info,omitempty" gorm:"type:text"`
	TransferCount       int           `json:"transfer_count" gorm:"not null;default:0"`
	MaxTransfers        int           `json:"max_transfers" gorm:"not null;default:1"`
}

// BoundTo reports whether the license is bound to the given machine identity.
func (l *License) BoundTo(machineID, fingerprint string) bool {
	return l.MachineID != nil && *l.MachineID == machineID &&
		l.HardwareFingerprint != nil && *l.HardwareFingerprint == fingerprint
}

// ActivationHistory is the append-only record of every activation and
// validation attempt. Rows are never updated or deleted.
type ActivationHistory struct {
	ID                  uint          `json:"id" gorm:"primaryKey"`
	LicenseKey          string        `json:"license_key" gorm:"not null;index:idx_activation_history_key_ts,priority:1"`
	MachineID           string        `json:"machine_id"`
	HardwareFingerprint string        `json:"hardware_fingerprint"`
	Action              HistoryAction `json:"action" gorm:"type:varchar(32);not null"`
	Success             bool          `json:"success"`
	IPAddress           string        `json:"ip_address"`
	Timestamp           time.Time     `json:"timestamp" gorm:"not null;index:idx_activation_history_key_ts,priority:2"`
}

func (ActivationHistory) TableName() string {
	return "activation_history"
}
