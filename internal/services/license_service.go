// internal/services/license_service.go
package services

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gestionpro/license-server/internal/config"
	"github.com/gestionpro/license-server/internal/models"
	"github.com/gestionpro/license-server/internal/store"
)

// LicenseService is the lifecycle engine. It holds no license state of its
// own: every decision starts from a fresh ledger read.
type LicenseService struct {
	ledger store.Ledger
	cfg    config.LicenseConfig
}

type ActivateRequest struct {
	LicenseKey          string `json:"licenseKey" validate:"required"`
	MachineID           string `json:"machineId" validate:"required"`
	HardwareFingerprint string `json:"hardwareFingerprint" validate:"required"`
	Timestamp           string `json:"timestamp,omitempty"`
	ClientIP            string `json:"-"`
}

type ValidateRequest struct {
	LicenseKey          string `json:"licenseKey" validate:"required"`
	MachineID           string `json:"machineId" validate:"required"`
	HardwareFingerprint string `json:"hardwareFingerprint" validate:"required"`
	ClientIP            string `json:"-"`
}

type ActivationResult struct {
	Success bool
	Message string
}

type ValidationResult struct {
	Valid                bool
	Message              string
	RemainingValidations *int
}

func NewLicenseService(ledger store.Ledger, cfg config.LicenseConfig) *LicenseService {
	return &LicenseService{
		ledger: ledger,
		cfg:    cfg,
	}
}

// Activate decides the outcome of one activation request. Only storage
// faults travel the error path; every policy decision is a result value.
func (s *LicenseService) Activate(req *ActivateRequest) (*ActivationResult, error) {
	license, err := s.ledger.LookupUnexpired(req.LicenseKey)
	if err != nil {
		s.appendHistory(req.LicenseKey, req.MachineID, req.HardwareFingerprint, models.ActionServerError, false, req.ClientIP)
		return nil, fmt.Errorf("activation lookup failed: %w", err)
	}

	if license == nil {
		s.appendHistory(req.LicenseKey, req.MachineID, req.HardwareFingerprint, models.ActionActivationFailed, false, req.ClientIP)
		return &ActivationResult{Success: false, Message: "Invalid or expired license key."}, nil
	}

	if license.Status == models.LicenseStatusActive {
		if license.BoundTo(req.MachineID, req.HardwareFingerprint) {
			// Same machine asking again, idempotent success
			s.appendHistory(req.LicenseKey, req.MachineID, req.HardwareFingerprint, models.ActionReactivation, true, req.ClientIP)
			return &ActivationResult{Success: true, Message: "License already active on this machine."}, nil
		}

		s.appendHistory(req.LicenseKey, req.MachineID, req.HardwareFingerprint, models.ActionFraudAttempt, false, req.ClientIP)
		s.checkFraudSignal(req.LicenseKey)
		return &ActivationResult{Success: false, Message: "License already in use on another machine."}, nil
	}

	if license.TransferCount >= license.MaxTransfers {
		s.appendHistory(req.LicenseKey, req.MachineID, req.HardwareFingerprint, models.ActionTransferLimitExceeded, false, req.ClientIP)
		return &ActivationResult{Success: false, Message: "License transfer limit reached."}, nil
	}

	applied, err := s.ledger.Activate(req.LicenseKey, req.MachineID, req.HardwareFingerprint)
	if err != nil {
		s.appendHistory(req.LicenseKey, req.MachineID, req.HardwareFingerprint, models.ActionServerError, false, req.ClientIP)
		return nil, fmt.Errorf("activation failed: %w", err)
	}

	if applied > 0 {
		s.appendHistory(req.LicenseKey, req.MachineID, req.HardwareFingerprint, models.ActionActivationSuccess, true, req.ClientIP)
		return &ActivationResult{Success: true, Message: "License activated successfully."}, nil
	}

	// Lost the race to a concurrent activator
	s.appendHistory(req.LicenseKey, req.MachineID, req.HardwareFingerprint, models.ActionActivationFailed, false, req.ClientIP)
	return &ActivationResult{Success: false, Message: "Activation failed."}, nil
}

// Validate decides the outcome of one periodic validation check.
func (s *LicenseService) Validate(req *ValidateRequest) (*ValidationResult, error) {
	license, err := s.ledger.LookupUnexpired(req.LicenseKey)
	if err != nil {
		return nil, fmt.Errorf("validation lookup failed: %w", err)
	}

	if license == nil {
		s.appendHistory(req.LicenseKey, req.MachineID, req.HardwareFingerprint, models.ActionValidationFailed, false, req.ClientIP)
		return &ValidationResult{Valid: false, Message: "License invalid or expired."}, nil
	}

	if license.Status == models.LicenseStatusActive && license.BoundTo(req.MachineID, req.HardwareFingerprint) {
		applied, err := s.ledger.RecordValidation(req.LicenseKey, req.MachineID, req.HardwareFingerprint)
		if err != nil {
			return nil, fmt.Errorf("validation update failed: %w", err)
		}
		if applied == 0 {
			// The binding changed between the read and the update. Not a
			// decision point, the read already matched.
			logrus.WithField("license_key", req.LicenseKey).Warn("Validation stamp lost a race")
		}

		// Quota is soft: the counter was already incremented and stays
		// incremented even when over the limit.
		count := license.ValidationCount + 1
		if count > license.MaxValidations {
			logrus.WithFields(logrus.Fields{
				"license_key":      req.LicenseKey,
				"validation_count": count,
				"max_validations":  license.MaxValidations,
			}).Warn("Validation limit exceeded")
			return &ValidationResult{Valid: false, Message: "Validation limit reached."}, nil
		}

		remaining := license.MaxValidations - count
		return &ValidationResult{
			Valid:                true,
			Message:              "License valid.",
			RemainingValidations: &remaining,
		}, nil
	}

	s.appendHistory(req.LicenseKey, req.MachineID, req.HardwareFingerprint, models.ActionValidationFailed, false, req.ClientIP)
	return &ValidationResult{Valid: false, Message: "License not valid for this machine."}, nil
}

// checkFraudSignal counts FRAUD_ATTEMPT records inside the sliding window
// and raises the security alert when the threshold is crossed. The alert is
// a log signal only; the response to the caller does not change.
func (s *LicenseService) checkFraudSignal(key string) {
	history, err := s.ledger.RecentHistory(key, s.cfg.HistoryLimit)
	if err != nil {
		logrus.WithError(err).WithField("license_key", key).Error("Failed to fetch history for fraud check")
		return
	}

	window := time.Duration(s.cfg.FraudWindowHours) * time.Hour
	cutoff := time.Now().UTC().Add(-window)

	attempts := 0
	for _, record := range history {
		if record.Action == models.ActionFraudAttempt && record.Timestamp.After(cutoff) {
			attempts++
		}
	}

	if attempts > s.cfg.FraudAlertThreshold {
		logrus.WithFields(logrus.Fields{
			"security_alert": true,
			"license_key":    key,
			"fraud_attempts": attempts,
			"window_hours":   s.cfg.FraudWindowHours,
		}).Warn("Multiple fraud attempts detected for license")
	}
}

// appendHistory is best-effort: a failed append never masks the outcome of
// the primary transition.
func (s *LicenseService) appendHistory(key, machineID, fingerprint string, action models.HistoryAction, success bool, ip string) {
	if err := s.ledger.AppendHistory(key, machineID, fingerprint, action, success, ip); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"license_key": key,
			"action":      action,
		}).Error("Failed to append activation history")
	}
}
