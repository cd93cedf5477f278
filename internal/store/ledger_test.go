// internal/store/ledger_test.go
package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/gestionpro/license-server/internal/config"
	"github.com/gestionpro/license-server/internal/database"
	"github.com/gestionpro/license-server/internal/models"
)

type LedgerTestSuite struct {
	suite.Suite
	db     *gorm.DB
	ledger Ledger
}

func (suite *LedgerTestSuite) SetupTest() {
	cfg := config.DatabaseConfig{
		Driver:   "sqlite",
		Path:     ":memory:",
		LogLevel: "silent",
	}

	db, err := database.Initialize(cfg)
	require.NoError(suite.T(), err)
	require.NoError(suite.T(), database.RunMigrations(db))

	suite.db = db
	suite.ledger = NewLedger(db)
}

func (suite *LedgerTestSuite) TearDownTest() {
	database.Close(suite.db)
}

func (suite *LedgerTestSuite) TestIssueAndLookup() {
	err := suite.ledger.Issue("GP-TEST-KEY-0001", nil, 1, nil)
	require.NoError(suite.T(), err)

	license, err := suite.ledger.Lookup("GP-TEST-KEY-0001")
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), license)
	assert.Equal(suite.T(), models.LicenseStatusInactive, license.Status)
	assert.Equal(suite.T(), 0, license.ValidationCount)
	assert.Equal(suite.T(), 1000, license.MaxValidations)
	assert.Equal(suite.T(), 1, license.MaxTransfers)
	assert.Nil(suite.T(), license.MachineID)
	assert.Nil(suite.T(), license.ExpirationDate)
}

func (suite *LedgerTestSuite) TestLookupAbsent() {
	license, err := suite.ledger.Lookup("GP-DOES-NOT-EXIST")
	require.NoError(suite.T(), err)
	assert.Nil(suite.T(), license)
}

func (suite *LedgerTestSuite) TestIssueDuplicateKey() {
	require.NoError(suite.T(), suite.ledger.Issue("GP-TEST-KEY-0002", nil, 1, nil))

	err := suite.ledger.Issue("GP-TEST-KEY-0002", nil, 1, nil)
	assert.ErrorIs(suite.T(), err, ErrDuplicateKey)
}

func (suite *LedgerTestSuite) TestLookupUnexpiredHidesExpired() {
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	require.NoError(suite.T(), suite.ledger.Issue("GP-EXPIRED", &past, 1, nil))
	require.NoError(suite.T(), suite.ledger.Issue("GP-CURRENT", &future, 1, nil))
	require.NoError(suite.T(), suite.ledger.Issue("GP-PERPETUAL", nil, 1, nil))

	license, err := suite.ledger.LookupUnexpired("GP-EXPIRED")
	require.NoError(suite.T(), err)
	assert.Nil(suite.T(), license, "expired key should read like an absent one")

	license, err = suite.ledger.LookupUnexpired("GP-CURRENT")
	require.NoError(suite.T(), err)
	assert.NotNil(suite.T(), license)

	license, err = suite.ledger.LookupUnexpired("GP-PERPETUAL")
	require.NoError(suite.T(), err)
	assert.NotNil(suite.T(), license)
}

func (suite *LedgerTestSuite) TestActivateOnlyFromInactive() {
	require.NoError(suite.T(), suite.ledger.Issue("GP-ACT", nil, 1, nil))

	applied, err := suite.ledger.Activate("GP-ACT", "machine-a", "fp-a")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), applied)

	license, err := suite.ledger.Lookup("GP-ACT")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.LicenseStatusActive, license.Status)
	require.NotNil(suite.T(), license.MachineID)
	assert.Equal(suite.T(), "machine-a", *license.MachineID)
	require.NotNil(suite.T(), license.HardwareFingerprint)
	assert.Equal(suite.T(), "fp-a", *license.HardwareFingerprint)
	assert.NotNil(suite.T(), license.ActivationDate)

	// Already active, the conditional update must not match
	applied, err = suite.ledger.Activate("GP-ACT", "machine-b", "fp-b")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(0), applied)

	license, err = suite.ledger.Lookup("GP-ACT")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "machine-a", *license.MachineID)
}

func (suite *LedgerTestSuite) TestConcurrentActivationSingleWinner() {
	require.NoError(suite.T(), suite.ledger.Issue("GP-RACE", nil, 1, nil))

	var wg sync.WaitGroup
	results := make([]int64, 2)
	machines := []string{"machine-a", "machine-b"}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			applied, err := suite.ledger.Activate("GP-RACE", machines[i], "fp-"+machines[i])
			assert.NoError(suite.T(), err)
			results[i] = applied
		}(i)
	}
	wg.Wait()

	assert.Equal(suite.T(), int64(1), results[0]+results[1], "exactly one activation must win")

	winner := machines[0]
	if results[1] == 1 {
		winner = machines[1]
	}

	license, err := suite.ledger.Lookup("GP-RACE")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), winner, *license.MachineID)
}

func (suite *LedgerTestSuite) TestRecordValidationPredicates() {
	require.NoError(suite.T(), suite.ledger.Issue("GP-VAL", nil, 1, nil))

	// Not active yet
	applied, err := suite.ledger.RecordValidation("GP-VAL", "machine-a", "fp-a")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(0), applied)

	_, err = suite.ledger.Activate("GP-VAL", "machine-a", "fp-a")
	require.NoError(suite.T(), err)

	// Wrong machine
	applied, err = suite.ledger.RecordValidation("GP-VAL", "machine-b", "fp-a")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(0), applied)

	// Wrong fingerprint
	applied, err = suite.ledger.RecordValidation("GP-VAL", "machine-a", "fp-b")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(0), applied)

	// Full match
	applied, err = suite.ledger.RecordValidation("GP-VAL", "machine-a", "fp-a")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), applied)

	license, err := suite.ledger.Lookup("GP-VAL")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, license.ValidationCount)
	assert.NotNil(suite.T(), license.LastValidation)
}

func (suite *LedgerTestSuite) TestRevokeIsTerminal() {
	require.NoError(suite.T(), suite.ledger.Issue("GP-REV", nil, 1, nil))

	applied, err := suite.ledger.Revoke("GP-REV")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), applied)

	license, err := suite.ledger.Lookup("GP-REV")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.LicenseStatusRevoked, license.Status)

	// No further transitions
	applied, err = suite.ledger.Revoke("GP-REV")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(0), applied)

	applied, err = suite.ledger.Activate("GP-REV", "machine-a", "fp-a")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(0), applied)
}

func (suite *LedgerTestSuite) TestRecentHistoryOrderAndLimit() {
	actions := []models.HistoryAction{
		models.ActionActivationSuccess,
		models.ActionFraudAttempt,
		models.ActionValidationFailed,
	}
	for _, action := range actions {
		require.NoError(suite.T(), suite.ledger.AppendHistory("GP-HIST", "machine-a", "fp-a", action, false, "127.0.0.1"))
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(suite.T(), suite.ledger.AppendHistory("GP-OTHER", "machine-b", "fp-b", models.ActionActivationSuccess, true, "127.0.0.1"))

	records, err := suite.ledger.RecentHistory("GP-HIST", 50)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), records, 3)

	// Most recent first
	assert.Equal(suite.T(), models.ActionValidationFailed, records[0].Action)
	assert.Equal(suite.T(), models.ActionActivationSuccess, records[2].Action)
	for i := 1; i < len(records); i++ {
		assert.False(suite.T(), records[i].Timestamp.After(records[i-1].Timestamp))
	}

	records, err = suite.ledger.RecentHistory("GP-HIST", 2)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), records, 2)
}

func (suite *LedgerTestSuite) TestSearchBySubstring() {
	require.NoError(suite.T(), suite.ledger.Issue("GP-ABCDEF-1234567890ABCDEF-AAAA", nil, 1, nil))

	license, err := suite.ledger.Search("ABCDEF")
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), license)
	assert.Equal(suite.T(), "GP-ABCDEF-1234567890ABCDEF-AAAA", license.Key)

	license, err = suite.ledger.Search("ZZZZZZ")
	require.NoError(suite.T(), err)
	assert.Nil(suite.T(), license)
}

func (suite *LedgerTestSuite) TestPing() {
	assert.NoError(suite.T(), suite.ledger.Ping())
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}
