package services

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"schoolcoop/database"
	"schoolcoop/models"
)

// newTestDB открывает отдельную sqlite базу в памяти на каждый тест
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// одна база в памяти на одно соединение
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createSchool(t *testing.T, db *gorm.DB, name string) models.School {
	t.Helper()
	school := models.School{Name: name}
	require.NoError(t, db.Create(&school).Error)
	return school
}

func createMember(t *testing.T, db *gorm.DB, schoolID uint, joined time.Time, monthly, balance string) models.Member {
	t.Helper()
	member := models.Member{
		SchoolID:       schoolID,
		FirstName:      "Amina",
		LastName:       "Otieno",
		Email:          "amina@example.com",
		JoinDate:       joined,
		SavingsBalance: dec(balance),
	}
	if monthly != "" {
		member.ExpectedMonthlySaving = decimal.NewNullDecimal(dec(monthly))
	}
	require.NoError(t, db.Create(&member).Error)
	return member
}

func createShareType(t *testing.T, db *gorm.DB, name, value string) models.ShareType {
	t.Helper()
	shareType := models.ShareType{Name: name, ValuePerShare: dec(value)}
	require.NoError(t, db.Create(&shareType).Error)
	return shareType
}

func createCommitment(t *testing.T, db *gorm.DB, memberID, shareTypeID uint, monthly string) models.ShareCommitment {
	t.Helper()
	commitment := models.ShareCommitment{
		MemberID:               memberID,
		ShareTypeID:            shareTypeID,
		MonthlyCommittedAmount: decimal.NewNullDecimal(dec(monthly)),
	}
	require.NoError(t, db.Create(&commitment).Error)
	return commitment
}

func createApprovedShare(t *testing.T, db *gorm.DB, memberID uint, shareType models.ShareType, count int64) models.Share {
	t.Helper()
	share := models.Share{
		MemberID:       memberID,
		ShareTypeID:    shareType.ID,
		NumberOfShares: count,
		ValuePerShare:  shareType.ValuePerShare,
		Status:         models.ShareStatusApproved,
		AllocationDate: day(2023, 2, 1),
	}
	require.NoError(t, db.Create(&share).Error)
	return share
}

func createCharge(t *testing.T, db *gorm.DB, memberID uint, applied time.Time, amount string) models.AppliedServiceCharge {
	t.Helper()
	charge := models.AppliedServiceCharge{
		MemberID:      memberID,
		Description:   "Monthly fee",
		AmountCharged: dec(amount),
		Status:        models.ChargeStatusPending,
		DateApplied:   applied,
	}
	require.NoError(t, db.Create(&charge).Error)
	return charge
}

// stubNotifier запоминает отправленные письма
type stubNotifier struct {
	mu       sync.Mutex
	receipts []*CatchUpResult
	paid     []uint
	closed   []ClosureResult
	err      error
}

func (n *stubNotifier) SendCatchUpReceipt(to string, result *CatchUpResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts = append(n.receipts, result)
	return n.err
}

func (n *stubNotifier) SendLoanPaidNotification(to string, loanID uint) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paid = append(n.paid, loanID)
	return n.err
}

func (n *stubNotifier) SendAccountClosedNotification(to string, closure ClosureResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = append(n.closed, closure)
	return n.err
}
