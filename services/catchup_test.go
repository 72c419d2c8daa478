package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"schoolcoop/models"
)

func newCatchUpService(db *gorm.DB, notifier Notifier) *CatchUpService {
	svc := NewCatchUpService(NewUnitOfWork(db), notifier)
	svc.newBatchRef = func() string { return "batch-1" }
	return svc
}

func TestServiceChargeLeg_FIFO(t *testing.T) {
	// GIVEN: сборы 1 января (30), 1 февраля (20), 1 марта (50)
	db := newTestDB(t)
	school := createSchool(t, db, "North Primary")
	member := createMember(t, db, school.ID, day(2023, 1, 1), "", "0")
	// создаем не по порядку, чтобы порядок задавала дата
	mar := createCharge(t, db, member.ID, day(2023, 3, 1), "50")
	jan := createCharge(t, db, member.ID, day(2023, 1, 1), "30")
	feb := createCharge(t, db, member.ID, day(2023, 2, 1), "20")

	// WHEN: платеж 55
	req := CatchUpRequest{
		MemberID:            member.ID,
		ServiceChargeAmount: dec("55"),
		PaymentDate:         day(2023, 4, 10),
		Channel:             models.DepositChannelCash,
	}
	var paid []models.AppliedServiceCharge
	err := NewUnitOfWork(db).Do(context.Background(), func(tx *gorm.DB) error {
		var err error
		paid, err = serviceChargeLeg(tx, req, "batch-1")
		return err
	})
	require.NoError(t, err)

	// THEN: январь и февраль оплачены, март остался без частичной оплаты
	require.Len(t, paid, 2)
	assert.Equal(t, jan.ID, paid[0].ID)
	assert.Equal(t, feb.ID, paid[1].ID)

	var reloaded models.AppliedServiceCharge
	require.NoError(t, db.First(&reloaded, jan.ID).Error)
	assert.Equal(t, models.ChargeStatusPaid, reloaded.Status)
	assert.Contains(t, reloaded.Notes, "2023-04-10")
	assert.Equal(t, "batch-1", reloaded.BatchRef)
	require.NotNil(t, reloaded.PaidAt)

	require.NoError(t, db.First(&reloaded, mar.ID).Error)
	assert.Equal(t, models.ChargeStatusPending, reloaded.Status)
	assert.True(t, reloaded.AmountCharged.Equal(dec("50")))
	assert.Nil(t, reloaded.PaidAt)
}

func TestServiceChargeLeg_StopsAtFirstUncoveredCharge(t *testing.T) {
	db := newTestDB(t)
	school := createSchool(t, db, "North Primary")
	member := createMember(t, db, school.ID, day(2023, 1, 1), "", "0")
	createCharge(t, db, member.ID, day(2023, 1, 1), "40")
	createCharge(t, db, member.ID, day(2023, 2, 1), "5")

	req := CatchUpRequest{MemberID: member.ID, ServiceChargeAmount: dec("30"), PaymentDate: day(2023, 4, 10)}
	var paid []models.AppliedServiceCharge
	err := NewUnitOfWork(db).Do(context.Background(), func(tx *gorm.DB) error {
		var err error
		paid, err = serviceChargeLeg(tx, req, "batch-1")
		return err
	})
	require.NoError(t, err)

	// более поздний сбор на 5 не оплачивается в обход более раннего
	assert.Empty(t, paid)
	var pending int64
	require.NoError(t, db.Model(&models.AppliedServiceCharge{}).
		Where("status = ?", models.ChargeStatusPending).Count(&pending).Error)
	assert.Equal(t, int64(2), pending)
}

func TestSharesLeg_RoundsDownToWholeShares(t *testing.T) {
	db := newTestDB(t)
	school := createSchool(t, db, "North Primary")
	member := createMember(t, db, school.ID, day(2023, 1, 1), "", "0")
	building := createShareType(t, db, "Building fund", "15")
	ordinary := createShareType(t, db, "Ordinary", "10")
	free := createShareType(t, db, "Honorary", "0")

	req := CatchUpRequest{
		MemberID:   member.ID,
		MemberName: "Amina Otieno",
		ShareAmounts: map[uint]decimal.Decimal{
			building.ID: dec("47"),
			ordinary.ID: dec("9.99"), // меньше одного пая
			free.ID:     dec("100"),  // нет положительной стоимости
			999:         dec("100"),  // неизвестный тип
		},
		PaymentDate:    day(2023, 4, 10),
		Channel:        models.DepositChannelBank,
		SourceName:     "Equity Bank",
		TransactionRef: "TX-42",
	}
	var shares []models.Share
	err := NewUnitOfWork(db).Do(context.Background(), func(tx *gorm.DB) error {
		var err error
		shares, err = sharesLeg(tx, req, "batch-1")
		return err
	})
	require.NoError(t, err)

	require.Len(t, shares, 1)
	var share models.Share
	require.NoError(t, db.First(&share, shares[0].ID).Error)
	assert.Equal(t, building.ID, share.ShareTypeID)
	assert.Equal(t, int64(3), share.NumberOfShares)
	require.True(t, share.TotalValueForAllocation.Valid)
	assert.True(t, share.TotalValueForAllocation.Decimal.Equal(dec("45")))
	require.True(t, share.ContributionAmount.Valid)
	assert.True(t, share.ContributionAmount.Decimal.Equal(dec("47")))
	assert.Equal(t, models.ShareStatusPending, share.Status)
	assert.Equal(t, CatchUpNote, share.Notes)
	assert.Equal(t, models.DepositChannelBank, share.Deposit.Channel)
	assert.Equal(t, "TX-42", share.Deposit.TransactionRef)
}

func TestSavingsLeg(t *testing.T) {
	db := newTestDB(t)
	school := createSchool(t, db, "North Primary")
	member := createMember(t, db, school.ID, day(2023, 1, 1), "100", "0")

	req := CatchUpRequest{
		MemberID:      member.ID,
		MemberName:    member.FullName(),
		SavingsAmount: dec("150"),
		PaymentDate:   day(2023, 4, 10),
		Channel:       models.DepositChannelWallet,
		EvidenceRef:   "receipts/42.jpg",
	}
	var saving *models.Saving
	err := NewUnitOfWork(db).Do(context.Background(), func(tx *gorm.DB) error {
		var err error
		saving, err = savingsLeg(tx, req, "batch-1")
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, saving)

	assert.Equal(t, models.SavingTypeDeposit, saving.Type)
	assert.Equal(t, models.SavingStatusPending, saving.Status)
	assert.Equal(t, CatchUpNote, saving.Notes)
	assert.Equal(t, "receipts/42.jpg", saving.Deposit.EvidenceRef)

	// баланс не меняется до одобрения
	var reloaded models.Member
	require.NoError(t, db.First(&reloaded, member.ID).Error)
	assert.True(t, reloaded.SavingsBalance.IsZero())
}

func TestCatchUpService_Record(t *testing.T) {
	db := newTestDB(t)
	school := createSchool(t, db, "North Primary")
	member := createMember(t, db, school.ID, day(2023, 1, 1), "100", "0")
	ordinary := createShareType(t, db, "Ordinary", "10")
	createCharge(t, db, member.ID, day(2023, 1, 1), "30")
	notifier := &stubNotifier{}

	result, err := newCatchUpService(db, notifier).Record(context.Background(), CatchUpRequest{
		MemberID:            member.ID,
		SavingsAmount:       dec("200"),
		ShareAmounts:        map[uint]decimal.Decimal{ordinary.ID: dec("40")},
		ServiceChargeAmount: dec("30"),
		PaymentDate:         day(2023, 4, 10),
		Channel:             models.DepositChannelCash,
		RecordedBy:          4,
	})
	require.NoError(t, err)

	assert.Equal(t, "batch-1", result.BatchRef)
	require.NotNil(t, result.RecordedBy)
	assert.Equal(t, uint(4), *result.RecordedBy)
	assert.Equal(t, "Amina Otieno", result.MemberName)
	require.NotNil(t, result.Saving)
	assert.Equal(t, "batch-1", result.Saving.BatchRef)
	require.Len(t, result.Shares, 1)
	assert.Equal(t, int64(4), result.Shares[0].NumberOfShares)
	require.NotNil(t, result.Shares[0].RecordedBy)
	assert.Equal(t, uint(4), *result.Shares[0].RecordedBy)
	require.Len(t, result.PaidCharges, 1)
	require.Len(t, notifier.receipts, 1)

	var stored models.Saving
	require.NoError(t, db.First(&stored, result.Saving.ID).Error)
	require.NotNil(t, stored.RecordedBy)
	assert.Equal(t, uint(4), *stored.RecordedBy)
	assert.Same(t, result, notifier.receipts[0])
}

func TestCatchUpService_ZeroLegsSkipped(t *testing.T) {
	db := newTestDB(t)
	school := createSchool(t, db, "North Primary")
	member := createMember(t, db, school.ID, day(2023, 1, 1), "100", "0")
	createCharge(t, db, member.ID, day(2023, 1, 1), "30")

	result, err := newCatchUpService(db, nil).Record(context.Background(), CatchUpRequest{
		MemberID:      member.ID,
		SavingsAmount: decimal.Zero,
		PaymentDate:   day(2023, 4, 10),
		Channel:       models.DepositChannelCash,
	})
	require.NoError(t, err)

	assert.Nil(t, result.Saving)
	assert.Empty(t, result.Shares)
	assert.Empty(t, result.PaidCharges)

	var savings int64
	require.NoError(t, db.Model(&models.Saving{}).Count(&savings).Error)
	assert.Zero(t, savings)
}

func TestCatchUpService_RollsBackOnWriteFailure(t *testing.T) {
	// GIVEN: запись паев завершается ошибкой
	db := newTestDB(t)
	school := createSchool(t, db, "North Primary")
	member := createMember(t, db, school.ID, day(2023, 1, 1), "100", "0")
	ordinary := createShareType(t, db, "Ordinary", "10")
	charge := createCharge(t, db, member.ID, day(2023, 1, 1), "30")

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_shares", func(tx *gorm.DB) {
		if tx.Statement.Table == "shares" {
			tx.AddError(errors.New("constraint violation"))
		}
	}))

	// WHEN
	_, err := newCatchUpService(db, nil).Record(context.Background(), CatchUpRequest{
		MemberID:            member.ID,
		SavingsAmount:       dec("100"),
		ShareAmounts:        map[uint]decimal.Decimal{ordinary.ID: dec("20")},
		ServiceChargeAmount: dec("30"),
		PaymentDate:         day(2023, 4, 10),
		Channel:             models.DepositChannelCash,
	})

	// THEN: ни одной записи от платежа не осталось
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCatchUpFailed)

	var savings int64
	require.NoError(t, db.Model(&models.Saving{}).Count(&savings).Error)
	assert.Zero(t, savings)

	var reloaded models.AppliedServiceCharge
	require.NoError(t, db.First(&reloaded, charge.ID).Error)
	assert.Equal(t, models.ChargeStatusPending, reloaded.Status)
}

func TestCatchUpService_UnknownMember(t *testing.T) {
	db := newTestDB(t)

	_, err := newCatchUpService(db, nil).Record(context.Background(), CatchUpRequest{
		MemberID:    42,
		PaymentDate: day(2023, 4, 10),
		Channel:     models.DepositChannelCash,
	})

	assert.ErrorIs(t, err, ErrCatchUpFailed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatchUpService_InvalidChannel(t *testing.T) {
	db := newTestDB(t)

	_, err := newCatchUpService(db, nil).Record(context.Background(), CatchUpRequest{
		MemberID:    1,
		PaymentDate: day(2023, 4, 10),
		Channel:     "Cheque",
	})

	assert.ErrorIs(t, err, ErrValidation)
}

func TestCatchUpService_NotificationFailureIgnored(t *testing.T) {
	db := newTestDB(t)
	school := createSchool(t, db, "North Primary")
	member := createMember(t, db, school.ID, day(2023, 1, 1), "100", "0")
	notifier := &stubNotifier{err: errors.New("smtp down")}

	_, err := newCatchUpService(db, notifier).Record(context.Background(), CatchUpRequest{
		MemberID:      member.ID,
		SavingsAmount: dec("10"),
		PaymentDate:   day(2023, 4, 10),
		Channel:       models.DepositChannelCash,
	})

	require.NoError(t, err)
	assert.Len(t, notifier.receipts, 1)
}

func TestCatchUpService_SequentialPaymentsSeeOnlyPendingCharges(t *testing.T) {
	db := newTestDB(t)
	school := createSchool(t, db, "North Primary")
	member := createMember(t, db, school.ID, day(2023, 1, 1), "", "0")
	first := createCharge(t, db, member.ID, day(2023, 1, 1), "30")
	second := createCharge(t, db, member.ID, day(2023, 2, 1), "20")
	svc := newCatchUpService(db, nil)

	req := CatchUpRequest{
		MemberID:            member.ID,
		ServiceChargeAmount: dec("30"),
		PaymentDate:         day(2023, 4, 10),
		Channel:             models.DepositChannelCash,
	}
	a, err := svc.Record(context.Background(), req)
	require.NoError(t, err)
	b, err := svc.Record(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, a.PaidCharges, 1)
	assert.Equal(t, first.ID, a.PaidCharges[0].ID)
	require.Len(t, b.PaidCharges, 1)
	assert.Equal(t, second.ID, b.PaidCharges[0].ID)
}

func TestCatchUpService_ConcurrentPaymentsRace(t *testing.T) {
	// Два параллельных платежа одного участника могут прочитать один и тот же
	// набор неоплаченных сборов и оба отметить первый сбор оплаченным.
	// Блокировки нет, поэтому гарантию здесь не проверяем.
	t.Skip("known race: concurrent catch-up payments for one member are not serialized")
}
