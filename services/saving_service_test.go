package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolcoop/models"
)

func TestSavingService_ApproveDepositAndWithdrawal(t *testing.T) {
	db := newTestDB(t)
	school := createSchool(t, db, "North Primary")
	member := createMember(t, db, school.ID, day(2023, 1, 1), "100", "0")
	svc := NewSavingService(db)
	ctx := context.Background()

	deposit, err := svc.Record(ctx, member.ID, RecordSavingDTO{
		Amount:  dec("150"),
		Type:    models.SavingTypeDeposit,
		Channel: models.DepositChannelCash,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SavingStatusPending, deposit.Status)

	approved, err := svc.Approve(ctx, deposit.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.SavingStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, uint(1), *approved.ApprovedBy)

	withdrawal, err := svc.Record(ctx, member.ID, RecordSavingDTO{
		Amount:  dec("40.50"),
		Type:    models.SavingTypeWithdrawal,
		Channel: models.DepositChannelWallet,
	})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, withdrawal.ID, 1)
	require.NoError(t, err)

	var reloaded models.Member
	require.NoError(t, db.First(&reloaded, member.ID).Error)
	assert.True(t, reloaded.SavingsBalance.Equal(dec("109.5")), reloaded.SavingsBalance.String())

	// повторное одобрение запрещено
	_, err = svc.Approve(ctx, deposit.ID, 1)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSavingService_InsufficientSavings(t *testing.T) {
	db := newTestDB(t)
	school := createSchool(t, db, "North Primary")
	member := createMember(t, db, school.ID, day(2023, 1, 1), "100", "20")
	svc := NewSavingService(db)
	ctx := context.Background()

	withdrawal, err := svc.Record(ctx, member.ID, RecordSavingDTO{
		Amount:  dec("50"),
		Type:    models.SavingTypeWithdrawal,
		Channel: models.DepositChannelCash,
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, withdrawal.ID, 1)
	assert.ErrorIs(t, err, ErrInsufficientSavings)

	var saving models.Saving
	require.NoError(t, db.First(&saving, withdrawal.ID).Error)
	assert.Equal(t, models.SavingStatusPending, saving.Status)
}

func TestSavingService_Reject(t *testing.T) {
	db := newTestDB(t)
	school := createSchool(t, db, "North Primary")
	member := createMember(t, db, school.ID, day(2023, 1, 1), "100", "0")
	svc := NewSavingService(db)
	ctx := context.Background()

	saving, err := svc.Record(ctx, member.ID, RecordSavingDTO{
		Amount:     dec("10"),
		Type:       models.SavingTypeDeposit,
		Channel:    models.DepositChannelCash,
		RecordedBy: 3,
	})
	require.NoError(t, err)
	require.NotNil(t, saving.RecordedBy)
	assert.Equal(t, uint(3), *saving.RecordedBy)

	rejected, err := svc.Reject(ctx, saving.ID, "duplicate slip")
	require.NoError(t, err)
	assert.Equal(t, models.SavingStatusRejected, rejected.Status)
	assert.Equal(t, "duplicate slip", rejected.Notes)

	_, err = svc.Approve(ctx, saving.ID, 1)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	list, err := svc.ListByMember(ctx, member.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSavingService_RecordValidation(t *testing.T) {
	db := newTestDB(t)
	school := createSchool(t, db, "North Primary")
	member := createMember(t, db, school.ID, day(2023, 1, 1), "100", "0")
	svc := NewSavingService(db)

	_, err := svc.Record(context.Background(), member.ID, RecordSavingDTO{
		Amount:  dec("0"),
		Type:    models.SavingTypeDeposit,
		Channel: models.DepositChannelCash,
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Record(context.Background(), 999, RecordSavingDTO{
		Amount:  dec("10"),
		Type:    models.SavingTypeDeposit,
		Channel: models.DepositChannelCash,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
