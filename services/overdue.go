package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"schoolcoop/models"
	"schoolcoop/utils"
)

// OverdueShareDetail - задолженность по одному обязательству на паи
type OverdueShareDetail struct {
	ShareTypeID               uint            `json:"shareTypeId"`
	ShareTypeName             string          `json:"shareTypeName"`
	MonthlyCommittedAmount    decimal.Decimal `json:"monthlyCommittedAmount"`
	TotalExpectedContribution decimal.Decimal `json:"totalExpectedContribution"`
	TotalAllocatedValue       decimal.Decimal `json:"totalAllocatedValue"`
	OverdueAmount             decimal.Decimal `json:"overdueAmount"`
}

// OverdueMemberInfo - задолженность участника на дату расчета
type OverdueMemberInfo struct {
	MemberID                   uint                          `json:"memberId"`
	MemberName                 string                        `json:"memberName"`
	SchoolID                   uint                          `json:"schoolId"`
	SchoolName                 string                        `json:"schoolName,omitempty"`
	JoinDate                   time.Time                     `json:"joinDate"`
	ContributionPeriods        int                           `json:"contributionPeriods"`
	ExpectedMonthlySaving      decimal.Decimal               `json:"expectedMonthlySaving"`
	SavingsBalance             decimal.Decimal               `json:"savingsBalance"`
	OverdueSavingsAmount       decimal.Decimal               `json:"overdueSavingsAmount"`
	OverdueSharesDetails       []OverdueShareDetail          `json:"overdueSharesDetails"`
	TotalOverdueServiceCharges decimal.Decimal               `json:"totalOverdueServiceCharges"`
	PendingServiceCharges      []models.AppliedServiceCharge `json:"pendingServiceCharges"`
	HasAnyOverdue              bool                          `json:"hasAnyOverdue"`
}

// MemberSnapshot - данные одного участника, нужные для расчета задолженности
type MemberSnapshot struct {
	Member         models.Member // с заполненными ShareCommitments
	ApprovedShares []models.Share
	PendingCharges []models.AppliedServiceCharge
}

// ContributionPeriods возвращает число месяцев взносов: полные месяцы с даты
// вступления плюс текущий неполный месяц. Для даты вступления в будущем - 0.
func ContributionPeriods(joinDate, now time.Time) int {
	from := calendarDate(joinDate)
	to := calendarDate(now)
	if from.After(to) {
		return 0
	}
	return fullMonthsBetween(from, to) + 1
}

// fullMonthsBetween считает полные календарные месяцы между датами (from <= to).
// Последний день месяца закрывает месяц, начатый 29-31 числа.
func fullMonthsBetween(from, to time.Time) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() && !isLastDayOfMonth(to) {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

func isLastDayOfMonth(t time.Time) bool {
	return t.AddDate(0, 0, 1).Month() != t.Month()
}

// calendarDate берет год, месяц и день в собственном поясе значения.
// Перевод в пояс сервера сдвинул бы полночь восточнее UTC на предыдущий день.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CalculateOverdue рассчитывает задолженность участника. Функция чистая: некорректные
// записи (неизвестный тип пая, пустое обязательство) не прерывают расчет, а дают ноль.
func CalculateOverdue(now time.Time, snap MemberSnapshot, catalog map[uint]models.ShareType) OverdueMemberInfo {
	member := snap.Member
	periods := decimal.NewFromInt(int64(ContributionPeriods(member.JoinDate, now)))

	info := OverdueMemberInfo{
		MemberID:                   member.ID,
		MemberName:                 member.FullName(),
		SchoolID:                   member.SchoolID,
		JoinDate:                   member.JoinDate,
		ContributionPeriods:        int(periods.IntPart()),
		SavingsBalance:             member.SavingsBalance,
		OverdueSharesDetails:       []OverdueShareDetail{},
		TotalOverdueServiceCharges: decimal.Zero,
		PendingServiceCharges:      []models.AppliedServiceCharge{},
	}
	if member.School != nil {
		info.SchoolName = member.School.Name
	}

	// Сбережения
	if member.ExpectedMonthlySaving.Valid {
		info.ExpectedMonthlySaving = member.ExpectedMonthlySaving.Decimal
	}
	expectedSavings := info.ExpectedMonthlySaving.Mul(periods)
	info.OverdueSavingsAmount = nonNegative(expectedSavings.Sub(member.SavingsBalance))

	// Паи: сумма одобренных распределений по типам
	allocated := make(map[uint]decimal.Decimal)
	for _, share := range snap.ApprovedShares {
		if share.Status != models.ShareStatusApproved || share.MemberID != member.ID {
			continue
		}
		allocated[share.ShareTypeID] = allocated[share.ShareTypeID].Add(share.AllocatedValue())
	}

	for _, commitment := range member.ShareCommitments {
		if !commitment.MonthlyCommittedAmount.Valid || commitment.MonthlyCommittedAmount.Decimal.IsZero() {
			continue
		}
		shareType, ok := catalog[commitment.ShareTypeID]
		if !ok {
			utils.LogDebug("overdue: member %d commitment %d references unknown share type %d, skipped",
				member.ID, commitment.ID, commitment.ShareTypeID)
			continue
		}

		monthly := commitment.MonthlyCommittedAmount.Decimal
		expected := monthly.Mul(periods)
		paid := allocated[commitment.ShareTypeID]
		overdue := nonNegative(expected.Sub(paid))
		if overdue.IsZero() {
			continue
		}

		info.OverdueSharesDetails = append(info.OverdueSharesDetails, OverdueShareDetail{
			ShareTypeID:               shareType.ID,
			ShareTypeName:             shareType.Name,
			MonthlyCommittedAmount:    monthly,
			TotalExpectedContribution: expected,
			TotalAllocatedValue:       paid,
			OverdueAmount:             overdue,
		})
	}

	// Сборы
	for _, charge := range snap.PendingCharges {
		if charge.Status != models.ChargeStatusPending || charge.MemberID != member.ID {
			continue
		}
		info.TotalOverdueServiceCharges = info.TotalOverdueServiceCharges.Add(charge.AmountCharged)
		info.PendingServiceCharges = append(info.PendingServiceCharges, charge)
	}

	info.HasAnyOverdue = info.OverdueSavingsAmount.IsPositive() ||
		len(info.OverdueSharesDetails) > 0 ||
		info.TotalOverdueServiceCharges.IsPositive()

	return info
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// NamedRef - пара id/название для выпадающих списков отчета
type NamedRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// OverdueReport - отчет о задолженностях
type OverdueReport struct {
	OverdueMembers []OverdueMemberInfo `json:"overdueMembers"`
	Schools        []NamedRef          `json:"schools"`
	ShareTypes     []NamedRef          `json:"shareTypes"`
}

// OverdueFilter ограничивает отчет одной школой
type OverdueFilter struct {
	SchoolID uint
}

// OverdueService строит отчет о задолженностях по данным базы
type OverdueService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewOverdueService создает новый экземпляр OverdueService
func NewOverdueService(db *gorm.DB) *OverdueService {
	return &OverdueService{db: db, now: time.Now}
}

// Report пересчитывает задолженности всех активных участников с нуля
// и возвращает только тех, у кого есть задолженность.
func (s *OverdueService) Report(ctx context.Context, filter OverdueFilter) (*OverdueReport, error) {
	startTime := time.Now()
	db := s.db.WithContext(ctx)

	var members []models.Member
	query := db.Where("status = ?", models.MemberStatusActive).
		Preload("School").
		Preload("ShareCommitments").
		Order("last_name ASC, first_name ASC, id ASC")
	if filter.SchoolID != 0 {
		query = query.Where("school_id = ?", filter.SchoolID)
	}
	if err := query.Find(&members).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении участников: %w", err)
	}

	catalog, shareTypes, err := loadShareCatalog(db)
	if err != nil {
		return nil, err
	}

	var schools []models.School
	if err := db.Order("name ASC").Find(&schools).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении школ: %w", err)
	}

	snapshots, err := loadSnapshots(db, members)
	if err != nil {
		return nil, err
	}

	now := s.now()
	report := &OverdueReport{
		OverdueMembers: []OverdueMemberInfo{},
		Schools:        make([]NamedRef, 0, len(schools)),
		ShareTypes:     shareTypes,
	}
	for _, school := range schools {
		report.Schools = append(report.Schools, NamedRef{ID: school.ID, Name: school.Name})
	}
	for _, snap := range snapshots {
		info := CalculateOverdue(now, snap, catalog)
		if info.HasAnyOverdue {
			report.OverdueMembers = append(report.OverdueMembers, info)
		}
	}

	utils.GetMetrics().RecordOperation(utils.OpOverdueReport, nil)
	utils.LogOperation("overdue report", startTime, nil)
	return report, nil
}

// MemberOverdue рассчитывает задолженность одного участника, даже если она нулевая
func (s *OverdueService) MemberOverdue(ctx context.Context, memberID uint) (*OverdueMemberInfo, error) {
	db := s.db.WithContext(ctx)

	var member models.Member
	if err := db.Preload("School").Preload("ShareCommitments").First(&member, memberID).Error; err != nil {
		return nil, wrapLookup(err, "участник", memberID)
	}

	catalog, _, err := loadShareCatalog(db)
	if err != nil {
		return nil, err
	}
	snapshots, err := loadSnapshots(db, []models.Member{member})
	if err != nil {
		return nil, err
	}

	info := CalculateOverdue(s.now(), snapshots[0], catalog)
	return &info, nil
}

func loadShareCatalog(db *gorm.DB) (map[uint]models.ShareType, []NamedRef, error) {
	var shareTypes []models.ShareType
	if err := db.Order("name ASC").Find(&shareTypes).Error; err != nil {
		return nil, nil, fmt.Errorf("ошибка при получении типов паев: %w", err)
	}
	catalog := make(map[uint]models.ShareType, len(shareTypes))
	refs := make([]NamedRef, 0, len(shareTypes))
	for _, st := range shareTypes {
		catalog[st.ID] = st
		refs = append(refs, NamedRef{ID: st.ID, Name: st.Name})
	}
	return catalog, refs, nil
}

// loadSnapshots загружает одобренные паи и неоплаченные сборы участников двумя запросами
func loadSnapshots(db *gorm.DB, members []models.Member) ([]MemberSnapshot, error) {
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}

	var shares []models.Share
	if err := db.Where("member_id IN ? AND status = ?", ids, models.ShareStatusApproved).
		Find(&shares).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении паев: %w", err)
	}

	var charges []models.AppliedServiceCharge
	if err := db.Where("member_id IN ? AND status = ?", ids, models.ChargeStatusPending).
		Order("date_applied ASC, id ASC").
		Find(&charges).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении сборов: %w", err)
	}

	sharesByMember := make(map[uint][]models.Share)
	for _, sh := range shares {
		sharesByMember[sh.MemberID] = append(sharesByMember[sh.MemberID], sh)
	}
	chargesByMember := make(map[uint][]models.AppliedServiceCharge)
	for _, c := range charges {
		chargesByMember[c.MemberID] = append(chargesByMember[c.MemberID], c)
	}

	snapshots := make([]MemberSnapshot, 0, len(members))
	for _, m := range members {
		sort.SliceStable(m.ShareCommitments, func(i, j int) bool {
			return m.ShareCommitments[i].ID < m.ShareCommitments[j].ID
		})
		snapshots = append(snapshots, MemberSnapshot{
			Member:         m,
			ApprovedShares: sharesByMember[m.ID],
			PendingCharges: chargesByMember[m.ID],
		})
	}
	return snapshots, nil
}
