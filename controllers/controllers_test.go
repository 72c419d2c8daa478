package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"schoolcoop/config"
	"schoolcoop/database"
	"schoolcoop/models"
	"schoolcoop/services"
)

type testServer struct {
	handler http.Handler
	db      *gorm.DB
	token   string
	adminID uint
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{}
	cfg.JWT.SecretKey = "test-secret"
	cfg.JWT.ExpiresIn = 1
	cfg.RateLimit.PerMinute = 1000

	srv := &testServer{
		handler: NewHandler(database.Wrap(db), cfg, services.NewEmailService(cfg)),
		db:      db,
	}

	rr := srv.do(t, http.MethodPost, "/api/auth/signUp", SignUpRequest{
		FirstName: "Mary",
		LastName:  "Achieng",
		Email:     "treasurer@example.com",
		Password:  "Secret#123",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var auth AuthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &auth))
	srv.token = auth.Token.Token
	srv.adminID = auth.Admin.ID
	return srv
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

func TestAuth_SignIn(t *testing.T) {
	srv := newTestServer(t)
	srv.token = ""

	rr := srv.do(t, http.MethodPost, "/api/auth/signIn", SignInRequest{
		Email:    "treasurer@example.com",
		Password: "Secret#123",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var auth AuthResponse
	decode(t, rr, &auth)
	assert.NotEmpty(t, auth.Token.Token)
	assert.Equal(t, "treasurer@example.com", auth.Admin.Email)

	rr = srv.do(t, http.MethodPost, "/api/auth/signIn", SignInRequest{
		Email:    "treasurer@example.com",
		Password: "Wrong#1234",
	})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuth_SignUpRejectsWeakPassword(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodPost, "/api/auth/signUp", SignUpRequest{
		FirstName: "John",
		LastName:  "Mwangi",
		Email:     "clerk@example.com",
		Password:  "password1",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = srv.do(t, http.MethodPost, "/api/auth/signUp", SignUpRequest{
		FirstName: "Mary",
		LastName:  "Achieng",
		Email:     "treasurer@example.com",
		Password:  "Secret#123",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAuth_SignUpClosedAfterFirstAdmin(t *testing.T) {
	srv := newTestServer(t)
	clerk := SignUpRequest{
		FirstName: "John",
		LastName:  "Mwangi",
		Email:     "clerk@example.com",
		Password:  "Secret#123",
	}

	token := srv.token
	srv.token = ""
	rr := srv.do(t, http.MethodPost, "/api/auth/signUp", clerk)
	assert.Equal(t, http.StatusForbidden, rr.Code, rr.Body.String())

	srv.token = "not-a-jwt"
	rr = srv.do(t, http.MethodPost, "/api/auth/signUp", clerk)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	var count int64
	require.NoError(t, srv.db.Model(&models.AdminUser{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// вошедший сотрудник может добавить коллегу
	srv.token = token
	rr = srv.do(t, http.MethodPost, "/api/auth/signUp", clerk)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var auth AuthResponse
	decode(t, rr, &auth)
	assert.Equal(t, "clerk@example.com", auth.Admin.Email)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)
	srv.token = ""
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/overdue", nil).Code)

	srv.token = "not-a-jwt"
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/overdue", nil).Code)
}

func TestOverdueAndCatchUpFlow(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodPost, "/api/schools", services.CreateSchoolDTO{Name: "North Primary"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var school models.School
	decode(t, rr, &school)

	rr = srv.do(t, http.MethodPost, "/api/share-types", services.CreateShareTypeDTO{
		Name:          "Ordinary",
		ValuePerShare: decimal.NewFromInt(10),
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var shareType models.ShareType
	decode(t, rr, &shareType)

	rr = srv.do(t, http.MethodPost, "/api/members", map[string]interface{}{
		"schoolId":              school.ID,
		"firstName":             "Amina",
		"lastName":              "Otieno",
		"joinDate":              "2023-01-01T00:00:00Z",
		"expectedMonthlySaving": "100",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var member models.Member
	decode(t, rr, &member)

	rr = srv.do(t, http.MethodPut, fmt.Sprintf("/api/members/%d/commitments", member.ID), services.SetCommitmentsDTO{
		Commitments: []services.CommitmentDTO{{ShareTypeID: shareType.ID, MonthlyCommittedAmount: decimal.NewFromInt(20)}},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = srv.do(t, http.MethodPost, "/api/service-charges", services.CreateServiceChargeDTO{
		Name:   "Stationery levy",
		Amount: decimal.NewFromInt(15),
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var charge models.ServiceCharge
	decode(t, rr, &charge)

	rr = srv.do(t, http.MethodPost, fmt.Sprintf("/api/service-charges/%d/apply", charge.ID), map[string]interface{}{
		"memberIds":   []uint{member.ID},
		"dateApplied": "2023-02-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// отчет
	rr = srv.do(t, http.MethodGet, fmt.Sprintf("/api/overdue?school_id=%d", school.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var report services.OverdueReport
	decode(t, rr, &report)
	require.Len(t, report.OverdueMembers, 1)
	info := report.OverdueMembers[0]
	assert.Equal(t, member.ID, info.MemberID)
	assert.True(t, info.HasAnyOverdue)
	assert.True(t, info.TotalOverdueServiceCharges.Equal(decimal.NewFromInt(15)))
	require.Len(t, info.OverdueSharesDetails, 1)

	// погашение
	rr = srv.do(t, http.MethodPost, fmt.Sprintf("/api/overdue/%d/catch-up", member.ID), map[string]interface{}{
		"savingsAmount":       "100",
		"shareAmounts":        map[string]string{fmt.Sprint(shareType.ID): "25"},
		"serviceChargeAmount": "15",
		"paymentDate":         "2024-05-02T00:00:00Z",
		"channel":             "Cash",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var result services.CatchUpResult
	decode(t, rr, &result)
	assert.NotEmpty(t, result.BatchRef)
	assert.Equal(t, member.ID, result.MemberID)
	require.NotNil(t, result.Saving)
	require.Len(t, result.Shares, 1)
	assert.Equal(t, int64(2), result.Shares[0].NumberOfShares)
	require.Len(t, result.PaidCharges, 1)

	rr = srv.do(t, http.MethodGet, fmt.Sprintf("/api/members/%d/charges", member.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var pending []models.AppliedServiceCharge
	decode(t, rr, &pending)
	assert.Empty(t, pending)

	rr = srv.do(t, http.MethodGet, fmt.Sprintf("/api/overdue/%d", member.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &info)
	assert.True(t, info.TotalOverdueServiceCharges.IsZero())
}

func TestCatchUp_Errors(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodPost, "/api/overdue/999/catch-up", map[string]interface{}{
		"paymentDate": "2024-05-02T00:00:00Z",
		"channel":     "Cash",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())

	rr = srv.do(t, http.MethodPost, "/api/overdue/1/catch-up", map[string]interface{}{
		"paymentDate": "2024-05-02T00:00:00Z",
		"channel":     "Cheque",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	rr = srv.do(t, http.MethodPost, "/api/overdue/abc/catch-up", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSavingsApprovalFlow(t *testing.T) {
	srv := newTestServer(t)
	school := models.School{Name: "North Primary"}
	require.NoError(t, srv.db.Create(&school).Error)
	rr := srv.do(t, http.MethodPost, "/api/members", map[string]interface{}{
		"schoolId":  school.ID,
		"firstName": "Amina",
		"lastName":  "Otieno",
		"joinDate":  "2023-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var member models.Member
	decode(t, rr, &member)

	rr = srv.do(t, http.MethodPost, fmt.Sprintf("/api/members/%d/savings", member.ID), services.RecordSavingDTO{
		Amount:  decimal.NewFromInt(30),
		Type:    models.SavingTypeWithdrawal,
		Channel: models.DepositChannelCash,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var saving models.Saving
	decode(t, rr, &saving)
	require.NotNil(t, saving.RecordedBy)
	assert.Equal(t, srv.adminID, *saving.RecordedBy)

	rr = srv.do(t, http.MethodPost, fmt.Sprintf("/api/savings/%d/approve", saving.ID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

	rr = srv.do(t, http.MethodPost, fmt.Sprintf("/api/savings/%d/reject", saving.ID), RejectRequest{Reason: "no funds"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = srv.do(t, http.MethodPost, fmt.Sprintf("/api/savings/%d/reject", saving.ID), RejectRequest{})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = srv.do(t, http.MethodGet, "/api/members/999", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = srv.do(t, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var snapshot map[string]interface{}
	decode(t, rr, &snapshot)
	assert.Contains(t, snapshot, "operations")
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("x: %w", services.ErrValidation):                           http.StatusBadRequest,
		services.ErrInvalidCredentials:                                        http.StatusUnauthorized,
		services.ErrSignUpClosed:                                              http.StatusForbidden,
		fmt.Errorf("%w: %w", services.ErrCatchUpFailed, services.ErrNotFound): http.StatusNotFound,
		services.ErrDuplicate:                                                 http.StatusConflict,
		services.ErrActiveLoanExists:                                          http.StatusConflict,
		services.ErrMemberInactive:                                            http.StatusUnprocessableEntity,
		services.ErrNoShareValue:                                              http.StatusUnprocessableEntity,
		services.ErrCatchUpFailed:                                             http.StatusInternalServerError,
		errors.New("boom"):                                                    http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
