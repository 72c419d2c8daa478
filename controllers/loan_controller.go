package controllers

import (
	"net/http"

	"schoolcoop/database"
	"schoolcoop/services"
)

// LoanController обрабатывает запросы, связанные с займами
type LoanController struct {
	loanService *services.LoanService
}

// NewLoanController создает новый экземпляр LoanController
func NewLoanController(db *database.Database, notifier services.Notifier) *LoanController {
	return &LoanController{
		loanService: services.NewLoanService(db.GetDB(), notifier),
	}
}

// IssueLoan выдает заем и строит график платежей
func (c *LoanController) IssueLoan(w http.ResponseWriter, r *http.Request) {
	var dto services.IssueLoanDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	loan, err := c.loanService.Issue(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// GetLoan возвращает заем с графиком
func (c *LoanController) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	loan, err := c.loanService.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// GetMemberLoans возвращает займы участника
func (c *LoanController) GetMemberLoans(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	loans, err := c.loanService.ListByMember(r.Context(), memberID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

// RepayLoan гасит ближайший неоплаченный взнос
func (c *LoanController) RepayLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var dto services.RepayLoanDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	result, err := c.loanService.Repay(r.Context(), id, dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
