package controllers

import (
	"net/http"

	"schoolcoop/database"
	"schoolcoop/services"
)

// LedgerController обрабатывает сбережения, паи и сборы участников
type LedgerController struct {
	savings *services.SavingService
	shares  *services.ShareService
	charges *services.ServiceChargeService
}

// NewLedgerController создает новый экземпляр LedgerController
func NewLedgerController(db *database.Database) *LedgerController {
	return &LedgerController{
		savings: services.NewSavingService(db.GetDB()),
		shares:  services.NewShareService(db.GetDB()),
		charges: services.NewServiceChargeService(db.GetDB()),
	}
}

// RecordSaving записывает взнос или снятие, ожидающее одобрения
func (c *LedgerController) RecordSaving(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var dto services.RecordSavingDTO
	if !decodeJSON(w, r, &dto) {
		return
	}
	dto.RecordedBy = currentAdmin(r)

	saving, err := c.savings.Record(r.Context(), memberID, dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saving)
}

// ListSavings возвращает историю сбережений участника
func (c *LedgerController) ListSavings(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	savings, err := c.savings.ListByMember(r.Context(), memberID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, savings)
}

// ApproveSaving одобряет операцию и меняет баланс
func (c *LedgerController) ApproveSaving(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	saving, err := c.savings.Approve(r.Context(), id, currentAdmin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saving)
}

// RejectRequest - причина отказа
type RejectRequest struct {
	Reason string `json:"reason"`
}

// RejectSaving отклоняет операцию
func (c *LedgerController) RejectSaving(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req RejectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	saving, err := c.savings.Reject(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saving)
}

// CreateShareType добавляет тип паев в каталог
func (c *LedgerController) CreateShareType(w http.ResponseWriter, r *http.Request) {
	var dto services.CreateShareTypeDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	shareType, err := c.shares.CreateType(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, shareType)
}

// ListShareTypes возвращает каталог паев
func (c *LedgerController) ListShareTypes(w http.ResponseWriter, r *http.Request) {
	types, err := c.shares.ListTypes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

// AllocateShares распределяет паи участнику
func (c *LedgerController) AllocateShares(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var dto services.AllocateSharesDTO
	if !decodeJSON(w, r, &dto) {
		return
	}
	dto.RecordedBy = currentAdmin(r)

	share, err := c.shares.Allocate(r.Context(), memberID, dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, share)
}

// ListShares возвращает паи участника
func (c *LedgerController) ListShares(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	shares, err := c.shares.ListByMember(r.Context(), memberID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

// ApproveShare одобряет распределение паев
func (c *LedgerController) ApproveShare(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	share, err := c.shares.Approve(r.Context(), id, currentAdmin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, share)
}

// CreateServiceCharge добавляет сбор в каталог
func (c *LedgerController) CreateServiceCharge(w http.ResponseWriter, r *http.Request) {
	var dto services.CreateServiceChargeDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	charge, err := c.charges.Create(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, charge)
}

// ListServiceCharges возвращает каталог сборов
func (c *LedgerController) ListServiceCharges(w http.ResponseWriter, r *http.Request) {
	charges, err := c.charges.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, charges)
}

// ApplyServiceCharge начисляет сбор списку участников
func (c *LedgerController) ApplyServiceCharge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var dto services.ApplyChargeDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	applied, err := c.charges.Apply(r.Context(), id, dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, applied)
}

// PendingCharges возвращает неоплаченные сборы участника, старые первыми
func (c *LedgerController) PendingCharges(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	charges, err := c.charges.PendingByMember(r.Context(), memberID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, charges)
}
