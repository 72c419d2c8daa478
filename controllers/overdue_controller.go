package controllers

import (
	"net/http"

	"schoolcoop/database"
	"schoolcoop/services"
)

// OverdueController отдает отчет о задолженностях и принимает погашения
type OverdueController struct {
	overdue *services.OverdueService
	catchUp *services.CatchUpService
}

// NewOverdueController создает новый экземпляр OverdueController
func NewOverdueController(db *database.Database, notifier services.Notifier) *OverdueController {
	return &OverdueController{
		overdue: services.NewOverdueService(db.GetDB()),
		catchUp: services.NewCatchUpService(services.NewUnitOfWork(db.GetDB()), notifier),
	}
}

// Report возвращает задолженности активных участников, ?school_id= сужает выборку
func (c *OverdueController) Report(w http.ResponseWriter, r *http.Request) {
	schoolID, ok := queryID(w, r, "school_id")
	if !ok {
		return
	}

	report, err := c.overdue.Report(r.Context(), services.OverdueFilter{SchoolID: schoolID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// MemberOverdue возвращает задолженность одного участника
func (c *OverdueController) MemberOverdue(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "memberId")
	if !ok {
		return
	}

	info, err := c.overdue.MemberOverdue(r.Context(), memberID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// CatchUp проводит погашение задолженности одной транзакцией
func (c *OverdueController) CatchUp(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "memberId")
	if !ok {
		return
	}
	var req services.CatchUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.MemberID = memberID
	req.RecordedBy = currentAdmin(r)

	result, err := c.catchUp.Record(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
