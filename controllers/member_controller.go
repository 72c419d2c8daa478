package controllers

import (
	"net/http"

	"schoolcoop/database"
	"schoolcoop/models"
	"schoolcoop/services"
)

// MemberController обрабатывает запросы по школам и участникам
type MemberController struct {
	schools *services.SchoolService
	members *services.MemberService
}

// NewMemberController создает новый экземпляр MemberController
func NewMemberController(db *database.Database, notifier services.Notifier) *MemberController {
	return &MemberController{
		schools: services.NewSchoolService(db.GetDB()),
		members: services.NewMemberService(db.GetDB(), notifier),
	}
}

// CreateSchool добавляет школу
func (c *MemberController) CreateSchool(w http.ResponseWriter, r *http.Request) {
	var dto services.CreateSchoolDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	school, err := c.schools.Create(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, school)
}

// ListSchools возвращает все школы
func (c *MemberController) ListSchools(w http.ResponseWriter, r *http.Request) {
	schools, err := c.schools.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schools)
}

// Register регистрирует участника
func (c *MemberController) Register(w http.ResponseWriter, r *http.Request) {
	var dto services.RegisterMemberDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	member, err := c.members.Register(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// List возвращает участников, ?school_id= и ?status= сужают выборку
func (c *MemberController) List(w http.ResponseWriter, r *http.Request) {
	schoolID, ok := queryID(w, r, "school_id")
	if !ok {
		return
	}

	members, err := c.members.List(r.Context(), services.MemberFilter{
		SchoolID: schoolID,
		Status:   models.MemberStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// Get возвращает участника с обязательствами
func (c *MemberController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	member, err := c.members.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// SetCommitments заменяет ежемесячные обязательства по паям
func (c *MemberController) SetCommitments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var dto services.SetCommitmentsDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	commitments, err := c.members.SetCommitments(r.Context(), id, dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commitments)
}

// Close закрывает счет участника и возвращает расчет выплаты
func (c *MemberController) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var dto services.CloseAccountDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	result, err := c.members.Close(r.Context(), id, dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
