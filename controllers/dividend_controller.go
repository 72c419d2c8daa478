package controllers

import (
	"net/http"

	"schoolcoop/database"
	"schoolcoop/services"
)

// DividendController обрабатывает распределение дивидендов
type DividendController struct {
	dividends *services.DividendService
}

func NewDividendController(db *database.Database) *DividendController {
	return &DividendController{dividends: services.NewDividendService(db.GetDB())}
}

// Distribute делит фонд года пропорционально одобренным паям
func (c *DividendController) Distribute(w http.ResponseWriter, r *http.Request) {
	var dto services.DistributeDividendsDTO
	if !decodeJSON(w, r, &dto) {
		return
	}

	distribution, err := c.dividends.Distribute(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, distribution)
}

func (c *DividendController) List(w http.ResponseWriter, r *http.Request) {
	distributions, err := c.dividends.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, distributions)
}
