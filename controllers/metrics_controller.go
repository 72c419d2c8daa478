package controllers

import (
	"net/http"

	"schoolcoop/utils"
)

// Metrics отдает снимок счетчиков запросов и операций
func Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, utils.GetMetrics().GetMetricsSnapshot())
}
