package handler

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/service/report"
	"marketplace/internal/session"
	"marketplace/pkg/utils"
)

// ReportHandler sales reports for traders and admins
type ReportHandler struct {
	reportService report.ReportService
}

// NewReportHandler creates a report handler
func NewReportHandler(reportService report.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// Sales summarises completed payments over an optional date range
func (h *ReportHandler) Sales(c *gin.Context) {
	rc := session.From(c)

	from, to, err := utils.ParseDateRange(c.Query("from"), c.Query("to"))
	if err != nil {
		fail(c, rc, err)
		return
	}
	shopID, err := queryID(c, "shop_id")
	if err != nil {
		fail(c, rc, err)
		return
	}

	summary, err := h.reportService.SalesSummary(c.Request.Context(), rc.Identity, shopID, from, to)
	if err != nil {
		fail(c, rc, err)
		return
	}
	respond(c, summary)
}
