package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/billdesk/internal/currency"
	"github.com/nurpe/billdesk/internal/http/middleware"
	"github.com/nurpe/billdesk/internal/model"
	"github.com/nurpe/billdesk/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type PDFRenderer interface {
	Generate(doc model.Document, profile model.CompanyProfile) ([]byte, error)
}

type WorkbookRenderer interface {
	Generate(docs []model.Document, metrics model.Metrics) ([]byte, error)
}

type Handler struct {
	sessions *service.Sessions
	pdf      PDFRenderer
	excel    WorkbookRenderer
	prefix   string
	log      zerolog.Logger
}

func NewHandler(sessions *service.Sessions, pdf PDFRenderer, excel WorkbookRenderer, currencyPrefix string, log zerolog.Logger) *Handler {
	if currencyPrefix == "" {
		currencyPrefix = currency.DefaultPrefix
	}
	return &Handler{
		sessions: sessions,
		pdf:      pdf,
		excel:    excel,
		prefix:   currencyPrefix,
		log:      log,
	}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	router.GET("/healthz", h.health)

	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.POST("/session/logout", h.logout)
	protected.GET("/notifications", h.notifications)

	protected.GET("/settings", h.getSettings)
	protected.POST("/settings/reload", h.reloadSettings)
	protected.PUT("/settings/catalog", h.setCatalog)
	protected.PUT("/settings/tax-rate", h.setTaxRate)
	protected.PUT("/settings/company-profile", h.setCompanyProfile)
	protected.POST("/settings/catalog/:category/packages", h.savePackage)
	protected.DELETE("/settings/catalog/:category/packages/:id", h.deletePackage)

	protected.GET("/draft", h.getDraft)
	protected.PUT("/draft/header", h.setHeader)
	protected.POST("/draft/items", h.addItem)
	protected.POST("/draft/packages", h.addPackage)
	protected.PUT("/draft/items/:index", h.updateItem)
	protected.DELETE("/draft/items/:index", h.removeItem)
	protected.POST("/draft/clear", h.clearDraft)
	protected.POST("/draft/save", h.saveDraft)
	protected.GET("/draft/pdf", h.draftPDF)

	protected.GET("/documents", h.listDocuments)
	protected.GET("/documents/metrics", h.metrics)
	protected.GET("/documents/export", h.exportDocuments)
	protected.POST("/documents/:number/load", h.loadDocument)
	protected.GET("/documents/:number/pdf", h.documentPDF)
	protected.DELETE("/documents/:number", h.removeDocument)

	protected.GET("/confirmations", h.pendingConfirmations)
	protected.POST("/confirmations/:id/confirm", h.confirm)
	protected.POST("/confirmations/:id/cancel", h.cancel)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// session resolves the caller's session, signing in on first use.
func (h *Handler) session(c *gin.Context) (*service.Session, bool) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return nil, false
	}
	sess, err := h.sessions.Get(c.Request.Context(), principal.UserID)
	if err != nil {
		h.handleError(c, err)
		return nil, false
	}
	return sess, true
}

func (h *Handler) logout(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	h.sessions.Logout(principal.UserID)
	c.Status(http.StatusNoContent)
}

func (h *Handler) notifications(c *gin.Context) {
	if _, ok := h.session(c); !ok {
		return
	}
	principal, _ := middleware.MustPrincipal(c)
	feed := h.sessions.Feed(principal.UserID)
	if feed == nil {
		c.JSON(http.StatusOK, gin.H{"notifications": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": feed.Drain()})
}

func (h *Handler) getSettings(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if !sess.Catalog().Loaded() {
		// The failure is already in the notification feed.
		_ = h.sessions.ReloadSettings(c.Request.Context(), sess.UserID())
	}
	h.writeSettings(c, sess)
}

func (h *Handler) reloadSettings(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := h.sessions.ReloadSettings(c.Request.Context(), sess.UserID()); err != nil {
		h.handleError(c, err)
		return
	}
	h.writeSettings(c, sess)
}

func (h *Handler) writeSettings(c *gin.Context, sess *service.Session) {
	settings := sess.Catalog().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"services":       settings.Services,
		"taxRate":        settings.TaxRate,
		"companyProfile": settings.CompanyProfile,
		"loaded":         sess.Catalog().Loaded(),
	})
}

type catalogRequest struct {
	Services model.Catalog `json:"services" binding:"required"`
}

func (h *Handler) setCatalog(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req catalogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := sess.SetCatalog(c.Request.Context(), req.Services); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": sess.Catalog().Snapshot().Services})
}

type taxRateRequest struct {
	TaxRate any `json:"taxRate"`
}

func (h *Handler) setTaxRate(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req taxRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rate, err := currency.Parse(req.TaxRate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid taxRate"})
		return
	}
	if err := sess.SetTaxRate(c.Request.Context(), rate); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"taxRate": sess.Catalog().TaxRate()})
}

func (h *Handler) setCompanyProfile(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var profile model.CompanyProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := sess.SetCompanyProfile(c.Request.Context(), profile); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"companyProfile": sess.Catalog().CompanyProfile()})
}

type packageRequest struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Rate        any      `json:"rate"`
	Details     []string `json:"details"`
}

func (h *Handler) savePackage(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req packageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rate, err := currency.Parse(req.Rate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rate"})
		return
	}
	pkg, err := sess.SavePackage(c.Request.Context(), c.Param("category"), model.ServicePackage{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Rate:        rate,
		Details:     req.Details,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, pkg)
}

func (h *Handler) deletePackage(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	pending, err := sess.RequestDeletePackage(c.Param("category"), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, pending)
}

type itemResponse struct {
	model.LineItem
	Amount string `json:"amount"`
}

type totalsResponse struct {
	currency.Totals
	Formatted map[string]string `json:"formatted"`
}

type draftResponse struct {
	DocumentType model.DocumentType   `json:"documentType"`
	State        service.LedgerState  `json:"state"`
	Header       model.DocumentHeader `json:"header"`
	ItemCount    int                  `json:"itemCount"`
	Items        []itemResponse       `json:"items"`
	TaxRate      string               `json:"taxRate"`
	Totals       totalsResponse       `json:"totals"`
}

func (h *Handler) draftView(sess *service.Session) draftResponse {
	ledger := sess.Ledger()
	items := ledger.Items()
	totals := ledger.Totals()

	view := draftResponse{
		DocumentType: ledger.Type(),
		State:        ledger.State(),
		Header:       ledger.Header(),
		ItemCount:    len(items),
		Items:        make([]itemResponse, 0, len(items)),
		TaxRate:      sess.Catalog().TaxRate().String(),
		Totals: totalsResponse{
			Totals: totals,
			Formatted: map[string]string{
				"subtotal":  currency.Format(h.prefix, totals.Subtotal),
				"taxAmount": currency.Format(h.prefix, totals.TaxAmount),
				"total":     currency.Format(h.prefix, totals.Total),
			},
		},
	}
	for _, item := range items {
		view.Items = append(view.Items, itemResponse{LineItem: item, Amount: currency.Format(h.prefix, item.Amount())})
	}
	return view
}

func (h *Handler) getDraft(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.draftView(sess))
}

func (h *Handler) setHeader(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var header model.DocumentHeader
	if err := c.ShouldBindJSON(&header); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess.Ledger().SetHeader(header)
	c.JSON(http.StatusOK, h.draftView(sess))
}

// itemRequest accepts quantity and rate as numbers or strings. Anything unparseable counts as zero.
type itemRequest struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	Quantity    any    `json:"quantity"`
	Rate        any    `json:"rate"`
}

func (r itemRequest) lineItem() model.LineItem {
	return model.LineItem{
		ID:          r.ID,
		Description: r.Description,
		Quantity:    currency.Coerce(r.Quantity),
		Rate:        currency.Coerce(r.Rate),
	}
}

func (h *Handler) addItem(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item := sess.Ledger().AddLineItem(req.lineItem())
	c.JSON(http.StatusCreated, itemResponse{LineItem: item, Amount: currency.Format(h.prefix, item.Amount())})
}

type addPackageRequest struct {
	Category  string `json:"category" binding:"required"`
	PackageID string `json:"packageId" binding:"required"`
}

func (h *Handler) addPackage(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req addPackageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := sess.AddPackage(c.Request.Context(), req.Category, req.PackageID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, itemResponse{LineItem: item, Amount: currency.Format(h.prefix, item.Amount())})
}

func (h *Handler) updateItem(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	index, err := parseIndex(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, ok := sess.Ledger().UpdateLineItem(index, req.lineItem())
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "line item not found"})
		return
	}
	c.JSON(http.StatusOK, itemResponse{LineItem: item, Amount: currency.Format(h.prefix, item.Amount())})
}

func (h *Handler) removeItem(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	index, err := parseIndex(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}
	sess.Ledger().RemoveLineItem(index)
	c.JSON(http.StatusOK, h.draftView(sess))
}

type clearRequest struct {
	DocumentType string `json:"documentType"`
}

func (h *Handler) clearDraft(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req clearRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pending, err := sess.RequestClear(model.DocumentType(strings.TrimSpace(req.DocumentType)))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, pending)
}

func (h *Handler) saveDraft(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	doc, err := sess.SaveDocument(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) draftPDF(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	h.renderPDF(c, sess.Ledger().Snapshot(), sess.Catalog().CompanyProfile())
}

type documentResponse struct {
	model.Document
	DisplayTotal string `json:"displayTotal"`
}

func (h *Handler) listDocuments(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	docs, err := sess.ListDocuments(c.Request.Context())
	if err != nil && !errors.Is(err, service.ErrFetch) {
		h.handleError(c, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentResponse{Document: doc, DisplayTotal: currency.DisplayTotal(h.prefix, doc)})
	}
	resp := gin.H{"documents": out, "stale": err != nil}
	if err != nil {
		resp["error"] = "failed to refresh documents"
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) metrics(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	metrics := sess.Archive().Metrics()
	c.JSON(http.StatusOK, gin.H{
		"invoiceCount":            metrics.InvoiceCount,
		"quotationCount":          metrics.QuotationCount,
		"monthlyRevenue":          metrics.MonthlyRevenue,
		"monthlyRevenueFormatted": currency.Format(h.prefix, metrics.MonthlyRevenue),
	})
}

func (h *Handler) exportDocuments(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	docs := sess.Archive().Documents()
	content, err := h.excel.Generate(docs, sess.Archive().Metrics())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\"documents.xlsx\"")
	c.Data(http.StatusOK, xlsxContentType, content)
}

func (h *Handler) loadDocument(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := sess.LoadForEdit(c.Request.Context(), c.Param("number")); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.draftView(sess))
}

func (h *Handler) documentPDF(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	doc, found := sess.Archive().Get(c.Param("number"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	h.renderPDF(c, doc, sess.Catalog().CompanyProfile())
}

func (h *Handler) renderPDF(c *gin.Context, doc model.Document, profile model.CompanyProfile) {
	content, err := h.pdf.Generate(doc, profile)
	if err != nil {
		h.handleError(c, err)
		return
	}
	fileName := sanitizeFileName(doc.DocumentNumber)
	if fileName == "" {
		fileName = "document"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.pdf\"", fileName))
	c.Data(http.StatusOK, "application/pdf", content)
}

func (h *Handler) removeDocument(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	pending, err := sess.RequestRemove(c.Param("number"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, pending)
}

func (h *Handler) pendingConfirmations(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmations": sess.PendingConfirmations()})
}

func (h *Handler) confirm(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid confirmation id"})
		return
	}
	if err := sess.Confirm(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "confirmed"})
}

func (h *Handler) cancel(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid confirmation id"})
		return
	}
	if err := sess.Cancel(id); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrConfirmationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrFetch), errors.Is(err, service.ErrSave), errors.Is(err, service.ErrDelete):
		h.log.Warn().Err(err).Str("request_id", middleware.GetRequestID(c)).Msg("store operation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "remote store unavailable"})
	default:
		h.log.Error().Err(err).Str("request_id", middleware.GetRequestID(c)).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseIndex(raw string) (int, error) {
	index, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || index < 0 {
		return 0, errors.New("invalid index")
	}
	return index, nil
}

func sanitizeFileName(input string) string {
	result := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z':
			result = append(result, r)
		case r >= 'A' && r <= 'Z':
			result = append(result, r)
		case r >= '0' && r <= '9':
			result = append(result, r)
		case r == '-', r == '_':
			result = append(result, r)
		default:
			result = append(result, '-')
		}
	}
	return strings.Trim(string(result), "-")
}
