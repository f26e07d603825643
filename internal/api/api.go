package api

import (
	"net/http"
	"strconv"

	"mtg-tracker/internal/cache"
	"mtg-tracker/internal/models"
	"mtg-tracker/internal/services"
	"mtg-tracker/internal/services/scryfall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type APIHandler struct {
	db         *gorm.DB
	ingest     *services.BulkIngestService
	reports    *services.ReportService
	priceCache *cache.PriceCache
	scryfall   *scryfall.Client
	log        *zap.SugaredLogger
}

func SetupRoutes(r *gin.RouterGroup, db *gorm.DB, ingest *services.BulkIngestService,
	reports *services.ReportService, priceCache *cache.PriceCache, sc *scryfall.Client,
	log *zap.SugaredLogger) *APIHandler {

	handler := &APIHandler{
		db:         db,
		ingest:     ingest,
		reports:    reports,
		priceCache: priceCache,
		scryfall:   sc,
		log:        log.With("service", "api"),
	}

	admin := r.Group("/admin")
	{
		admin.POST("/ingest", handler.TriggerIngest)
	}

	cards := r.Group("/cards")
	{
		cards.GET("/:id/prices", handler.GetCardPrices)
	}

	alerts := r.Group("/alerts")
	{
		alerts.GET("", handler.ListAlerts)
		alerts.POST("", handler.CreateAlert)
		alerts.DELETE("/:id", handler.DeleteAlert)
		alerts.PATCH("/:id/enable", handler.EnableAlert)
	}

	notifications := r.Group("/notifications")
	{
		notifications.GET("", handler.ListNotifications)
		notifications.PATCH("/:id/read", handler.MarkNotificationRead)
	}

	devices := r.Group("/devices")
	{
		devices.POST("", handler.RegisterDevice)
	}

	reportsGroup := r.Group("/reports")
	{
		reportsGroup.GET("/price-history.xlsx", handler.PriceHistoryReport)
	}

	return handler
}

// TriggerIngest runs a bulk ingestion on demand. max_items caps the run for
// smoke testing against the live catalog.
func (h *APIHandler) TriggerIngest(c *gin.Context) {
	maxItems := 0
	if raw := c.Query("max_items"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_items must be a non-negative integer"})
			return
		}
		maxItems = n
	}

	result, err := h.ingest.Ingest(c.Request.Context(), maxItems)
	if err != nil {
		h.log.Errorw("manual ingestion failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetCardPrices serves the live price sub-object for one printing, cached
// with a short TTL to avoid hammering the upstream for hot cards.
func (h *APIHandler) GetCardPrices(c *gin.Context) {
	id := c.Param("id")

	if cached, ok := h.priceCache.Get(id); ok {
		c.JSON(http.StatusOK, gin.H{"scryfall_id": id, "prices": cached, "cached": true})
		return
	}

	card, err := h.scryfall.GetCard(c.Request.Context(), id)
	if err != nil {
		h.log.Warnw("live price lookup failed", "scryfall_id", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	h.priceCache.Set(id, card.Prices)
	c.JSON(http.StatusOK, gin.H{"scryfall_id": id, "prices": card.Prices, "cached": false})
}

func (h *APIHandler) ListAlerts(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	var alerts []models.PriceAlert
	if err := h.db.Where("user_id = ?", uint(userID)).Order("created_at DESC").Find(&alerts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load alerts"})
		return
	}
	c.JSON(http.StatusOK, alerts)
}

type createAlertRequest struct {
	UserID     uint    `json:"user_id" binding:"required"`
	ScryfallID string  `json:"scryfall_id" binding:"required"`
	Market     string  `json:"market" binding:"required"`
	Kind       string  `json:"kind" binding:"required"`
	Currency   string  `json:"currency"`
	Threshold  float64 `json:"threshold" binding:"required"`
	Direction  string  `json:"direction" binding:"required,oneof=above below"`
}

func (h *APIHandler) CreateAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	alert := models.PriceAlert{
		UserID:     req.UserID,
		ScryfallID: req.ScryfallID,
		Market:     req.Market,
		Kind:       req.Kind,
		Currency:   req.Currency,
		Threshold:  req.Threshold,
		Direction:  req.Direction,
		Enabled:    true,
	}
	if err := h.db.Create(&alert).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create alert"})
		return
	}
	c.JSON(http.StatusCreated, alert)
}

func (h *APIHandler) DeleteAlert(c *gin.Context) {
	if err := h.db.Delete(&models.PriceAlert{}, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete alert"})
		return
	}
	c.Status(http.StatusNoContent)
}

// EnableAlert re-arms a triggered alert for another cycle.
func (h *APIHandler) EnableAlert(c *gin.Context) {
	res := h.db.Model(&models.PriceAlert{}).Where("id = ?", c.Param("id")).Update("enabled", true)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enable alert"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) ListNotifications(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	var notifications []models.Notification
	if err := h.db.Where("user_id = ?", uint(userID)).Order("created_at DESC").Limit(100).Find(&notifications).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}
	c.JSON(http.StatusOK, notifications)
}

func (h *APIHandler) MarkNotificationRead(c *gin.Context) {
	res := h.db.Model(&models.Notification{}).Where("id = ?", c.Param("id")).Update("read", true)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notification"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

type registerDeviceRequest struct {
	UserID   uint   `json:"user_id" binding:"required"`
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform"`
}

func (h *APIHandler) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device := models.DeviceToken{
		UserID:   req.UserID,
		Token:    req.Token,
		Platform: req.Platform,
		Active:   true,
	}
	if err := h.db.Where("token = ?", req.Token).Assign(models.DeviceToken{UserID: req.UserID, Platform: req.Platform, Active: true}).FirstOrCreate(&device).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register device"})
		return
	}
	c.JSON(http.StatusCreated, device)
}

func (h *APIHandler) PriceHistoryReport(c *gin.Context) {
	scryfallID := c.Query("scryfall_id")
	if scryfallID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scryfall_id is required"})
		return
	}

	f, err := h.reports.PriceHistoryXLSX(c.Request.Context(), scryfallID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build report"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="price-history.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		h.log.Warnw("failed to stream report", "error", err)
	}
}
