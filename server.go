package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/middlewares"
	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"bitbucket.org/mmdatafocus/commissions_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

const defaultPort = "8080"

var tracer = otel.Tracer("commissions-backend")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

type recomputeRequest struct {
	StoreCode   string `json:"store_code" binding:"required"`
	FiscalMonth string `json:"fiscal_month" binding:"required"`
}

func recomputeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserNameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req recomputeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "store_code and fiscal_month are required"})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "commission.recompute")
		defer span.End()

		logger := config.GetLogger()
		err := workflow.RecomputeCommissionsForStore(ctx, config.GetDB(), logger, req.StoreCode, req.FiscalMonth)
		if err != nil {
			if errors.Is(err, utils.ErrorRecomputeInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		cid, _ := utils.GetCorrelationIdFromContext(ctx)
		c.JSON(http.StatusOK, gin.H{
			"store_code":     req.StoreCode,
			"fiscal_month":   req.FiscalMonth,
			"correlation_id": cid,
		})
	}
}

type attendanceUpdateRequest struct {
	StoreCode   string                         `json:"store_code" binding:"required"`
	FiscalMonth string                         `json:"fiscal_month" binding:"required"`
	Attendances []models.StaffActualAttendance `json:"attendances" binding:"required,dive"`
}

// attendanceUpdateHandler patches actual attendance for a store-period, then
// recomputes so stored amounts never drift from their inputs.
func attendanceUpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserNameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req attendanceUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if fields := utils.ProcessValidationErrors(err); fields != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": fields})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		logger := config.GetLogger()
		db := config.GetDB()

		updated := 0
		err := db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			n, err := models.UpdateActualAttendances(tx, req.StoreCode, req.FiscalMonth, req.Attendances)
			if err != nil {
				return err
			}
			updated = n
			return nil
		})
		if err != nil {
			config.LogError(logger, "server.go", "attendanceUpdateHandler", "UpdateActualAttendances", req, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		err = workflow.RecomputeCommissionsForStore(c.Request.Context(), db, logger, req.StoreCode, req.FiscalMonth)
		if err != nil {
			if errors.Is(err, utils.ErrorRecomputeInProgress) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"store_code":   req.StoreCode,
			"fiscal_month": req.FiscalMonth,
			"updated":      updated,
		})
	}
}

func commissionListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fiscalMonth := strings.TrimSpace(c.Query("fiscal_month"))
		if fiscalMonth == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fiscal_month is required"})
			return
		}

		summaries, err := models.GetCommissionSummaryByMonth(config.GetDB().WithContext(c.Request.Context()), fiscalMonth)
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "commissionListHandler", "GetCommissionSummaryByMonth", fiscalMonth, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"fiscal_month": fiscalMonth, "stores": summaries})
	}
}

func staffCommissionDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		staffCode := strings.TrimSpace(c.Query("staff_code"))
		storeCode := strings.TrimSpace(c.Query("store_code"))
		fiscalMonth := strings.TrimSpace(c.Query("fiscal_month"))
		if staffCode == "" || storeCode == "" || fiscalMonth == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "staff_code, store_code and fiscal_month are required"})
			return
		}

		details, err := models.GetStaffCommissionDetails(config.GetDB().WithContext(c.Request.Context()), staffCode, storeCode, fiscalMonth)
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "staffCommissionDetailHandler", "GetStaffCommissionDetails", staffCode, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"staff_code":   staffCode,
			"store_code":   storeCode,
			"fiscal_month": fiscalMonth,
			"details":      details,
		})
	}
}

type adjustmentRequest struct {
	StoreCode   string          `json:"store_code" binding:"required"`
	FiscalMonth string          `json:"fiscal_month" binding:"required"`
	StaffCode   string          `json:"staff_code" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Remarks     string          `json:"remarks"`
}

func addAdjustmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userName, ok := utils.GetUserNameFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req adjustmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if fields := utils.ProcessValidationErrors(err); fields != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": fields})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		var record *models.CommissionRecord
		err := config.GetDB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			var err error
			record, err = models.AddManualAdjustment(tx, req.FiscalMonth, req.StoreCode, req.StaffCode, req.Amount, req.Remarks, userName)
			return err
		})
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "addAdjustmentHandler", "AddManualAdjustment", req, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

type deleteAdjustmentRequest struct {
	StoreCode   string `json:"store_code" binding:"required"`
	FiscalMonth string `json:"fiscal_month" binding:"required"`
	StaffCode   string `json:"staff_code" binding:"required"`
}

func deleteAdjustmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserNameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req deleteAdjustmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		err := config.GetDB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			return models.DeleteManualAdjustment(tx, req.FiscalMonth, req.StoreCode, req.StaffCode)
		})
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "deleteAdjustmentHandler", "DeleteManualAdjustment", req, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

type auditRequest struct {
	StoreCode   string `json:"store_code" binding:"required"`
	FiscalMonth string `json:"fiscal_month" binding:"required"`
}

func auditHandler(approve bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userName, ok := utils.GetUserNameFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req auditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		err := config.GetDB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			if approve {
				return models.ApprovePeriod(tx, req.StoreCode, req.FiscalMonth, userName)
			}
			return models.UnapprovePeriod(tx, req.StoreCode, req.FiscalMonth)
		})
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "commission period not found"})
				return
			}
			config.LogError(config.GetLogger(), "server.go", "auditHandler", "ApprovePeriod/UnapprovePeriod", req, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		status := models.PeriodStatusApproved
		if !approve {
			status = models.PeriodStatusSubmitted
		}
		c.JSON(http.StatusOK, gin.H{
			"store_code":   req.StoreCode,
			"fiscal_month": req.FiscalMonth,
			"status":       status,
		})
	}
}

// importAttendanceHandler accepts an xlsx upload and upserts staff attendance
// rows. Affected periods must be recomputed by the caller afterwards.
func importAttendanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userName, ok := utils.GetUserNameFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer file.Close()

		imported := 0
		err = config.GetDB().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
			n, err := models.ImportStaffAttendanceFromXlsx(tx, file, userName)
			if err != nil {
				return err
			}
			imported = n
			return nil
		})
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "importAttendanceHandler", "ImportStaffAttendanceFromXlsx", fileHeader.Filename, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"imported": imported})
	}
}

type invalidateRuleCacheRequest struct {
	RuleCodes []string `json:"rule_codes" binding:"required"`
}

// Ops tooling: drop cached rule catalog entries after editing rules directly.
func invalidateRuleCacheHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserNameFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req invalidateRuleCacheRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.RuleCodes) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rule_codes is required"})
			return
		}
		if err := models.InvalidateRuleCache(req.RuleCodes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"invalidated": len(req.RuleCodes)})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/commission/recompute", recomputeHandler())
	r.PUT("/commission/update", attendanceUpdateHandler())
	r.GET("/commission/list", commissionListHandler())
	r.GET("/commission/staff_commission_detail", staffCommissionDetailHandler())
	r.POST("/commission/add_adjustment", addAdjustmentHandler())
	r.POST("/commission/delete_adjustment", deleteAdjustmentHandler())
	r.POST("/commission/audit", auditHandler(true))
	r.POST("/commission/unaudit", auditHandler(false))
	r.POST("/commission/import_attendance", importAttendanceHandler())
	// Ops tooling: drop stale rule-catalog cache entries.
	r.POST("/internal/ops/rules/invalidate-cache", invalidateRuleCacheHandler())
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("commissions backend listening on port ", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
