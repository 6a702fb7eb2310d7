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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stillbooks/compliance_backend/config"
	"github.com/stillbooks/compliance_backend/models"
	"github.com/stillbooks/compliance_backend/models/reports"
	"github.com/stillbooks/compliance_backend/utils"
	"github.com/stillbooks/compliance_backend/workflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = "8080"

var tracer = otel.Tracer("stillbooks-compliance")

// requestContextMiddleware maps the gateway's identity headers into the
// request context. Authentication itself happens upstream.
func requestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if v, err := strconv.Atoi(c.GetHeader("X-Company-Id")); err == nil {
			ctx = utils.SetCompanyIdInContext(ctx, v)
		}
		if v, err := strconv.Atoi(c.GetHeader("X-User-Id")); err == nil {
			ctx = utils.SetUserIdInContext(ctx, v)
		}
		if v := c.GetHeader("X-User-Name"); v != "" {
			ctx = utils.SetUserNameInContext(ctx, v)
		}
		if v := c.GetHeader("X-User-Role"); v != "" {
			ctx = utils.SetUserRoleInContext(ctx, v)
		}

		correlationId := c.GetHeader("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
		ctx = utils.SetClientIPInContext(ctx, c.ClientIP())
		ctx = utils.SetUserAgentInContext(ctx, c.Request.UserAgent())

		c.Writer.Header().Set("X-Correlation-Id", correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, utils.ErrorValidation):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrorMissingContext):
		return http.StatusUnprocessableEntity
	case errors.Is(err, utils.ErrorStateConflict):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrIdempotencyInProgress):
		// another worker holds the message; the producer should redeliver
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}

type complianceEventRequest struct {
	MessageId    string          `json:"message_id"`
	CompanyId    int             `json:"company_id" binding:"required,gt=0"`
	EventType    string          `json:"event_type" binding:"required"`
	SourceType   string          `json:"source_type" binding:"required"`
	SourceId     int             `json:"source_id" binding:"required,gt=0"`
	Date         time.Time       `json:"date" binding:"required"`
	SpiritName   string          `json:"spirit_name"`
	WineGallons  decimal.Decimal `json:"wine_gallons"`
	Proof        decimal.Decimal `json:"proof"`
	TemperatureF decimal.Decimal `json:"temperature_f"`
	Note         string          `json:"note"`
}

type snapshotRequest struct {
	Date time.Time `json:"date" binding:"required"`
}

type transitionRequest struct {
	Version            int    `json:"version" binding:"required,gt=0"`
	ConfirmationNumber string `json:"confirmation_number"`
	Reason             string `json:"reason"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	logger := config.GetLogger()

	calc := models.NewVolumeCalculator()
	classifier := models.NewSpiritClassifier()
	taxEngine := models.NewExciseTaxEngine(calc, classifier)
	reportWorkflow := models.NewReportWorkflow(workflow.NewWebhookNotifier(logger))

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(os.Getenv("CORS_ORIGINS"), ","),
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Company-Id", "X-User-Id", "X-User-Name", "X-User-Role", "X-Correlation-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(requestContextMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// inbound business events -> ledger
	router.POST("/events", func(c *gin.Context) {
		var req complianceEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		entry, err := workflow.ProcessComplianceEvent(c.Request.Context(), logger, calc, classifier, workflow.ComplianceEvent{
			MessageId:    req.MessageId,
			CompanyId:    req.CompanyId,
			EventType:    req.EventType,
			SourceType:   models.SourceType(req.SourceType),
			SourceId:     req.SourceId,
			Date:         req.Date,
			SpiritName:   req.SpiritName,
			WineGallons:  req.WineGallons,
			Proof:        req.Proof,
			TemperatureF: req.TemperatureF,
			Note:         req.Note,
		})
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, entry)
	})

	// scheduler triggers
	router.POST("/companies/:companyId/snapshots", func(c *gin.Context) {
		companyId, err := strconv.Atoi(c.Param("companyId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid company id"})
			return
		}
		var req snapshotRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rows, err := workflow.ProcessSnapshotWorkflow(c.Request.Context(), logger, calc, classifier, companyId, req.Date)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rows": rows})
	})

	router.POST("/companies/:companyId/reports/:year/:month/calculate", func(c *gin.Context) {
		companyId, year, month, err := periodParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "report.calculate", trace.WithAttributes(
			attribute.Int("company_id", companyId),
			attribute.Int("year", year),
			attribute.Int("month", month),
		))
		defer span.End()
		report, data, err := reports.RunMonthlyReportCalculation(ctx, companyId, year, month)
		if err != nil {
			span.RecordError(err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"report": report, "data": data})
	})

	router.GET("/companies/:companyId/reports/:year/:month/export", func(c *gin.Context) {
		companyId, year, month, err := periodParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data, err := reports.CalculateMonth(c.Request.Context(), companyId, year, month)
		if err != nil {
			abortWithError(c, err)
			return
		}
		f, err := reports.ExportMonthlyReportExcel(data)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=report-%d-%02d.xlsx", year, month))
		if err := f.Write(c.Writer); err != nil {
			config.LogError(logger, "server.go", "exportReport", "writing xlsx", nil, err)
		}
	})

	// excise tax
	router.GET("/companies/:companyId/orders/:orderId/tax", func(c *gin.Context) {
		companyId, orderId, err := orderParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		calculation, err := taxEngine.Calculate(c.Request.Context(), companyId, orderId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, calculation)
	})

	router.POST("/companies/:companyId/orders/:orderId/tax-determination", func(c *gin.Context) {
		companyId, orderId, err := orderParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		determination, err := taxEngine.RecordDetermination(c.Request.Context(), companyId, orderId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, determination)
	})

	// report workflow transitions
	transition := func(run func(ctx context.Context, reportId int, req transitionRequest) (*models.MonthlyReport, error)) gin.HandlerFunc {
		return func(c *gin.Context) {
			reportId, err := strconv.Atoi(c.Param("reportId"))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
				return
			}
			var req transitionRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx, span := tracer.Start(c.Request.Context(), "report.workflow_transition",
				trace.WithAttributes(attribute.Int("report_id", reportId)))
			defer span.End()
			report, err := run(ctx, reportId, req)
			if err != nil {
				span.RecordError(err)
				abortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, report)
		}
	}

	router.POST("/reports/:reportId/submit-for-review", transition(func(ctx context.Context, reportId int, req transitionRequest) (*models.MonthlyReport, error) {
		return reportWorkflow.SubmitForReview(ctx, reportId, req.Version)
	}))
	router.POST("/reports/:reportId/approve", transition(func(ctx context.Context, reportId int, req transitionRequest) (*models.MonthlyReport, error) {
		return reportWorkflow.Approve(ctx, reportId, req.Version)
	}))
	router.POST("/reports/:reportId/reject", transition(func(ctx context.Context, reportId int, req transitionRequest) (*models.MonthlyReport, error) {
		return reportWorkflow.Reject(ctx, reportId, req.Version, req.Reason)
	}))
	router.POST("/reports/:reportId/submit", transition(func(ctx context.Context, reportId int, req transitionRequest) (*models.MonthlyReport, error) {
		return reportWorkflow.SubmitToRegulator(ctx, reportId, req.Version, req.ConfirmationNumber)
	}))
	router.POST("/reports/:reportId/archive", transition(func(ctx context.Context, reportId int, req transitionRequest) (*models.MonthlyReport, error) {
		return reportWorkflow.Archive(ctx, reportId, req.Version)
	}))

	// audit trail read surface
	router.GET("/histories", func(c *gin.Context) {
		var entityType *string
		if v := c.Query("entity_type"); v != "" {
			entityType = &v
		}
		var entityId *int
		if v, err := strconv.Atoi(c.Query("entity_id")); err == nil {
			entityId = &v
		}
		var userId *int
		if v, err := strconv.Atoi(c.Query("user_id")); err == nil {
			userId = &v
		}
		histories, err := models.GetHistories(c.Request.Context(), entityType, entityId, userId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, histories)
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// connect after the server is listening (container platforms require a
	// fast start)
	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()
	if os.Getenv("AUTO_MIGRATE") == "1" {
		if err := models.MigrateDatabase(config.GetDB()); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	log.Println("server exited")
}

func periodParams(c *gin.Context) (companyId int, year int, month int, err error) {
	companyId, err = strconv.Atoi(c.Param("companyId"))
	if err != nil {
		return 0, 0, 0, errors.New("invalid company id")
	}
	year, err = strconv.Atoi(c.Param("year"))
	if err != nil {
		return 0, 0, 0, errors.New("invalid year")
	}
	month, err = strconv.Atoi(c.Param("month"))
	if err != nil {
		return 0, 0, 0, errors.New("invalid month")
	}
	return companyId, year, month, nil
}

func orderParams(c *gin.Context) (companyId int, orderId int, err error) {
	companyId, err = strconv.Atoi(c.Param("companyId"))
	if err != nil {
		return 0, 0, errors.New("invalid company id")
	}
	orderId, err = strconv.Atoi(c.Param("orderId"))
	if err != nil {
		return 0, 0, errors.New("invalid order id")
	}
	return companyId, orderId, nil
}
