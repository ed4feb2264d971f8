package handlers

import (
	"net/http"

	"exambank/internal/config"
	"exambank/internal/observability"
	"exambank/internal/services"
	contextutils "exambank/internal/utils"

	"github.com/gin-gonic/gin"
)

// ExamHandler handles exam-related HTTP requests
type ExamHandler struct {
	examService services.ExamServiceInterface
	cfg         *config.Config
	logger      *observability.Logger
}

// NewExamHandler creates a new ExamHandler
func NewExamHandler(examService services.ExamServiceInterface, cfg *config.Config, logger *observability.Logger) *ExamHandler {
	return &ExamHandler{
		examService: examService,
		cfg:         cfg,
		logger:      logger,
	}
}

// fetchExamRequest is the query contract for GET /v1/exam
type fetchExamRequest struct {
	UserID  string `form:"user_id" binding:"required"`
	Subject string `form:"subject" binding:"required"`
}

// FetchExam handles GET /v1/exam
func (h *ExamHandler) FetchExam(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "fetch_exam")
	defer observability.FinishSpan(span, nil)

	var req fetchExamRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeMissingRequired, contextutils.SeverityWarn,
			"Missing required field", "user_id and subject are required", err))
		return
	}

	span.SetAttributes(
		observability.AttributeUserID(req.UserID),
		observability.AttributeSubject(req.Subject),
	)

	exam, err := h.examService.AssembleExam(ctx, req.UserID, req.Subject)
	if err != nil {
		h.logger.Error(ctx, "Failed to assemble exam", err, map[string]interface{}{
			"user_id": req.UserID,
			"subject": req.Subject,
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, exam)
}

// ListSubjects handles GET /v1/subjects
func (h *ExamHandler) ListSubjects(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "list_subjects")
	defer observability.FinishSpan(span, nil)

	type subjectInfo struct {
		Name           string      `json:"name"`
		DefaultQuota   int         `json:"default_quota"`
		CategoryQuotas map[int]int `json:"category_quotas,omitempty"`
	}

	subjects := make([]subjectInfo, 0, len(h.cfg.Subjects))
	for _, name := range h.cfg.SubjectNames() {
		subject := h.cfg.Subjects[name]
		subjects = append(subjects, subjectInfo{
			Name:           name,
			DefaultQuota:   subject.DefaultQuota,
			CategoryQuotas: subject.CategoryQuotas,
		})
	}

	c.JSON(http.StatusOK, gin.H{"subjects": subjects})
}
