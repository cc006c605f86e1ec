package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"quizrank-service/internal/app"
	"quizrank-service/internal/domain"
	"quizrank-service/internal/export"
	"quizrank-service/internal/quiz"
	"quizrank-service/internal/ranking"
)

// Handler serves the quiz and ranking REST API.
type Handler struct {
	quizzes  *app.QuizService
	banks    app.BankRepository
	rankings ranking.RankingRepository
	agg      *ranking.Aggregator
	suite    *quiz.ValidationSuite
	validate *validator.Validate
	logger   *slog.Logger
}

// Deps groups the collaborators of Handler.
type Deps struct {
	Quizzes  *app.QuizService
	Banks    app.BankRepository
	Rankings ranking.RankingRepository
	Agg      *ranking.Aggregator
	Suite    *quiz.ValidationSuite
}

func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		quizzes:  deps.Quizzes,
		banks:    deps.Banks,
		rankings: deps.Rankings,
		agg:      deps.Agg,
		suite:    deps.Suite,
		validate: validator.New(),
		logger:   logger.With("component", "http"),
	}
}

type generateQuizRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	ModuleID  string `json:"moduleId" validate:"required"`
}

// quizQuestionView is a shuffled question without its answer key.
type quizQuestionView struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Options    []string          `json:"options"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Category   string            `json:"category,omitempty"`
}

type quizView struct {
	ID             string             `json:"id"`
	StudentID      string             `json:"studentId"`
	ModuleID       string             `json:"moduleId"`
	QuestionBankID string             `json:"questionBankId"`
	Seed           string             `json:"seed"`
	AttemptNumber  int                `json:"attemptNumber"`
	PassingScore   int                `json:"passingScore"`
	TotalPoints    int                `json:"totalPoints"`
	CreatedAt      time.Time          `json:"createdAt"`
	Questions      []quizQuestionView `json:"questions"`
}

func newQuizView(q domain.RandomizedQuiz) quizView {
	v := quizView{
		ID:             q.ID,
		StudentID:      q.StudentID,
		ModuleID:       q.ModuleID,
		QuestionBankID: q.QuestionBankID,
		Seed:           q.Seed,
		AttemptNumber:  q.AttemptNumber,
		PassingScore:   q.PassingScore,
		TotalPoints:    q.TotalPoints,
		CreatedAt:      q.CreatedAt,
		Questions:      make([]quizQuestionView, 0, len(q.SelectedQuestions)),
	}
	for _, sq := range q.SelectedQuestions {
		v.Questions = append(v.Questions, quizQuestionView{
			ID:         sq.OriginalID,
			Text:       sq.Text,
			Options:    sq.ShuffledOptions,
			Difficulty: sq.Difficulty,
			Category:   sq.Category,
		})
	}
	return v
}

func (h *Handler) GenerateQuiz(w http.ResponseWriter, r *http.Request) {
	var req generateQuizRequest
	if !h.decode(w, r, &req) {
		return
	}
	q, err := h.quizzes.GenerateQuiz(r.Context(), req.StudentID, req.ModuleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newQuizView(q))
}

// ReplayQuiz returns the full quiz, answer key included, reassembled from its seed.
func (h *Handler) ReplayQuiz(w http.ResponseWriter, r *http.Request) {
	q, err := h.quizzes.Replay(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var sub app.Submission
	if !h.decode(w, r, &sub) {
		return
	}
	attempt, err := h.quizzes.SubmitAttempt(r.Context(), chi.URLParam(r, "quizID"), sub)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

func (h *Handler) StudentStats(w http.ResponseWriter, r *http.Request) {
	report, err := h.quizzes.StudentStats(r.Context(), chi.URLParam(r, "studentID"), chi.URLParam(r, "moduleID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ResetScore deletes a student's unified score and removes them from class rankings.
func (h *Handler) ResetScore(w http.ResponseWriter, r *http.Request) {
	if err := h.quizzes.ResetScore(r.Context(), chi.URLParam(r, "studentID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetRanking(w http.ResponseWriter, r *http.Request) {
	doc, err := h.rankings.Get(r.Context(), chi.URLParam(r, "classID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) RebuildRanking(w http.ResponseWriter, r *http.Request) {
	doc, err := h.agg.BuildFull(r.Context(), chi.URLParam(r, "classID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) VerifyRanking(w http.ResponseWriter, r *http.Request) {
	report, err := h.agg.Verify(r.Context(), chi.URLParam(r, "classID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ExportRanking streams the class ranking as XLSX. ?anonymize=true hides names and emails.
func (h *Handler) ExportRanking(w http.ResponseWriter, r *http.Request) {
	doc, err := h.rankings.Get(r.Context(), chi.URLParam(r, "classID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	anonymize, _ := strconv.ParseBool(r.URL.Query().Get("anonymize"))
	data, err := export.RankingWorkbook(doc, export.Options{Anonymize: anonymize})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(doc)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) RankingStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.agg.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) RegenerateRankings(w http.ResponseWriter, r *http.Request) {
	report, err := h.agg.RegenerateAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// QuizHealth runs the validation suite against the bank of ?moduleId=.
func (h *Handler) QuizHealth(w http.ResponseWriter, r *http.Request) {
	moduleID := r.URL.Query().Get("moduleId")
	if moduleID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "VALIDATION_ERROR", Message: "moduleId is required"})
		return
	}
	bank, err := h.banks.GetBank(r.Context(), moduleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	report := h.suite.RunAll(bank)
	status := http.StatusOK
	if !report.Overall.Valid {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "VALIDATION_ERROR", Message: "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		fields := map[string]string{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "VALIDATION_ERROR", Message: "validation failed", Fields: fields})
		return false
	}
	return true
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Kind    string            `json:"kind,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// statusFor maps an error kind to the HTTP status reported to clients.
func statusFor(err error) (int, string) {
	if errors.Is(err, domain.ErrQuizOwnership) {
		return http.StatusForbidden, "FORBIDDEN"
	}
	switch domain.KindOf(err) {
	case domain.KindFatal:
		return http.StatusUnprocessableEntity, "UNPROCESSABLE"
	case domain.KindNotFound, domain.KindSkippable:
		return http.StatusNotFound, "NOT_FOUND"
	case domain.KindRetryable:
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", domain.KindOf(err).String(),
			"error", err)
	}
	writeJSON(w, status, errorBody{Code: code, Message: err.Error(), Kind: domain.KindOf(err).String()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
