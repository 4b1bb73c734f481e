package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/text"
	apperrors "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/logger"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 4 << 20

// MatchRequest is the body of POST /match/{strategy}.
type MatchRequest struct {
	ResumeText string `json:"resume_text" validate:"required"`
}

// MatchResponse is the success body of POST /match/{strategy}.
type MatchResponse struct {
	Matches []ranking.NormalizedMatch `json:"matches"`
	Time    float64                   `json:"time"`
}

type ExperienceRequest struct {
	Text string `json:"text" validate:"required"`
}

type StrategyInfo struct {
	ID      ranking.Strategy `json:"id"`
	Aliases []string         `json:"aliases"`
}

type CorpusInfo struct {
	Loaded    bool      `json:"loaded"`
	Version   string    `json:"version,omitempty"`
	Documents int       `json:"documents"`
	LoadedAt  time.Time `json:"loaded_at,omitzero"`
	Artifacts []string  `json:"artifacts"`
}

// CorpusAdmin is the part of corpus.Cache the admin routes use.
type CorpusAdmin interface {
	Current() *corpus.Corpus
	Invalidate(reason string)
}

// UpdateNotifier tells other replicas to drop their corpus.
type UpdateNotifier interface {
	Notify(ctx context.Context, reason string) error
}

type Handler struct {
	service  *Service
	corpus   CorpusAdmin
	notifier UpdateNotifier
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler serves the matching API. notifier may be nil.
func NewHandler(service *Service, admin CorpusAdmin, notifier UpdateNotifier) *Handler {
	return &Handler{
		service:  service,
		corpus:   admin,
		notifier: notifier,
		validate: newValidator(),
		logger:   slog.Default().With("component", "matching-handler"),
	}
}

// Register adds the matching routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /match/{strategy}", h.Match)
	mux.HandleFunc("GET /api/v1/strategies", h.Strategies)
	mux.HandleFunc("GET /api/v1/corpus", h.Corpus)
	mux.HandleFunc("POST /api/v1/corpus/invalidate", h.InvalidateCorpus)
	mux.HandleFunc("POST /api/v1/experience", h.Experience)
}

func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.Match(r.Context(), r.PathValue("strategy"), req.ResumeText)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, MatchResponse{Matches: res.Matches, Time: res.Seconds})
}

func (h *Handler) Strategies(w http.ResponseWriter, r *http.Request) {
	available := h.service.Strategies()
	out := make([]StrategyInfo, 0, len(available))
	for _, st := range available {
		aliases := st.Aliases()
		if aliases == nil {
			aliases = []string{}
		}
		out = append(out, StrategyInfo{ID: st, Aliases: aliases})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"strategies": out,
		"top_k":      h.service.TopK(),
	})
}

func (h *Handler) Corpus(w http.ResponseWriter, r *http.Request) {
	info := CorpusInfo{Artifacts: []string{}}
	if cur := h.corpus.Current(); cur != nil {
		info.Loaded = true
		info.Version = cur.Version
		info.Documents = cur.Len()
		info.LoadedAt = cur.LoadedAt
		info.Artifacts = cur.ArtifactKeys()
	}
	h.writeJSON(w, http.StatusOK, info)
}

// InvalidateCorpus drops the prepared corpus here and, when a notifier is
// configured, on every other replica.
func (h *Handler) InvalidateCorpus(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "api"
	}
	h.corpus.Invalidate(reason)

	notified := false
	if h.notifier != nil {
		if err := h.notifier.Notify(r.Context(), reason); err != nil {
			logger.FromContext(r.Context()).Error("corpus update notification failed", "error", err)
		} else {
			notified = true
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "invalidated",
		"notified": notified,
	})
}

// Experience estimates the years of experience a text asks for.
func (h *Handler) Experience(w http.ResponseWriter, r *http.Request) {
	var req ExperienceRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"years": text.EstimateExperienceYears(req.Text)})
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large", "code": "payload_too_large"})
			return false
		}
		h.writeError(w, apperrors.Invalid("invalid JSON body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, apperrors.Invalid("%s", validationMessage(err)))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "required" {
			return fmt.Sprintf("%s is required", fe.Field())
		}
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
	return "invalid request"
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, apperrors.HTTPStatusCode(err), map[string]string{
		"error": apperrors.PublicMessage(err),
		"code":  apperrors.Code(err),
	})
}
