package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"blog-job-pipeline/internal/domain"
	"blog-job-pipeline/internal/domain/model"
)

// JobView is the public projection of a job. Provider internals never reach it.
type JobView struct {
	TrackingID string        `json:"trackingId"`
	Topic      string        `json:"topic"`
	Settings   SettingsView  `json:"settings"`
	Status     string        `json:"status"`
	Progress   int           `json:"progress"`
	Title      string        `json:"title,omitempty"`
	Content    string        `json:"content,omitempty"`
	WordCount  int           `json:"wordCount"`
	Images     []string      `json:"images"`
	Rating     *RatingView   `json:"rating,omitempty"`
	Message    string        `json:"message"`
	LastStage  string        `json:"lastStage,omitempty"`
	Degraded   []string      `json:"degraded,omitempty"`
	Error      *JobErrorView `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

type SettingsView struct {
	Tone   string `json:"tone"`
	Length string `json:"length"`
}

type RatingView struct {
	Score  int    `json:"score"`
	Review string `json:"review"`
}

type JobErrorView struct {
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func toJobView(j *model.BlogJob) JobView {
	v := JobView{
		TrackingID: j.TrackingID,
		Topic:      j.Topic,
		Settings:   SettingsView{Tone: string(j.Settings.Tone), Length: string(j.Settings.Length)},
		Status:     string(j.Status),
		Progress:   j.Progress,
		Title:      j.Title,
		Content:    j.Content,
		WordCount:  j.WordCount,
		Images:     append([]string{}, j.Images...),
		Message:    j.Message,
		LastStage:  string(j.LastStage),
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
	if j.Rating != nil {
		v.Rating = &RatingView{Score: j.Rating.Score, Review: j.Rating.Review}
	}
	for _, s := range j.Degraded {
		v.Degraded = append(v.Degraded, string(s))
	}
	if j.Error != nil {
		v.Error = &JobErrorView{Stage: string(j.Error.Stage), Reason: j.Error.Reason, Message: j.Error.Message}
	}
	return v
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

// statusFor maps domain errors onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrPreconditionFailed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= 500 {
		s.logger(r).Error().Err(err).Msg("request failed")
		msg = http.StatusText(code)
	}
	writeError(w, code, msg)
}
