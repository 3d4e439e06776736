// Package jobrepo persists blog jobs in the "jobs" collection of any DocumentStore.
package jobrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"blog-job-pipeline/internal/domain/model"
	"blog-job-pipeline/internal/domain/ports/repository"
)

const Collection = "jobs"

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	store repository.DocumentStore
}

func NewJobRepository(store repository.DocumentStore) repository.JobRepository {
	return &jobRepo{store: store}
}

// jobDocument is the stored shape. Timestamps are Unix milliseconds so every
// backend orders and compares them numerically.
type jobDocument struct {
	TrackingID string       `json:"trackingId"`
	Topic      string       `json:"topic"`
	Settings   settingsDoc  `json:"settings"`
	Status     string       `json:"status"`
	Progress   int          `json:"progress"`
	Title      string       `json:"title"`
	Content    string       `json:"content"`
	WordCount  int          `json:"wordCount"`
	Images     []string     `json:"images"`
	Rating     *ratingDoc   `json:"rating"`
	Message    string       `json:"message"`
	LastStage  string       `json:"lastStage"`
	Degraded   []string     `json:"degraded"`
	Error      *jobErrorDoc `json:"error"`
	CreatedAt  int64        `json:"createdAt"`
	UpdatedAt  int64        `json:"updatedAt"`
}

type settingsDoc struct {
	Tone   string `json:"tone"`
	Length string `json:"length"`
}

type ratingDoc struct {
	Score  int    `json:"score"`
	Review string `json:"review"`
}

type jobErrorDoc struct {
	Stage    string `json:"stage"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`
	AtStatus string `json:"atStatus"`
}

func toDoc(j *model.BlogJob) jobDocument {
	d := jobDocument{
		TrackingID: j.TrackingID,
		Topic:      j.Topic,
		Settings:   settingsDoc{Tone: string(j.Settings.Tone), Length: string(j.Settings.Length)},
		Status:     string(j.Status),
		Progress:   j.Progress,
		Title:      j.Title,
		Content:    j.Content,
		WordCount:  j.WordCount,
		Images:     append([]string{}, j.Images...),
		Message:    j.Message,
		LastStage:  string(j.LastStage),
		Degraded:   make([]string, 0, len(j.Degraded)),
		CreatedAt:  j.CreatedAt.UnixMilli(),
		UpdatedAt:  j.UpdatedAt.UnixMilli(),
	}
	for _, s := range j.Degraded {
		d.Degraded = append(d.Degraded, string(s))
	}
	if j.Rating != nil {
		d.Rating = &ratingDoc{Score: j.Rating.Score, Review: j.Rating.Review}
	}
	if j.Error != nil {
		d.Error = &jobErrorDoc{Stage: string(j.Error.Stage), Reason: j.Error.Reason, Message: j.Error.Message, AtStatus: string(j.Error.AtStatus)}
	}
	return d
}

func (d jobDocument) toModel() *model.BlogJob {
	j := &model.BlogJob{
		TrackingID: d.TrackingID,
		Topic:      d.Topic,
		Settings:   model.Settings{Tone: model.Tone(d.Settings.Tone), Length: model.Length(d.Settings.Length)},
		Status:     model.JobStatus(d.Status),
		Progress:   d.Progress,
		Title:      d.Title,
		Content:    d.Content,
		WordCount:  d.WordCount,
		Images:     d.Images,
		Message:    d.Message,
		LastStage:  model.Stage(d.LastStage),
		CreatedAt:  time.UnixMilli(d.CreatedAt).UTC(),
		UpdatedAt:  time.UnixMilli(d.UpdatedAt).UTC(),
	}
	for _, s := range d.Degraded {
		j.Degraded = append(j.Degraded, model.Stage(s))
	}
	if d.Rating != nil {
		j.Rating = &model.Rating{Score: d.Rating.Score, Review: d.Rating.Review}
	}
	if d.Error != nil {
		j.Error = &model.JobError{Stage: model.Stage(d.Error.Stage), Reason: d.Error.Reason, Message: d.Error.Message, AtStatus: model.JobStatus(d.Error.AtStatus)}
	}
	return j
}

func encode(j *model.BlogJob) (repository.Document, error) {
	b, err := json.Marshal(toDoc(j))
	if err != nil {
		return nil, err
	}
	var doc repository.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decode(doc repository.Document) (*model.BlogJob, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var d jobDocument
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return d.toModel(), nil
}

func (r *jobRepo) Create(ctx context.Context, job *model.BlogJob) error {
	doc, err := encode(job)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, Collection, job.TrackingID, doc)
}

func (r *jobRepo) FindByID(ctx context.Context, id string) (*model.BlogJob, error) {
	doc, err := r.store.Get(ctx, Collection, id)
	if err != nil {
		return nil, err
	}
	return decode(doc)
}

func (r *jobRepo) Save(ctx context.Context, job *model.BlogJob, expected ...model.JobStatus) error {
	doc, err := encode(job)
	if err != nil {
		return err
	}
	// identity and creation time never change
	delete(doc, "trackingId")
	delete(doc, "createdAt")

	if len(expected) == 0 {
		return r.store.Update(ctx, Collection, job.TrackingID, doc)
	}
	return r.store.UpdateIf(ctx, Collection, job.TrackingID, []repository.Filter{statusIn(expected)}, doc)
}

func (r *jobRepo) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, Collection, id)
}

func (r *jobRepo) DeleteIf(ctx context.Context, id string, f repository.JobFilter) error {
	return r.store.DeleteIf(ctx, Collection, id, jobConds(f))
}

func (r *jobRepo) List(ctx context.Context, f repository.JobFilter) ([]*model.BlogJob, error) {
	q := repository.Query{Filters: jobConds(f), OrderBy: "createdAt", Desc: true, Limit: f.Limit}
	docs, err := r.store.Query(ctx, Collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]*model.BlogJob, 0, len(docs))
	for _, d := range docs {
		j, err := decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

func jobConds(f repository.JobFilter) []repository.Filter {
	var conds []repository.Filter
	if len(f.Statuses) > 0 {
		conds = append(conds, statusIn(f.Statuses))
	}
	if !f.UpdatedBefore.IsZero() {
		conds = append(conds, repository.Filter{Field: "updatedAt", Op: repository.OpLt, Value: f.UpdatedBefore.UnixMilli()})
	}
	return conds
}

func statusIn(statuses []model.JobStatus) repository.Filter {
	vals := make([]any, 0, len(statuses))
	for _, s := range statuses {
		vals = append(vals, string(s))
	}
	return repository.Filter{Field: "status", Op: repository.OpIn, Value: vals}
}
