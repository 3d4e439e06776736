package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"blog-job-pipeline/internal/domain"
)

type JobStatus string

const (
	JobStatusInit       JobStatus = "init"
	JobStatusTopicReady JobStatus = "topic_ready"
	JobStatusDrafting   JobStatus = "drafting"
	JobStatusDrafted    JobStatus = "drafted"
	JobStatusRating     JobStatus = "rating"
	JobStatusRated      JobStatus = "rated"
	JobStatusRewriting  JobStatus = "rewriting"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// AllStatuses in pipeline order, failed last.
var AllStatuses = []JobStatus{
	JobStatusInit, JobStatusTopicReady, JobStatusDrafting, JobStatusDrafted,
	JobStatusRating, JobStatusRated, JobStatusRewriting, JobStatusCompleted, JobStatusFailed,
}

var statusRank = map[JobStatus]int{
	JobStatusInit:       0,
	JobStatusTopicReady: 1,
	JobStatusDrafting:   2,
	JobStatusDrafted:    3,
	JobStatusRating:     4,
	JobStatusRated:      5,
	JobStatusRewriting:  6,
	JobStatusCompleted:  7,
}

var statusProgress = map[JobStatus]int{
	JobStatusInit:       0,
	JobStatusTopicReady: 15,
	JobStatusDrafting:   25,
	JobStatusDrafted:    45,
	JobStatusRating:     55,
	JobStatusRated:      70,
	JobStatusRewriting:  80,
	JobStatusCompleted:  100,
}

func (s JobStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == JobStatusFailed
}

// IsTerminal reports whether no further stage runs for the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Progress is the percentage shown to pollers for the status.
func (s JobStatus) Progress() int { return statusProgress[s] }

// CanTransition allows forward moves and jumps to failed from any non-terminal status.
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == JobStatusFailed {
		return true
	}
	f, ok1 := statusRank[from]
	t, ok2 := statusRank[to]
	return ok1 && ok2 && t > f
}

// LaterStatus returns whichever of a and b is further along the pipeline.
func LaterStatus(a, b JobStatus) JobStatus {
	if statusRank[b] > statusRank[a] {
		return b
	}
	return a
}

type Stage string

const (
	StageTopicRefiner Stage = "TopicRefiner"
	StageDrafter      Stage = "Drafter"
	StageRater        Stage = "Rater"
	StageRewriter     Stage = "Rewriter"
	StageImageFinder  Stage = "ImageFinder"
)

var AllStages = []Stage{StageTopicRefiner, StageDrafter, StageRater, StageRewriter, StageImageFinder}

func ParseStage(s string) (Stage, error) {
	for _, st := range AllStages {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidArgument, s)
}

// RunningStatus is the status persisted while the stage is in flight, if any.
func (s Stage) RunningStatus() (JobStatus, bool) {
	switch s {
	case StageDrafter:
		return JobStatusDrafting, true
	case StageRater:
		return JobStatusRating, true
	case StageRewriter:
		return JobStatusRewriting, true
	}
	return "", false
}

// DoneStatus is the status reached once the stage's output is persisted.
// ImageFinder has none: its output is attached without a status change.
func (s Stage) DoneStatus() (JobStatus, bool) {
	switch s {
	case StageTopicRefiner:
		return JobStatusTopicReady, true
	case StageDrafter:
		return JobStatusDrafted, true
	case StageRater:
		return JobStatusRated, true
	case StageRewriter:
		return JobStatusCompleted, true
	}
	return "", false
}

// NextStage returns the sequential stage to run from a non-terminal status.
// In-flight statuses map to their own stage since its output was never persisted.
func NextStage(s JobStatus) (Stage, bool) {
	switch s {
	case JobStatusInit:
		return StageTopicRefiner, true
	case JobStatusTopicReady, JobStatusDrafting:
		return StageDrafter, true
	case JobStatusDrafted, JobStatusRating:
		return StageRater, true
	case JobStatusRated, JobStatusRewriting:
		return StageRewriter, true
	}
	return "", false
}

type Tone string

const (
	ToneProfessional  Tone = "professional"
	ToneCasual        Tone = "casual"
	ToneFriendly      Tone = "friendly"
	ToneAuthoritative Tone = "authoritative"
	ToneHumorous      Tone = "humorous"
)

type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

var targetWords = map[Length]int{LengthShort: 600, LengthMedium: 1200, LengthLong: 2000}

// Settings is the closed set of generation options accepted on submit.
type Settings struct {
	Tone   Tone
	Length Length
}

// Normalize fills defaults and rejects values outside the closed sets.
func (s Settings) Normalize() (Settings, error) {
	s.Tone = Tone(strings.ToLower(strings.TrimSpace(string(s.Tone))))
	s.Length = Length(strings.ToLower(strings.TrimSpace(string(s.Length))))
	if s.Tone == "" {
		s.Tone = ToneProfessional
	}
	if s.Length == "" {
		s.Length = LengthMedium
	}
	switch s.Tone {
	case ToneProfessional, ToneCasual, ToneFriendly, ToneAuthoritative, ToneHumorous:
	default:
		return s, fmt.Errorf("%w: unsupported tone %q", domain.ErrInvalidArgument, s.Tone)
	}
	if _, ok := targetWords[s.Length]; !ok {
		return s, fmt.Errorf("%w: unsupported length %q", domain.ErrInvalidArgument, s.Length)
	}
	return s, nil
}

func (s Settings) TargetWords() int {
	if n, ok := targetWords[s.Length]; ok {
		return n
	}
	return targetWords[LengthMedium]
}

type Rating struct {
	Score  int
	Review string
}

const (
	FailureReasonStage     = "stage_failed"
	FailureReasonCancelled = "cancelled"
)

// JobError is the stage-tagged failure exposed to pollers.
type JobError struct {
	Stage    Stage
	Reason   string
	Message  string
	AtStatus JobStatus
}

// BlogJob is the persisted job record polled by callers.
type BlogJob struct {
	TrackingID string
	Topic      string
	Settings   Settings
	Status     JobStatus
	Progress   int
	Title      string
	Content    string
	WordCount  int
	Images     []string
	Rating     *Rating
	Message    string
	LastStage  Stage
	Degraded   []Stage
	Error      *JobError
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var trackingIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func ValidTrackingID(id string) bool { return trackingIDRe.MatchString(id) }

// NewBlogJob creates a job in init status.
func NewBlogJob(id, topic string, settings Settings, now time.Time) (*BlogJob, error) {
	topic = strings.TrimSpace(topic)
	if !ValidTrackingID(id) {
		return nil, fmt.Errorf("%w: invalid tracking id", domain.ErrInvalidArgument)
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", domain.ErrInvalidArgument)
	}
	st, err := settings.Normalize()
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &BlogJob{
		TrackingID: id,
		Topic:      topic,
		Settings:   st,
		Status:     JobStatusInit,
		Progress:   0,
		Message:    "Job created",
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (j *BlogJob) IsTerminal() bool { return j.Status.IsTerminal() }

// Age is measured from the last mutation.
func (j *BlogJob) Age(now time.Time) time.Duration { return now.Sub(j.UpdatedAt) }

// Advance moves the job to status, keeping progress monotonic.
func (j *BlogJob) Advance(to JobStatus, msg string, now time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, j.Status, to)
	}
	if to == JobStatusCompleted {
		if err := j.CheckComplete(); err != nil {
			return err
		}
	}
	j.Status = to
	if p := to.Progress(); p > j.Progress {
		j.Progress = p
	}
	j.Message = msg
	j.UpdatedAt = now.UTC()
	return nil
}

// Fail marks the job failed, remembering the status it failed from.
func (j *BlogJob) Fail(stage Stage, reason, msg string, now time.Time) error {
	if j.IsTerminal() {
		return fmt.Errorf("%w: job is %s", domain.ErrInvalidTransition, j.Status)
	}
	j.Error = &JobError{Stage: stage, Reason: reason, Message: msg, AtStatus: j.Status}
	j.Status = JobStatusFailed
	j.Message = msg
	j.UpdatedAt = now.UTC()
	return nil
}

// Reopen returns a failed job to a pipeline status after a successful retry.
// Progress never decreases.
func (j *BlogJob) Reopen(to JobStatus, msg string, now time.Time) error {
	if j.Status != JobStatusFailed || to == JobStatusFailed || !to.Valid() {
		return fmt.Errorf("%w: reopen %s -> %s", domain.ErrInvalidTransition, j.Status, to)
	}
	if to == JobStatusCompleted {
		if err := j.CheckComplete(); err != nil {
			return err
		}
	}
	j.Error = nil
	j.Status = to
	if p := to.Progress(); p > j.Progress {
		j.Progress = p
	}
	j.Message = msg
	j.UpdatedAt = now.UTC()
	return nil
}

// CheckComplete enforces the completion requirements.
func (j *BlogJob) CheckComplete() error {
	switch {
	case strings.TrimSpace(j.Title) == "":
		return fmt.Errorf("%w: completion requires a title", domain.ErrInvalidTransition)
	case strings.TrimSpace(j.Content) == "":
		return fmt.Errorf("%w: completion requires content", domain.ErrInvalidTransition)
	case len(j.Images) == 0:
		return fmt.Errorf("%w: completion requires at least one image", domain.ErrInvalidTransition)
	}
	return nil
}

// SetDegraded records whether the stage's current output is a fallback.
func (j *BlogJob) SetDegraded(stage Stage, degraded bool) {
	out := j.Degraded[:0:0]
	for _, s := range j.Degraded {
		if s != stage {
			out = append(out, s)
		}
	}
	if degraded {
		out = append(out, stage)
	}
	j.Degraded = out
}

// Clone returns a deep copy.
func (j *BlogJob) Clone() *BlogJob {
	if j == nil {
		return nil
	}
	c := *j
	c.Images = append([]string(nil), j.Images...)
	c.Degraded = append([]Stage(nil), j.Degraded...)
	if j.Rating != nil {
		r := *j.Rating
		c.Rating = &r
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return &c
}
