package resumes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"resumind/internal/inference"
	"resumind/internal/intake"
	"resumind/internal/raster"
	"resumind/internal/shared/metrics"
	"resumind/internal/shared/server/middleware"
	"resumind/internal/shared/storage/kv"
	"resumind/internal/shared/telemetry"
)

// Stage names a step of the submission pipeline.
type Stage string

const (
	StageValidate        Stage = "validate"
	StageUploadSource    Stage = "upload_source"
	StageRasterize       Stage = "rasterize"
	StageUploadRaster    Stage = "upload_raster"
	StagePersistDraft    Stage = "persist_draft"
	StageRequestFeedback Stage = "request_feedback"
	StagePersistFinal    Stage = "persist_final"
	StageComplete        Stage = "complete"
)

// Status lines shown before each stage runs.
const (
	StatusUploading       = "Uploading the file..."
	StatusConverting      = "Converting to image..."
	StatusUploadingImage  = "Uploading the image..."
	StatusPreparing       = "Preparing data..."
	StatusAnalyzing       = "Analyzing..."
	StatusComplete        = "Analysis complete, redirecting..."
	StatusNoFile          = "Error: No file selected"
	StatusUploadFailed    = "Error: File upload failed"
	StatusImageFailed     = "Error: Image upload failed"
	StatusAnalysisFailed  = "Error: Failed to analyze resume (tokens likely exhausted)"
	conversionFallbackMsg = "Failed to convert PDF to image"
)

// Submission is the user input for one pipeline run.
type Submission struct {
	File           *intake.File
	CompanyName    string
	JobTitle       string
	JobDescription string
}

// StatusFunc receives every status line in order.
type StatusFunc func(status string)

// RecoveryAction is offered when analysis fails.
type RecoveryAction struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Href  string `json:"href"`
}

// Outcome is the terminal state of a submission.
type Outcome struct {
	ID         string           `json:"id,omitempty"`
	Status     string           `json:"status"`
	Statuses   []string         `json:"statuses"`
	Record     *ResumeRecord    `json:"record,omitempty"`
	Redirect   string           `json:"redirect,omitempty"`
	DisplayURL string           `json:"displayUrl,omitempty"`
	Recovery   []RecoveryAction `json:"recovery,omitempty"`
	Writes     []string         `json:"writes,omitempty"`
	Err        *StageError      `json:"-"`
}

// OK reports whether the submission completed.
func (o Outcome) OK() bool { return o.Err == nil }

type run struct {
	svc       *Service
	userID    string
	requestID string
	onStatus  StatusFunc
	out       Outcome
	span      trace.Span
}

func (r *run) status(s string) {
	r.out.Status = s
	r.out.Statuses = append(r.out.Statuses, s)
	if r.onStatus != nil {
		r.onStatus(s)
	}
}

func (r *run) abort(kind Kind, stage Stage, status string, err error) Outcome {
	r.status(status)
	r.out.Err = &StageError{Kind: kind, Stage: stage, Message: status, Err: err}
	r.span.SetStatus(codes.Error, string(kind))
	if err != nil {
		r.span.RecordError(err)
	}
	metrics.IncSubmission(string(kind))
	fields := map[string]any{
		"user_id":    r.userID,
		"request_id": r.requestID,
		"stage":      string(stage),
		"kind":       string(kind),
		"status":     status,
	}
	if r.out.ID != "" {
		fields["resume_id"] = r.out.ID
	}
	if err != nil {
		fields["err"] = err
	}
	telemetry.Warn("submission.aborted", fields)
	return r.out
}

// stage runs fn inside a child span and records its duration.
func (r *run) stage(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "submission."+string(stage))
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	metrics.ObserveStage(string(stage), time.Since(start))
	span.SetAttributes(attribute.Bool("success", err == nil))
	if err != nil {
		span.RecordError(err)
	}
	telemetry.Debug("submission.stage", map[string]any{
		"user_id":     r.userID,
		"request_id":  r.requestID,
		"stage":       string(stage),
		"duration_ms": time.Since(start).Milliseconds(),
		"ok":          err == nil,
	})
	return err
}

const tracerName = "resumind.resumes"

// Submit runs the submission pipeline. Stages run strictly in order, once
// each. Failures before the draft write leave nothing persisted; an
// analysis failure leaves the draft with empty feedback.
func (s *Service) Submit(ctx context.Context, userID string, sub Submission, onStatus StatusFunc) Outcome {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "submission")
	defer span.End()

	r := &run{svc: s, userID: userID, requestID: middleware.RequestIDFrom(ctx), onStatus: onStatus, span: span}

	// Validate
	if sub.File == nil || len(sub.File.Data) == 0 {
		return r.abort(ValidationError, StageValidate, StatusNoFile, intake.ErrNoFile)
	}
	if err := intake.Validate(sub.File); err != nil {
		return r.abort(ValidationError, StageValidate, "Error: "+err.Error(), err)
	}
	store := s.records(userID)

	// UploadSource
	r.status(StatusUploading)
	var resumePath string
	err := r.stage(ctx, StageUploadSource, func(ctx context.Context) error {
		var err error
		resumePath, err = s.upload(ctx, userID, sub.File)
		return err
	})
	if err != nil {
		return r.abort(UploadError, StageUploadSource, StatusUploadFailed, err)
	}

	// Rasterize
	r.status(StatusConverting)
	var converted raster.Result
	_ = r.stage(ctx, StageRasterize, func(ctx context.Context) error {
		converted = s.converter().Convert(ctx, raster.Request{File: sub.File, Owner: userID, Slot: "upload"})
		if !converted.OK() {
			return errors.New(converted.Error)
		}
		return nil
	})
	if !converted.OK() {
		msg := strings.TrimSpace(converted.Error)
		if msg == "" {
			msg = conversionFallbackMsg
		}
		return r.abort(ConversionError, StageRasterize, "Error: "+msg, errors.New(msg))
	}
	r.out.DisplayURL = converted.DisplayURL

	// UploadRaster
	r.status(StatusUploadingImage)
	var imagePath string
	err = r.stage(ctx, StageUploadRaster, func(ctx context.Context) error {
		var err error
		imagePath, err = s.upload(ctx, userID, converted.Image)
		return err
	})
	if err != nil {
		return r.abort(UploadError, StageUploadRaster, StatusImageFailed, err)
	}

	// PersistDraft
	r.status(StatusPreparing)
	rec := ResumeRecord{
		ID:             uuid.NewString(),
		ResumePath:     resumePath,
		ImagePath:      imagePath,
		CompanyName:    sub.CompanyName,
		JobTitle:       sub.JobTitle,
		JobDescription: sub.JobDescription,
	}
	r.out.ID = rec.ID
	span.SetAttributes(attribute.String("resume_id", rec.ID))
	r.persist(ctx, store, rec, StagePersistDraft)

	// RequestFeedback
	r.status(StatusAnalyzing)
	var report *FeedbackReport
	err = r.stage(ctx, StageRequestFeedback, func(ctx context.Context) error {
		resp, err := s.feedback(ctx, inference.DocumentRef{
			Path:        resumePath,
			Name:        sub.File.Name,
			ContentType: intake.PDFContentType,
		}, Instructions(sub.JobTitle, sub.JobDescription))
		if err != nil {
			return err
		}
		if resp == nil {
			return inference.ErrEmptyResponse
		}
		report, err = ParseFeedback(resp.Text())
		return err
	})
	if err != nil {
		draft := rec
		r.out.Record = &draft
		r.out.Recovery = s.recoveryActions()
		return r.abort(InferenceError, StageRequestFeedback, StatusAnalysisFailed, err)
	}

	// PersistFinal
	rec.Feedback = report
	r.persist(ctx, store, rec, StagePersistFinal)

	// Complete
	r.status(StatusComplete)
	r.out.Record = &rec
	r.out.Redirect = DetailPath(rec.ID)
	span.SetStatus(codes.Ok, "")
	metrics.IncSubmission("completed")
	telemetry.Info("submission.completed", map[string]any{
		"user_id":   userID,
		"resume_id": rec.ID,
		"writes":    strings.Join(r.out.Writes, ","),
	})
	return r.out
}

func (r *run) persist(ctx context.Context, store kv.Store, rec ResumeRecord, stage Stage) {
	_ = r.stage(ctx, stage, func(ctx context.Context) error {
		result, err := r.svc.writer().Put(ctx, store, rec, stage)
		r.out.Writes = append(r.out.Writes, result.String())
		if err != nil {
			telemetry.Warn("submission.persist.ignored", map[string]any{
				"resume_id": rec.ID,
				"stage":     string(stage),
				"err":       err,
			})
		}
		return err
	})
}

// upload stores f and returns its path. An empty path counts as failure.
func (s *Service) upload(ctx context.Context, userID string, f *intake.File) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	key, _, _, err := s.Objects.Save(ctx, userID, f.Name, bytes.NewReader(f.Data))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		return "", errors.New("object store returned no reference")
	}
	return key, nil
}

func (s *Service) feedback(ctx context.Context, doc inference.DocumentRef, instructions string) (resp *inference.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	if s.Inference == nil {
		return nil, inference.ErrNotConfigured
	}
	return s.Inference.Feedback(ctx, doc, instructions)
}

func (s *Service) recoveryActions() []RecoveryAction {
	signIn := s.SignInPath
	if signIn == "" {
		signIn = DefaultSignInPath
	}
	fresh := signIn + "?" + url.Values{
		"next":   {"/upload"},
		"prompt": {"select_account"},
	}.Encode()
	quota := s.QuotaURL
	if quota == "" {
		quota = DefaultQuotaURL
	}
	logout := s.LogoutPath
	if logout == "" {
		logout = DefaultLogoutPath
	}
	return []RecoveryAction{
		{ID: "sign_in_fresh", Label: "Sign in with a different account", Href: fresh},
		{ID: "inspect_quota", Label: "Check usage and quota", Href: quota},
		{ID: "log_out", Label: "Log out", Href: logout},
		{ID: "home", Label: "Back to home", Href: "/"},
	}
}

// DetailPath is the API path of a record's detail view.
func DetailPath(id string) string {
	return "/api/v1/resumes/" + url.PathEscape(id)
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
