package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"documentgenerator/models"
	"documentgenerator/services"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type Downloader interface {
	Download(ctx context.Context, sourceURL, dstPath string) (int64, error)
}

type Converter interface {
	Convert(ctx context.Context, inputPath, originalFilename string) ([]byte, error)
}

type CallbackDeliverer interface {
	Deliver(ctx context.Context, backURL, pdfPath, filename string) (services.CallbackSession, error)
}

type Archiver interface {
	Archive(ctx context.Context, jobID, localPath, filename string) (string, error)
}

type Inspector interface {
	PageCount(pdfPath string) (int, error)
}

// Recorder receives job lifecycle events. Errors are logged and never
// change the outcome of a job.
type Recorder interface {
	Started(ctx context.Context, rec services.JobRecord) error
	Finished(ctx context.Context, rec services.JobRecord) error
}

// ProcessorDeps are the collaborators of a Processor. Transfer, Gateway and
// Callback are required; the rest may be nil.
type ProcessorDeps struct {
	Transfer         Downloader
	Gateway          Converter
	Callback         CallbackDeliverer
	Archive          Archiver
	Inspector        Inspector
	Recorders        []Recorder
	Metrics          *Metrics
	Logger           *zap.Logger
	ScratchDir       string
	FallbackFilename string
	// RecordTimeout bounds each recorder call. Zero means DefaultRecordTimeout.
	RecordTimeout    time.Duration
}

const DefaultRecordTimeout = 10 * time.Second

// Outcome is what a Processor decided for one delivery. Err is nil on
// success; Step names the failing step otherwise.
type Outcome struct {
	JobID      string
	Filename   string
	TargetPath string
	Step       string
	Err        error
}

func (o Outcome) Failed() bool { return o.Err != nil }

// Processor turns one delivery into a converted (and possibly delivered)
// PDF. It is built once per worker and holds no per-job state.
type Processor struct {
	deps   ProcessorDeps
	logger *zap.Logger
}

func NewProcessor(deps ProcessorDeps) *Processor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.FallbackFilename == "" {
		deps.FallbackFilename = models.DefaultFilename
	}
	if deps.RecordTimeout <= 0 {
		deps.RecordTimeout = DefaultRecordTimeout
	}
	return &Processor{deps: deps, logger: logger.Named("processor")}
}

// Handle processes d and acknowledges it exactly once, whatever happened.
// Failed jobs are logged and dropped, never requeued.
func (p *Processor) Handle(ctx context.Context, d amqp.Delivery) Outcome {
	start := time.Now()
	jobID := d.MessageId
	if jobID == "" {
		jobID = uuid.NewString()
	}
	log := p.logger.With(zap.String("job_id", jobID), zap.Uint64("delivery_tag", d.DeliveryTag))
	log.Info("processing message", zap.Bool("redelivered", d.Redelivered))

	p.deps.Metrics.start()
	rec := services.JobRecord{JobID: jobID, StartedAt: start}
	out := p.run(ctx, d.Body, &rec, log)

	rec.Duration = time.Since(start)
	rec.Status = services.StatusCompleted
	outcome := "success"
	if out.Failed() {
		rec.Status = services.StatusFailed
		rec.Step = out.Step
		rec.Error = out.Err.Error()
		outcome = "failure"
		log.Error("job failed",
			zap.String("source", rec.Source),
			zap.String("step", out.Step),
			zap.Error(out.Err),
			zap.Duration("duration", rec.Duration),
		)
	} else {
		log.Info("task finished",
			zap.String("source", rec.Source),
			zap.String("filename", out.Filename),
			zap.Duration("duration", rec.Duration),
		)
	}
	if rec.Source != "" {
		p.record(ctx, log, rec, Recorder.Finished)
	}
	p.deps.Metrics.finish(outcome, out.Step, rec.Duration)

	if err := d.Ack(false); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
	return out
}

func (p *Processor) run(ctx context.Context, body []byte, rec *services.JobRecord, log *zap.Logger) Outcome {
	out := Outcome{JobID: rec.JobID}

	job, err := models.ParseConversionJob(body)
	if err != nil {
		return p.fail(out, &services.ValidationError{Err: err})
	}
	rec.Source = job.File
	rec.BackURL = job.BackURL
	rec.Filename = models.DeriveFilename(job.File, p.deps.FallbackFilename)
	out.Filename = rec.Filename
	p.record(ctx, log, *rec, Recorder.Started)

	files, err := newWorkingFiles(p.deps.ScratchDir)
	if err != nil {
		return p.fail(out, err)
	}
	defer files.cleanup()

	log.Info("downloading", zap.String("source", job.File))
	size, err := p.deps.Transfer.Download(ctx, job.File, files.input)
	if err != nil {
		return p.fail(out, err)
	}

	gatewayName := gatewayFilename(job.File, files.input)
	log.Info("converting", zap.String("filename", gatewayName), zap.Int64("bytes", size))
	pdf, err := p.deps.Gateway.Convert(ctx, files.input, gatewayName)
	if err != nil {
		return p.fail(out, err)
	}
	if err := os.WriteFile(files.output, pdf, 0o600); err != nil {
		return p.fail(out, &services.GatewayError{Err: fmt.Errorf("failed to write pdf: %w", err)})
	}
	if p.deps.Inspector != nil {
		pages, err := p.deps.Inspector.PageCount(files.output)
		if err != nil {
			return p.fail(out, &services.GatewayError{Err: err})
		}
		log.Debug("pdf inspected", zap.Int("pages", pages))
	}
	log.Info("conversion successful", zap.Int("pdf_size", len(pdf)))

	if p.deps.Archive != nil {
		key, err := p.deps.Archive.Archive(ctx, rec.JobID, files.output, rec.Filename)
		if err != nil {
			log.Warn("archive failed", zap.Error(err))
		} else {
			rec.ArchiveKey = key
		}
	}

	if job.HasCallback() {
		session, err := p.deps.Callback.Deliver(ctx, job.BackURL, files.output, rec.Filename)
		if err != nil {
			return p.fail(out, err)
		}
		out.TargetPath = session.TargetPath
		log.Info("callback delivered", zap.String("back_url", job.BackURL), zap.String("target_path", session.TargetPath))
	}
	return out
}

func (p *Processor) fail(out Outcome, err error) Outcome {
	out.Err = err
	out.Step = classify(err)
	return out
}

func (p *Processor) record(ctx context.Context, log *zap.Logger, rec services.JobRecord, event func(Recorder, context.Context, services.JobRecord) error) {
	for _, r := range p.deps.Recorders {
		rctx, cancel := context.WithTimeout(ctx, p.deps.RecordTimeout)
		err := event(r, rctx, rec)
		cancel()
		if err != nil {
			log.Warn("failed to record job status", zap.Error(err))
		}
	}
}

// classify maps a job error to the step label used in logs, metrics and the
// status store.
func classify(err error) string {
	var (
		validationErr *services.ValidationError
		downloadErr   *services.DownloadError
		gatewayErr    *services.GatewayError
		callbackErr   *services.CallbackError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return "validate"
	case errors.As(err, &downloadErr):
		return "download"
	case errors.As(err, &gatewayErr):
		return "convert"
	case errors.As(err, &callbackErr):
		return "callback_" + callbackErr.Step
	default:
		return "internal"
	}
}

// gatewayFilename is the name the document is sent to Gotenberg under. The
// converter is chosen by extension, so an extensionless source gets one
// sniffed from its content.
func gatewayFilename(sourceURL, inputPath string) string {
	name := models.SourceFilename(sourceURL)
	if path.Ext(name) != "" {
		return name
	}
	mt, err := mimetype.DetectFile(inputPath)
	if err != nil {
		return name
	}
	return name + mt.Extension()
}

// workingFiles are the two scratch files of one job.
type workingFiles struct {
	input  string
	output string
}

func newWorkingFiles(dir string) (*workingFiles, error) {
	in, err := os.CreateTemp(dir, "doc-*.src")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	in.Close()

	out, err := os.CreateTemp(dir, "doc-*.pdf")
	if err != nil {
		os.Remove(in.Name())
		return nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	out.Close()

	return &workingFiles{input: in.Name(), output: out.Name()}, nil
}

// cleanup removes both files, ignoring errors.
func (w *workingFiles) cleanup() {
	_ = os.Remove(w.input)
	_ = os.Remove(w.output)
}
