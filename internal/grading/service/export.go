package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"essaygrade/internal/client"
	"essaygrade/internal/grading/export"
	"essaygrade/internal/grading/model"
	appErr "essaygrade/pkg/errors"
	"essaygrade/pkg/utils/logger"

	"go.uber.org/zap"
)

// ExportAPI reads results and server-side exports.
type ExportAPI interface {
	ListResults(ctx context.Context, examID int64, candidateID string) ([]model.ScoringResult, error)
	ExportResults(ctx context.Context, examID int64, format string, reviewedOnly bool) (client.Download, error)
	ExportSummary(ctx context.Context, examID int64) (model.Summary, error)
}

// ExportRequest selects what to export.
type ExportRequest struct {
	ExamID       int64
	ReviewedOnly bool
	Gzip         bool
}

// Exported describes a written export file.
type Exported struct {
	Name     string
	Location string
	Rows     int
	Bytes    int
}

// ExportService renders results through the export projection and stores them in a sink.
type ExportService struct {
	api  ExportAPI
	sink export.Sink
	now  func() time.Time
}

func NewExportService(api ExportAPI, sink export.Sink) *ExportService {
	if sink == nil {
		sink = export.DirSink{}
	}
	return &ExportService{api: api, sink: sink, now: time.Now}
}

// Rows lists an exam's results and projects them.
func (s *ExportService) Rows(ctx context.Context, examID int64, reviewedOnly bool) ([]export.Row, error) {
	if examID <= 0 {
		return nil, appErr.ValidationError("exam_id", "must be greater than 0")
	}
	results, err := s.api.ListResults(ctx, examID, "")
	if err != nil {
		return nil, err
	}
	return export.Project(results, reviewedOnly), nil
}

// CSV renders the projection locally and stores it in the sink.
func (s *ExportService) CSV(ctx context.Context, req ExportRequest) (Exported, error) {
	rows, err := s.Rows(ctx, req.ExamID, req.ReviewedOnly)
	if err != nil {
		return Exported{}, err
	}
	data, err := export.EncodeCSV(rows, export.Options{BOM: true, Gzip: req.Gzip})
	if err != nil {
		return Exported{}, err
	}
	name := export.FileName(strconv.FormatInt(req.ExamID, 10), s.now(), req.Gzip)
	out, err := s.put(ctx, name, contentType(req.Gzip), data)
	out.Rows = len(rows)
	return out, err
}

// Download stores the service-rendered export as-is.
func (s *ExportService) Download(ctx context.Context, req ExportRequest) (Exported, error) {
	if req.ExamID <= 0 {
		return Exported{}, appErr.ValidationError("exam_id", "must be greater than 0")
	}
	dl, err := s.api.ExportResults(ctx, req.ExamID, "csv", req.ReviewedOnly)
	if err != nil {
		return Exported{}, err
	}
	name := dl.FileName
	if name == "" {
		name = export.FileName(strconv.FormatInt(req.ExamID, 10), s.now(), false)
	}
	ct := dl.ContentType
	if ct == "" {
		ct = contentType(false)
	}
	return s.put(ctx, name, ct, dl.Data)
}

// Summary computes statistics locally from the result list, or asks the service when remote
// is set. Both use the authoritative score.
func (s *ExportService) Summary(ctx context.Context, examID int64, remote bool) (model.Summary, error) {
	if examID <= 0 {
		return model.Summary{}, appErr.ValidationError("exam_id", "must be greater than 0")
	}
	if remote {
		return s.api.ExportSummary(ctx, examID)
	}
	results, err := s.api.ListResults(ctx, examID, "")
	if err != nil {
		return model.Summary{}, err
	}
	return export.Summarize(examID, results), nil
}

func (s *ExportService) put(ctx context.Context, name, ct string, data []byte) (Exported, error) {
	loc, err := s.sink.Put(ctx, name, ct, data)
	if err != nil {
		return Exported{}, appErr.Wrapf(err, appErr.ExportFailed, "store export %s failed: %v", name, err)
	}
	logger.Info(ctx, "export stored", zap.String("location", loc), zap.Int("bytes", len(data)))
	return Exported{Name: name, Location: loc, Bytes: len(data)}, nil
}

func contentType(gzipped bool) string {
	if gzipped {
		return "application/gzip"
	}
	return "text/csv; charset=utf-8"
}

// ParseFormat accepts the export formats the service understands.
func ParseFormat(v string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(v))
	switch f {
	case "", "csv":
		return "csv", nil
	default:
		return "", appErr.Newf(appErr.UnsupportedFormat, "unsupported export format %q", v)
	}
}
