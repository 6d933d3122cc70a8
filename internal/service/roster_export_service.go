package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sirh-sync/internal/models"
	appErrors "github.com/noah-isme/sirh-sync/pkg/errors"
	"github.com/noah-isme/sirh-sync/pkg/export"
)

// Supported roster export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type exportInstanceReader interface {
	Authorize(ctx context.Context, actor models.Actor, courseID string) error
	Get(ctx context.Context, id string) (*models.EnrolmentInstance, error)
	GetInstanceUsers(ctx context.Context, instanceID string) (map[string]models.User, error)
}

// ExportFile is a rendered roster document.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RosterExportService renders the current roster of an instance as CSV or PDF.
type RosterExportService struct {
	instances exportInstanceReader
	renderers map[string]export.Renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewRosterExportService constructs a RosterExportService. Nil renderers fall back to the defaults.
func NewRosterExportService(instances exportInstanceReader, csv, pdf export.Renderer, logger *zap.Logger) *RosterExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &RosterExportService{
		instances: instances,
		renderers: map[string]export.Renderer{ExportFormatCSV: csv, ExportFormatPDF: pdf},
		logger:    logger,
		now:       time.Now,
	}
}

// Export renders the roster of instanceID in the requested format.
func (s *RosterExportService) Export(ctx context.Context, actor models.Actor, instanceID, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", format))
	}

	inst, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if err := s.instances.Authorize(ctx, actor, inst.CourseID); err != nil {
		return nil, err
	}
	users, err := s.instances.GetInstanceUsers(ctx, inst.ID)
	if err != nil {
		return nil, err
	}

	payload, err := renderer.Render(s.buildDataset(*inst, users))
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to render roster export")
	}
	s.logger.Debug("roster exported", zap.String("instance_id", inst.ID), zap.String("format", format), zap.Int("users", len(users)))

	return &ExportFile{
		Filename:    fmt.Sprintf("roster_%s_%s.%s", sanitizeFilename(inst.SessionExternalID), s.now().UTC().Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        payload,
	}, nil
}

func (s *RosterExportService) buildDataset(inst models.EnrolmentInstance, users map[string]models.User) export.Dataset {
	title := fmt.Sprintf("%s - %s", inst.TrainingName, inst.SessionName)
	if inst.TrainingName == "" && inst.SessionName == "" {
		title = inst.Key().SessionKey()
	}

	ordered := make([]models.User, 0, len(users))
	for _, u := range users {
		ordered = append(ordered, u)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].LastName != ordered[j].LastName {
			return ordered[i].LastName < ordered[j].LastName
		}
		return ordered[i].Email < ordered[j].Email
	})

	rows := make([]map[string]string, 0, len(ordered))
	for _, u := range ordered {
		status := "active"
		if u.Suspended {
			status = "suspended"
		}
		rows = append(rows, map[string]string{
			"email":      u.Email,
			"last_name":  u.LastName,
			"first_name": u.FirstName,
			"status":     status,
		})
	}
	return export.Dataset{
		Title:   title,
		Headers: []string{"email", "last_name", "first_name", "status"},
		Rows:    rows,
	}
}

func sanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" {
		return "session"
	}
	return name
}
