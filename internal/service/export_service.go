package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/pkg/export"
	"github.com/noah-isme/gradebook-api/pkg/grading"
	"github.com/noah-isme/gradebook-api/pkg/storage"
)

type rollupSource interface {
	ClassRollups(ctx context.Context, classSubjectID string) (*models.ClassRollupReport, error)
}

type attendanceSource interface {
	ClassAttendanceStats(ctx context.Context, classSubjectID string) ([]models.AttendanceStats, error)
}

type incidentSource interface {
	ListByClass(ctx context.Context, classID string) ([]models.IncidentDetail, error)
}

type coverageSource interface {
	ForClassSubject(ctx context.Context, classSubjectID string) (*models.CoverageReport, error)
}

type offeringLister interface {
	ListSubjects(ctx context.Context, classID string) ([]models.ClassSubjectDetail, error)
}

// ReportSources groups the services report datasets are built from.
type ReportSources struct {
	Rollups    rollupSource
	Attendance attendanceSource
	Incidents  incidentSource
	Coverage   coverageSource
	Offerings  offeringLister
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	sources ReportSources
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(sources ReportSources, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		sources: sources,
		storage: storage,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate builds dataset according to job definition and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Sign(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates a download token and returns its claims.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.DownloadClaims, error) {
	return s.signer.Verify(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	scope := job.Params.ClassSubjectID
	if !job.Type.ScopedToOffering() {
		scope = job.Params.ClassID
	}
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), sanitizeFilename(scope), timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeGrades:
		return s.buildGradeDataset(ctx, job.Params)
	case models.ReportTypeAttendance:
		return s.buildAttendanceDataset(ctx, job.Params)
	case models.ReportTypeIncidents:
		return s.buildIncidentDataset(ctx, job.Params)
	case models.ReportTypeCoverage:
		return s.buildCoverageDataset(ctx, job.Params)
	case models.ReportTypeClassGrades:
		return s.buildClassGradesDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

var periodHeaders = []string{"1st Period", "2nd Period", "3rd Period", "4th Period"}

func (s *ExportService) buildGradeDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	report, err := s.sources.Rollups.ClassRollups(ctx, params.ClassSubjectID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	headers := append([]string{"No.", "Student"}, periodHeaders...)
	headers = append(headers, "Final (Calculated)", "Final (Manual)", "Final")

	rows := make([]map[string]string, 0, len(report.Students))
	for _, st := range report.Students {
		row := map[string]string{
			"No.":                strconv.Itoa(st.CallNumber),
			"Student":            st.StudentName,
			"Final (Calculated)": export.Score(st.Rollup.FinalCalculated),
			"Final (Manual)":     export.OptionalScore(st.Rollup.FinalOverride),
			"Final":              export.Score(st.Rollup.Display()),
		}
		for p := grading.FirstPeriod; p <= grading.LastPeriod; p++ {
			row[periodHeaders[p-grading.FirstPeriod]] = export.OptionalScore(st.Rollup.Period(p))
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}, "Grade Sheet", nil
}

func (s *ExportService) buildAttendanceDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	stats, err := s.sources.Attendance.ClassAttendanceStats(ctx, params.ClassSubjectID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, map[string]string{
			"Student":        st.StudentName,
			"Lessons":        strconv.Itoa(st.Total),
			"Present":        strconv.Itoa(st.Present),
			"Absent":         strconv.Itoa(st.Absent),
			"Justified":      strconv.Itoa(st.Justified),
			"Late":           strconv.Itoa(st.Late),
			"Attendance (%)": export.Percent(st.Percentage),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student", "Lessons", "Present", "Absent", "Justified", "Late", "Attendance (%)"},
		Rows:    rows,
	}
	return dataset, "Attendance Report", nil
}

func (s *ExportService) buildIncidentDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	incidents, err := s.sources.Incidents.ListByClass(ctx, params.ClassID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(incidents))
	for _, inc := range incidents {
		rows = append(rows, map[string]string{
			"Date":        inc.Date.Format("2006-01-02"),
			"Student":     inc.StudentName,
			"Description": inc.Description,
		})
	}
	return export.Dataset{Headers: []string{"Date", "Student", "Description"}, Rows: rows}, "Incident Log", nil
}

func (s *ExportService) buildCoverageDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	report, err := s.sources.Coverage.ForClassSubject(ctx, params.ClassSubjectID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	lessons := toSet(report.CoveredLessons)
	assessments := toSet(report.CoveredAssessments)
	rows := make([]map[string]string, 0, len(report.Expected))
	for _, code := range report.Expected {
		_, inLessons := lessons[code]
		_, inAssessments := assessments[code]
		rows = append(rows, map[string]string{
			"Code":        code,
			"Lessons":     yesNo(inLessons),
			"Assessments": yesNo(inAssessments),
			"Covered":     yesNo(inLessons || inAssessments),
		})
	}
	title := fmt.Sprintf("Curriculum Coverage %s (%s)", report.CourseName, export.Percent(report.CoveragePercentage))
	return export.Dataset{Headers: []string{"Code", "Lessons", "Assessments", "Covered"}, Rows: rows}, title, nil
}

// buildClassGradesDataset lists the displayed final grade of every offering
// per student plus the mean across offerings.
func (s *ExportService) buildClassGradesDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	offerings, err := s.sources.Offerings.ListSubjects(ctx, params.ClassID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	headers := []string{"No.", "Student"}
	type studentRow struct {
		callNumber int
		name       string
		finals     []float64
		values     map[string]string
	}
	byStudent := map[string]*studentRow{}
	var order []string
	for _, offering := range offerings {
		headers = append(headers, offering.CourseName)
		report, err := s.sources.Rollups.ClassRollups(ctx, offering.ID)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, st := range report.Students {
			row, ok := byStudent[st.StudentID]
			if !ok {
				row = &studentRow{callNumber: st.CallNumber, name: st.StudentName, values: map[string]string{}}
				byStudent[st.StudentID] = row
				order = append(order, st.StudentID)
			}
			final := st.Rollup.Display()
			row.finals = append(row.finals, final)
			row.values[offering.CourseName] = export.Score(final)
		}
	}
	headers = append(headers, "Overall Average")

	rows := make([]map[string]string, 0, len(order))
	for _, id := range order {
		st := byStudent[id]
		overall := 0.0
		if len(st.finals) > 0 {
			for _, f := range st.finals {
				overall += f
			}
			overall /= float64(len(st.finals))
		}
		st.values["No."] = strconv.Itoa(st.callNumber)
		st.values["Student"] = st.name
		st.values["Overall Average"] = export.Score(overall)
		rows = append(rows, st.values)
	}
	return export.Dataset{Headers: headers, Rows: rows}, "Class Grades", nil
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
