package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/grading"
)

type codeSource interface {
	CodesByClassSubject(ctx context.Context, classSubjectID string) ([]string, error)
}

// CoverageService compares an offering's taught and evaluated curriculum
// codes against the codes its course expects.
type CoverageService struct {
	offerings   offeringFinder
	lessons     codeSource
	assessments codeSource
	logger      *zap.Logger
}

// NewCoverageService constructs a CoverageService.
func NewCoverageService(offerings offeringFinder, lessons, assessments codeSource, logger *zap.Logger) *CoverageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoverageService{offerings: offerings, lessons: lessons, assessments: assessments, logger: logger}
}

// ForClassSubject builds the coverage report of an offering.
func (s *CoverageService) ForClassSubject(ctx context.Context, classSubjectID string) (*models.CoverageReport, error) {
	offering, err := findOffering(ctx, s.offerings, classSubjectID)
	if err != nil {
		return nil, err
	}
	lessonCodes, err := s.lessons.CodesByClassSubject(ctx, classSubjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load lesson codes")
	}
	assessmentCodes, err := s.assessments.CodesByClassSubject(ctx, classSubjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load assessment codes")
	}

	return &models.CoverageReport{
		ClassSubjectID: classSubjectID,
		CourseName:     offering.CourseName,
		CoverageReport: grading.Coverage([]string{offering.BNCCExpected}, lessonCodes, assessmentCodes),
	}, nil
}
