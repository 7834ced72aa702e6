package assistant

import (
	"context"
	"encoding/json"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
)

type classReader interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, *models.Pagination, error)
	ListSubjects(ctx context.Context, classID string) ([]models.ClassSubjectDetail, error)
}

type rosterReader interface {
	ListByClass(ctx context.Context, classID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error)
}

type gradeBook interface {
	ListAssessments(ctx context.Context, classSubjectID string) ([]models.Assessment, error)
	StudentRollup(ctx context.Context, studentID, classSubjectID string) (*models.StudentRollup, error)
	ClassRollups(ctx context.Context, classSubjectID string) (*models.ClassRollupReport, error)
	UpsertScores(ctx context.Context, classSubjectID string, req service.UpsertScoresRequest) ([]models.Score, error)
}

type coverageReader interface {
	ForClassSubject(ctx context.Context, classSubjectID string) (*models.CoverageReport, error)
}

type incidentReader interface {
	ListByClass(ctx context.Context, classID string) ([]models.IncidentDetail, error)
}

type riskReader interface {
	StudentsAtRisk(ctx context.Context, classID string, gradeThreshold *float64, incidentThreshold *int) ([]models.StudentAtRisk, error)
}

type attendanceReader interface {
	StudentAttendanceStats(ctx context.Context, studentID, classSubjectID string) (*models.AttendanceStats, error)
}

// ToolDeps are the services reachable from assistant tools.
type ToolDeps struct {
	Classes    classReader
	Roster     rosterReader
	Grades     gradeBook
	Coverage   coverageReader
	Incidents  incidentReader
	Attendance attendanceReader
	Risk       riskReader
}

type classArgs struct {
	ClassID string `json:"class_id" validate:"required"`
}

type riskArgs struct {
	ClassID           string   `json:"class_id" validate:"required"`
	GradeThreshold    *float64 `json:"grade_threshold" validate:"omitempty,min=0,max=10"`
	IncidentThreshold *int     `json:"incident_threshold" validate:"omitempty,min=1"`
}

type offeringArgs struct {
	ClassSubjectID string `json:"class_subject_id" validate:"required"`
}

type studentOfferingArgs struct {
	StudentID      string `json:"student_id" validate:"required"`
	ClassSubjectID string `json:"class_subject_id" validate:"required"`
}

type listClassesArgs struct {
	Search string `json:"search"`
}

type recordScoreArgs struct {
	ClassSubjectID string   `json:"class_subject_id" validate:"required"`
	StudentID      string   `json:"student_id" validate:"required"`
	AssessmentID   string   `json:"assessment_id" validate:"required"`
	Score          *float64 `json:"score" validate:"required,gte=0,lte=10"`
}

// RegisterAcademicTools registers the gradebook tools whose services are set in deps.
func RegisterAcademicTools(reg *Registry, deps ToolDeps) error {
	var tools []Tool

	if deps.Classes != nil {
		tools = append(tools,
			Tool{
				Name:        "list_classes",
				Description: "List classes with their active student and subject counts.",
				Parameters:  objectSchema(map[string]interface{}{"search": stringProp("Optional name filter")}),
				Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
					var args listClassesArgs
					if err := reg.decodeArgs(raw, &args); err != nil {
						return nil, err
					}
					classes, _, err := deps.Classes.List(ctx, models.ClassFilter{ListQuery: models.ListQuery{Search: args.Search, Page: 1, PageSize: 100}})
					return classes, err
				},
			},
			Tool{
				Name:        "list_class_subjects",
				Description: "List the subjects offered to a class.",
				Parameters:  objectSchema(map[string]interface{}{"class_id": stringProp("Class identifier")}, "class_id"),
				Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
					var args classArgs
					if err := reg.decodeArgs(raw, &args); err != nil {
						return nil, err
					}
					return deps.Classes.ListSubjects(ctx, args.ClassID)
				},
			},
		)
	}

	if deps.Roster != nil {
		tools = append(tools, Tool{
			Name:        "get_class_roster",
			Description: "List the active students of a class ordered by call number.",
			Parameters:  objectSchema(map[string]interface{}{"class_id": stringProp("Class identifier")}, "class_id"),
			Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args classArgs
				if err := reg.decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				return deps.Roster.ListByClass(ctx, args.ClassID, models.EnrollmentStatusActive)
			},
		})
	}

	if deps.Grades != nil {
		tools = append(tools,
			Tool{
				Name:        "list_assessments",
				Description: "List the assessments of a class subject with weights and grading periods.",
				Parameters:  objectSchema(map[string]interface{}{"class_subject_id": stringProp("Class subject identifier")}, "class_subject_id"),
				Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
					var args offeringArgs
					if err := reg.decodeArgs(raw, &args); err != nil {
						return nil, err
					}
					return deps.Grades.ListAssessments(ctx, args.ClassSubjectID)
				},
			},
			Tool{
				Name:        "get_student_grades",
				Description: "Get the period averages and final grade of one student in a class subject.",
				Parameters: objectSchema(map[string]interface{}{
					"student_id":       stringProp("Student identifier"),
					"class_subject_id": stringProp("Class subject identifier"),
				}, "student_id", "class_subject_id"),
				Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
					var args studentOfferingArgs
					if err := reg.decodeArgs(raw, &args); err != nil {
						return nil, err
					}
					return deps.Grades.StudentRollup(ctx, args.StudentID, args.ClassSubjectID)
				},
			},
			Tool{
				Name:        "get_class_grades",
				Description: "Get the grade rollups of every active student in a class subject.",
				Parameters:  objectSchema(map[string]interface{}{"class_subject_id": stringProp("Class subject identifier")}, "class_subject_id"),
				Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
					var args offeringArgs
					if err := reg.decodeArgs(raw, &args); err != nil {
						return nil, err
					}
					return deps.Grades.ClassRollups(ctx, args.ClassSubjectID)
				},
			},
			Tool{
				Name:        "record_score",
				Description: "Record or replace a student's score (0 to 10) on an assessment.",
				Parameters: objectSchema(map[string]interface{}{
					"class_subject_id": stringProp("Class subject identifier"),
					"student_id":       stringProp("Student identifier"),
					"assessment_id":    stringProp("Assessment identifier"),
					"score":            numberProp("Score between 0 and 10"),
				}, "class_subject_id", "student_id", "assessment_id", "score"),
				Audit: &ToolAudit{
					Action:      models.AuditActionScoresUpsert,
					Resource:    "scores",
					ResourceArg: "class_subject_id",
				},
				Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
					var args recordScoreArgs
					if err := reg.decodeArgs(raw, &args); err != nil {
						return nil, err
					}
					scores, err := deps.Grades.UpsertScores(ctx, args.ClassSubjectID, service.UpsertScoresRequest{
						Items: []service.ScoreItem{{StudentID: args.StudentID, AssessmentID: args.AssessmentID, Score: args.Score}},
					})
					if err != nil {
						return nil, err
					}
					if len(scores) == 1 {
						return scores[0], nil
					}
					return scores, nil
				},
			},
		)
	}

	if deps.Coverage != nil {
		tools = append(tools, Tool{
			Name:        "get_coverage",
			Description: "Compare the BNCC codes expected for a class subject with those taught and assessed.",
			Parameters:  objectSchema(map[string]interface{}{"class_subject_id": stringProp("Class subject identifier")}, "class_subject_id"),
			Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args offeringArgs
				if err := reg.decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				return deps.Coverage.ForClassSubject(ctx, args.ClassSubjectID)
			},
		})
	}

	if deps.Incidents != nil {
		tools = append(tools, Tool{
			Name:        "list_incidents",
			Description: "List behavioural incidents recorded for a class, newest first.",
			Parameters:  objectSchema(map[string]interface{}{"class_id": stringProp("Class identifier")}, "class_id"),
			Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args classArgs
				if err := reg.decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				return deps.Incidents.ListByClass(ctx, args.ClassID)
			},
		})
	}

	if deps.Attendance != nil {
		tools = append(tools, Tool{
			Name:        "get_attendance_stats",
			Description: "Get attendance counts and percentage of a student in a class subject.",
			Parameters: objectSchema(map[string]interface{}{
				"student_id":       stringProp("Student identifier"),
				"class_subject_id": stringProp("Class subject identifier"),
			}, "student_id", "class_subject_id"),
			Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args studentOfferingArgs
				if err := reg.decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				return deps.Attendance.StudentAttendanceStats(ctx, args.StudentID, args.ClassSubjectID)
			},
		})
	}

	if deps.Risk != nil {
		tools = append(tools, Tool{
			Name:        "get_students_at_risk",
			Description: "List students of a class whose weighted average is below a grade threshold (default 5) or whose incident count reaches an incident threshold (default 2).",
			Parameters: objectSchema(map[string]interface{}{
				"class_id":           stringProp("Class identifier"),
				"grade_threshold":    numberProp("Average below this is at risk, 0 to 10"),
				"incident_threshold": map[string]interface{}{"type": "integer", "description": "Incidents at or above this are at risk"},
			}, "class_id"),
			Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
				var args riskArgs
				if err := reg.decodeArgs(raw, &args); err != nil {
					return nil, err
				}
				return deps.Risk.StudentsAtRisk(ctx, args.ClassID, args.GradeThreshold, args.IncidentThreshold)
			},
		})
	}

	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
