package models

// AnalyticsFilter scopes grade analytics to a class, a course or a single
// student. Empty fields leave the dimension unrestricted.
type AnalyticsFilter struct {
	ClassID   string
	CourseID  string
	StudentID string
}

// GlobalStats are school-wide counters.
type GlobalStats struct {
	ActiveStudents int `db:"active_students" json:"active_students"`
	TotalClasses   int `db:"total_classes" json:"total_classes"`
	TotalCourses   int `db:"total_courses" json:"total_courses"`
	TotalIncidents int `db:"total_incidents" json:"total_incidents"`
}

// ClassIncidentCount is one row of the incident ranking.
type ClassIncidentCount struct {
	ClassID   string `db:"class_id" json:"class_id"`
	ClassName string `db:"class_name" json:"class_name"`
	Count     int    `db:"incident_count" json:"count"`
}

// AnalyticsAssessment is an assessment with the offering it belongs to.
type AnalyticsAssessment struct {
	AssessmentID   string  `db:"assessment_id"`
	Weight         float64 `db:"weight"`
	ClassSubjectID string  `db:"class_subject_id"`
	ClassID        string  `db:"class_id"`
	ClassName      string  `db:"class_name"`
	CourseID       string  `db:"course_id"`
	CourseName     string  `db:"course_name"`
}

// AnalyticsEnrollment is an active student of a class.
type AnalyticsEnrollment struct {
	ClassID     string `db:"class_id"`
	StudentID   string `db:"student_id"`
	StudentName string `db:"student_name"`
}

// AnalyticsScore is a recorded score.
type AnalyticsScore struct {
	StudentID    string  `db:"student_id"`
	AssessmentID string  `db:"assessment_id"`
	Value        float64 `db:"score"`
}

// StudentIncidentCount tallies a student's incidents in a class.
type StudentIncidentCount struct {
	StudentID string `db:"student_id"`
	Count     int    `db:"incident_count"`
}

// PerformanceEntry is a student's weighted average in one offering.
type PerformanceEntry struct {
	StudentName string  `json:"student_name"`
	ClassName   string  `json:"class_name"`
	CourseName  string  `json:"course_name"`
	Average     float64 `json:"average"`
}

// GlobalPerformance counts passing and failing student offerings.
type GlobalPerformance struct {
	TotalAnalyzed int                `json:"total_analyzed"`
	Approved      int                `json:"approved"`
	Failed        int                `json:"failed"`
	ApprovalRate  float64            `json:"approval_rate"`
	FailedDetails []PerformanceEntry `json:"failed_details"`
	HonorRoll     []PerformanceEntry `json:"honor_roll_details"`
}

// StudentPerformance is a student's weighted average over every assessment
// of a class together with their incident count there.
type StudentPerformance struct {
	StudentID       string  `json:"student_id"`
	ClassID         string  `json:"class_id"`
	WeightedAverage float64 `json:"weighted_average"`
	IncidentCount   int     `json:"incident_count"`
}

// StudentAtRisk flags a student with a low average or repeated incidents.
type StudentAtRisk struct {
	StudentID     string  `json:"student_id"`
	StudentName   string  `json:"student_name"`
	AverageGrade  float64 `json:"average_grade"`
	IncidentCount int     `json:"incident_count"`
}

// CourseAverages lists the weighted average of every active student in
// every offering of a course.
type CourseAverages struct {
	CourseID string    `json:"course_id"`
	Averages []float64 `json:"averages"`
}
