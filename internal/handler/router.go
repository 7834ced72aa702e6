package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/models"
)

// Handlers groups every HTTP handler mounted under the API prefix.
// A nil handler leaves its routes unregistered.
type Handlers struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Courses     *CourseHandler
	Students    *StudentHandler
	Classes     *ClassHandler
	Enrollments *EnrollmentHandler
	Grades      *GradeHandler
	Lessons     *LessonHandler
	Incidents   *IncidentHandler
	Coverage    *CoverageHandler
	Reports     *ReportHandler
	Assistant   *AssistantHandler
	AuditLogs   *AuditHandler
	Schedule    *ScheduleHandler
	Seating     *SeatingHandler
	Dashboard   *DashboardHandler

	// Audit receives successful mutations; nil disables the trail.
	Audit middleware.AuditRecorder
}

// RegisterRoutes mounts the API on group. Login and export downloads are
// public; user administration and catalogue changes require ADMIN.
func RegisterRoutes(group *gin.RouterGroup, h Handlers, tokens middleware.TokenValidator) {
	authn := middleware.JWT(tokens)
	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(h.Audit, action, resource)
	}

	if h.Auth != nil {
		group.POST("/auth/login", h.Auth.Login)
		group.GET("/auth/me", authn, h.Auth.Me)
		group.POST("/auth/change-password", authn, audit(models.AuditActionPasswordChange, "users"), h.Auth.ChangePassword)
	}
	if h.Reports != nil {
		group.GET("/export/:token", h.Reports.DownloadReport)
	}

	api := group.Group("", authn, anyRole)
	admin := group.Group("", authn, adminOnly)

	if h.Users != nil {
		admin.POST("/users", audit(models.AuditActionUserCreate, "users"), h.Users.Create)
		admin.GET("/users/:id", h.Users.Get)
	}

	if h.Courses != nil {
		api.GET("/courses", h.Courses.List)
		api.GET("/courses/:id", h.Courses.Get)
		admin.POST("/courses", h.Courses.Create)
		admin.PUT("/courses/:id", h.Courses.Update)
		admin.PUT("/courses/:id/bncc", h.Courses.UpdateBNCC)
		admin.DELETE("/courses/:id", h.Courses.Delete)
	}

	if h.Students != nil {
		api.GET("/students", h.Students.List)
		api.GET("/students/:id", h.Students.Get)
		api.POST("/students", h.Students.Create)
		api.PUT("/students/:id", h.Students.Update)
		admin.DELETE("/students/:id", h.Students.Delete)
	}

	if h.Classes != nil {
		api.GET("/classes", h.Classes.List)
		api.GET("/classes/:id", h.Classes.Get)
		admin.POST("/classes", h.Classes.Create)
		admin.PUT("/classes/:id", h.Classes.Update)
		admin.DELETE("/classes/:id", h.Classes.Delete)
		admin.POST("/classes/:id/copy", audit(models.AuditActionClassCopy, "classes"), h.Classes.Copy)
		api.GET("/classes/:id/subjects", h.Classes.ListSubjects)
		admin.POST("/classes/:id/subjects", h.Classes.AddSubject)
		api.GET("/class-subjects/:id", h.Classes.GetSubject)
		admin.DELETE("/class-subjects/:id", h.Classes.RemoveSubject)
	}

	if h.Enrollments != nil {
		api.GET("/classes/:id/enrollments", h.Enrollments.List)
		api.POST("/classes/:id/enrollments", h.Enrollments.Enroll)
		api.POST("/classes/:id/enrollments/student", h.Enrollments.AddStudent)
		api.GET("/classes/:id/enrollments/next-call-number", h.Enrollments.NextCallNumber)
		api.PATCH("/enrollments/:id/status", audit(models.AuditActionEnrollmentStatus, "enrollments"), h.Enrollments.UpdateStatus)
	}

	if h.Grades != nil {
		api.GET("/class-subjects/:id/assessments", h.Grades.ListAssessments)
		api.POST("/class-subjects/:id/assessments", h.Grades.CreateAssessment)
		api.POST("/class-subjects/:id/assessments/final", h.Grades.EnsureFinal)
		api.GET("/assessments/:id", h.Grades.GetAssessment)
		api.PUT("/assessments/:id", h.Grades.UpdateAssessment)
		api.DELETE("/assessments/:id", audit(models.AuditActionAssessmentDelete, "assessments"), h.Grades.DeleteAssessment)
		api.PUT("/class-subjects/:id/scores", audit(models.AuditActionScoresUpsert, "scores"), h.Grades.UpsertScores)
		api.PUT("/class-subjects/:id/students/:studentId/final-override", audit(models.AuditActionFinalOverrideSet, "final_grades"), h.Grades.SetFinalOverride)
		api.DELETE("/class-subjects/:id/students/:studentId/final-override", audit(models.AuditActionFinalOverrideClear, "final_grades"), h.Grades.ClearFinalOverride)
		api.GET("/class-subjects/:id/students/:studentId/rollup", h.Grades.StudentRollup)
		api.GET("/class-subjects/:id/rollups", h.Grades.ClassRollups)
	}

	if h.Lessons != nil {
		api.GET("/class-subjects/:id/lessons", h.Lessons.List)
		api.POST("/class-subjects/:id/lessons", h.Lessons.Create)
		api.POST("/lessons/copy", h.Lessons.Copy)
		api.GET("/lessons/:id", h.Lessons.Get)
		api.PUT("/lessons/:id", h.Lessons.Update)
		api.DELETE("/lessons/:id", h.Lessons.Delete)
		api.PUT("/lessons/:id/attendance", audit(models.AuditActionAttendanceRegister, "attendance"), h.Lessons.RegisterAttendance)
		api.GET("/lessons/:id/attendance", h.Lessons.LessonAttendance)
		api.GET("/class-subjects/:id/attendance", h.Lessons.ClassStats)
		api.GET("/class-subjects/:id/students/:studentId/attendance", h.Lessons.StudentStats)
	}

	if h.Incidents != nil {
		api.GET("/classes/:id/incidents", h.Incidents.ListByClass)
		api.POST("/classes/:id/incidents", h.Incidents.Create)
		api.GET("/students/:id/incidents", h.Incidents.ListByStudent)
		api.DELETE("/incidents/:id", h.Incidents.Delete)
	}

	if h.Coverage != nil {
		api.GET("/class-subjects/:id/coverage", h.Coverage.Get)
	}

	if h.Reports != nil {
		api.POST("/reports", h.Reports.GenerateReport)
		api.GET("/reports/:id", h.Reports.ReportStatus)
	}

	if h.Schedule != nil {
		api.GET("/schedule", h.Schedule.Grid)
		api.GET("/schedule/slots", h.Schedule.ListSlots)
		admin.POST("/schedule/slots", h.Schedule.CreateSlot)
		admin.DELETE("/schedule/slots/:id", h.Schedule.DeleteSlot)
		api.PUT("/schedule/slots/:id/assignment", h.Schedule.Assign)
		api.DELETE("/schedule/slots/:id/assignment", h.Schedule.Unassign)
		api.GET("/class-subjects/:id/lessons/on/:date", h.Schedule.LessonOn)
	}

	if h.Seating != nil {
		api.GET("/classes/:id/seating-charts", h.Seating.ListByClass)
		api.POST("/classes/:id/seating-charts", h.Seating.Create)
		api.GET("/seating-charts/:id", h.Seating.Get)
		api.PUT("/seating-charts/:id/layout", h.Seating.UpdateLayout)
		api.PUT("/seating-charts/:id/seats", h.Seating.SaveAssignments)
		api.DELETE("/seating-charts/:id", h.Seating.Delete)
	}

	if h.Dashboard != nil {
		api.GET("/dashboard", h.Dashboard.Overview)
		api.GET("/dashboard/stats", h.Dashboard.Stats)
		api.GET("/dashboard/incident-ranking", h.Dashboard.IncidentRanking)
		api.GET("/courses/:id/averages", h.Dashboard.CourseAverages)
		api.GET("/classes/:id/students/:studentId/performance", h.Dashboard.StudentPerformance)
		api.GET("/classes/:id/students-at-risk", h.Dashboard.StudentsAtRisk)
	}

	if h.AuditLogs != nil {
		admin.GET("/audit-logs", h.AuditLogs.List)
	}

	if h.Assistant != nil {
		api.GET("/assistant/tools", h.Assistant.ListTools)
		api.POST("/assistant/tools/:name", h.Assistant.CallTool)
		api.POST("/assistant/chat", h.Assistant.Chat)
		api.GET("/assistant/models", h.Assistant.Models)
	}
}
