package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/architect/mathquest/internal/common/errors"
	"github.com/architect/mathquest/internal/common/middleware"
	"github.com/architect/mathquest/internal/quiz/models"
	"github.com/architect/mathquest/internal/quiz/services"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the quiz API under the given group.
func RegisterRoutes(router *gin.RouterGroup) {
	quiz := router.Group("/quiz")

	// Badge catalog is public reference data
	quiz.GET("/badges", ListBadges)
	quiz.GET("/badges/:id", GetBadge)

	authed := quiz.Group("")
	authed.Use(middleware.AuthRequired())
	authed.POST("/sessions", CreateSession)
	authed.GET("/sessions/:id", GetSession)
	authed.POST("/sessions/:id/answers", SubmitAnswer)
	authed.POST("/sessions/:id/complete", CompleteSession)
	authed.DELETE("/sessions/:id", AbandonSession)
	authed.GET("/history", GetHistory)
	authed.GET("/stats", GetStats)
	authed.GET("/progress", GetProgress)
	authed.GET("/progress/trends", GetTrends)
	authed.GET("/leaderboard", GetLeaderboard)
}

func currentUserID(c *gin.Context) (uint, error) {
	raw, exists := c.Get("user_id")
	if !exists {
		return 0, errors.Unauthorized("missing authentication")
	}
	id, err := strconv.ParseUint(fmt.Sprint(raw), 10, 32)
	if err != nil {
		return 0, errors.Unauthorized("invalid user id")
	}
	return uint(id), nil
}

func sessionIDParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, errors.BadRequest("invalid session id")
	}
	return uint(id), nil
}

// CreateSession starts a quiz session
// POST /api/v1/quiz/sessions
func CreateSession(c *gin.Context) {
	studentID, err := currentUserID(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.JSONErrorResponse(c, errors.Validation("invalid request", err.Error()))
		return
	}

	session, err := services.CreateQuizSession(studentID, &req)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetSession returns one session with its answers
// GET /api/v1/quiz/sessions/:id
func GetSession(c *gin.Context) {
	studentID, err := currentUserID(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	sessionID, err := sessionIDParam(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	session, err := services.GetQuizSession(sessionID, studentID)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// SubmitAnswer records one answer on an open session
// POST /api/v1/quiz/sessions/:id/answers
func SubmitAnswer(c *gin.Context) {
	studentID, err := currentUserID(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	sessionID, err := sessionIDParam(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	var req models.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.JSONErrorResponse(c, errors.Validation("invalid request", err.Error()))
		return
	}

	answer, err := services.SubmitAnswer(sessionID, studentID, &req)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"answer":                 answer,
		"is_correct":             answer.IsCorrect,
		"answer_score":           services.CalculateAnswerScore(answer),
		"response_time_category": answer.ResponseTimeCategory(),
	})
}

// CompleteSession closes a session and returns score, rating, progress
// and any new badges
// POST /api/v1/quiz/sessions/:id/complete
func CompleteSession(c *gin.Context) {
	studentID, err := currentUserID(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	sessionID, err := sessionIDParam(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	var req models.CompleteSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.JSONErrorResponse(c, errors.Validation("invalid request", err.Error()))
		return
	}

	result, err := services.CompleteQuizSession(sessionID, studentID, req.TimeTaken)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AbandonSession closes an open session with no points
// DELETE /api/v1/quiz/sessions/:id
func AbandonSession(c *gin.Context) {
	studentID, err := currentUserID(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	sessionID, err := sessionIDParam(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	if err := services.AbandonQuizSession(sessionID, studentID); err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"abandoned": true})
}

func topicGradeQuery(c *gin.Context) (models.Topic, int, error) {
	topic := models.Topic(c.Query("topic"))
	if !topic.IsValid() {
		return "", 0, errors.Validation("invalid topic", fmt.Sprintf("unknown topic %q", topic))
	}
	grade, err := strconv.Atoi(c.DefaultQuery("grade", "1"))
	if err != nil || grade < 1 || grade > 3 {
		return "", 0, errors.Validation("invalid grade", "grade must be between 1 and 3")
	}
	return topic, grade, nil
}

// GetHistory returns the student's recent finished sessions
// GET /api/v1/quiz/history?topic=addition&grade=2&limit=10
func GetHistory(c *gin.Context) {
	studentID, err := currentUserID(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	topic, grade, err := topicGradeQuery(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	history, err := services.GetQuizHistory(studentID, topic, grade, limit)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": history})
}

// GetStats returns best performance and averages for one topic
// GET /api/v1/quiz/stats?topic=addition&grade=2
func GetStats(c *gin.Context) {
	studentID, err := currentUserID(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	topic, grade, err := topicGradeQuery(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	best, err := services.GetBestPerformance(studentID, topic, grade)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	averages, err := services.GetAverageStats(studentID, topic, grade)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"best_session": best,
		"averages":     averages,
	})
}

// GetProgress returns the student's cross-topic rollup for one grade
// GET /api/v1/quiz/progress?grade=2
func GetProgress(c *gin.Context) {
	studentID, err := currentUserID(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	grade, err := strconv.Atoi(c.DefaultQuery("grade", "1"))
	if err != nil || grade < 1 || grade > 3 {
		middleware.JSONErrorResponse(c, errors.Validation("invalid grade", "grade must be between 1 and 3"))
		return
	}

	stats, err := services.GetStudentProgressStats(studentID, grade)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetTrends returns session-by-session points and accuracy over a
// trailing window
// GET /api/v1/quiz/progress/trends?topic=addition&grade=2&days=30
func GetTrends(c *gin.Context) {
	studentID, err := currentUserID(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	topic, grade, err := topicGradeQuery(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 {
		days = 30
	}

	trends, err := services.GetProgressTrends(studentID, topic, grade, days)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trends": trends})
}

// GetLeaderboard returns the top students for one topic and grade
// GET /api/v1/quiz/leaderboard?topic=addition&grade=2&limit=10
func GetLeaderboard(c *gin.Context) {
	topic, grade, err := topicGradeQuery(c)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	entries, err := services.GetLeaderboard(topic, grade, limit)
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

// ListBadges returns the full badge catalog
// GET /api/v1/quiz/badges
func ListBadges(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"badges": services.GetAllBadgeTypes()})
}

// GetBadge returns one badge's catalog entry
// GET /api/v1/quiz/badges/:id
func GetBadge(c *gin.Context) {
	info := services.GetBadgeInfo(c.Param("id"))
	if info == nil {
		middleware.JSONErrorResponse(c, errors.NotFound("badge"))
		return
	}
	c.JSON(http.StatusOK, info)
}
