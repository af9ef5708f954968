package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/architect/mathquest/internal/common/database"
	"github.com/architect/mathquest/internal/common/middleware"
	"github.com/architect/mathquest/internal/quiz/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&database.User{},
		&models.QuizSession{},
		&models.QuizAnswer{},
		&models.StudentProgress{},
	))
	database.DB = db

	router := gin.New()
	router.Use(middleware.ErrorHandler())
	api := router.Group("/api/v1")
	RegisterRoutes(api)
	return router
}

func seedTestStudent(t *testing.T, grade int) *database.User {
	t.Helper()
	user := &database.User{
		Username:   fmt.Sprintf("student-g%d", grade),
		Email:      fmt.Sprintf("student-g%d@example.com", grade),
		Password:   "hashed",
		Role:       database.RoleStudent,
		GradeLevel: grade,
	}
	require.NoError(t, database.DB.Create(user).Error)
	return user
}

func doRequest(router *gin.Engine, method, path string, body interface{}, userID uint) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set("Authorization", fmt.Sprintf("%d", userID))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestQuizFlowEndToEnd(t *testing.T) {
	router := setupTestRouter(t)
	student := seedTestStudent(t, 2)

	// create a session
	w := doRequest(router, http.MethodPost, "/api/v1/quiz/sessions", gin.H{
		"topic":           "addition",
		"grade_level":     2,
		"total_questions": 2,
	}, student.ID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var session models.QuizSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	require.NotZero(t, session.ID)

	// answer both questions
	w = doRequest(router, http.MethodPost, fmt.Sprintf("/api/v1/quiz/sessions/%d/answers", session.ID), gin.H{
		"question":       "2 + 3",
		"student_answer": "5",
		"correct_answer": "5",
		"time_taken":     6,
		"difficulty":     "easy",
	}, student.ID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var answerResp struct {
		IsCorrect            bool   `json:"is_correct"`
		AnswerScore          int    `json:"answer_score"`
		ResponseTimeCategory string `json:"response_time_category"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &answerResp))
	assert.True(t, answerResp.IsCorrect)
	assert.Equal(t, 10, answerResp.AnswerScore) // 5 easy + 5 quick
	assert.Equal(t, "Fast", answerResp.ResponseTimeCategory)

	w = doRequest(router, http.MethodPost, fmt.Sprintf("/api/v1/quiz/sessions/%d/answers", session.ID), gin.H{
		"question":       "4 + 4",
		"student_answer": "8",
		"correct_answer": "8",
		"time_taken":     9,
		"difficulty":     "easy",
	}, student.ID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// complete
	w = doRequest(router, http.MethodPost, fmt.Sprintf("/api/v1/quiz/sessions/%d/complete", session.ID), gin.H{
		"time_taken": 15,
	}, student.ID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result models.CompleteSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	// 20 base + 50 accuracy + 4 time + 10 difficulty
	assert.Equal(t, 84, result.PointsEarned)
	assert.InDelta(t, 100.0, result.Accuracy, 0.001)
	assert.Contains(t, result.NewBadges, "first_quiz")
	assert.Contains(t, result.NewBadges, "perfect_score")
	assert.Contains(t, result.NewBadges, "speed_demon")
	require.NotNil(t, result.Progress)
	assert.Equal(t, 84, result.Progress.TotalPoints)

	// completing again conflicts
	w = doRequest(router, http.MethodPost, fmt.Sprintf("/api/v1/quiz/sessions/%d/complete", session.ID), gin.H{
		"time_taken": 15,
	}, student.ID)
	assert.Equal(t, http.StatusConflict, w.Code)

	// progress rollup reflects the session
	w = doRequest(router, http.MethodGet, "/api/v1/quiz/progress?grade=2", nil, student.ID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var stats struct {
		TotalPoints int `json:"total_points"`
		TotalBadges int `json:"total_badges"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 84, stats.TotalPoints)
	assert.Equal(t, len(result.NewBadges), stats.TotalBadges)

	// leaderboard shows the student at rank 1
	w = doRequest(router, http.MethodGet, "/api/v1/quiz/leaderboard?topic=addition&grade=2", nil, student.ID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var board struct {
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &board))
	require.Len(t, board.Leaderboard, 1)
	assert.Equal(t, student.ID, board.Leaderboard[0].StudentID)
	assert.Equal(t, 84, board.Leaderboard[0].TotalPoints)

	// history and trends
	w = doRequest(router, http.MethodGet, "/api/v1/quiz/history?topic=addition&grade=2", nil, student.ID)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/quiz/progress/trends?topic=addition&grade=2&days=7", nil, student.ID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var trends struct {
		Trends []models.TrendPoint `json:"trends"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trends))
	require.Len(t, trends.Trends, 1)
	assert.Equal(t, 84, trends.Trends[0].CumulativePoints)
}

func TestAuthRequired(t *testing.T) {
	router := setupTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/quiz/sessions", gin.H{
		"topic":           "addition",
		"grade_level":     2,
		"total_questions": 5,
	}, 0)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/quiz/progress", nil, 0)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidationErrors(t *testing.T) {
	router := setupTestRouter(t)
	student := seedTestStudent(t, 1)

	t.Run("bad body", func(t *testing.T) {
		w := doRequest(router, http.MethodPost, "/api/v1/quiz/sessions", gin.H{
			"topic": "addition",
			// missing grade_level and total_questions
		}, student.ID)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown topic on leaderboard", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/quiz/leaderboard?topic=geometry&grade=1", nil, student.ID)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad session id", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/quiz/sessions/not-a-number", nil, student.ID)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing session", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/quiz/sessions/424242", nil, student.ID)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestBadgeCatalogEndpoints(t *testing.T) {
	router := setupTestRouter(t)

	// catalog is public
	w := doRequest(router, http.MethodGet, "/api/v1/quiz/badges", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)

	var catalog struct {
		Badges []models.BadgeInfo `json:"badges"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &catalog))
	assert.Len(t, catalog.Badges, 32)

	w = doRequest(router, http.MethodGet, "/api/v1/quiz/badges/speed_demon", nil, 0)
	require.Equal(t, http.StatusOK, w.Code)

	var info models.BadgeInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "Speed Demon", info.Name)

	w = doRequest(router, http.MethodGet, "/api/v1/quiz/badges/unknown_badge", nil, 0)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
