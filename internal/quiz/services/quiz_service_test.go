package services

import (
	"testing"

	"github.com/architect/mathquest/internal/common/database"
	"github.com/architect/mathquest/internal/common/errors"
	"github.com/architect/mathquest/internal/quiz/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStudent(t *testing.T, username string, grade int) *database.User {
	t.Helper()
	user := &database.User{
		Username:   username,
		Email:      username + "@example.com",
		Password:   "hashed",
		Role:       database.RoleStudent,
		GradeLevel: grade,
	}
	require.NoError(t, database.DB.Create(user).Error)
	return user
}

func TestCreateQuizSession(t *testing.T) {
	setupTestDB(t)
	student := seedStudent(t, "mia", 2)

	t.Run("happy path", func(t *testing.T) {
		session, err := CreateQuizSession(student.ID, &models.CreateSessionRequest{
			Topic:          models.TopicAddition,
			GradeLevel:     2,
			TotalQuestions: 10,
		})
		require.NoError(t, err)
		assert.NotZero(t, session.ID)
		assert.Equal(t, student.ID, session.StudentID)
		assert.False(t, session.IsCompleted())
		assert.True(t, IsValidSession(session))
	})

	t.Run("unknown topic", func(t *testing.T) {
		_, err := CreateQuizSession(student.ID, &models.CreateSessionRequest{
			Topic:          "calculus",
			GradeLevel:     2,
			TotalQuestions: 10,
		})
		requireAppError(t, err, errors.CodeValidation)
	})

	t.Run("grade out of range", func(t *testing.T) {
		_, err := CreateQuizSession(student.ID, &models.CreateSessionRequest{
			Topic:          models.TopicAddition,
			GradeLevel:     5,
			TotalQuestions: 10,
		})
		requireAppError(t, err, errors.CodeValidation)
	})

	t.Run("grade mismatch", func(t *testing.T) {
		_, err := CreateQuizSession(student.ID, &models.CreateSessionRequest{
			Topic:          models.TopicAddition,
			GradeLevel:     3,
			TotalQuestions: 10,
		})
		requireAppError(t, err, errors.CodeValidation)
	})

	t.Run("teachers cannot take quizzes", func(t *testing.T) {
		teacher := &database.User{
			Username: "ms-chen", Email: "chen@example.com", Password: "hashed",
			Role: database.RoleTeacher, GradeLevel: 2,
		}
		require.NoError(t, database.DB.Create(teacher).Error)

		_, err := CreateQuizSession(teacher.ID, &models.CreateSessionRequest{
			Topic:          models.TopicAddition,
			GradeLevel:     2,
			TotalQuestions: 10,
		})
		requireAppError(t, err, errors.CodeForbidden)
	})

	t.Run("unknown student", func(t *testing.T) {
		_, err := CreateQuizSession(99999, &models.CreateSessionRequest{
			Topic:          models.TopicAddition,
			GradeLevel:     2,
			TotalQuestions: 10,
		})
		requireAppError(t, err, errors.CodeNotFound)
	})
}

func requireAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*errors.AppError)
	require.True(t, ok, "expected *errors.AppError, got %T", err)
	assert.Equal(t, code, appErr.Code)
}

func TestQuizLifecycle(t *testing.T) {
	setupTestDB(t)
	student := seedStudent(t, "leo", 1)

	session, err := CreateQuizSession(student.ID, &models.CreateSessionRequest{
		Topic:          models.TopicSubtraction,
		GradeLevel:     1,
		TotalQuestions: 2,
	})
	require.NoError(t, err)

	first, err := SubmitAnswer(session.ID, student.ID, &models.SubmitAnswerRequest{
		Question:      "5 - 2",
		StudentAnswer: " 3 ",
		CorrectAnswer: "3",
		TimeTaken:     8,
		Difficulty:    models.DifficultyMedium,
	})
	require.NoError(t, err)
	assert.True(t, first.IsCorrect)
	assert.Equal(t, "3", first.StudentAnswer)

	second, err := SubmitAnswer(session.ID, student.ID, &models.SubmitAnswerRequest{
		Question:      "9 - 4",
		StudentAnswer: "6",
		CorrectAnswer: "5",
		TimeTaken:     12,
		Difficulty:    models.DifficultyMedium,
	})
	require.NoError(t, err)
	assert.False(t, second.IsCorrect)

	result, err := CompleteQuizSession(session.ID, student.ID, 30)
	require.NoError(t, err)

	// 10 base + 25 accuracy + 3 time + 10 difficulty
	assert.Equal(t, 48, result.PointsEarned)
	assert.InDelta(t, 50.0, result.Accuracy, 0.001)
	assert.Equal(t, "Needs Improvement", result.Rating)
	assert.Equal(t, 1, result.Stars)
	assert.Contains(t, result.NewBadges, "first_quiz")
	require.NotNil(t, result.Progress)
	assert.Equal(t, 48, result.Progress.TotalPoints)

	t.Run("completing twice conflicts", func(t *testing.T) {
		_, err := CompleteQuizSession(session.ID, student.ID, 30)
		requireAppError(t, err, errors.CodeConflict)
	})

	t.Run("answers after completion are rejected", func(t *testing.T) {
		_, err := SubmitAnswer(session.ID, student.ID, &models.SubmitAnswerRequest{
			Question:      "1 - 1",
			StudentAnswer: "0",
			CorrectAnswer: "0",
			TimeTaken:     5,
			Difficulty:    models.DifficultyEasy,
		})
		requireAppError(t, err, errors.CodeUnprocessable)
	})

	t.Run("another student cannot touch the session", func(t *testing.T) {
		other := seedStudent(t, "zoe", 1)
		_, err := GetQuizSession(session.ID, other.ID)
		requireAppError(t, err, errors.CodeForbidden)
	})

	t.Run("history and best performance", func(t *testing.T) {
		history, err := GetQuizHistory(student.ID, models.TopicSubtraction, 1, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)

		best, err := GetBestPerformance(student.ID, models.TopicSubtraction, 1)
		require.NoError(t, err)
		require.NotNil(t, best)
		assert.Equal(t, 48, best.PointsEarned)

		stats, err := GetAverageStats(student.ID, models.TopicSubtraction, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalSessions)
		assert.InDelta(t, 50.0, stats.AverageAccuracy, 0.001)
		assert.InDelta(t, 48.0, stats.AveragePoints, 0.001)
	})
}

func TestCompleteSessionRollsBackWhenProgressFails(t *testing.T) {
	setupTestDB(t)
	student := seedStudent(t, "noah", 2)

	session, err := CreateQuizSession(student.ID, &models.CreateSessionRequest{
		Topic:          models.TopicDivision,
		GradeLevel:     2,
		TotalQuestions: 2,
	})
	require.NoError(t, err)

	_, err = SubmitAnswer(session.ID, student.ID, &models.SubmitAnswerRequest{
		Question:      "8 / 2",
		StudentAnswer: "4",
		CorrectAnswer: "4",
		TimeTaken:     10,
		Difficulty:    models.DifficultyEasy,
	})
	require.NoError(t, err)

	// force the progress half of the completion to fail
	require.NoError(t, database.DB.Migrator().DropTable(&models.StudentProgress{}))

	_, err = CompleteQuizSession(session.ID, student.ID, 30)
	require.Error(t, err)

	// the failed completion rolled back: the session is still open
	reloaded, err := GetQuizSession(session.ID, student.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsCompleted())
	assert.Zero(t, reloaded.PointsEarned)

	// a retry once the failure clears completes and scores the session
	require.NoError(t, database.DB.AutoMigrate(&models.StudentProgress{}))

	result, err := CompleteQuizSession(session.ID, student.ID, 30)
	require.NoError(t, err)
	assert.True(t, result.Session.IsCompleted())
	assert.Equal(t, result.PointsEarned, result.Progress.TotalPoints)
}

func TestAbandonQuizSession(t *testing.T) {
	setupTestDB(t)
	student := seedStudent(t, "ava", 3)

	session, err := CreateQuizSession(student.ID, &models.CreateSessionRequest{
		Topic:          models.TopicMultiplication,
		GradeLevel:     3,
		TotalQuestions: 5,
	})
	require.NoError(t, err)

	require.NoError(t, AbandonQuizSession(session.ID, student.ID))

	abandoned, err := GetQuizSession(session.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, abandoned.IsCompleted())
	assert.Zero(t, abandoned.PointsEarned)

	// abandoning an already-closed session is a no-op
	require.NoError(t, AbandonQuizSession(session.ID, student.ID))

	// no progress row was created
	var count int64
	require.NoError(t, database.DB.Model(&models.StudentProgress{}).Where("student_id = ?", student.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAverageStatsEmpty(t *testing.T) {
	setupTestDB(t)

	stats, err := GetAverageStats(42, models.TopicAddition, 1)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSessions)
	assert.Zero(t, stats.AverageAccuracy)
}
