package services

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/architect/mathquest/internal/common/database"
	"github.com/architect/mathquest/internal/common/errors"
	"github.com/architect/mathquest/internal/common/validation"
	"github.com/architect/mathquest/internal/quiz/models"
	"github.com/architect/mathquest/internal/quiz/repository"
	"github.com/architect/mathquest/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Incomplete sessions expire after this long.
const maxSessionAge = time.Hour

// CreateQuizSession starts a new session for a student. The account must
// exist, hold the student role, and be enrolled at the requested grade.
func CreateQuizSession(studentID uint, req *models.CreateSessionRequest) (*models.QuizSession, error) {
	if verrs := validation.Validate(req); len(verrs) > 0 {
		return nil, errors.Validation("invalid request", fmt.Sprintf("%s: %s", verrs[0].Field, verrs[0].Message))
	}
	if !req.Topic.IsValid() {
		return nil, errors.Validation("invalid topic", fmt.Sprintf("unknown topic %q", req.Topic))
	}
	if err := validation.ValidateIntRange(req.GradeLevel, 1, 3); err != nil {
		return nil, errors.Validation("invalid grade level", err.Error())
	}

	user, err := repository.GetUserByID(studentID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.NotFound("student")
	}
	if !user.IsStudent() {
		return nil, errors.Forbidden("only students can take quizzes")
	}
	if user.GradeLevel != req.GradeLevel {
		return nil, errors.Validation("grade level mismatch", "grade level must match the student's grade")
	}

	session := &models.QuizSession{
		StudentID:      studentID,
		Topic:          req.Topic,
		GradeLevel:     req.GradeLevel,
		TotalQuestions: req.TotalQuestions,
	}
	if err := repository.CreateSession(session); err != nil {
		return nil, err
	}

	logger.Info("quiz session created",
		zap.Uint("session_id", session.ID),
		zap.Uint("student_id", studentID),
		zap.String("topic", string(req.Topic)),
		zap.Int("grade_level", req.GradeLevel),
	)
	return session, nil
}

// IsValidSession reports whether a session can still accept answers:
// not completed and younger than the session age limit.
func IsValidSession(session *models.QuizSession) bool {
	if session.IsCompleted() {
		return false
	}
	return time.Since(session.CreatedAt) < maxSessionAge
}

// SubmitAnswer grades and records one answer on an open session. A
// correct answer bumps the session's correct count.
func SubmitAnswer(sessionID uint, studentID uint, req *models.SubmitAnswerRequest) (*models.QuizAnswer, error) {
	session, err := repository.GetSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.NotFound("quiz session")
	}
	if session.StudentID != studentID {
		return nil, errors.Forbidden("session belongs to another student")
	}
	if !IsValidSession(session) {
		return nil, errors.Unprocessable("session closed", "the session is completed or expired")
	}
	if !req.Difficulty.IsValid() {
		return nil, errors.Validation("invalid difficulty", fmt.Sprintf("unknown difficulty %q", req.Difficulty))
	}

	studentAnswer := strings.TrimSpace(req.StudentAnswer)
	answer := &models.QuizAnswer{
		QuizSessionID: session.ID,
		Question:      req.Question,
		StudentAnswer: studentAnswer,
		CorrectAnswer: req.CorrectAnswer,
		IsCorrect:     studentAnswer == strings.TrimSpace(req.CorrectAnswer),
		TimeTaken:     req.TimeTaken,
		Difficulty:    req.Difficulty,
	}
	if err := repository.SaveAnswer(answer); err != nil {
		return nil, err
	}

	if answer.IsCorrect {
		session.CorrectAnswers++
		if err := repository.UpdateSession(session); err != nil {
			return nil, err
		}
	}

	return answer, nil
}

// CompleteQuizSession closes a session: stamps the time, scores it, and
// folds the result into the student's progress. Completing twice is a
// conflict.
func CompleteQuizSession(sessionID uint, studentID uint, totalTimeTaken int) (*models.CompleteSessionResponse, error) {
	session, err := repository.GetSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.NotFound("quiz session")
	}
	if session.StudentID != studentID {
		return nil, errors.Forbidden("session belongs to another student")
	}
	if session.IsCompleted() {
		return nil, errors.Conflict("session already completed")
	}

	now := time.Now()
	session.TimeTaken = totalTimeTaken
	session.CompletedAt = &now
	session.PointsEarned = CalculateQuizScore(session)

	// The session close and the progress fold commit or roll back
	// together.
	lock := progressLock(session.StudentID, session.Topic, session.GradeLevel)
	lock.Lock()
	var update *ProgressUpdateResult
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := repository.UpdateSessionTx(tx, session); err != nil {
			return err
		}
		var txErr error
		update, txErr = applyProgressInTx(tx, session, now)
		return txErr
	})
	lock.Unlock()
	if err != nil {
		return nil, err
	}
	logProgressUpdate(session, update)

	rating := GetPerformanceRating(session)
	logger.Info("quiz session completed",
		zap.Uint("session_id", session.ID),
		zap.Uint("student_id", studentID),
		zap.Int("points_earned", session.PointsEarned),
		zap.Float64("accuracy", session.Accuracy()),
		zap.String("rating", rating.Rating),
	)

	return &models.CompleteSessionResponse{
		Session:      session,
		PointsEarned: session.PointsEarned,
		Accuracy:     session.Accuracy(),
		Rating:       rating.Rating,
		Stars:        rating.Stars,
		Progress:     update.Progress,
		NewBadges:    update.NewBadges,
	}, nil
}

// AbandonQuizSession closes an open session without awarding points.
// The session stays on record; progress is untouched.
func AbandonQuizSession(sessionID uint, studentID uint) error {
	session, err := repository.GetSessionByID(sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return errors.NotFound("quiz session")
	}
	if session.StudentID != studentID {
		return errors.Forbidden("session belongs to another student")
	}
	if session.IsCompleted() {
		return nil
	}

	now := time.Now()
	session.CompletedAt = &now
	session.PointsEarned = 0
	return repository.UpdateSession(session)
}

// GetQuizSession loads one session with its answers.
func GetQuizSession(sessionID uint, studentID uint) (*models.QuizSession, error) {
	session, err := repository.GetSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.NotFound("quiz session")
	}
	if session.StudentID != studentID {
		return nil, errors.Forbidden("session belongs to another student")
	}
	return session, nil
}

// GetQuizHistory returns a student's recent finished sessions for one
// topic and grade, newest first.
func GetQuizHistory(studentID uint, topic models.Topic, gradeLevel, limit int) ([]models.QuizSession, error) {
	if limit <= 0 {
		limit = 10
	}
	return repository.GetQuizHistory(studentID, topic, gradeLevel, limit)
}

// GetBestPerformance returns the student's highest-scoring session for
// one topic and grade, nil if they have none.
func GetBestPerformance(studentID uint, topic models.Topic, gradeLevel int) (*models.QuizSession, error) {
	return repository.GetBestSession(studentID, topic, gradeLevel)
}

// AverageStats summarizes all finished sessions for one progress key.
type AverageStats struct {
	AverageAccuracy float64 `json:"average_accuracy"`
	AveragePoints   float64 `json:"average_points"`
	AverageTime     float64 `json:"average_time"`
	TotalSessions   int     `json:"total_sessions"`
}

// GetAverageStats averages accuracy, points and time across every
// finished session for one topic and grade.
func GetAverageStats(studentID uint, topic models.Topic, gradeLevel int) (*AverageStats, error) {
	sessions, err := repository.GetCompletedSessions(studentID, topic, gradeLevel)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return &AverageStats{}, nil
	}

	var accuracySum, pointsSum, timeSum float64
	for i := range sessions {
		accuracySum += sessions[i].Accuracy()
		pointsSum += float64(sessions[i].PointsEarned)
		timeSum += float64(sessions[i].TimeTaken)
	}
	n := float64(len(sessions))

	round2 := func(v float64) float64 { return math.Round(v*100) / 100 }
	return &AverageStats{
		AverageAccuracy: round2(accuracySum / n),
		AveragePoints:   round2(pointsSum / n),
		AverageTime:     round2(timeSum / n),
		TotalSessions:   len(sessions),
	}, nil
}
