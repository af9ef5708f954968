package repository

import (
	stderrors "errors"
	"time"

	"github.com/architect/mathquest/internal/common/database"
	"github.com/architect/mathquest/internal/common/errors"
	"github.com/architect/mathquest/internal/quiz/models"
	"gorm.io/gorm"
)

// CreateSession persists a new quiz session
func CreateSession(session *models.QuizSession) error {
	if err := database.DB.Create(session).Error; err != nil {
		return errors.Internal("failed to create quiz session", err.Error())
	}
	return nil
}

// GetSessionByID fetches a session with its answers, nil if missing
func GetSessionByID(id uint) (*models.QuizSession, error) {
	var session models.QuizSession
	err := database.DB.Preload("Answers").First(&session, id).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Internal("failed to fetch quiz session", err.Error())
	}
	return &session, nil
}

// UpdateSession saves session changes outside a transaction
func UpdateSession(session *models.QuizSession) error {
	return UpdateSessionTx(database.DB, session)
}

// UpdateSessionTx saves session changes within the given transaction
func UpdateSessionTx(tx *gorm.DB, session *models.QuizSession) error {
	if err := tx.Save(session).Error; err != nil {
		return errors.Internal("failed to update quiz session", err.Error())
	}
	return nil
}

// SaveAnswer persists one answered question
func SaveAnswer(answer *models.QuizAnswer) error {
	if err := database.DB.Create(answer).Error; err != nil {
		return errors.Internal("failed to save quiz answer", err.Error())
	}
	return nil
}

// CountCompletedSessions counts finished sessions for one progress key
func CountCompletedSessions(tx *gorm.DB, studentID uint, topic models.Topic, gradeLevel int) (int64, error) {
	var count int64
	err := tx.Model(&models.QuizSession{}).
		Where("student_id = ? AND topic = ? AND grade_level = ? AND completed_at IS NOT NULL",
			studentID, topic, gradeLevel).
		Count(&count).Error
	if err != nil {
		return 0, errors.Internal("failed to count completed sessions", err.Error())
	}
	return count, nil
}

// GetRecentCompletedSessions returns up to limit finished sessions for one
// progress key, most recent first
func GetRecentCompletedSessions(tx *gorm.DB, studentID uint, topic models.Topic, gradeLevel, limit int) ([]models.QuizSession, error) {
	var sessions []models.QuizSession
	err := tx.
		Where("student_id = ? AND topic = ? AND grade_level = ? AND completed_at IS NOT NULL",
			studentID, topic, gradeLevel).
		Order("completed_at DESC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, errors.Internal("failed to fetch recent sessions", err.Error())
	}
	return sessions, nil
}

// GetCompletedSessionTimes returns completion timestamps for one progress
// key after the cutoff, most recent first. Used for daily activity streaks.
func GetCompletedSessionTimes(tx *gorm.DB, studentID uint, topic models.Topic, gradeLevel int, since time.Time) ([]time.Time, error) {
	var times []time.Time
	err := tx.Model(&models.QuizSession{}).
		Where("student_id = ? AND topic = ? AND grade_level = ? AND completed_at >= ?",
			studentID, topic, gradeLevel, since).
		Order("completed_at DESC").
		Pluck("completed_at", &times).Error
	if err != nil {
		return nil, errors.Internal("failed to fetch session times", err.Error())
	}
	return times, nil
}

// GetCompletedSessions returns every finished session for one progress key
func GetCompletedSessions(studentID uint, topic models.Topic, gradeLevel int) ([]models.QuizSession, error) {
	var sessions []models.QuizSession
	err := database.DB.
		Where("student_id = ? AND topic = ? AND grade_level = ? AND completed_at IS NOT NULL",
			studentID, topic, gradeLevel).
		Find(&sessions).Error
	if err != nil {
		return nil, errors.Internal("failed to fetch completed sessions", err.Error())
	}
	return sessions, nil
}

// GetQuizHistory returns finished sessions for one progress key, newest first
func GetQuizHistory(studentID uint, topic models.Topic, gradeLevel, limit int) ([]models.QuizSession, error) {
	return GetRecentCompletedSessions(database.DB, studentID, topic, gradeLevel, limit)
}

// GetBestSession returns the highest-scoring finished session, nil if none
func GetBestSession(studentID uint, topic models.Topic, gradeLevel int) (*models.QuizSession, error) {
	var session models.QuizSession
	err := database.DB.
		Where("student_id = ? AND topic = ? AND grade_level = ? AND completed_at IS NOT NULL",
			studentID, topic, gradeLevel).
		Order("points_earned DESC").
		First(&session).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Internal("failed to fetch best session", err.Error())
	}
	return &session, nil
}

// GetSessionsSince returns finished sessions completed after the cutoff,
// oldest first. Used for progress trends.
func GetSessionsSince(studentID uint, topic models.Topic, gradeLevel int, since time.Time) ([]models.QuizSession, error) {
	var sessions []models.QuizSession
	err := database.DB.
		Where("student_id = ? AND topic = ? AND grade_level = ? AND completed_at >= ?",
			studentID, topic, gradeLevel, since).
		Order("completed_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, errors.Internal("failed to fetch sessions for trends", err.Error())
	}
	return sessions, nil
}
