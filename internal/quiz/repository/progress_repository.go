package repository

import (
	stderrors "errors"

	"github.com/architect/mathquest/internal/common/database"
	"github.com/architect/mathquest/internal/common/errors"
	"github.com/architect/mathquest/internal/quiz/models"
	"gorm.io/gorm"
)

// GetOrCreateProgress loads the progress row for one (student, topic, grade)
// key, creating a zeroed row if none exists yet
func GetOrCreateProgress(tx *gorm.DB, studentID uint, topic models.Topic, gradeLevel int) (*models.StudentProgress, error) {
	var progress models.StudentProgress
	err := tx.
		Where(models.StudentProgress{StudentID: studentID, Topic: topic, GradeLevel: gradeLevel}).
		Attrs(models.StudentProgress{Badges: models.BadgeList{}}).
		FirstOrCreate(&progress).Error
	if err != nil {
		return nil, errors.Internal("failed to load student progress", err.Error())
	}
	return &progress, nil
}

// GetProgress fetches one progress row, nil if missing
func GetProgress(studentID uint, topic models.Topic, gradeLevel int) (*models.StudentProgress, error) {
	var progress models.StudentProgress
	err := database.DB.
		Where("student_id = ? AND topic = ? AND grade_level = ?", studentID, topic, gradeLevel).
		First(&progress).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Internal("failed to fetch student progress", err.Error())
	}
	return &progress, nil
}

// GetAllProgressForStudent returns a student's progress rows at one grade
func GetAllProgressForStudent(studentID uint, gradeLevel int) ([]models.StudentProgress, error) {
	var rows []models.StudentProgress
	err := database.DB.
		Where("student_id = ? AND grade_level = ?", studentID, gradeLevel).
		Order("topic ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Internal("failed to fetch student progress", err.Error())
	}
	return rows, nil
}

// GetProgressForStudents returns progress rows for a set of students at
// one grade. Teacher class-summary path.
func GetProgressForStudents(studentIDs []uint, gradeLevel int) ([]models.StudentProgress, error) {
	var rows []models.StudentProgress
	err := database.DB.
		Where("student_id IN ? AND grade_level = ?", studentIDs, gradeLevel).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Internal("failed to fetch class progress", err.Error())
	}
	return rows, nil
}

// SaveProgress persists progress changes within the given transaction
func SaveProgress(tx *gorm.DB, progress *models.StudentProgress) error {
	if err := tx.Save(progress).Error; err != nil {
		return errors.Internal("failed to save student progress", err.Error())
	}
	return nil
}

// GetLeaderboard returns the top progress rows for one topic and grade,
// ranked by points then mastery
func GetLeaderboard(topic models.Topic, gradeLevel, limit int) ([]models.StudentProgress, error) {
	var rows []models.StudentProgress
	err := database.DB.
		Where("topic = ? AND grade_level = ?", topic, gradeLevel).
		Order("total_points DESC, mastery_level DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Internal("failed to fetch leaderboard", err.Error())
	}
	return rows, nil
}

// CountOutranking returns how many progress rows for the same topic and
// grade hold more points than the given row
func CountOutranking(progress *models.StudentProgress) (int64, error) {
	var count int64
	err := database.DB.
		Model(&models.StudentProgress{}).
		Where("topic = ? AND grade_level = ? AND total_points > ?",
			progress.Topic, progress.GradeLevel, progress.TotalPoints).
		Count(&count).Error
	if err != nil {
		return 0, errors.Internal("failed to rank student progress", err.Error())
	}
	return count, nil
}

// GetClassProgress returns all progress rows for one topic and grade
func GetClassProgress(topic models.Topic, gradeLevel int) ([]models.StudentProgress, error) {
	var rows []models.StudentProgress
	err := database.DB.
		Where("topic = ? AND grade_level = ?", topic, gradeLevel).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Internal("failed to fetch class progress", err.Error())
	}
	return rows, nil
}

// DeleteProgress removes one progress row. Admin reset path only.
func DeleteProgress(studentID uint, topic models.Topic, gradeLevel int) error {
	err := database.DB.
		Where("student_id = ? AND topic = ? AND grade_level = ?", studentID, topic, gradeLevel).
		Delete(&models.StudentProgress{}).Error
	if err != nil {
		return errors.Internal("failed to reset student progress", err.Error())
	}
	return nil
}
