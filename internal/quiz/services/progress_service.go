package services

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/architect/mathquest/internal/common/database"
	"github.com/architect/mathquest/internal/quiz/models"
	"github.com/architect/mathquest/internal/quiz/repository"
	"github.com/architect/mathquest/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Mastery window: the estimate looks at this many most-recent sessions.
const masteryWindow = 10

// progressLocks serializes progress updates per (student, topic, grade)
// so two completions finishing together cannot lose points or badges.
var progressLocks sync.Map

func progressLock(studentID uint, topic models.Topic, gradeLevel int) *sync.Mutex {
	key := fmt.Sprintf("%d:%s:%d", studentID, topic, gradeLevel)
	lock, _ := progressLocks.LoadOrStore(key, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// EstimateMastery computes a recency-weighted average of session
// accuracies. Accuracies arrive newest first; the newest carries weight
// 10 and each older one carries one less. No history means zero.
func EstimateMastery(accuracies []float64) float64 {
	if len(accuracies) == 0 {
		return 0.0
	}
	if len(accuracies) > masteryWindow {
		accuracies = accuracies[:masteryWindow]
	}

	totalWeight := 0.0
	weightedSum := 0.0
	for i, accuracy := range accuracies {
		weight := float64(masteryWindow - i)
		weightedSum += accuracy * weight
		totalWeight += weight
	}

	if totalWeight == 0 {
		return 0.0
	}
	return weightedSum / totalWeight
}

// ProgressUpdateResult is what a completed session did to the student's
// standing.
type ProgressUpdateResult struct {
	Progress  *models.StudentProgress `json:"progress"`
	NewBadges []string                `json:"new_badges"`
}

// UpdateProgressFromSession applies a just-completed session to the
// student's progress row: adds the session's points, re-estimates and
// smooths mastery, stamps activity, and evaluates every badge rule
// against the updated state. Runs in one transaction under a per-key
// lock.
func UpdateProgressFromSession(session *models.QuizSession) (*ProgressUpdateResult, error) {
	return updateProgressFromSessionAt(session, time.Now())
}

func updateProgressFromSessionAt(session *models.QuizSession, now time.Time) (*ProgressUpdateResult, error) {
	lock := progressLock(session.StudentID, session.Topic, session.GradeLevel)
	lock.Lock()
	defer lock.Unlock()

	var result *ProgressUpdateResult
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = applyProgressInTx(tx, session, now)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	logProgressUpdate(session, result)
	return result, nil
}

// applyProgressInTx is the transactional core of a progress update. The
// caller holds the per-key lock and owns the transaction, so session
// completion can commit in the same one.
func applyProgressInTx(tx *gorm.DB, session *models.QuizSession, now time.Time) (*ProgressUpdateResult, error) {
	progress, err := repository.GetOrCreateProgress(tx, session.StudentID, session.Topic, session.GradeLevel)
	if err != nil {
		return nil, err
	}

	progress.AddPoints(session.PointsEarned)

	recent, err := repository.GetRecentCompletedSessions(tx, session.StudentID, session.Topic, session.GradeLevel, masteryWindow)
	if err != nil {
		return nil, err
	}
	accuracies := make([]float64, len(recent))
	for i := range recent {
		accuracies[i] = recent[i].Accuracy()
	}
	progress.UpdateMasteryLevel(EstimateMastery(accuracies))
	progress.LastActivity = now

	badgeCtx, err := buildBadgeContext(tx, session, accuracies, now)
	if err != nil {
		return nil, err
	}

	result := &ProgressUpdateResult{
		NewBadges: EvaluateBadges(progress, session, badgeCtx),
	}
	if err := repository.SaveProgress(tx, progress); err != nil {
		return nil, err
	}
	result.Progress = progress
	return result, nil
}

func logProgressUpdate(session *models.QuizSession, result *ProgressUpdateResult) {
	logger.Info("progress updated",
		zap.Uint("student_id", session.StudentID),
		zap.String("topic", string(session.Topic)),
		zap.Int("points_earned", session.PointsEarned),
		zap.Float64("mastery_level", result.Progress.MasteryLevel),
		zap.Int("new_badges", len(result.NewBadges)),
	)
}

func buildBadgeContext(tx *gorm.DB, session *models.QuizSession, accuracies []float64, now time.Time) (BadgeContext, error) {
	total, err := repository.CountCompletedSessions(tx, session.StudentID, session.Topic, session.GradeLevel)
	if err != nil {
		return BadgeContext{}, err
	}

	times, err := repository.GetCompletedSessionTimes(tx, session.StudentID, session.Topic, session.GradeLevel, now.AddDate(0, 0, -30))
	if err != nil {
		return BadgeContext{}, err
	}
	dates := make(map[string]bool, len(times))
	for _, t := range times {
		dates[t.Format("2006-01-02")] = true
	}

	recentFive := accuracies
	if len(recentFive) > 5 {
		recentFive = recentFive[:5]
	}

	return BadgeContext{
		TotalCompleted:   total,
		RecentAccuracies: recentFive,
		ActivityDates:    dates,
		Now:              now,
	}, nil
}

// TopicStats is the per-topic slice of a student's rollup. Rank is the
// student's place among everyone practicing the topic at this grade,
// by points, 1-based.
type TopicStats struct {
	TotalPoints     int       `json:"total_points"`
	MasteryLevel    float64   `json:"mastery_level"`
	MasteryCategory string    `json:"mastery_category"`
	TotalBadges     int       `json:"total_badges"`
	Rank            int       `json:"rank"`
	ActivityStatus  string    `json:"activity_status"`
	LastActivity    time.Time `json:"last_activity"`
}

// StudentProgressStats is the cross-topic rollup for one student at one
// grade level.
type StudentProgressStats struct {
	TotalPoints    int                         `json:"total_points"`
	TotalBadges    int                         `json:"total_badges"`
	TopicsMastered int                         `json:"topics_mastered"`
	AverageMastery float64                     `json:"average_mastery"`
	Topics         map[models.Topic]TopicStats `json:"topics"`
	RecentActivity *time.Time                  `json:"recent_activity"`
	Level          LevelProgress               `json:"level"`
}

// GetStudentProgressStats rolls up every topic a student has touched at
// one grade level, plus their place on the achievement ladder.
func GetStudentProgressStats(studentID uint, gradeLevel int) (*StudentProgressStats, error) {
	rows, err := repository.GetAllProgressForStudent(studentID, gradeLevel)
	if err != nil {
		return nil, err
	}

	stats := &StudentProgressStats{
		Topics: make(map[models.Topic]TopicStats, len(rows)),
	}

	masterySum := 0.0
	for i := range rows {
		progress := &rows[i]
		stats.TotalPoints += progress.TotalPoints
		stats.TotalBadges += progress.TotalBadges()
		masterySum += progress.MasteryLevel
		if progress.HasMastery() {
			stats.TopicsMastered++
		}

		outranked, err := repository.CountOutranking(progress)
		if err != nil {
			return nil, err
		}

		stats.Topics[progress.Topic] = TopicStats{
			TotalPoints:     progress.TotalPoints,
			MasteryLevel:    progress.MasteryLevel,
			MasteryCategory: progress.MasteryCategory(),
			TotalBadges:     progress.TotalBadges(),
			Rank:            int(outranked) + 1,
			ActivityStatus:  progress.ActivityStatus(),
			LastActivity:    progress.LastActivity,
		}

		if stats.RecentActivity == nil || progress.LastActivity.After(*stats.RecentActivity) {
			last := progress.LastActivity
			stats.RecentActivity = &last
		}
	}

	if len(rows) > 0 {
		stats.AverageMastery = masterySum / float64(len(rows))
	}
	stats.Level = GetPointsToNextLevel(stats.TotalPoints)

	return stats, nil
}

// GetLeaderboard ranks students on one topic and grade by points, ties
// broken by mastery.
func GetLeaderboard(topic models.Topic, gradeLevel, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := repository.GetLeaderboard(topic, gradeLevel, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, len(rows))
	for i := range rows {
		entries[i] = models.LeaderboardEntry{
			Rank:         i + 1,
			StudentID:    rows[i].StudentID,
			TotalPoints:  rows[i].TotalPoints,
			MasteryLevel: rows[i].MasteryLevel,
			TotalBadges:  rows[i].TotalBadges(),
		}
	}
	return entries, nil
}

// TopicClassSummary aggregates one topic across a class.
type TopicClassSummary struct {
	Label             string                   `json:"label"`
	StudentsAttempted int                      `json:"students_attempted"`
	AveragePoints     float64                  `json:"average_points"`
	AverageMastery    float64                  `json:"average_mastery"`
	StudentsMastered  int                      `json:"students_mastered"`
	TopPerformer      *models.LeaderboardEntry `json:"top_performer"`
}

// ClassProgressSummary is the teacher's view of a class at one grade.
type ClassProgressSummary struct {
	TotalStudents       int                                `json:"total_students"`
	ActiveStudents      int                                `json:"active_students"`
	Topics              map[models.Topic]TopicClassSummary `json:"topics"`
	AveragePoints       float64                            `json:"average_points"`
	AverageMastery      float64                            `json:"average_mastery"`
	StudentsWithMastery int                                `json:"students_with_mastery"`
}

// GetClassProgressSummary aggregates progress for a set of students,
// per topic and overall. Students active within the last week count as
// active.
func GetClassProgressSummary(studentIDs []uint, gradeLevel int) (*ClassProgressSummary, error) {
	rows, err := repository.GetProgressForStudents(studentIDs, gradeLevel)
	if err != nil {
		return nil, err
	}

	summary := &ClassProgressSummary{
		TotalStudents: len(studentIDs),
		Topics:        make(map[models.Topic]TopicClassSummary, len(models.AllTopics)),
	}

	byTopic := make(map[models.Topic][]*models.StudentProgress)
	for i := range rows {
		byTopic[rows[i].Topic] = append(byTopic[rows[i].Topic], &rows[i])
	}

	for _, topic := range models.AllTopics {
		group := byTopic[topic]
		topicSummary := TopicClassSummary{
			Label:             topic.Label(),
			StudentsAttempted: len(group),
		}

		var best *models.StudentProgress
		pointsSum, masterySum := 0.0, 0.0
		for _, progress := range group {
			pointsSum += float64(progress.TotalPoints)
			masterySum += progress.MasteryLevel
			if progress.HasMastery() {
				topicSummary.StudentsMastered++
			}
			if best == nil ||
				progress.TotalPoints > best.TotalPoints ||
				(progress.TotalPoints == best.TotalPoints && progress.MasteryLevel > best.MasteryLevel) {
				best = progress
			}
		}
		if len(group) > 0 {
			topicSummary.AveragePoints = pointsSum / float64(len(group))
			topicSummary.AverageMastery = masterySum / float64(len(group))
		}
		if best != nil {
			topicSummary.TopPerformer = &models.LeaderboardEntry{
				Rank:         1,
				StudentID:    best.StudentID,
				TotalPoints:  best.TotalPoints,
				MasteryLevel: best.MasteryLevel,
				TotalBadges:  best.TotalBadges(),
			}
		}
		summary.Topics[topic] = topicSummary
	}

	if len(rows) > 0 {
		pointsSum, masterySum := 0.0, 0.0
		weekAgo := time.Now().AddDate(0, 0, -7)
		for i := range rows {
			pointsSum += float64(rows[i].TotalPoints)
			masterySum += rows[i].MasteryLevel
			if rows[i].HasMastery() {
				summary.StudentsWithMastery++
			}
			if rows[i].LastActivity.After(weekAgo) {
				summary.ActiveStudents++
			}
		}
		summary.AveragePoints = math.Round(pointsSum/float64(len(rows))*100) / 100
		summary.AverageMastery = math.Round(masterySum/float64(len(rows))*100) / 100
	}

	return summary, nil
}

// GetProgressTrends returns one point per completed session in the
// trailing window, oldest first, with a running points total.
func GetProgressTrends(studentID uint, topic models.Topic, gradeLevel, days int) ([]models.TrendPoint, error) {
	since := time.Now().AddDate(0, 0, -days)
	sessions, err := repository.GetSessionsSince(studentID, topic, gradeLevel, since)
	if err != nil {
		return nil, err
	}

	trends := make([]models.TrendPoint, 0, len(sessions))
	cumulative := 0
	for i := range sessions {
		session := &sessions[i]
		cumulative += session.PointsEarned
		trends = append(trends, models.TrendPoint{
			Date:             session.CompletedAt.Format("2006-01-02"),
			PointsEarned:     session.PointsEarned,
			CumulativePoints: cumulative,
			Accuracy:         session.Accuracy(),
			TimeTaken:        session.TimeTaken,
		})
	}
	return trends, nil
}

// ResetStudentProgress wipes one progress row. Admin path; session
// history stays intact.
func ResetStudentProgress(studentID uint, topic models.Topic, gradeLevel int) error {
	if err := repository.DeleteProgress(studentID, topic, gradeLevel); err != nil {
		return err
	}
	logger.Warn("student progress reset",
		zap.Uint("student_id", studentID),
		zap.String("topic", string(topic)),
		zap.Int("grade_level", gradeLevel),
	)
	return nil
}
