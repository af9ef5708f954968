package services

import (
	"fmt"
	"time"

	"github.com/architect/mathquest/internal/quiz/models"
	"github.com/architect/mathquest/pkg/logger"
	"go.uber.org/zap"
)

// badgeCatalog is the full set of awardable badges, in display order.
var badgeCatalog = []models.BadgeInfo{
	// Completion
	{ID: "first_quiz", Name: "First Steps", Description: "Completed your first quiz", Icon: "🎯", Category: "completion"},
	{ID: "quiz_milestone_5", Name: "Getting Started", Description: "Completed 5 quizzes", Icon: "🏃", Category: "completion"},
	{ID: "quiz_milestone_10", Name: "Dedicated Learner", Description: "Completed 10 quizzes", Icon: "📚", Category: "completion"},
	{ID: "quiz_milestone_25", Name: "Quiz Enthusiast", Description: "Completed 25 quizzes", Icon: "🎓", Category: "completion"},
	{ID: "quiz_milestone_50", Name: "Quiz Master", Description: "Completed 50 quizzes", Icon: "👑", Category: "completion"},
	{ID: "quiz_milestone_100", Name: "Quiz Legend", Description: "Completed 100 quizzes", Icon: "🏆", Category: "completion"},

	// Accuracy
	{ID: "perfect_score", Name: "Perfect Score", Description: "Scored 100% on a quiz", Icon: "⭐", Category: "accuracy"},
	{ID: "accuracy_achiever", Name: "Accuracy Achiever", Description: "Achieved 85% accuracy", Icon: "🎯", Category: "accuracy"},
	{ID: "accuracy_master", Name: "Accuracy Master", Description: "Achieved 90% accuracy", Icon: "🏹", Category: "accuracy"},
	{ID: "accuracy_expert", Name: "Accuracy Expert", Description: "Achieved 95% accuracy", Icon: "🎪", Category: "accuracy"},
	{ID: "consistent_accuracy", Name: "Consistent Performer", Description: "5 quizzes in a row with 80%+ accuracy", Icon: "🔥", Category: "accuracy"},

	// Speed
	{ID: "quick_thinker", Name: "Quick Thinker", Description: "Average under 15 seconds per question", Icon: "⚡", Category: "speed"},
	{ID: "speed_demon", Name: "Speed Demon", Description: "Average under 10 seconds per question", Icon: "🏎️", Category: "speed"},
	{ID: "lightning_fast", Name: "Lightning Fast", Description: "Under 5 seconds per question with 90%+ accuracy", Icon: "⚡", Category: "speed"},

	// Answer streaks
	{ID: "streak_starter", Name: "Streak Starter", Description: "3 correct answers in a row", Icon: "🔥", Category: "streak"},
	{ID: "streak_achiever", Name: "Streak Achiever", Description: "5 correct answers in a row", Icon: "🔥", Category: "streak"},
	{ID: "streak_champion", Name: "Streak Champion", Description: "7 correct answers in a row", Icon: "🔥", Category: "streak"},
	{ID: "streak_master", Name: "Streak Master", Description: "10 correct answers in a row", Icon: "🔥", Category: "streak"},

	// Daily streaks
	{ID: "daily_streak_starter", Name: "Daily Dedication", Description: "Practiced 3 days in a row", Icon: "📅", Category: "daily_streak"},
	{ID: "daily_streak_achiever", Name: "Weekly Warrior", Description: "Practiced 7 days in a row", Icon: "📅", Category: "daily_streak"},
	{ID: "daily_streak_champion", Name: "Fortnight Fighter", Description: "Practiced 14 days in a row", Icon: "📅", Category: "daily_streak"},
	{ID: "daily_streak_legend", Name: "Monthly Master", Description: "Practiced 30 days in a row", Icon: "📅", Category: "daily_streak"},

	// Mastery
	{ID: "mastery_achiever", Name: "Topic Achiever", Description: "Reached 80% mastery level", Icon: "🎖️", Category: "mastery"},
	{ID: "mastery_master", Name: "Topic Master", Description: "Reached 85% mastery level", Icon: "🏅", Category: "mastery"},
	{ID: "mastery_expert", Name: "Topic Expert", Description: "Reached 90% mastery level", Icon: "🥇", Category: "mastery"},
	{ID: "mastery_legend", Name: "Topic Legend", Description: "Reached 95% mastery level", Icon: "👑", Category: "mastery"},

	// Points
	{ID: "point_starter", Name: "Point Collector", Description: "Earned 100 points", Icon: "💎", Category: "points"},
	{ID: "point_collector", Name: "Point Gatherer", Description: "Earned 250 points", Icon: "💎", Category: "points"},
	{ID: "point_achiever", Name: "Point Achiever", Description: "Earned 500 points", Icon: "💎", Category: "points"},
	{ID: "point_champion", Name: "Point Champion", Description: "Earned 1,000 points", Icon: "💎", Category: "points"},
	{ID: "point_master", Name: "Point Master", Description: "Earned 2,000 points", Icon: "💎", Category: "points"},
	{ID: "point_legend", Name: "Point Legend", Description: "Earned 5,000 points", Icon: "💎", Category: "points"},
}

var badgeIndex = func() map[string]models.BadgeInfo {
	idx := make(map[string]models.BadgeInfo, len(badgeCatalog))
	for _, info := range badgeCatalog {
		idx[info.ID] = info
	}
	return idx
}()

// GetAllBadgeTypes returns the full badge catalog in display order
func GetAllBadgeTypes() []models.BadgeInfo {
	out := make([]models.BadgeInfo, len(badgeCatalog))
	copy(out, badgeCatalog)
	return out
}

// GetBadgeInfo looks up one badge by id, nil if unknown
func GetBadgeInfo(badgeType string) *models.BadgeInfo {
	if info, ok := badgeIndex[badgeType]; ok {
		return &info
	}
	return nil
}

// badgeTier pairs a threshold with the badge it unlocks. Tier tables
// are ordered highest first.
type badgeTier struct {
	threshold float64
	badgeType string
}

var (
	streakTiers = []badgeTier{
		{10, "streak_master"},
		{7, "streak_champion"},
		{5, "streak_achiever"},
		{3, "streak_starter"},
	}
	dailyStreakTiers = []badgeTier{
		{30, "daily_streak_legend"},
		{14, "daily_streak_champion"},
		{7, "daily_streak_achiever"},
		{3, "daily_streak_starter"},
	}
	masteryTiers = []badgeTier{
		{95, "mastery_legend"},
		{90, "mastery_expert"},
		{85, "mastery_master"},
		{80, "mastery_achiever"},
	}
	pointTiers = []badgeTier{
		{5000, "point_legend"},
		{2000, "point_master"},
		{1000, "point_champion"},
		{500, "point_achiever"},
		{250, "point_collector"},
		{100, "point_starter"},
	}
	accuracyTiers = []badgeTier{
		{95, "accuracy_expert"},
		{90, "accuracy_master"},
		{85, "accuracy_achiever"},
	}
	quizMilestones = []int64{5, 10, 25, 50, 100}
)

// BadgeContext carries the aggregate facts badge rules need beyond the
// progress row and the session itself. The caller queries them once,
// inside the same transaction that updates the progress.
type BadgeContext struct {
	// Completed sessions for this (student, topic, grade), including
	// the session being evaluated.
	TotalCompleted int64
	// Accuracies of the most recent completed sessions, newest first,
	// at most five.
	RecentAccuracies []float64
	// Calendar dates ("2006-01-02") with at least one completed session
	// in the trailing 30 days.
	ActivityDates map[string]bool
	// Reference time for daily-streak counting and badge timestamps.
	Now time.Time
}

// EvaluateBadges runs every badge rule family against the post-update
// progress state and the just-completed session. Awards append to the
// progress badge list; the returned slice holds only the badges that
// are new this evaluation.
func EvaluateBadges(progress *models.StudentProgress, session *models.QuizSession, ctx BadgeContext) []string {
	var newBadges []string

	checkCompletionBadges(progress, ctx, &newBadges)
	checkAccuracyBadges(progress, session, ctx, &newBadges)
	checkSpeedBadges(progress, session, ctx, &newBadges)
	checkStreakBadges(progress, session, ctx, &newBadges)
	checkMasteryBadges(progress, ctx, &newBadges)
	checkPointMilestoneBadges(progress, ctx, &newBadges)

	if len(newBadges) > 0 {
		logger.Info("badges awarded",
			zap.Uint("student_id", progress.StudentID),
			zap.String("topic", string(progress.Topic)),
			zap.Strings("badges", newBadges),
		)
	}
	return newBadges
}

func award(progress *models.StudentProgress, badgeType string, now time.Time, metadata map[string]interface{}, newBadges *[]string) {
	if progress.AwardBadge(badgeType, now, metadata) {
		*newBadges = append(*newBadges, badgeType)
	}
}

// awardHighestMet stops at the first tier whose threshold is met,
// whether or not that badge is already held. Lower tiers are never
// reached, so a student keeps climbing one rung at a time. The metadata
// records the measured value, so one map serves every tier.
func awardHighestMet(progress *models.StudentProgress, tiers []badgeTier, value float64, now time.Time, metadata map[string]interface{}, newBadges *[]string) {
	for _, tier := range tiers {
		if value >= tier.threshold {
			award(progress, tier.badgeType, now, metadata, newBadges)
			break
		}
	}
}

// awardHighestUnheld skips tiers already held and stops at the first
// unheld tier whose threshold is met. A student who earned a high tier
// can still pick up a skipped lower one on a later session.
func awardHighestUnheld(progress *models.StudentProgress, tiers []badgeTier, value float64, now time.Time, metadata map[string]interface{}, newBadges *[]string) {
	for _, tier := range tiers {
		if value >= tier.threshold && !progress.HasBadge(tier.badgeType) {
			award(progress, tier.badgeType, now, metadata, newBadges)
			break
		}
	}
}

func checkCompletionBadges(progress *models.StudentProgress, ctx BadgeContext, newBadges *[]string) {
	if ctx.TotalCompleted == 1 {
		award(progress, "first_quiz", ctx.Now, map[string]interface{}{
			"topic": progress.Topic.Label(),
			"grade": progress.GradeLevel,
		}, newBadges)
	}

	// Milestones match on exact counts; a count that jumps past one
	// never earns it retroactively.
	for _, milestone := range quizMilestones {
		if ctx.TotalCompleted == milestone {
			award(progress, fmt.Sprintf("quiz_milestone_%d", milestone), ctx.Now, map[string]interface{}{
				"topic":         progress.Topic.Label(),
				"grade":         progress.GradeLevel,
				"total_quizzes": ctx.TotalCompleted,
			}, newBadges)
		}
	}

	checkDailyStreakBadges(progress, ctx, newBadges)
}

func checkAccuracyBadges(progress *models.StudentProgress, session *models.QuizSession, ctx BadgeContext, newBadges *[]string) {
	accuracy := session.Accuracy()

	if accuracy == 100.0 {
		award(progress, "perfect_score", ctx.Now, map[string]interface{}{
			"quiz_id":       session.ID,
			"topic":         progress.Topic.Label(),
			"points_earned": session.PointsEarned,
		}, newBadges)
	}

	// Accuracy tiers are independent: a 96% session can earn all three.
	for _, tier := range accuracyTiers {
		if accuracy >= tier.threshold && !progress.HasBadge(tier.badgeType) {
			award(progress, tier.badgeType, ctx.Now, map[string]interface{}{
				"accuracy": accuracy,
				"topic":    progress.Topic.Label(),
			}, newBadges)
		}
	}

	checkConsistentAccuracyBadge(progress, ctx, newBadges)
}

func checkConsistentAccuracyBadge(progress *models.StudentProgress, ctx BadgeContext, newBadges *[]string) {
	if progress.HasBadge("consistent_accuracy") {
		return
	}
	if len(ctx.RecentAccuracies) != 5 {
		return
	}
	for _, accuracy := range ctx.RecentAccuracies {
		if accuracy < 80 {
			return
		}
	}
	award(progress, "consistent_accuracy", ctx.Now, map[string]interface{}{
		"sessions_count": 5,
		"topic":          progress.Topic.Label(),
	}, newBadges)
}

func checkSpeedBadges(progress *models.StudentProgress, session *models.QuizSession, ctx BadgeContext, newBadges *[]string) {
	averageTime := session.AverageTimePerQuestion()

	if averageTime <= 10 {
		award(progress, "speed_demon", ctx.Now, map[string]interface{}{
			"average_time": averageTime,
			"topic":        progress.Topic.Label(),
			"quiz_id":      session.ID,
		}, newBadges)
	}

	if averageTime <= 15 && !progress.HasBadge("quick_thinker") {
		award(progress, "quick_thinker", ctx.Now, map[string]interface{}{
			"average_time": averageTime,
			"topic":        progress.Topic.Label(),
		}, newBadges)
	}

	if averageTime <= 5 && session.Accuracy() >= 90 {
		award(progress, "lightning_fast", ctx.Now, map[string]interface{}{
			"average_time": averageTime,
			"accuracy":     session.Accuracy(),
			"topic":        progress.Topic.Label(),
		}, newBadges)
	}
}

func checkStreakBadges(progress *models.StudentProgress, session *models.QuizSession, ctx BadgeContext, newBadges *[]string) {
	maxStreak := LongestStreak(session.Answers)
	awardHighestMet(progress, streakTiers, float64(maxStreak), ctx.Now, map[string]interface{}{
		"streak_length": maxStreak,
		"topic":         progress.Topic.Label(),
		"quiz_id":       session.ID,
	}, newBadges)
}

func checkDailyStreakBadges(progress *models.StudentProgress, ctx BadgeContext, newBadges *[]string) {
	streak := 0
	day := ctx.Now
	for i := 0; i < 30; i++ {
		if !ctx.ActivityDates[day.Format("2006-01-02")] {
			break
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}

	awardHighestUnheld(progress, dailyStreakTiers, float64(streak), ctx.Now, map[string]interface{}{
		"streak_days": streak,
		"topic":       progress.Topic.Label(),
	}, newBadges)
}

func checkMasteryBadges(progress *models.StudentProgress, ctx BadgeContext, newBadges *[]string) {
	awardHighestUnheld(progress, masteryTiers, progress.MasteryLevel, ctx.Now, map[string]interface{}{
		"mastery_level": progress.MasteryLevel,
		"topic":         progress.Topic.Label(),
		"grade":         progress.GradeLevel,
	}, newBadges)
}

func checkPointMilestoneBadges(progress *models.StudentProgress, ctx BadgeContext, newBadges *[]string) {
	awardHighestUnheld(progress, pointTiers, float64(progress.TotalPoints), ctx.Now, map[string]interface{}{
		"points": progress.TotalPoints,
		"topic":  progress.Topic.Label(),
	}, newBadges)
}
