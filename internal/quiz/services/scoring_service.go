package services

import (
	"math"

	"github.com/architect/mathquest/internal/quiz/models"
)

// Scoring constants
const (
	PointsPerCorrectAnswer = 10
	MaxAccuracyBonus       = 50.0
	MaxTimeBonus           = 25
	OptimalSecondsPerQ     = 30
	QuickAnswerBonus       = 5
	ModerateAnswerBonus    = 2
	MaxStreakBonus         = 20
	MinStreakLength        = 3
)

// CalculateQuizScore computes the total score for a completed session:
// base points per correct answer, an accuracy bonus, a time bonus for
// finishing under the optimal pace, and a difficulty bonus summed over
// the correctly answered questions. The sum truncates to an int.
func CalculateQuizScore(session *models.QuizSession) int {
	basePoints := calculateBasePoints(session)
	accuracyBonus := calculateAccuracyBonus(session)
	timeBonus := calculateTimeBonus(session)
	difficultyBonus := calculateDifficultyBonus(session)

	return int(float64(basePoints) + accuracyBonus + float64(timeBonus) + float64(difficultyBonus))
}

func calculateBasePoints(session *models.QuizSession) int {
	return session.CorrectAnswers * PointsPerCorrectAnswer
}

// Accuracy bonus scales linearly up to MaxAccuracyBonus at 100%.
func calculateAccuracyBonus(session *models.QuizSession) float64 {
	if session.TotalQuestions == 0 {
		return 0
	}
	accuracy := float64(session.CorrectAnswers) / float64(session.TotalQuestions)
	return accuracy * MaxAccuracyBonus
}

// Time bonus rewards finishing under 30 seconds per question:
// one point per 10 seconds saved, capped at MaxTimeBonus. Sessions
// with no recorded time get nothing.
func calculateTimeBonus(session *models.QuizSession) int {
	if session.TimeTaken <= 0 {
		return 0
	}

	optimal := session.TotalQuestions * OptimalSecondsPerQ
	if session.TimeTaken <= optimal {
		saved := optimal - session.TimeTaken
		bonus := saved / 10
		if bonus > MaxTimeBonus {
			return MaxTimeBonus
		}
		return bonus
	}
	return 0
}

func calculateDifficultyBonus(session *models.QuizSession) int {
	bonus := 0
	for _, answer := range session.Answers {
		if answer.IsCorrect {
			bonus += answer.Difficulty.Points()
		}
	}
	return bonus
}

// CalculateAnswerScore scores one answer: the difficulty's point value
// plus a speed bonus. Wrong answers score zero.
func CalculateAnswerScore(answer *models.QuizAnswer) int {
	if !answer.IsCorrect {
		return 0
	}
	return answer.Difficulty.Points() + calculateAnswerTimeBonus(answer)
}

func calculateAnswerTimeBonus(answer *models.QuizAnswer) int {
	if !answer.IsCorrect || answer.TimeTaken <= 0 {
		return 0
	}
	if answer.TimeTaken <= 10 {
		return QuickAnswerBonus
	}
	if answer.TimeTaken <= 20 {
		return ModerateAnswerBonus
	}
	return 0
}

// LongestStreak returns the longest run of consecutive correct answers.
func LongestStreak(answers []models.QuizAnswer) int {
	maxStreak := 0
	current := 0
	for _, answer := range answers {
		if answer.IsCorrect {
			current++
			if current > maxStreak {
				maxStreak = current
			}
		} else {
			current = 0
		}
	}
	return maxStreak
}

// CalculateStreakBonus awards 5 points per correct answer beyond a streak
// of two, capped at MaxStreakBonus. Streaks under three earn nothing.
func CalculateStreakBonus(answers []models.QuizAnswer) int {
	maxStreak := LongestStreak(answers)
	if maxStreak < MinStreakLength {
		return 0
	}

	bonus := (maxStreak - 2) * 5
	if bonus > MaxStreakBonus {
		return MaxStreakBonus
	}
	return bonus
}

// GradeMultiplier returns the per-grade score multiplier. Older students
// get a small bump for working on the same material.
func GradeMultiplier(gradeLevel int) float64 {
	switch gradeLevel {
	case 1:
		return 1.0
	case 2:
		return 1.1
	case 3:
		return 1.2
	default:
		return 1.0
	}
}

// PerformanceRating is the kid-facing summary of one session.
type PerformanceRating struct {
	Rating            string  `json:"rating"`
	Stars             int     `json:"stars"`
	Accuracy          float64 `json:"accuracy"`
	PointsPerQuestion float64 `json:"points_per_question"`
}

// GetPerformanceRating grades a finished session on accuracy and points
// per question.
func GetPerformanceRating(session *models.QuizSession) PerformanceRating {
	accuracy := session.Accuracy()
	pointsPerQuestion := 0.0
	if session.TotalQuestions > 0 {
		pointsPerQuestion = float64(session.PointsEarned) / float64(session.TotalQuestions)
	}

	var rating string
	var stars int
	switch {
	case accuracy >= 90 && pointsPerQuestion >= 15:
		rating, stars = "Excellent", 5
	case accuracy >= 80 && pointsPerQuestion >= 12:
		rating, stars = "Very Good", 4
	case accuracy >= 70 && pointsPerQuestion >= 10:
		rating, stars = "Good", 3
	case accuracy >= 60 && pointsPerQuestion >= 8:
		rating, stars = "Fair", 2
	default:
		rating, stars = "Needs Improvement", 1
	}

	return PerformanceRating{
		Rating:            rating,
		Stars:             stars,
		Accuracy:          accuracy,
		PointsPerQuestion: math.Round(pointsPerQuestion*100) / 100,
	}
}

// AchievementLevel is one rung of the points ladder.
type AchievementLevel struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

var achievementLevels = []AchievementLevel{
	{"Beginner", 0},
	{"Learner", 100},
	{"Explorer", 250},
	{"Achiever", 500},
	{"Expert", 1000},
	{"Master", 2000},
	{"Champion", 5000},
}

// LevelProgress describes where a point total sits on the ladder.
type LevelProgress struct {
	CurrentLevel       AchievementLevel  `json:"current_level"`
	NextLevel          *AchievementLevel `json:"next_level"`
	PointsNeeded       int               `json:"points_needed"`
	ProgressPercentage float64           `json:"progress_percentage"`
}

// GetPointsToNextLevel locates currentPoints on the achievement ladder
// and reports the distance to the next rung. At the top rung the
// progress is pinned to 100%.
func GetPointsToNextLevel(currentPoints int) LevelProgress {
	current := achievementLevels[0]
	var next *AchievementLevel

	for i, level := range achievementLevels {
		if currentPoints >= level.Points {
			current = level
		} else {
			next = &achievementLevels[i]
			break
		}
	}

	if next == nil {
		return LevelProgress{
			CurrentLevel:       current,
			PointsNeeded:       0,
			ProgressPercentage: 100,
		}
	}

	levelRange := next.Points - current.Points
	progressInLevel := currentPoints - current.Points
	percentage := 0.0
	if levelRange > 0 {
		percentage = float64(progressInLevel) / float64(levelRange) * 100
	}

	return LevelProgress{
		CurrentLevel:       current,
		NextLevel:          next,
		PointsNeeded:       next.Points - currentPoints,
		ProgressPercentage: math.Round(percentage*100) / 100,
	}
}
