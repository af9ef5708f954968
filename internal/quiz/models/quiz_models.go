package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/architect/mathquest/internal/common/database"
)

// Topic is the math operation a quiz practices
type Topic string

const (
	TopicAddition       Topic = "addition"
	TopicSubtraction    Topic = "subtraction"
	TopicMultiplication Topic = "multiplication"
	TopicDivision       Topic = "division"
)

// AllTopics lists every supported topic
var AllTopics = []Topic{TopicAddition, TopicSubtraction, TopicMultiplication, TopicDivision}

func (t Topic) IsValid() bool {
	switch t {
	case TopicAddition, TopicSubtraction, TopicMultiplication, TopicDivision:
		return true
	}
	return false
}

func (t Topic) Label() string {
	switch t {
	case TopicAddition:
		return "Addition"
	case TopicSubtraction:
		return "Subtraction"
	case TopicMultiplication:
		return "Multiplication"
	case TopicDivision:
		return "Division"
	}
	return string(t)
}

func (t Topic) Symbol() string {
	switch t {
	case TopicAddition:
		return "+"
	case TopicSubtraction:
		return "-"
	case TopicMultiplication:
		return "×"
	case TopicDivision:
		return "÷"
	}
	return "?"
}

// Difficulty grades a question and drives its point value
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Points returns the point value of a correct answer at this difficulty.
// Unknown difficulties are worth nothing.
func (d Difficulty) Points() int {
	switch d {
	case DifficultyEasy:
		return 5
	case DifficultyMedium:
		return 10
	case DifficultyHard:
		return 15
	}
	return 0
}

func (d Difficulty) Label() string {
	switch d {
	case DifficultyEasy:
		return "Easy"
	case DifficultyMedium:
		return "Medium"
	case DifficultyHard:
		return "Hard"
	}
	return string(d)
}

// QuizSession is one sitting of a quiz: a student answering a fixed number
// of questions on one topic at one grade level.
type QuizSession struct {
	database.BaseModel
	StudentID      uint         `gorm:"not null;index" json:"student_id"`
	Topic          Topic        `gorm:"not null;index" json:"topic"`
	GradeLevel     int          `gorm:"not null" json:"grade_level"`
	TotalQuestions int          `gorm:"not null" json:"total_questions"`
	CorrectAnswers int          `gorm:"default:0" json:"correct_answers"`
	PointsEarned   int          `gorm:"default:0" json:"points_earned"`
	TimeTaken      int          `gorm:"default:0" json:"time_taken"` // seconds
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	Answers        []QuizAnswer `gorm:"foreignKey:QuizSessionID" json:"answers,omitempty"`
}

func (s *QuizSession) IsCompleted() bool {
	return s.CompletedAt != nil
}

// Accuracy returns the percentage of correct answers, 0 for empty sessions.
func (s *QuizSession) Accuracy() float64 {
	if s.TotalQuestions == 0 {
		return 0
	}
	return float64(s.CorrectAnswers) / float64(s.TotalQuestions) * 100
}

// AverageTimePerQuestion returns seconds per question, 0 for empty sessions.
func (s *QuizSession) AverageTimePerQuestion() float64 {
	if s.TotalQuestions == 0 {
		return 0
	}
	return float64(s.TimeTaken) / float64(s.TotalQuestions)
}

// QuizAnswer records a single answered question within a session.
type QuizAnswer struct {
	database.BaseModel
	QuizSessionID uint       `gorm:"not null;index" json:"quiz_session_id"`
	Question      string     `gorm:"not null" json:"question"`
	StudentAnswer string     `gorm:"not null" json:"student_answer"`
	CorrectAnswer string     `gorm:"not null" json:"correct_answer"`
	IsCorrect     bool       `gorm:"not null" json:"is_correct"`
	TimeTaken     int        `gorm:"default:0" json:"time_taken"` // seconds
	Difficulty    Difficulty `gorm:"not null" json:"difficulty"`
}

// ResponseTimeCategory buckets the answer time for reporting.
func (a *QuizAnswer) ResponseTimeCategory() string {
	switch {
	case a.TimeTaken <= 5:
		return "Very Fast"
	case a.TimeTaken <= 10:
		return "Fast"
	case a.TimeTaken <= 20:
		return "Normal"
	case a.TimeTaken <= 30:
		return "Slow"
	default:
		return "Very Slow"
	}
}

func (a *QuizAnswer) IsQuickAnswer() bool {
	return a.TimeTaken <= 10
}

// Badge is one earned badge stored on a progress record. Metadata holds
// the context the badge was earned under (topic, accuracy, streak length
// and the like, varying by badge family).
type Badge struct {
	Type     string                 `json:"type"`
	EarnedAt time.Time              `json:"earned_at"`
	Metadata map[string]interface{} `json:"metadata"`
}

// BadgeList stores earned badges as a JSON array column.
type BadgeList []Badge

func (b *BadgeList) Scan(value interface{}) error {
	if value == nil {
		*b = BadgeList{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for BadgeList: %T", value)
	}

	if len(data) == 0 {
		*b = BadgeList{}
		return nil
	}
	return json.Unmarshal(data, b)
}

func (b BadgeList) Value() (driver.Value, error) {
	if b == nil {
		b = BadgeList{}
	}
	return json.Marshal(b)
}

// StudentProgress tracks a student's cumulative standing for one topic at
// one grade level. One row per (student, topic, grade).
type StudentProgress struct {
	database.BaseModel
	StudentID    uint      `gorm:"not null;uniqueIndex:idx_progress_key" json:"student_id"`
	Topic        Topic     `gorm:"not null;uniqueIndex:idx_progress_key" json:"topic"`
	GradeLevel   int       `gorm:"not null;uniqueIndex:idx_progress_key" json:"grade_level"`
	TotalPoints  int       `gorm:"default:0" json:"total_points"`
	MasteryLevel float64   `gorm:"default:0" json:"mastery_level"`
	Badges       BadgeList `gorm:"type:jsonb" json:"badges"`
	LastActivity time.Time `json:"last_activity"`
}

func (p *StudentProgress) AddPoints(points int) {
	if points > 0 {
		p.TotalPoints += points
	}
}

// UpdateMasteryLevel blends a fresh estimate into the stored level so a
// single bad (or lucky) session cannot swing it: 70% history, 30% new.
func (p *StudentProgress) UpdateMasteryLevel(estimate float64) {
	p.MasteryLevel = p.MasteryLevel*0.7 + estimate*0.3
}

func (p *StudentProgress) HasBadge(badgeType string) bool {
	for _, badge := range p.Badges {
		if badge.Type == badgeType {
			return true
		}
	}
	return false
}

// AwardBadge appends the badge if not already held and reports whether
// the award happened. Badges are never removed. A stored entry always
// carries a metadata object, empty when the caller has no context.
func (p *StudentProgress) AwardBadge(badgeType string, earnedAt time.Time, metadata map[string]interface{}) bool {
	if p.HasBadge(badgeType) {
		return false
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	p.Badges = append(p.Badges, Badge{Type: badgeType, EarnedAt: earnedAt, Metadata: metadata})
	return true
}

func (p *StudentProgress) TotalBadges() int {
	return len(p.Badges)
}

func (p *StudentProgress) HasMastery() bool {
	return p.MasteryLevel >= 80
}

// MasteryCategory maps the numeric level to the label shown to teachers.
func (p *StudentProgress) MasteryCategory() string {
	switch {
	case p.MasteryLevel >= 90:
		return "Expert"
	case p.MasteryLevel >= 80:
		return "Advanced"
	case p.MasteryLevel >= 70:
		return "Proficient"
	case p.MasteryLevel >= 60:
		return "Developing"
	case p.MasteryLevel >= 50:
		return "Beginning"
	default:
		return "Needs Support"
	}
}

// ActivityStatus describes how recently the student practiced this topic.
func (p *StudentProgress) ActivityStatus() string {
	return p.ActivityStatusAt(time.Now())
}

func (p *StudentProgress) ActivityStatusAt(now time.Time) string {
	if p.LastActivity.IsZero() {
		return "Never Active"
	}

	days := int(now.Sub(p.LastActivity).Hours() / 24)
	switch {
	case days < 1:
		return "Active Today"
	case days < 2:
		return "Active Yesterday"
	case days <= 7:
		return "Active This Week"
	case days <= 30:
		return "Active This Month"
	default:
		return "Inactive"
	}
}

// Request/Response types

type CreateSessionRequest struct {
	Topic          Topic `json:"topic" binding:"required"`
	GradeLevel     int   `json:"grade_level" binding:"required,min=1,max=3"`
	TotalQuestions int   `json:"total_questions" binding:"required,min=1,max=50"`
}

type SubmitAnswerRequest struct {
	Question      string     `json:"question" binding:"required"`
	StudentAnswer string     `json:"student_answer" binding:"required"`
	CorrectAnswer string     `json:"correct_answer" binding:"required"`
	TimeTaken     int        `json:"time_taken" binding:"min=0"`
	Difficulty    Difficulty `json:"difficulty" binding:"required"`
}

type CompleteSessionRequest struct {
	TimeTaken int `json:"time_taken" binding:"required,min=1"`
}

type CompleteSessionResponse struct {
	Session      *QuizSession     `json:"session"`
	PointsEarned int              `json:"points_earned"`
	Accuracy     float64          `json:"accuracy"`
	Rating       string           `json:"rating"`
	Stars        int              `json:"stars"`
	Progress     *StudentProgress `json:"progress"`
	NewBadges    []string         `json:"new_badges"`
}

type LeaderboardEntry struct {
	Rank         int     `json:"rank"`
	StudentID    uint    `json:"student_id"`
	TotalPoints  int     `json:"total_points"`
	MasteryLevel float64 `json:"mastery_level"`
	TotalBadges  int     `json:"total_badges"`
}

type TrendPoint struct {
	Date             string  `json:"date"`
	PointsEarned     int     `json:"points_earned"`
	CumulativePoints int     `json:"cumulative_points"`
	Accuracy         float64 `json:"accuracy"`
	TimeTaken        int     `json:"time_taken"`
}

type BadgeInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Category    string `json:"category"`
}
