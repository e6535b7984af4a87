package model

import (
	"time"
)

// Category is a student's performance band within one roster.
type Category string

const (
	CategoryLow    Category = "low"
	CategoryMedium Category = "medium"
	CategoryHigh   Category = "high"
)

// Strategy names a pairing strategy.
type Strategy string

const (
	StrategyOptimal  Strategy = "optimal"
	StrategyBalanced Strategy = "balanced"
	StrategyRandom   Strategy = "random"
	StrategyAI       Strategy = "ai"
	// StrategyFallback labels results produced by the AI fallback algorithm.
	StrategyFallback Strategy = "fallback"
)

// Strategies lists the selectable strategies in regeneration order.
var Strategies = []Strategy{StrategyAI, StrategyBalanced, StrategyOptimal, StrategyRandom}

// IsValidStrategy reports whether s names a selectable strategy.
func IsValidStrategy(s string) bool {
	for _, v := range Strategies {
		if string(v) == s {
			return true
		}
	}
	return false
}

// PairType tags how a pair was formed.
type PairType string

const (
	PairHighLow          PairType = "high-low"
	PairMediumMedium     PairType = "medium-medium"
	PairMixed            PairType = "mixed"
	PairBalanced         PairType = "balanced"
	PairRandom           PairType = "random"
	PairGroupOf3         PairType = "group-of-3"
	PairExtended         PairType = "extended-pair"
	PairAITutoring       PairType = "ai-tutoring"
	PairAICollaborative  PairType = "ai-collaborative"
	PairAIMixed          PairType = "ai-mixed"
	PairFallbackTutoring PairType = "fallback-tutoring"
	PairFallbackGroup    PairType = "fallback-group"
)

// Student is one row of a score sheet.
type Student struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Marks       float64  `json:"marks"`
	Category    Category `json:"category,omitempty"`
	OriginalRow int      `json:"originalRow,omitempty"`
	SessionID   string   `json:"sessionId,omitempty"`
	OriginalID  string   `json:"originalId,omitempty"`
	// Role is the role assigned by the AI collaborator (tutor, peer, mentee).
	Role string `json:"role,omitempty"`
}

// Pair is a finalized group of two or three students.
type Pair struct {
	ID               string    `json:"id"`
	Students         []Student `json:"students"`
	Type             PairType  `json:"type"`
	AverageScore     float64   `json:"averageScore"`
	ScoreGap         float64   `json:"scoreGap"`
	Recommendation   string    `json:"recommendation"`
	Rationale        string    `json:"rationale,omitempty"`
	AIConfidence     *float64  `json:"aiConfidence,omitempty"`
	ExpectedOutcome  string    `json:"expectedOutcome,omitempty"`
	TeachingStrategy string    `json:"teachingStrategy,omitempty"`
}

// Size returns the number of students in the pair.
func (p Pair) Size() int {
	return len(p.Students)
}

// StatSummary holds descriptive statistics over a list of marks.
type StatSummary struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
	Median  float64 `json:"median"`
	StdDev  float64 `json:"stdDev"`
	Range   float64 `json:"range"`
}

// PerformanceSession is one uploaded, timestamped snapshot of a roster.
type PerformanceSession struct {
	ID          string      `json:"id"`
	ClassName   string      `json:"className"`
	Subject     string      `json:"subject"`
	SessionName string      `json:"sessionName"`
	UploadDate  time.Time   `json:"uploadDate"`
	Students    []Student   `json:"students"`
	Stats       StatSummary `json:"stats"`
}

// PairingStats describes a pairing run.
type PairingStats struct {
	TotalStudents    int         `json:"totalStudents"`
	TotalPairs       int         `json:"totalPairs"`
	PerformanceStats StatSummary `json:"performanceStats"`
	PairingStrategy  Strategy    `json:"pairingStrategy"`
	// FallbackReason is set when the AI collaborator failed and the
	// fallback algorithm produced the pairs.
	FallbackReason string     `json:"fallbackReason,omitempty"`
	AIMetrics      *AIMetrics `json:"aiMetrics,omitempty"`
}

// AIMetrics summarises an AI-assisted pairing run.
type AIMetrics struct {
	AverageConfidence float64          `json:"averageConfidence"`
	PairTypes         map[PairType]int `json:"pairTypes"`
	OverallStrategy   string           `json:"overallStrategy,omitempty"`
}

// AIMetadata carries the collaborator's run-level output.
type AIMetadata struct {
	OverallStrategy string    `json:"overallStrategy,omitempty"`
	Recommendations []string  `json:"recommendations"`
	Model           string    `json:"model,omitempty"`
	Provider        string    `json:"provider,omitempty"`
	GeneratedAt     time.Time `json:"generatedAt"`
}

// PairingRecord is a recorded pairing run, used later as pairing history.
type PairingRecord struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"sessionId,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	Strategy   Strategy     `json:"strategy"`
	Roster     []Student    `json:"roster"`
	Pairs      []Pair       `json:"pairs"`
	Stats      PairingStats `json:"stats"`
	AIMetadata *AIMetadata  `json:"aiMetadata,omitempty"`
}

// StudentFactors are optional per-student attributes forwarded to the AI collaborator.
type StudentFactors struct {
	LearningStyle       string `json:"learningStyle,omitempty"`
	Personality         string `json:"personality,omitempty"`
	Language            string `json:"language,omitempty"`
	PreviousPerformance string `json:"previousPerformance,omitempty"`
}

// ClassContext describes the class the pairs are for.
type ClassContext struct {
	Subject  string `json:"subject,omitempty"`
	Grade    string `json:"grade,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// TeacherPreferences are hints for the AI collaborator.
type TeacherPreferences struct {
	PairingGoal        string   `json:"pairingGoal,omitempty"`
	MixLanguages       bool     `json:"mixLanguages,omitempty"`
	BalanceGender      bool     `json:"balanceGender,omitempty"`
	AvoidPairings      []string `json:"avoidPairings,omitempty"`
	RegenerationReason string   `json:"regenerationReason,omitempty"`
}

// AIStudentProfile is a roster entry as sent to the AI collaborator.
type AIStudentProfile struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Marks float64 `json:"score"`
	StudentFactors
}

// AIPairingRequest is the request contract of the AI collaborator.
type AIPairingRequest struct {
	Students    []AIStudentProfile `json:"students"`
	Goals       []string           `json:"goals"`
	Class       ClassContext       `json:"classContext"`
	Preferences TeacherPreferences `json:"teacherPreferences"`
}

// AIPairMember is one student inside an AI-proposed pair.
type AIPairMember struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// AIPair is one AI-proposed pair.
type AIPair struct {
	Students         []AIPairMember `json:"students"`
	Rationale        string         `json:"rationale"`
	ExpectedOutcome  string         `json:"expectedOutcome"`
	TeachingStrategy string         `json:"teachingStrategy"`
	ConfidenceScore  *float64       `json:"confidenceScore"`
}

// AIPairingResponse is the response contract of the AI collaborator.
type AIPairingResponse struct {
	Pairs           []AIPair `json:"pairs"`
	OverallStrategy string   `json:"overallStrategy,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`

	// Filled in by the client, not the model.
	Model    string `json:"-"`
	Provider string `json:"-"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	Addr        string
	StoreDSN    string
	LLMProvider string
	AITimeout   time.Duration
}
