// File: store/models.go
package store

import "time"

// Submission is one uploaded player program. The hash names its archive in
// the repository directory; at most one submission per user is active.
type Submission struct {
	ID             uint      `gorm:"primaryKey"`
	UserID         string    `gorm:"index;not null"`
	SubmissionHash string    `gorm:"index;not null"`
	SubmissionDate time.Time `gorm:"not null"`
	Active         bool      `gorm:"not null;default:true"`
}

// Match is one finished game. Recording holds the replayable JSON account:
// the initial board and the move list.
type Match struct {
	ID        uint      `gorm:"primaryKey"`
	MatchDate time.Time `gorm:"not null"`
	Recording []byte    `gorm:"type:jsonb"`
}

// Result is one player's row of one match. Outcome is the integer encoding
// of game.Outcome; PointsDelta is the rating swing banked by this match.
type Result struct {
	ID           uint    `gorm:"primaryKey"`
	MatchID      uint    `gorm:"index;not null"`
	SubmissionID uint    `gorm:"index;not null"`
	PlayerID     string  `gorm:"not null"`
	Outcome      int     `gorm:"not null"`
	Healthy      bool    `gorm:"not null"`
	PointsDelta  float64 `gorm:"not null"`
}

// MatchRecording is the schema of Match.Recording.
type MatchRecording struct {
	InitialBoard string   `json:"initial_board"`
	Moves        []string `json:"moves"`
}

// PlayerResult pairs a submission with its share of a finished match, ready
// for insertion.
type PlayerResult struct {
	SubmissionID uint
	PlayerID     string
	Outcome      int
	Healthy      bool
	PointsDelta  float64
}

// Candidate is a submission eligible for matchmaking, with its health ratio
// over all recorded results.
type Candidate struct {
	Submission Submission
	Health     float64
}
