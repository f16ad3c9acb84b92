// File: store/store.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store wraps the database handle with the queries the platform issues.
type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

// Open connects to Postgres and returns a ready store. The schema is not
// touched; call Migrate for that.
func Open(dsn string, log *zap.SugaredLogger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return New(db, log), nil
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: db, log: log}
}

// Migrate creates or updates the three tables.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Submission{}, &Match{}, &Result{})
}

// candidateRow is the flat shape of the aggregated selection query.
type candidateRow struct {
	ID             uint
	UserID         string
	SubmissionHash string
	SubmissionDate time.Time
	Active         bool
	HealthyCount   float64
	TotalCount     float64
}

// Candidates returns every active submission holding at least one healthy
// result, with health = healthy results / total results.
func (s *Store) Candidates(ctx context.Context) ([]Candidate, error) {
	var rows []candidateRow
	err := s.db.WithContext(ctx).
		Model(&Submission{}).
		Select("submissions.id, submissions.user_id, submissions.submission_hash, submissions.submission_date, submissions.active, " +
			"sum(case when results.healthy then 1 else 0 end) as healthy_count, " +
			"count(results.id) as total_count").
		Joins("JOIN results ON results.submission_id = submissions.id").
		Where("submissions.active = ?", true).
		Group("submissions.id").
		Having("sum(case when results.healthy then 1 else 0 end) > 0").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("selecting candidates: %w", err)
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, r := range rows {
		candidates = append(candidates, Candidate{
			Submission: Submission{
				ID:             r.ID,
				UserID:         r.UserID,
				SubmissionHash: r.SubmissionHash,
				SubmissionDate: r.SubmissionDate,
				Active:         r.Active,
			},
			Health: r.HealthyCount / r.TotalCount,
		})
	}
	return candidates, nil
}

// Untested returns active submissions with no results at all, oldest first.
func (s *Store) Untested(ctx context.Context) ([]Submission, error) {
	var subs []Submission
	err := s.db.WithContext(ctx).
		Where("active = ? AND NOT EXISTS (SELECT 1 FROM results WHERE results.submission_id = submissions.id)", true).
		Order("submission_date ASC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("selecting untested submissions: %w", err)
	}
	return subs, nil
}

// Ratings resolves the current score of each user: the initial score plus
// every delta their submissions have banked. Users with no history sit at
// the initial score.
func (s *Store) Ratings(ctx context.Context, userIDs []string, initial float64) (map[string]float64, error) {
	ratings := make(map[string]float64, len(userIDs))
	for _, id := range userIDs {
		ratings[id] = initial
	}
	if len(userIDs) == 0 {
		return ratings, nil
	}

	type row struct {
		UserID string
		Total  float64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&Result{}).
		Select("submissions.user_id as user_id, coalesce(sum(results.points_delta), 0) as total").
		Joins("JOIN submissions ON submissions.id = results.submission_id").
		Where("submissions.user_id IN ?", userIDs).
		Group("submissions.user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("summing rating deltas: %w", err)
	}
	for _, r := range rows {
		ratings[r.UserID] = initial + r.Total
	}
	return ratings, nil
}

// RecordMatch persists the match and all its result rows in one transaction,
// returning the new match id.
func (s *Store) RecordMatch(ctx context.Context, recording MatchRecording, results []PlayerResult) (uint, error) {
	blob, err := json.Marshal(recording)
	if err != nil {
		return 0, fmt.Errorf("encoding recording: %w", err)
	}
	match := Match{MatchDate: time.Now().UTC(), Recording: blob}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&match).Error; err != nil {
			return err
		}
		for _, pr := range results {
			row := Result{
				MatchID:      match.ID,
				SubmissionID: pr.SubmissionID,
				PlayerID:     pr.PlayerID,
				Outcome:      pr.Outcome,
				Healthy:      pr.Healthy,
				PointsDelta:  pr.PointsDelta,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recording match: %w", err)
	}
	return match.ID, nil
}

// AddSubmission registers a new submission and retires the user's previous
// active ones, keeping at most one in play per user.
func (s *Store) AddSubmission(ctx context.Context, userID, hash string) (Submission, error) {
	sub := Submission{
		UserID:         userID,
		SubmissionHash: hash,
		SubmissionDate: time.Now().UTC(),
		Active:         true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Submission{}).
			Where("user_id = ? AND active = ?", userID, true).
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Create(&sub).Error
	})
	if err != nil {
		return Submission{}, fmt.Errorf("adding submission: %w", err)
	}
	return sub, nil
}
