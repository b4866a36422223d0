package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lms-quiz/internal/domain"
)

// ProgressStore keeps learner progress in Redis:
//
//	RPUSH progress:attempts:{quizID}:{learnerID} <attempt json>
//	HSET  progress:lessons:{learnerID} {lessonID} <completion json>
//
// Both keys are refreshed to ttl on every write; ttl <= 0 keeps them forever.
type ProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressStore(client *redis.Client, ttl time.Duration) *ProgressStore {
	return &ProgressStore{client: client, ttl: ttl}
}

func (s *ProgressStore) RecordAttempt(ctx context.Context, attempt domain.Attempt) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	key := attemptsKey(attempt.QuizID, attempt.LearnerID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (s *ProgressStore) Attempts(ctx context.Context, quizID, learnerID string) ([]domain.Attempt, error) {
	raw, err := s.client.LRange(ctx, attemptsKey(quizID, learnerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	attempts := make([]domain.Attempt, 0, len(raw))
	for _, item := range raw {
		var attempt domain.Attempt
		if err := json.Unmarshal([]byte(item), &attempt); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, nil
}

// CompleteLesson keeps the first completion; later ones only raise the score.
func (s *ProgressStore) CompleteLesson(ctx context.Context, completion domain.LessonCompletion) error {
	key := lessonsKey(completion.LearnerID)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		prev, found, err := readCompletion(ctx, tx, key, completion.LessonID)
		if err != nil {
			return err
		}
		if found {
			if completion.Score <= prev.Score {
				return nil
			}
			prev.Score = completion.Score
			completion = prev
		}
		data, err := json.Marshal(completion)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, completion.LessonID, data)
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
			return nil
		})
		return err
	}, key)
}

func (s *ProgressStore) LessonCompletion(ctx context.Context, learnerID, lessonID string) (domain.LessonCompletion, bool, error) {
	return readCompletion(ctx, s.client, lessonsKey(learnerID), lessonID)
}

// hashReader is satisfied by both *redis.Client and *redis.Tx.
type hashReader interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func readCompletion(ctx context.Context, c hashReader, key, lessonID string) (domain.LessonCompletion, bool, error) {
	raw, err := c.HGet(ctx, key, lessonID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.LessonCompletion{}, false, nil
	}
	if err != nil {
		return domain.LessonCompletion{}, false, fmt.Errorf("read lesson completion: %w", err)
	}
	var completion domain.LessonCompletion
	if err := json.Unmarshal(raw, &completion); err != nil {
		return domain.LessonCompletion{}, false, fmt.Errorf("decode lesson completion: %w", err)
	}
	return completion, true, nil
}

func attemptsKey(quizID, learnerID string) string {
	return "progress:attempts:" + quizID + ":" + learnerID
}

func lessonsKey(learnerID string) string {
	return "progress:lessons:" + learnerID
}
