package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/scribbo-backend/internal/entity"
)

var ErrResultNotFound = errors.New("result not found")

const (
	resultKeyPrefix = "result:"
	resultsListKey  = "results"
)

type ResultRepository interface {
	Save(ctx context.Context, result entity.Result) (string, error)
	GetByID(ctx context.Context, id string) (*entity.Result, error)
	List(ctx context.Context, limit int64) ([]entity.Result, error)
}

type dbResult struct {
	client *redis.Client
}

func NewResultRepository(client *redis.Client) ResultRepository {
	return &dbResult{
		client: client,
	}
}

// Save - stores result under a new id, newest first in the results list.
func (that *dbResult) Save(ctx context.Context, result entity.Result) (string, error) {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, resultKeyPrefix+result.ID, resultJSON, 0)
		pipe.LPush(ctx, resultsListKey, result.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to save result: %w", err)
	}

	return result.ID, nil
}

func (that *dbResult) GetByID(ctx context.Context, id string) (*entity.Result, error) {
	response, err := that.client.Get(ctx, resultKeyPrefix+id).Result()

	if errors.Is(err, redis.Nil) {
		return &entity.Result{}, ErrResultNotFound
	}

	if err != nil {
		return &entity.Result{}, fmt.Errorf("failed to get result by id: %w", err)
	}

	var result entity.Result
	if err = json.Unmarshal([]byte(response), &result); err != nil {
		return &entity.Result{}, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &result, nil
}

// List - up to limit most recent results. A non-positive limit returns all of them.
func (that *dbResult) List(ctx context.Context, limit int64) ([]entity.Result, error) {
	stop := limit - 1
	if limit <= 0 {
		stop = -1
	}

	ids, err := that.client.LRange(ctx, resultsListKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	results := make([]entity.Result, 0, len(ids))
	for _, id := range ids {
		result, err := that.GetByID(ctx, id)
		if errors.Is(err, ErrResultNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		results = append(results, *result)
	}

	return results, nil
}
