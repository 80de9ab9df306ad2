package coord

import (
	"context"
	"fmt"
)

// Priority queue names.
const (
	PriorityHigh     = "high"
	PriorityStandard = "standard"
	PriorityLow      = "low"
)

// Engine tier names, also used as per-engine queue suffixes.
const (
	EngineFast     = "fast"
	EngineStealth  = "stealth"
	EngineBrowser  = "browser"
	EngineExternal = "external"
)

func priorityKey(priority string) string {
	return fmt.Sprintf("priority:%s", priority)
}

func engineKey(engine string) string {
	return fmt.Sprintf("engine:%s", engine)
}

// PushPriority pushes a job id onto the right of its priority queue (FIFO:
// pushed right, popped left).
func (s *Store) PushPriority(ctx context.Context, priority, jobID string) error {
	return s.rdb.RPush(ctx, priorityKey(priority), jobID).Err()
}

// PopPriority pops the oldest job id from a priority queue, in strict
// high > standard > low order. Returns ("", nil) if all three are empty.
func (s *Store) PopPriority(ctx context.Context) (string, error) {
	for _, p := range []string{PriorityHigh, PriorityStandard, PriorityLow} {
		id, err := s.rdb.LPop(ctx, priorityKey(p)).Result()
		if err == nil {
			return id, nil
		}
		if !isRedisNil(err) {
			return "", err
		}
	}
	return "", nil
}

// PushEngine enqueues a job id onto a per-engine worker queue.
func (s *Store) PushEngine(ctx context.Context, engine, jobID string) error {
	return s.rdb.RPush(ctx, engineKey(engine), jobID).Err()
}

// PopEngine blocks up to timeoutSec for a job id on an engine's queue.
// timeoutSec=0 blocks indefinitely.
func (s *Store) PopEngine(ctx context.Context, engine string, timeoutSec int) (string, error) {
	res, err := s.rdb.BLPop(ctx, secondsToDuration(timeoutSec), engineKey(engine)).Result()
	if err != nil {
		if isRedisNil(err) {
			return "", nil
		}
		return "", err
	}
	if len(res) != 2 {
		return "", nil
	}
	return res[1], nil
}
