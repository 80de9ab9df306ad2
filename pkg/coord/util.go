package coord

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func isRedisNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

func secondsToDuration(sec int) time.Duration {
	if sec <= 0 {
		return 0
	}
	return time.Duration(sec) * time.Second
}
