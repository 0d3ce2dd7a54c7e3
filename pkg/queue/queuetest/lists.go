// Package queuetest provides an in-memory stand-in for the Redis lists a queue uses.
package queuetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lists keeps Redis lists in memory. BLPop never blocks: an empty list answers redis.Nil.
type Lists struct {
	mu    sync.Mutex
	lists map[string][]string
	// PushErr, when set, fails every RPush.
	PushErr error
}

// New returns empty lists.
func New() *Lists {
	return &Lists{lists: map[string][]string{}}
}

// RPush appends values to key.
func (l *Lists) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.PushErr != nil {
		cmd.SetErr(l.PushErr)
		return cmd
	}
	for _, v := range values {
		switch s := v.(type) {
		case []byte:
			l.lists[key] = append(l.lists[key], string(s))
		case string:
			l.lists[key] = append(l.lists[key], s)
		default:
			l.lists[key] = append(l.lists[key], fmt.Sprint(s))
		}
	}
	cmd.SetVal(int64(len(l.lists[key])))
	return cmd
}

// BLPop pops the head of the first non-empty key.
func (l *Lists) BLPop(ctx context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		if len(l.lists[k]) > 0 {
			head := l.lists[k][0]
			l.lists[k] = l.lists[k][1:]
			cmd.SetVal([]string{k, head})
			return cmd
		}
	}
	cmd.SetErr(redis.Nil)
	return cmd
}

// Len returns the length of key.
func (l *Lists) Len(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lists[key])
}
