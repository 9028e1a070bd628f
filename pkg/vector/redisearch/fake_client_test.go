package redisearch

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// serverError is an error reply as the server would send it.
type serverError string

func (e serverError) Error() string { return string(e) }
func (serverError) RedisError()     {}

// handler answers one command.
type handler func(args []any) (any, error)

// fakeClient records commands and answers them from per-command handlers.
type fakeClient struct {
	mu       sync.Mutex
	handlers map[string]handler
	calls    [][]any
	hsets    [][]any
	txErr    error
	closes   int
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]handler{}}
}

func (f *fakeClient) on(command string, h handler) {
	f.handlers[command] = h
}

func (f *fakeClient) Do(ctx context.Context, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, args)
	cmd := redis.NewCmd(ctx, args...)
	h, ok := f.handlers[args[0].(string)]
	if !ok {
		cmd.SetVal("OK")
		return cmd
	}
	val, err := h(args)
	if err != nil {
		cmd.SetErr(err)
		return cmd
	}
	cmd.SetVal(val)
	return cmd
}

func (f *fakeClient) TxPipelined(_ context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	pipe := &recordingPipe{}
	if err := fn(pipe); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.txErr != nil {
		return nil, f.txErr
	}
	f.hsets = append(f.hsets, pipe.hsets...)
	return nil, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// commands returns the names of every command sent through Do.
func (f *fakeClient) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c[0].(string)
	}
	return out
}

// last returns the arguments of the most recent command named name.
func (f *fakeClient) last(name string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i][0] == name {
			return f.calls[i]
		}
	}
	return nil
}

// recordingPipe captures HSET calls queued inside a transaction.
type recordingPipe struct {
	redis.Pipeliner
	hsets [][]any
}

func (p *recordingPipe) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	p.hsets = append(p.hsets, append([]any{key}, values...))
	return redis.NewIntCmd(ctx)
}
