// Command bench measures lock handoff throughput under contention, against
// either the in-memory store or a real Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/aleroyer/go-sessionlock/v1/lock"
	"github.com/aleroyer/go-sessionlock/v1/notify"
	"github.com/aleroyer/go-sessionlock/v1/session"
)

var (
	workers    = flag.Int("c", 8, "Concurrent workers")
	iterations = flag.Int("n", 1000, "Acquire/release cycles per worker")
	key        = flag.String("key", "bench", "Lock key to contend on")
	redisAddr  = flag.String("redis-addr", "", "Redis address; empty uses the in-memory store")
)

func main() {
	flag.Parse()

	var store session.Store = session.NewInMemory()
	var bus notify.Bus = notify.NewInMemoryBus()
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer client.Close()
		store = session.NewRedis(client)
		bus = notify.NewRedisBus(client)
	}

	var cycles atomic.Int64
	start := time.Now()
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < *workers; i++ {
		g.Go(func() error {
			l := lock.New(store, lock.WithBus(bus))
			for j := 0; j < *iterations; j++ {
				if err := l.AcquireWait(ctx, lock.WithKey(*key)); err != nil {
					return err
				}
				cycles.Add(1)
				if err := l.Release(ctx); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
	elapsed := time.Since(start)
	fmt.Printf("%d handoffs in %v (%.0f ops/sec, %d workers)\n",
		cycles.Load(), elapsed.Round(time.Millisecond),
		float64(cycles.Load())/elapsed.Seconds(), *workers)
}
