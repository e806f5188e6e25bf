// Package redis implements store.Store on Redis via go-redis.
//
// Each job is a Hash. Sorted Sets index jobs by status, by due time while
// they wait, by priority once due, by heartbeat while processing and by
// completion time once failed. Every state transition runs as one Lua
// script so the hash and its indexes never disagree, and concurrent
// claimers each receive a different job.
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Migrate(ctx); err != nil { ... }
package redis
