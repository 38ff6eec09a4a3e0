// Package redis connects to Redis with go-redis/v9.
//
// Connect retries the initial ping so a service can start before Redis is
// ready; Healthcheck turns a client into a readiness check. Config fields
// load from REDIS_* environment variables via pkg/config.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	store := redisstore.New(client)
package redis
