package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JoseSOto27/WNGL/common/api"
)

const (
	menuKey  = "wingool:menu"
	statsKey = "wingool:dashboard:stats"
)

// Cache holds the read-mostly back-office views in Redis.
type Cache struct {
	client   *redis.Client
	menuTTL  time.Duration
	statsTTL time.Duration
}

// NewCache connects to Redis and pings it.
func NewCache(addr, password string, db int, menuTTL, statsTTL time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewCacheFromClient(client, menuTTL, statsTTL), nil
}

func NewCacheFromClient(client *redis.Client, menuTTL, statsTTL time.Duration) *Cache {
	return &Cache{client: client, menuTTL: menuTTL, statsTTL: statsTTL}
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// GetMenu returns nil, nil on a miss.
func (c *Cache) GetMenu(ctx context.Context) ([]*api.Product, error) {
	var products []*api.Product
	ok, err := c.getJSON(ctx, menuKey, &products)
	if err != nil || !ok {
		return nil, err
	}
	if products == nil {
		products = []*api.Product{}
	}
	return products, nil
}

func (c *Cache) SetMenu(ctx context.Context, products []*api.Product) error {
	return c.setJSON(ctx, menuKey, products, c.menuTTL)
}

func (c *Cache) InvalidateMenu(ctx context.Context) error {
	return c.client.Del(ctx, menuKey).Err()
}

// GetStats returns nil, nil on a miss.
func (c *Cache) GetStats(ctx context.Context) (*api.DashboardStats, error) {
	var stats api.DashboardStats
	ok, err := c.getJSON(ctx, statsKey, &stats)
	if err != nil || !ok {
		return nil, err
	}
	return &stats, nil
}

func (c *Cache) SetStats(ctx context.Context, stats *api.DashboardStats) error {
	return c.setJSON(ctx, statsKey, stats, c.statsTTL)
}

func (c *Cache) InvalidateStats(ctx context.Context) error {
	return c.client.Del(ctx, statsKey).Err()
}

func (c *Cache) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
