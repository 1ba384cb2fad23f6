package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

const (
	latestKey  = "snapshot:latest"
	defaultTTL = time.Hour
	// anomalies outlive the latest snapshot
	anomalyTTLFactor = 24
)

type RedisConfig struct {
	Addr     string        `yaml:"Addr"`
	Password string        `yaml:"Password"`
	DB       int           `yaml:"DB"`
	TTL      time.Duration `yaml:"TTL"`
}

// Redis keeps the latest snapshot and a per-unit anomaly index.
type Redis struct {
	client *goredis.Client
	ctx    context.Context
	ttl    time.Duration
}

func NewRedis(conf RedisConfig) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         conf.Addr,
		Password:     conf.Password,
		DB:           conf.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := conf.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, ctx: ctx, ttl: ttl}, nil
}

func (r *Redis) Name() string { return "redis" }

// SendSnapshot overwrites snapshot:latest and indexes every anomaly record
// under anomaly:{equipment}:{unix} and the sorted set anomaly_list:{equipment}.
func (r *Redis) SendSnapshot(snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(r.ctx, latestKey, data, r.ttl)

	anomalyTTL := r.ttl * anomalyTTLFactor
	for _, a := range snap.Anomalies {
		rec, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal anomaly: %w", err)
		}
		key := anomalyKey(a.EquipmentID, a.Timestamp)
		listKey := anomalyListKey(a.EquipmentID)

		pipe.Set(r.ctx, key, rec, anomalyTTL)
		pipe.ZAdd(r.ctx, listKey, goredis.Z{Score: float64(a.Timestamp.Unix()), Member: key})
		pipe.Expire(r.ctx, listKey, anomalyTTL)
	}

	if _, err = pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot reads back snapshot:latest.
func (r *Redis) LatestSnapshot() (model.Snapshot, error) {
	var snap model.Snapshot
	data, err := r.client.Get(r.ctx, latestKey).Bytes()
	if err != nil {
		return snap, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	if err = json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("failed to decode latest snapshot: %w", err)
	}
	return snap, nil
}

// RecentAnomalies returns up to limit anomaly records for the unit, newest
// first. Records whose key has expired are skipped.
func (r *Redis) RecentAnomalies(equipmentID string, limit int) ([]model.AnomalyRecord, error) {
	keys, err := r.client.ZRevRange(r.ctx, anomalyListKey(equipmentID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get anomalies: %w", err)
	}

	out := make([]model.AnomalyRecord, 0, len(keys))
	for _, key := range keys {
		data, err := r.client.Get(r.ctx, key).Bytes()
		if err == goredis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get anomaly %s: %w", key, err)
		}
		var rec model.AnomalyRecord
		if err = json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode anomaly %s: %w", key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func anomalyKey(equipmentID string, ts time.Time) string {
	return fmt.Sprintf("anomaly:%s:%d", equipmentID, ts.Unix())
}

func anomalyListKey(equipmentID string) string {
	return fmt.Sprintf("anomaly_list:%s", equipmentID)
}
