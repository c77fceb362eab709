package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/intellisearch/synthesizer/internal/metrics"
	"github.com/intellisearch/synthesizer/internal/synthesis"
)

const (
	defaultTTL       = 24 * time.Hour
	defaultMaxCached = 10000
)

// Manager stores research sessions in Redis with a local cache in front.
// The local cache is a plain LRU keyed on last access; Redis remains the
// source of truth so multiple replicas stay consistent.
type Manager struct {
	client      *redis.Client
	logger      *zap.Logger
	ttl         time.Duration
	mu          sync.RWMutex
	localCache  map[string]*Session
	cacheAccess map[string]time.Time
	maxCached   int
}

// NewManager connects to Redis and returns a session manager. The Redis
// password comes from the REDIS_PASSWORD environment variable.
func NewManager(redisAddr string, logger *zap.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Manager{
		client:      client,
		logger:      logger,
		ttl:         defaultTTL,
		localCache:  make(map[string]*Session),
		cacheAccess: make(map[string]time.Time),
		maxCached:   defaultMaxCached,
	}, nil
}

// Create registers a new pending session for topic under the named profile.
func (m *Manager) Create(ctx context.Context, topic, profile string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:        uuid.New().String(),
		Topic:     topic,
		Profile:   profile,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	m.cachePut(sess)

	m.logger.Info("Created research session",
		zap.String("session_id", sess.ID),
		zap.String("topic", topic),
		zap.String("profile", profile),
	)
	metrics.SessionsCreated.Inc()
	return sess, nil
}

// Get retrieves a session by ID, local cache first.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	cached, ok := m.localCache[sessionID]
	m.mu.RUnlock()
	if ok {
		if cached.IsExpired() {
			_ = m.Delete(ctx, sessionID)
			return nil, ErrSessionExpired
		}
		m.mu.Lock()
		m.cacheAccess[sessionID] = time.Now()
		m.mu.Unlock()
		return cached, nil
	}

	data, err := m.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if sess.IsExpired() {
		_ = m.Delete(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	m.cachePut(&sess)
	return &sess, nil
}

// Update persists a modified session.
func (m *Manager) Update(ctx context.Context, sess *Session) error {
	if sess == nil {
		return fmt.Errorf("session is nil")
	}
	sess.UpdatedAt = time.Now()

	if err := m.save(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	m.cachePut(sess)
	return nil
}

// SetStatus transitions the session to a new lifecycle state. Terminal
// sessions are immutable.
func (m *Manager) SetStatus(ctx context.Context, sessionID string, status Status) error {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.IsTerminal() {
		return fmt.Errorf("session %s is already %s", sessionID, sess.Status)
	}
	sess.Status = status
	return m.Update(ctx, sess)
}

// SetProgress records section completion progress.
func (m *Manager) SetProgress(ctx context.Context, sessionID string, progress Progress) error {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Progress = progress
	return m.Update(ctx, sess)
}

// Complete stores the finished result and marks the session completed.
func (m *Manager) Complete(ctx context.Context, sessionID string, result *synthesis.Result) error {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Status = StatusCompleted
	sess.Result = result
	sess.Progress.SectionsCompleted = result.SectionsPlanned - result.SectionsFailed
	sess.Progress.SectionsPlanned = result.SectionsPlanned
	return m.Update(ctx, sess)
}

// Fail marks the session failed with a reason.
func (m *Manager) Fail(ctx context.Context, sessionID string, reason string) error {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.Status = StatusFailed
	sess.Error = reason
	return m.Update(ctx, sess)
}

// Delete removes a session from Redis and the local cache.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.mu.Lock()
	delete(m.localCache, sessionID)
	delete(m.cacheAccess, sessionID)
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	m.logger.Info("Deleted session", zap.String("session_id", sessionID))
	return nil
}

// CleanupExpired scans stored sessions and removes the expired ones. Redis
// TTLs already expire keys; this handles sessions whose logical expiry was
// shortened after creation.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := m.client.Keys(ctx, "research:session:*").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	cleaned := 0
	for _, key := range keys {
		data, err := m.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		if sess.IsExpired() {
			if err := m.client.Del(ctx, key).Err(); err == nil {
				m.mu.Lock()
				delete(m.localCache, sess.ID)
				delete(m.cacheAccess, sess.ID)
				m.mu.Unlock()
				cleaned++
			}
		}
	}

	if cleaned > 0 {
		m.logger.Info("Cleaned up expired sessions", zap.Int("count", cleaned))
	}
	return cleaned, nil
}

// Ping verifies Redis connectivity; used by health checks.
func (m *Manager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (m *Manager) Close() error {
	return m.client.Close()
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("research:session:%s", sessionID)
}

func (m *Manager) save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		ttl = m.ttl
	}
	return m.client.Set(ctx, sessionKey(sess.ID), data, ttl).Err()
}

func (m *Manager) cachePut(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localCache[sess.ID] = sess
	m.cacheAccess[sess.ID] = time.Now()
	m.evictLocked()
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
}

// evictLocked drops least-recently-accessed sessions once the cache is over
// capacity. Caller holds m.mu.
func (m *Manager) evictLocked() {
	for len(m.localCache) > m.maxCached {
		oldestID := ""
		var oldest time.Time
		for id := range m.localCache {
			at := m.cacheAccess[id]
			if oldestID == "" || at.Before(oldest) {
				oldestID = id
				oldest = at
			}
		}
		delete(m.localCache, oldestID)
		delete(m.cacheAccess, oldestID)
		metrics.SessionCacheEvictions.Inc()
	}
}
