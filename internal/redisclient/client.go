package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/save_cart.lua
var saveCartScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/touch_session.lua
var touchSessionScript string

// DefaultSessionTTL is how long idle session state is kept.
const DefaultSessionTTL = 30 * 24 * time.Hour

// Client stores per-session storefront state in Redis
type Client struct {
	rdb           *redis.Client
	sessionTTL    time.Duration
	saveCart      *redis.Script
	releaseLock   *redis.Script
	touchSessions *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int, sessionTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb, sessionTTL), nil
}

func newClient(rdb *redis.Client, sessionTTL time.Duration) *Client {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Client{
		rdb:           rdb,
		sessionTTL:    sessionTTL,
		saveCart:      redis.NewScript(saveCartScript),
		releaseLock:   redis.NewScript(releaseLockScript),
		touchSessions: redis.NewScript(touchSessionScript),
	}
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func sessionKey(sessionID, field string) string {
	return fmt.Sprintf("session:%s:%s", sessionID, field)
}

// SaveCart atomically writes the cart payload and its item count. An empty
// cart with no promo deletes both keys.
func (c *Client) SaveCart(ctx context.Context, sessionID string, rec models.CartRecord, count int) error {
	payload := ""
	if len(rec.Items) > 0 || rec.Promo.Active() {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}
		payload = string(b)
	}

	keys := []string{sessionKey(sessionID, "cart"), sessionKey(sessionID, "cart_count")}
	if err := c.saveCart.Run(ctx, c.rdb, keys, payload, count, int(c.sessionTTL.Seconds())).Err(); err != nil {
		return fmt.Errorf("save cart script failed: %w", err)
	}
	return nil
}

// LoadCart returns the persisted cart, or false when the session has none.
func (c *Client) LoadCart(ctx context.Context, sessionID string) (models.CartRecord, bool, error) {
	var rec models.CartRecord
	raw, err := c.rdb.Get(ctx, sessionKey(sessionID, "cart")).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("load cart: %w", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, false, fmt.Errorf("decode cart: %w", err)
	}
	return rec, true, nil
}

// CartCount returns the persisted number of items in the cart.
func (c *Client) CartCount(ctx context.Context, sessionID string) (int, error) {
	n, err := c.rdb.Get(ctx, sessionKey(sessionID, "cart_count")).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load cart count: %w", err)
	}
	return n, nil
}

// AddToWishlist adds a product to the session wishlist.
func (c *Client) AddToWishlist(ctx context.Context, sessionID string, productID int64) error {
	key := sessionKey(sessionID, "wishlist")
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, key, productID)
	pipe.Expire(ctx, key, c.sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add to wishlist: %w", err)
	}
	return nil
}

// RemoveFromWishlist removes a product from the session wishlist.
func (c *Client) RemoveFromWishlist(ctx context.Context, sessionID string, productID int64) error {
	if err := c.rdb.SRem(ctx, sessionKey(sessionID, "wishlist"), productID).Err(); err != nil {
		return fmt.Errorf("remove from wishlist: %w", err)
	}
	return nil
}

// Wishlist returns the product ids on the session wishlist.
func (c *Client) Wishlist(ctx context.Context, sessionID string) ([]int64, error) {
	members, err := c.rdb.SMembers(ctx, sessionKey(sessionID, "wishlist")).Result()
	if err != nil {
		return nil, fmt.Errorf("load wishlist: %w", err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("wishlist member %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// InWishlist reports whether a product is on the session wishlist.
func (c *Client) InWishlist(ctx context.Context, sessionID string, productID int64) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, sessionKey(sessionID, "wishlist"), productID).Result()
	if err != nil {
		return false, fmt.Errorf("check wishlist: %w", err)
	}
	return ok, nil
}

// SaveLastOrder keeps the most recent order for the confirmation page.
func (c *Client) SaveLastOrder(ctx context.Context, sessionID string, order *models.Order) error {
	b, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	if err := c.rdb.Set(ctx, sessionKey(sessionID, "last_order"), b, c.sessionTTL).Err(); err != nil {
		return fmt.Errorf("save last order: %w", err)
	}
	return nil
}

// LastOrder returns the most recent order placed by the session, or nil.
func (c *Client) LastOrder(ctx context.Context, sessionID string) (*models.Order, error) {
	raw, err := c.rdb.Get(ctx, sessionKey(sessionID, "last_order")).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last order: %w", err)
	}
	var order models.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decode last order: %w", err)
	}
	return &order, nil
}

// SaveAuthToken stores the session's access token until it expires.
func (c *Client) SaveAuthToken(ctx context.Context, sessionID, token string, ttl time.Duration) error {
	return c.rdb.Set(ctx, sessionKey(sessionID, "auth"), token, ttl).Err()
}

// AuthToken returns the session's access token, or "" when signed out.
func (c *Client) AuthToken(ctx context.Context, sessionID string) (string, error) {
	token, err := c.rdb.Get(ctx, sessionKey(sessionID, "auth")).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

// ClearAuthToken forgets the session's access token.
func (c *Client) ClearAuthToken(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, sessionKey(sessionID, "auth")).Err()
}

// TouchSession extends the TTL of every key the session owns.
func (c *Client) TouchSession(ctx context.Context, sessionID string) error {
	keys := []string{
		sessionKey(sessionID, "cart"),
		sessionKey(sessionID, "cart_count"),
		sessionKey(sessionID, "wishlist"),
		sessionKey(sessionID, "last_order"),
	}
	return c.touchSessions.Run(ctx, c.rdb, keys, int(c.sessionTTL.Seconds())).Err()
}

// SetIdempotencyKey records the order created for an idempotency key. It
// returns false when the key is already taken.
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, orderID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), orderID, ttl).Result()
}

// GetIdempotencyKey returns the order id recorded for key, or "".
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	orderID, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return orderID, err
}

// AcquireLock acquires a distributed lock and returns the owner token needed
// to release it, or "" when the lock is held elsewhere.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ReleaseLock releases a lock if token still owns it.
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	if err := c.releaseLock.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", lockKey, err)
	}
	return nil
}
