package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrExhausted       = errors.New("otp space exhausted")
	ErrTooManyAttempts = errors.New("too many otp attempts")
)

// Generator 生成取货验证码
type Generator interface {
	// Generate 生成一个不在 exclude 中的验证码
	Generate(exclude []string) (string, error)
}

type numericGenerator struct {
	digits int
	space  *big.Int
}

// NewPickupGenerator 4 位数字取货码
func NewPickupGenerator() Generator {
	return NewNumericGenerator(4)
}

// NewNumericGenerator 指定位数的数字验证码，使用 crypto/rand
func NewNumericGenerator(digits int) Generator {
	space := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	return &numericGenerator{digits: digits, space: space}
}

func (g *numericGenerator) Generate(exclude []string) (string, error) {
	used := make(map[string]struct{}, len(exclude))
	for _, code := range exclude {
		used[code] = struct{}{}
	}
	if int64(len(used)) >= g.space.Int64() {
		return "", ErrExhausted
	}

	for {
		n, err := rand.Int(rand.Reader, g.space)
		if err != nil {
			return "", err
		}
		code := fmt.Sprintf("%0*d", g.digits, n.Int64())
		if _, dup := used[code]; !dup {
			return code, nil
		}
	}
}

// AttemptGuard 限制验证码校验失败次数
type AttemptGuard interface {
	// Check 已被锁定时返回 ErrTooManyAttempts
	Check(ctx context.Context, key string) error
	// Fail 记录一次失败，返回剩余次数
	Fail(ctx context.Context, key string) (int, error)
	// Reset 校验成功后清除计数
	Reset(ctx context.Context, key string) error
}

type redisAttemptGuard struct {
	rdb         *redis.Client
	maxAttempts int
	window      time.Duration
}

// NewRedisAttemptGuard 在 window 时间内最多允许 maxAttempts 次失败
func NewRedisAttemptGuard(rdb *redis.Client, maxAttempts int, window time.Duration) AttemptGuard {
	return &redisAttemptGuard{rdb: rdb, maxAttempts: maxAttempts, window: window}
}

func (g *redisAttemptGuard) key(key string) string {
	return fmt.Sprintf("otp:pickup:attempts:%s", key)
}

func (g *redisAttemptGuard) Check(ctx context.Context, key string) error {
	n, err := g.rdb.Get(ctx, g.key(key)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	if n >= g.maxAttempts {
		return ErrTooManyAttempts
	}
	return nil
}

func (g *redisAttemptGuard) Fail(ctx context.Context, key string) (int, error) {
	k := g.key(key)
	pipe := g.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	// 第一次失败开始计时，之后不刷新过期时间
	pipe.ExpireNX(ctx, k, g.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	remaining := g.maxAttempts - int(incr.Val())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (g *redisAttemptGuard) Reset(ctx context.Context, key string) error {
	return g.rdb.Del(ctx, g.key(key)).Err()
}
