package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	// 为原生Redis客户端添加别名，解决命名冲突
	goredis "github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"

	// 为redsync的redis接口包添加别名，避免冲突
	goredisadapter "github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/google/uuid"
)

// 市场核心不加锁，串行化由服务层用这里的分布式锁提供：
// 同一商店的全部变更操作在同一把锁下执行，注册表级管理操作用全局锁

// RedisClient 全局Redis客户端（导出，供外部包直接使用）
var RedisClient *goredis.Client

// Redisync 全局RedSync实例（用于RedLock分布式锁）
var Redisync *redsync.Redsync

// RedisLockInst 全局RedisLock实例（导出，供外部包调用其方法）
var RedisLockInst *RedisLock

// StoreLockKey 卖家商店串行锁键
func StoreLockKey(seller string) string {
	return fmt.Sprintf("lock:store:%s", seller)
}

// MarketLockKey 市场全局锁键（暂停/恢复/政策更新）
func MarketLockKey() string {
	return "lock:market:global"
}

// RedisLock 封装Redis分布式锁的基础操作（SetNX+Lua脚本）
type RedisLock struct {
	client *goredis.Client // 复用全局Redis客户端，避免重复创建
	ctx    context.Context // 支持外部上下文传递
}

// InitRedis 初始化Redis客户端、RedSync、RedisLock实例（需在程序启动时调用）
// 参数：addr(Redis地址)、password(Redis密码)、db(Redis数据库编号)
func InitRedis(addr, password string, db int) error {
	// 1. 初始化全局Redis客户端
	RedisClient = goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	// 校验Redis连接可用性
	if err := RedisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	// 2. 初始化RedSync（支持RedLock分布式锁）
	adapterPool := goredisadapter.NewPool(RedisClient)
	Redisync = redsync.New(adapterPool)

	// 3. 初始化全局RedisLock实例（复用全局Redis客户端）
	RedisLockInst = &RedisLock{
		client: RedisClient,
		ctx:    context.Background(),
	}

	return nil
}

// SetCtx 手动设置上下文（支持外部传递超时/取消上下文）
func (rl *RedisLock) SetCtx(ctx context.Context) {
	rl.ctx = ctx
}

// Lock 基础分布式锁：加锁（存入唯一标识，SetNX+过期时间）
// 返回：lockID(锁唯一标识)、error(加锁失败原因)
func (rl *RedisLock) Lock(key string, expire time.Duration) (string, error) {
	if rl.client == nil {
		return "", errors.New("redis client not initialized")
	}

	// 生成唯一锁标识（防止误删其他客户端的锁）
	lockID := uuid.NewString()
	res, err := rl.client.SetNX(rl.ctx, key, lockID, expire).Result()
	if err != nil {
		return "", fmt.Errorf("setnx failed: %w", err)
	}
	if !res {
		return "", errors.New("key is locked by other client")
	}

	return lockID, nil
}

// Unlock 基础分布式锁：解锁（Lua脚本原子校验+删除）
func (rl *RedisLock) Unlock(key, lockID string) error {
	if rl.client == nil {
		return errors.New("redis client not initialized")
	}

	// Lua脚本：原子校验锁标识并删除（避免并发误删）
	luaScript := `
		if redis.call('get', KEYS[1]) == ARGV[1] then
			return redis.call('del', KEYS[1])
		else
			return 0
		end
	`

	res, err := rl.client.Eval(rl.ctx, luaScript, []string{key}, lockID).Result()
	if err != nil {
		return fmt.Errorf("eval lua script failed: %w", err)
	}

	// 脚本返回0表示锁标识不匹配或锁已过期
	if res.(int64) == 0 {
		return errors.New("lock ID not match or key has expired")
	}

	return nil
}

// GetRedisLock 获取RedSync分布式锁（支持多Redis节点的RedLock算法）
func GetRedisLock(ctx context.Context, key string, expire time.Duration) (*redsync.Mutex, error) {
	if Redisync == nil {
		return nil, errors.New("redsync not initialized")
	}

	mutex := Redisync.NewMutex(key, redsync.WithExpiry(expire))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("redsync lock failed: %w", err)
	}

	return mutex, nil
}

// ReleaseRedisLock 释放RedSync分布式锁
func ReleaseRedisLock(mutex *redsync.Mutex) error {
	if mutex == nil {
		return errors.New("mutex is nil")
	}

	ok, err := mutex.Unlock()
	if err != nil {
		return fmt.Errorf("redsync unlock failed: %w", err)
	}
	if !ok {
		return errors.New("mutex has expired or not held")
	}

	return nil
}
