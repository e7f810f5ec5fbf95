package dao

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cert_market/utils"

	"github.com/go-redis/redis/v8"
)

// 发现索引的Redis镜像：站外浏览方查询Redis而不是进程内注册表
// 镜像非权威，允许与注册表短暂不一致
var ctx = context.Background()

// BucketIndexKey 价格桶索引Key（ZSet，score为价格+时间）
func BucketIndexKey(bucket int) string {
	return fmt.Sprintf("market:bucket:%d", bucket)
}

// TypeIndexKey 证书类型索引Key（Set）
func TypeIndexKey(certType string) string {
	return fmt.Sprintf("market:type:%s", certType)
}

// IndexListing 挂牌登记镜像：加入价格桶ZSet与类型Set
// score = 价格 + 时间戳/1e12，价格相同时早挂牌的排前
func IndexListing(bucket int, certType, listingID string, price uint64) error {
	score := float64(price) + float64(time.Now().UnixMilli())/1e12
	if err := utils.RedisClient.ZAdd(ctx, BucketIndexKey(bucket), &redis.Z{
		Score:  score,
		Member: listingID,
	}).Err(); err != nil {
		return err
	}
	return utils.RedisClient.SAdd(ctx, TypeIndexKey(certType), listingID).Err()
}

// UnindexListing 挂牌下架镜像：从两个索引移除
func UnindexListing(bucket int, certType, listingID string) error {
	if err := utils.RedisClient.ZRem(ctx, BucketIndexKey(bucket), listingID).Err(); err != nil {
		return err
	}
	return utils.RedisClient.SRem(ctx, TypeIndexKey(certType), listingID).Err()
}

// GetBucketListings 按价格桶检索挂牌ID，价格从低到高
func GetBucketListings(bucket int, maxPrice uint64) ([]string, error) {
	max := "+inf"
	if maxPrice > 0 {
		// 包含score尾部时间分量
		max = strconv.FormatFloat(float64(maxPrice)+1, 'f', 12, 64)
	}
	return utils.RedisClient.ZRangeByScore(ctx, BucketIndexKey(bucket), &redis.ZRangeBy{
		Min: "0",
		Max: max,
	}).Result()
}

// GetTypeListings 按证书类型检索挂牌ID
func GetTypeListings(certType string) ([]string, error) {
	return utils.RedisClient.SMembers(ctx, TypeIndexKey(certType)).Result()
}
