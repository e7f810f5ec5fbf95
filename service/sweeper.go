package service

import (
	"context"
	"time"

	"cert_market/market"
	"cert_market/utils"

	"go.uber.org/zap"
)

// StartSweeper 启动过期拍卖巡检
// 核心不做定时关闭，到期拍卖必须由显式结算调用关闭；
// 巡检只负责发现到期拍卖并投递结算消息，真正的结算仍走
// FinalizeAuction的串行路径（消费侧至少一次投递，重复结算
// 会被状态机以AuctionNotActive拒绝，不会二次放币）
func (s *marketService) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepDueAuctions()
			}
		}
	}()
}

// sweepDueAuctions 扫描所有商店的到期拍卖并投递结算消息
func (s *marketService) sweepDueAuctions() {
	now := time.Now().UnixMilli()
	for seller, store := range s.allStores() {
		for _, certID := range s.dueAuctions(seller, store, now) {
			if utils.RabbitMQChannel == nil {
				continue
			}
			err := utils.PublishMarketEvent(context.Background(), utils.RouteAuctionFinalize, map[string]interface{}{
				"seller":  seller,
				"cert_id": certID,
			})
			if err != nil {
				utils.Logger.Warn("投递结算消息失败",
					zap.String("seller", seller),
					zap.String("cert_id", certID),
					zap.Error(err))
				continue
			}
			utils.Logger.Info("到期拍卖待结算",
				zap.String("seller", seller),
				zap.String("cert_id", certID))
		}
	}
}

// dueAuctions 持商店锁扫描到期拍卖
// 拍卖map被同一商店的变更操作并发改写，巡检读取同样走商店锁
func (s *marketService) dueAuctions(seller string, store *market.ListingStore, now int64) []string {
	mutex, err := utils.GetRedisLock(context.Background(), utils.StoreLockKey(seller), 10*time.Second)
	if err != nil {
		utils.Logger.Warn("巡检获取商店锁失败", zap.String("seller", seller), zap.Error(err))
		return nil
	}
	defer utils.ReleaseRedisLock(mutex)
	return store.DueAuctions(now)
}
