package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cert_market/config"
	"cert_market/dao"
	"cert_market/handler"
	"cert_market/market"
	"cert_market/service"
	"cert_market/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 1. 初始化配置
	if err := config.InitConfig(); err != nil {
		zap.L().Fatal("初始化配置失败", zap.Error(err))
	}

	// 2. 初始化日志
	if err := utils.InitLogger(); err != nil {
		zap.L().Fatal("初始化日志失败", zap.Error(err))
	}
	defer utils.SyncLogger()

	// 3. 初始化MySQL（含表结构迁移）
	if err := dao.InitMySQL(config.GlobalConfig.MySQLDSN); err != nil {
		utils.Logger.Fatal("连接MySQL失败", zap.Error(err))
	}

	// 4. 初始化Redis
	if err := utils.InitRedis(config.GlobalConfig.RedisAddr, config.GlobalConfig.RedisPassword, config.GlobalConfig.RedisDB); err != nil {
		utils.Logger.Fatal("初始化Redis失败", zap.Error(err))
	}

	// 5. 初始化RabbitMQ
	if err := utils.InitRabbitMQ(config.GlobalConfig.RabbitMQURL); err != nil {
		utils.Logger.Fatal("初始化RabbitMQ失败", zap.Error(err))
	}
	defer utils.CloseRabbitMQ()

	// 6. 初始化市场核心（全局注册表与分析聚合器由进程显式持有并注入）
	registry := market.NewRegistry(market.TransferPolicy{
		PlatformFeeRate:      config.GlobalConfig.PlatformFeeRate,
		MinListingPrice:      config.GlobalConfig.MinListingPrice,
		MaxAuctionHours:      config.GlobalConfig.MaxAuctionHours,
		HighValueThreshold:   config.GlobalConfig.HighValueThreshold,
		VerificationRequired: config.GlobalConfig.VerificationRequired,
		DisplayFeePerDay:     config.GlobalConfig.DisplayFeePerDay,
		BidIncrementPct:      config.GlobalConfig.BidIncrementPct,
		AutoExtendMs:         int64(config.GlobalConfig.AutoExtendMinutes) * 60_000,
	})
	analytics := market.NewAnalytics()

	// 7. 初始化服务和处理器
	marketService := service.NewMarketService(dao.DB(), registry, analytics, config.GlobalConfig.AdminAPIKey)
	marketHandler := handler.NewMarketHandler(marketService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 8. 启动RabbitMQ消费者（处理到期拍卖结算消息）
	err := utils.ConsumeFinalizeMsg(func(seller, certID string) error {
		_, err := marketService.FinalizeAuction(context.Background(), seller, certID)
		// 重复投递的结算请求会被状态机拒绝，不算处理失败
		if err == market.ErrAuctionNotActive || err == market.ErrListingNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		utils.Logger.Fatal("启动消费者失败", zap.Error(err))
	}

	// 9. 启动过期拍卖巡检
	marketService.StartSweeper(ctx, time.Duration(config.GlobalConfig.SweepInterval)*time.Second)

	// 10. 初始化Gin引擎
	r := gin.Default()

	// 路由
	v1 := r.Group("/api/v1/market")
	{
		v1.POST("/listings/fixed", marketHandler.CreateFixedPriceListing)   // 一口价挂牌
		v1.POST("/listings/auction", marketHandler.CreateAuctionListing)    // 拍卖挂牌
		v1.POST("/listings/display", marketHandler.CreateDisplayListing)    // 展示挂牌
		v1.POST("/listings/cancel", marketHandler.CancelListing)            // 主动下架
		v1.POST("/purchase", marketHandler.Purchase)                        // 一口价购买
		v1.POST("/bid", marketHandler.PlaceBid)                             // 拍卖出价
		v1.POST("/finalize", marketHandler.FinalizeAuction)                 // 拍卖结算
		v1.POST("/reclaim", marketHandler.ReclaimBid)                       // 取回保证金
		v1.POST("/view", marketHandler.RecordView)                          // 浏览计数
		v1.POST("/inquiry", marketHandler.RecordInquiry)                    // 询价计数
		v1.GET("/stores/:seller/stats", marketHandler.StoreStats)           // 商店经营计数
		v1.GET("/stats", marketHandler.MarketStats)                         // 市场聚合计数
		v1.GET("/trending", marketHandler.TrendingTypes)                    // 热门类型与情绪
		v1.GET("/browse/bucket/:bucket", marketHandler.BrowseByBucket)      // 按价格桶浏览
		v1.GET("/browse/type/:type", marketHandler.BrowseByType)            // 按类型浏览
		v1.GET("/records", marketHandler.GetSaleRecords)                    // 查询成交记录
	}

	admin := r.Group("/api/v1/market/admin")
	{
		admin.POST("/pause", marketHandler.Pause)           // 暂停市场
		admin.POST("/resume", marketHandler.Resume)         // 恢复市场
		admin.POST("/policy", marketHandler.UpdatePolicy)   // 更新转让政策
		admin.POST("/withdraw", marketHandler.WithdrawFees) // 提取平台手续费
	}

	// 11. 启动服务（优雅关闭）
	go func() {
		if err := r.Run(config.GlobalConfig.ServerPort); err != nil {
			utils.Logger.Fatal("启动服务失败", zap.Error(err))
		}
	}()

	// 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	utils.Logger.Info("服务正在关闭...")
}
