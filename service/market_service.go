package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"cert_market/config"
	"cert_market/dao"
	"cert_market/market"
	"cert_market/model"
	"cert_market/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MarketService 市场服务接口
type MarketService interface {
	ListFixedPrice(ctx context.Context, req ListFixedPriceReq) error
	ListAuction(ctx context.Context, req ListAuctionReq) error
	ListDisplay(ctx context.Context, req ListDisplayReq) error
	Purchase(ctx context.Context, req PurchaseReq) (*PurchaseResp, error)
	CancelListing(ctx context.Context, req CancelListingReq) error
	PlaceBid(ctx context.Context, req PlaceBidReq) error
	FinalizeAuction(ctx context.Context, seller, certID string) (*market.AuctionResult, error)
	ReclaimBid(ctx context.Context, seller, bidder string) (uint64, error)
	RecordView(ctx context.Context, seller, certID string) error
	RecordInquiry(ctx context.Context, seller, certID string) error

	StoreStats(seller string) (market.StoreStats, error)
	MarketStats() market.RegistryStats
	TrendingTypes(limit int) []market.TypePopularity
	SentimentScore() uint64
	GetSaleRecords(ctx context.Context, req GetSaleRecordsReq) ([]model.SaleRecord, int64, error)

	Pause(ctx context.Context, adminKey string) error
	Resume(ctx context.Context, adminKey string) error
	UpdatePolicy(ctx context.Context, adminKey string, policy market.TransferPolicy) error
	WithdrawPlatformFees(ctx context.Context, adminKey string, amount uint64) (uint64, error)

	StartSweeper(ctx context.Context, interval time.Duration)
}

// marketService 市场服务实现
// 核心状态机无锁，串行化在这一层完成：同一商店的变更操作
// 共用一把按卖家维度的分布式锁，注册表级管理操作用全局锁
type marketService struct {
	db        *gorm.DB
	registry  *market.Registry
	analytics *market.Analytics
	vault     *market.MemoryVault
	treasury  *market.MemoryTreasury

	storesMu sync.RWMutex
	stores   map[string]*market.ListingStore

	adminCap *market.AdminCap
	adminKey string
}

// NewMarketService 创建市场服务
func NewMarketService(db *gorm.DB, registry *market.Registry, analytics *market.Analytics, adminKey string) MarketService {
	return &marketService{
		db:        db,
		registry:  registry,
		analytics: analytics,
		vault:     market.NewMemoryVault(),
		treasury:  market.NewMemoryTreasury(),
		stores:    make(map[string]*market.ListingStore),
		adminCap:  market.MintAdminCap("ops"),
		adminKey:  adminKey,
	}
}

// -------------- 请求结构体 --------------

// ListFixedPriceReq 一口价挂牌请求
type ListFixedPriceReq struct {
	Seller       string   `json:"seller"`
	CertID       string   `json:"cert_id"`
	Price        uint64   `json:"price"`
	RoyaltyBps   uint64   `json:"royalty_bps"` // 0表示使用商店默认版税率
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	ExpiresHours uint64   `json:"expires_hours"` // 0表示不过期
}

// ListAuctionReq 拍卖挂牌请求
type ListAuctionReq struct {
	Seller        string `json:"seller"`
	CertID        string `json:"cert_id"`
	StartingPrice uint64 `json:"starting_price"`
	ReservePrice  uint64 `json:"reserve_price"` // 0表示无保留价
	DurationHours uint64 `json:"duration_hours"`
	AutoExtend    bool   `json:"auto_extend"`
}

// ListDisplayReq 展示挂牌请求
type ListDisplayReq struct {
	Seller      string `json:"seller"`
	CertID      string `json:"cert_id"`
	Fee         uint64 `json:"fee"`
	Description string `json:"description"`
	Contact     string `json:"contact"`
	Days        uint64 `json:"days"`
}

// PurchaseReq 一口价购买请求
type PurchaseReq struct {
	Seller  string `json:"seller"`
	CertID  string `json:"cert_id"`
	Buyer   string `json:"buyer"`
	Payment uint64 `json:"payment"`
}

// PurchaseResp 一口价购买结果
type PurchaseResp struct {
	SaleNo         string `json:"sale_no"`
	Price          uint64 `json:"price"`
	Change         uint64 `json:"change"`
	Royalty        uint64 `json:"royalty"`
	PlatformFee    uint64 `json:"platform_fee"`
	SellerProceeds uint64 `json:"seller_proceeds"`
}

// CancelListingReq 主动下架请求
type CancelListingReq struct {
	Seller string `json:"seller"`
	CertID string `json:"cert_id"`
	Kind   string `json:"kind"` // fixed_price/display
}

// PlaceBidReq 出价请求
type PlaceBidReq struct {
	Seller  string `json:"seller"`
	CertID  string `json:"cert_id"`
	Bidder  string `json:"bidder"`
	Amount  uint64 `json:"amount"`
	Payment uint64 `json:"payment"`
}

// GetSaleRecordsReq 查询成交记录请求
type GetSaleRecordsReq struct {
	UserAddr string `json:"user_addr"`
	CertID   string `json:"cert_id"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// -------------- 内部协作者 --------------

// dbIssuer 发行方协作者：以资产表为可交易性事实源
type dbIssuer struct{}

func (dbIssuer) IsTradeable(cert market.Certificate) bool {
	asset, err := dao.GetCertAsset(cert.ID)
	if err != nil {
		return false
	}
	return asset.Status == 0
}

func (dbIssuer) TypeOf(cert market.Certificate) string {
	return cert.TypeTag
}

// amqpSink 事件出口：发布到RabbitMQ，失败只记日志（fire-and-forget）
type amqpSink struct{}

func (amqpSink) publish(routingKey string, payload map[string]interface{}) {
	if utils.RabbitMQChannel == nil {
		return
	}
	if err := utils.PublishMarketEvent(context.Background(), routingKey, payload); err != nil {
		utils.Logger.Warn("市场事件发布失败", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func (s amqpSink) ListingCreated(kind string, certID, seller string, price uint64) {
	s.publish(utils.RouteListingCreated, map[string]interface{}{
		"kind": kind, "cert_id": certID, "seller": seller, "price": price,
	})
}

func (s amqpSink) SaleCompleted(certID, seller, buyer string, price uint64) {
	s.publish(utils.RouteSaleCompleted, map[string]interface{}{
		"cert_id": certID, "seller": seller, "buyer": buyer, "price": price,
	})
}

func (s amqpSink) BidPlaced(certID, bidder string, amount uint64) {
	s.publish(utils.RouteBidPlaced, map[string]interface{}{
		"cert_id": certID, "bidder": bidder, "amount": amount,
	})
}

func (s amqpSink) AuctionEnded(certID, winner string, finalPrice uint64) {
	s.publish(utils.RouteAuctionEnded, map[string]interface{}{
		"cert_id": certID, "winner": winner, "final_price": finalPrice,
	})
}

// -------------- 商店管理 --------------

// getOrCreateStore 按卖家取商店，首次访问时开张
func (s *marketService) getOrCreateStore(seller string) *market.ListingStore {
	s.storesMu.Lock()
	defer s.storesMu.Unlock()
	if store, ok := s.stores[seller]; ok {
		return store
	}
	store := market.NewListingStore(s.registry, seller, config.GlobalConfig.DefaultRoyaltyBps,
		s.vault, dbIssuer{}, s.treasury, amqpSink{})
	s.stores[seller] = store
	return store
}

// getStore 按卖家取商店，不存在返回ErrListingNotFound
func (s *marketService) getStore(seller string) (*market.ListingStore, error) {
	s.storesMu.RLock()
	defer s.storesMu.RUnlock()
	store, ok := s.stores[seller]
	if !ok {
		return nil, market.ErrListingNotFound
	}
	return store, nil
}

// allStores 商店快照（过期巡检用）
func (s *marketService) allStores() map[string]*market.ListingStore {
	s.storesMu.RLock()
	defer s.storesMu.RUnlock()
	snapshot := make(map[string]*market.ListingStore, len(s.stores))
	for seller, store := range s.stores {
		snapshot[seller] = store
	}
	return snapshot
}

// -------------- 挂牌操作 --------------

// loadCert 从资产表加载卖家名下资产并构造证书视图
func loadCert(certID, seller string) (market.Certificate, error) {
	asset, err := dao.GetOwnedTradeableAsset(certID, seller)
	if err != nil {
		utils.Logger.Error("校验证书资产失败", zap.String("cert_id", certID), zap.String("seller", seller), zap.Error(err))
		return market.Certificate{}, market.ErrNotTradeable
	}
	return market.Certificate{
		ID:       asset.CertID,
		TypeTag:  asset.TypeTag,
		Issuer:   asset.IssuerAddr,
		Owner:    asset.OwnerAddr,
		Verified: asset.Verified,
	}, nil
}

// ListFixedPrice 一口价挂牌
func (s *marketService) ListFixedPrice(ctx context.Context, req ListFixedPriceReq) error {
	cert, err := loadCert(req.CertID, req.Seller)
	if err != nil {
		return err
	}

	// 商店级串行锁
	mutex, err := utils.GetRedisLock(ctx, utils.StoreLockKey(req.Seller), 10*time.Second)
	if err != nil {
		utils.Logger.Error("获取商店锁失败", zap.String("seller", req.Seller), zap.Error(err))
		return errors.New("当前商店正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	// 托管锁定表二次校验（跨实例防重复挂牌）
	if dao.HasActiveCustodyLock(req.CertID) {
		return market.ErrCertAlreadyListed
	}

	store := s.getOrCreateStore(req.Seller)
	now := time.Now().UnixMilli()
	expiresInMs := int64(req.ExpiresHours) * int64(time.Hour/time.Millisecond)
	if err := store.ListFixedPrice(s.registry, req.Seller, cert, req.Price, req.RoyaltyBps,
		req.Description, req.Tags, expiresInMs, now); err != nil {
		return err
	}

	s.afterListed(string(model.ListingKindFixedPrice), req.Seller, cert, req.Price)
	return nil
}

// ListAuction 拍卖挂牌
func (s *marketService) ListAuction(ctx context.Context, req ListAuctionReq) error {
	cert, err := loadCert(req.CertID, req.Seller)
	if err != nil {
		return err
	}

	mutex, err := utils.GetRedisLock(ctx, utils.StoreLockKey(req.Seller), 10*time.Second)
	if err != nil {
		utils.Logger.Error("获取商店锁失败", zap.String("seller", req.Seller), zap.Error(err))
		return errors.New("当前商店正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	if dao.HasActiveCustodyLock(req.CertID) {
		return market.ErrCertAlreadyListed
	}

	store := s.getOrCreateStore(req.Seller)
	now := time.Now().UnixMilli()
	if err := store.ListAuction(s.registry, req.Seller, cert, req.StartingPrice,
		req.ReservePrice, req.DurationHours, req.AutoExtend, now); err != nil {
		return err
	}

	s.afterListed(string(model.ListingKindAuction), req.Seller, cert, req.StartingPrice)
	return nil
}

// ListDisplay 展示挂牌
func (s *marketService) ListDisplay(ctx context.Context, req ListDisplayReq) error {
	cert, err := loadCert(req.CertID, req.Seller)
	if err != nil {
		return err
	}

	mutex, err := utils.GetRedisLock(ctx, utils.StoreLockKey(req.Seller), 10*time.Second)
	if err != nil {
		utils.Logger.Error("获取商店锁失败", zap.String("seller", req.Seller), zap.Error(err))
		return errors.New("当前商店正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	if dao.HasActiveCustodyLock(req.CertID) {
		return market.ErrCertAlreadyListed
	}

	store := s.getOrCreateStore(req.Seller)
	now := time.Now().UnixMilli()
	fee := market.NewPayment(req.Fee)
	if err := store.ListDisplay(s.registry, req.Seller, cert, fee, req.Description, req.Contact, req.Days, now); err != nil {
		return err
	}

	s.afterListed(string(model.ListingKindDisplay), req.Seller, cert, req.Fee)
	return nil
}

// afterListed 挂牌成功后的持久化与镜像：托管锁定行 + Redis发现索引
func (s *marketService) afterListed(kind, seller string, cert market.Certificate, price uint64) {
	lock := model.CustodyLock{
		CertID:      cert.ID,
		ListingKind: kind,
		SellerAddr:  seller,
		LockTime:    time.Now(),
	}
	if err := s.db.Create(&lock).Error; err != nil {
		utils.Logger.Error("写入托管锁定失败", zap.String("cert_id", cert.ID), zap.Error(err))
	}
	if err := dao.IndexListing(market.PriceBucket(price), cert.TypeTag, cert.ID, price); err != nil {
		utils.Logger.Warn("发现索引镜像失败", zap.String("cert_id", cert.ID), zap.Error(err))
	}
}

// Purchase 一口价购买
func (s *marketService) Purchase(ctx context.Context, req PurchaseReq) (*PurchaseResp, error) {
	mutex, err := utils.GetRedisLock(ctx, utils.StoreLockKey(req.Seller), 10*time.Second)
	if err != nil {
		utils.Logger.Error("获取商店锁失败", zap.String("seller", req.Seller), zap.Error(err))
		return nil, errors.New("当前商店正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	store, err := s.getStore(req.Seller)
	if err != nil {
		return nil, err
	}
	// 买家不能购买自己的挂牌
	if req.Buyer == req.Seller {
		return nil, errors.New("不能购买自己的挂牌")
	}

	listing, ok := store.FixedPrice(req.CertID)
	if !ok {
		return nil, market.ErrListingNotFound
	}
	listedPrice := listing.Price

	now := time.Now().UnixMilli()
	payment := market.NewPayment(req.Payment)
	result, err := store.PurchaseFixedPrice(s.registry, s.analytics, req.Buyer, req.CertID, payment, now)
	if err != nil {
		return nil, err
	}

	saleNo := utils.GenerateSaleNo()
	s.settleToLedger(saleNo, string(model.ListingKindFixedPrice), req.CertID, req.Seller, req.Buyer,
		result.Price, result.Royalty, result.PlatformFee, result.SellerProceeds)
	s.afterUnlisted(req.CertID, result.Cert.TypeTag, listedPrice)

	return &PurchaseResp{
		SaleNo:         saleNo,
		Price:          result.Price,
		Change:         result.Change.Value(),
		Royalty:        result.Royalty,
		PlatformFee:    result.PlatformFee,
		SellerProceeds: result.SellerProceeds,
	}, nil
}

// CancelListing 主动下架（一口价/展示）
func (s *marketService) CancelListing(ctx context.Context, req CancelListingReq) error {
	mutex, err := utils.GetRedisLock(ctx, utils.StoreLockKey(req.Seller), 10*time.Second)
	if err != nil {
		return errors.New("当前商店正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	store, err := s.getStore(req.Seller)
	if err != nil {
		return err
	}

	var cert market.Certificate
	var listedPrice uint64
	switch model.ListingKind(req.Kind) {
	case model.ListingKindFixedPrice:
		listing, ok := store.FixedPrice(req.CertID)
		if !ok {
			return market.ErrListingNotFound
		}
		listedPrice = listing.Price
		cert, err = store.CancelFixedPrice(s.registry, req.Seller, req.CertID)
	case model.ListingKindDisplay:
		listing, ok := store.Display(req.CertID)
		if !ok {
			return market.ErrListingNotFound
		}
		listedPrice = listing.FeePaid
		cert, err = store.CancelDisplay(s.registry, req.Seller, req.CertID)
	default:
		return market.ErrListingNotFound
	}
	if err != nil {
		return err
	}

	s.afterUnlisted(req.CertID, cert.TypeTag, listedPrice)
	// 证书代币退还挂牌人
	go s.releaseOnChain("", req.CertID, req.Seller)
	return nil
}

// -------------- 拍卖操作 --------------

// PlaceBid 出价
func (s *marketService) PlaceBid(ctx context.Context, req PlaceBidReq) error {
	mutex, err := utils.GetRedisLock(ctx, utils.StoreLockKey(req.Seller), 10*time.Second)
	if err != nil {
		utils.Logger.Error("获取商店锁失败", zap.String("seller", req.Seller), zap.Error(err))
		return errors.New("当前商店正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	store, err := s.getStore(req.Seller)
	if err != nil {
		return err
	}
	if req.Bidder == req.Seller {
		return errors.New("不能对自己的拍卖出价")
	}

	now := time.Now().UnixMilli()
	payment := market.NewPayment(req.Payment)
	if err := store.PlaceBid(s.registry, req.Bidder, req.CertID, req.Amount, payment, now); err != nil {
		return err
	}

	// 出价流水（审计账本，失败不回滚出价）
	if err := dao.CreateBidLog(req.CertID, req.Bidder, req.Amount, time.Now()); err != nil {
		utils.Logger.Error("写入出价流水失败", zap.String("cert_id", req.CertID), zap.Error(err))
	}
	return nil
}

// FinalizeAuction 拍卖结算
func (s *marketService) FinalizeAuction(ctx context.Context, seller, certID string) (*market.AuctionResult, error) {
	mutex, err := utils.GetRedisLock(ctx, utils.StoreLockKey(seller), 10*time.Second)
	if err != nil {
		utils.Logger.Error("获取商店锁失败", zap.String("seller", seller), zap.Error(err))
		return nil, errors.New("当前商店正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	store, err := s.getStore(seller)
	if err != nil {
		return nil, err
	}
	auction, ok := store.Auction(certID)
	if !ok {
		return nil, market.ErrListingNotFound
	}
	startingPrice := auction.StartingPrice

	now := time.Now().UnixMilli()
	result, err := store.FinalizeAuction(s.registry, s.analytics, certID, now)
	if err != nil {
		return nil, err
	}

	if result.Sold {
		saleNo := utils.GenerateSaleNo()
		s.settleToLedger(saleNo, string(model.ListingKindAuction), certID, seller, result.Winner,
			result.FinalPrice, result.Royalty, result.PlatformFee, result.SellerProceeds)
	} else {
		// 流拍：释放托管，证书代币退还卖家
		s.unlockCustody(certID)
		go s.releaseOnChain("", certID, seller)
	}
	s.unindexMirror(certID, result.Cert.TypeTag, startingPrice)

	utils.Logger.Info("拍卖结算完成",
		zap.String("cert_id", certID),
		zap.String("winner", result.Winner),
		zap.Uint64("final_price", result.FinalPrice),
		zap.Bool("sold", result.Sold))
	return result, nil
}

// ReclaimBid 取回被超越出价的保证金
func (s *marketService) ReclaimBid(ctx context.Context, seller, bidder string) (uint64, error) {
	mutex, err := utils.GetRedisLock(ctx, utils.StoreLockKey(seller), 10*time.Second)
	if err != nil {
		return 0, errors.New("当前商店正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	store, err := s.getStore(seller)
	if err != nil {
		return 0, err
	}
	payment, err := store.ReclaimBid(bidder)
	if err != nil {
		return 0, err
	}
	amount := payment.Value()
	utils.Logger.Info("保证金取回", zap.String("bidder", bidder), zap.Uint64("amount", amount))
	return amount, nil
}

// -------------- 计数与查询 --------------

// RecordView 浏览计数
// 计数同样改写核心状态，和其他变更操作走同一把商店锁
func (s *marketService) RecordView(ctx context.Context, seller, certID string) error {
	mutex, err := utils.GetRedisLock(ctx, utils.StoreLockKey(seller), 10*time.Second)
	if err != nil {
		return errors.New("当前商店正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	store, err := s.getStore(seller)
	if err != nil {
		return err
	}
	return store.RecordView(certID)
}

// RecordInquiry 询价计数
func (s *marketService) RecordInquiry(ctx context.Context, seller, certID string) error {
	mutex, err := utils.GetRedisLock(ctx, utils.StoreLockKey(seller), 10*time.Second)
	if err != nil {
		return errors.New("当前商店正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	store, err := s.getStore(seller)
	if err != nil {
		return err
	}
	return store.RecordInquiry(certID)
}

// StoreStats 商店经营计数
// 核心map在变更操作中被并发改写，读取快照同样要持商店锁
func (s *marketService) StoreStats(seller string) (market.StoreStats, error) {
	mutex, err := utils.GetRedisLock(context.Background(), utils.StoreLockKey(seller), 10*time.Second)
	if err != nil {
		return market.StoreStats{}, errors.New("当前商店正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	store, err := s.getStore(seller)
	if err != nil {
		return market.StoreStats{}, err
	}
	return store.Stats(), nil
}

// MarketStats 市场聚合计数
func (s *marketService) MarketStats() market.RegistryStats {
	return s.registry.Stats()
}

// TrendingTypes 热门证书类型
func (s *marketService) TrendingTypes(limit int) []market.TypePopularity {
	return s.analytics.TrendingTypes(limit)
}

// SentimentScore 市场情绪评分
func (s *marketService) SentimentScore() uint64 {
	return s.analytics.SentimentScore(time.Now().UnixMilli())
}

// GetSaleRecords 分页查询成交记录
func (s *marketService) GetSaleRecords(ctx context.Context, req GetSaleRecordsReq) ([]model.SaleRecord, int64, error) {
	return dao.GetSaleRecords(req.UserAddr, req.CertID, req.Page, req.PageSize)
}

// -------------- 管理操作 --------------

// checkAdmin 管理密钥换取管理凭证
func (s *marketService) checkAdmin(adminKey string) (*market.AdminCap, error) {
	if s.adminKey == "" || adminKey != s.adminKey {
		return nil, market.ErrUnauthorized
	}
	return s.adminCap, nil
}

// Pause 暂停市场
func (s *marketService) Pause(ctx context.Context, adminKey string) error {
	cap, err := s.checkAdmin(adminKey)
	if err != nil {
		return err
	}
	mutex, err := utils.GetRedisLock(ctx, utils.MarketLockKey(), 10*time.Second)
	if err != nil {
		return errors.New("市场正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	if err := s.registry.Pause(cap); err != nil {
		return err
	}
	utils.Logger.Warn("市场已暂停", zap.String("operator", cap.Holder()))
	return nil
}

// Resume 恢复市场
func (s *marketService) Resume(ctx context.Context, adminKey string) error {
	cap, err := s.checkAdmin(adminKey)
	if err != nil {
		return err
	}
	mutex, err := utils.GetRedisLock(ctx, utils.MarketLockKey(), 10*time.Second)
	if err != nil {
		return errors.New("市场正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	if err := s.registry.Resume(cap); err != nil {
		return err
	}
	utils.Logger.Info("市场已恢复", zap.String("operator", cap.Holder()))
	return nil
}

// UpdatePolicy 更新转让政策
func (s *marketService) UpdatePolicy(ctx context.Context, adminKey string, policy market.TransferPolicy) error {
	cap, err := s.checkAdmin(adminKey)
	if err != nil {
		return err
	}
	mutex, err := utils.GetRedisLock(ctx, utils.MarketLockKey(), 10*time.Second)
	if err != nil {
		return errors.New("市场正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	return s.registry.SetPolicy(cap, policy)
}

// WithdrawPlatformFees 提取平台累计手续费
func (s *marketService) WithdrawPlatformFees(ctx context.Context, adminKey string, amount uint64) (uint64, error) {
	cap, err := s.checkAdmin(adminKey)
	if err != nil {
		return 0, err
	}
	mutex, err := utils.GetRedisLock(ctx, utils.MarketLockKey(), 10*time.Second)
	if err != nil {
		return 0, errors.New("市场正在处理中，请稍后再试")
	}
	defer utils.ReleaseRedisLock(mutex)

	payment, err := s.treasury.WithdrawPlatform(cap, amount)
	if err != nil {
		return 0, err
	}
	withdrawn := payment.Value()
	utils.Logger.Info("平台手续费提取",
		zap.String("operator", cap.Holder()),
		zap.Uint64("amount", withdrawn))
	return withdrawn, nil
}

// -------------- 结算落库 --------------

// settleToLedger 成交落库：更新资产归属 + 释放托管 + 写成交账本，同一事务
func (s *marketService) settleToLedger(saleNo, kind, certID, seller, buyer string, price, royalty, platformFee, sellerProceeds uint64) {
	tx := s.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// 更新证书资产所有者
	if err := tx.Model(&model.CertAsset{}).Where("cert_id = ?", certID).Update("owner_addr", buyer).Error; err != nil {
		tx.Rollback()
		utils.Logger.Error("更新证书归属失败", zap.String("cert_id", certID), zap.Error(err))
		return
	}

	// 释放托管锁定
	unlockTime := time.Now()
	if err := tx.Model(&model.CustodyLock{}).Where("cert_id = ? AND unlock_time IS NULL", certID).
		Update("unlock_time", &unlockTime).Error; err != nil {
		tx.Rollback()
		utils.Logger.Error("释放托管锁定失败", zap.String("cert_id", certID), zap.Error(err))
		return
	}

	// 写成交账本
	record := model.SaleRecord{
		SaleNo:         saleNo,
		CertID:         certID,
		ListingKind:    kind,
		SellerAddr:     seller,
		BuyerAddr:      buyer,
		Price:          price,
		Royalty:        royalty,
		PlatformFee:    platformFee,
		SellerProceeds: sellerProceeds,
		TradeTime:      time.Now(),
	}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		utils.Logger.Error("写入成交账本失败", zap.String("sale_no", saleNo), zap.Error(err))
		return
	}

	tx.Commit()
	utils.Logger.Info("成交落库完成", zap.String("sale_no", saleNo), zap.String("cert_id", certID), zap.Uint64("price", price))

	// 链上把证书代币从托管地址释放给买家（异步跟进）
	go s.releaseOnChain(saleNo, certID, buyer)
}

// afterUnlisted 下架后的持久化与镜像清理
func (s *marketService) afterUnlisted(certID, certType string, listedPrice uint64) {
	s.unlockCustody(certID)
	s.unindexMirror(certID, certType, listedPrice)
}

// unlockCustody 释放托管锁定行
func (s *marketService) unlockCustody(certID string) {
	unlockTime := time.Now()
	if err := s.db.Model(&model.CustodyLock{}).Where("cert_id = ? AND unlock_time IS NULL", certID).
		Update("unlock_time", &unlockTime).Error; err != nil {
		utils.Logger.Error("释放托管锁定失败", zap.String("cert_id", certID), zap.Error(err))
	}
}

// unindexMirror 清理Redis发现索引镜像
func (s *marketService) unindexMirror(certID, certType string, listedPrice uint64) {
	if err := dao.UnindexListing(market.PriceBucket(listedPrice), certType, certID); err != nil {
		utils.Logger.Warn("发现索引镜像清理失败", zap.String("cert_id", certID), zap.Error(err))
	}
}
