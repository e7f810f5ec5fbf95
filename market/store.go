package market

import "cert_market/model"

// ListingStore 卖家挂牌商店
// 每个卖家一份，持有其全部在架挂牌与经营计数；
// 同一证书ID在三类挂牌中至多出现一次（互斥不变式）；
// 执行层保证对单个商店的变更严格串行，内部不加锁、不重试
type ListingStore struct {
	owner              string
	defaultRoyaltyRate uint64

	fixed    map[string]*model.FixedPriceListing
	auctions map[string]*model.AuctionListing
	displays map[string]*model.DisplayListing

	escrow      map[string]*Payment // 拍卖最高出价保证金：证书ID -> 凭证
	reclaimable map[string]*Payment // 被超越出价可取回池：出价人 -> 凭证
	ended       map[string]struct{} // 已结算拍卖墓碑：重复结算报ErrAuctionNotActive而非未找到

	vault    Vault
	issuer   IssuerRegistry
	treasury Treasury
	events   EventSink

	totalSales         uint64
	totalRevenue       uint64
	certificatesListed uint64
	successfulSales    uint64
	lifetimeEarnings   uint64
}

// StoreStats 商店经营计数快照
type StoreStats struct {
	Owner              string `json:"owner"`
	TotalSales         uint64 `json:"total_sales"`
	TotalRevenue       uint64 `json:"total_revenue"`
	CertificatesListed uint64 `json:"certificates_listed"`
	SuccessfulSales    uint64 `json:"successful_sales"`
	LifetimeEarnings   uint64 `json:"lifetime_earnings"`
	ActiveFixedPrice   int    `json:"active_fixed_price"`
	ActiveAuctions     int    `json:"active_auctions"`
	ActiveDisplays     int    `json:"active_displays"`
}

// PurchaseResult 一口价成交结果
type PurchaseResult struct {
	Cert           Certificate // 释放给买家的证书
	Change         *Payment    // 找零（先于其他任何效果返还买家）
	Price          uint64      // 成交价（分）
	Royalty        uint64      // 发行方版税（分）
	PlatformFee    uint64      // 平台手续费（分）
	SellerProceeds uint64      // 卖家实收（分）
}

// NewListingStore 创建卖家商店，并在注册表登记开张
func NewListingStore(reg *Registry, owner string, defaultRoyaltyRate uint64, vault Vault, issuer IssuerRegistry, treasury Treasury, events EventSink) *ListingStore {
	reg.RegisterStore()
	return &ListingStore{
		owner:              owner,
		defaultRoyaltyRate: defaultRoyaltyRate,
		fixed:              make(map[string]*model.FixedPriceListing),
		auctions:           make(map[string]*model.AuctionListing),
		displays:           make(map[string]*model.DisplayListing),
		escrow:             make(map[string]*Payment),
		reclaimable:        make(map[string]*Payment),
		ended:              make(map[string]struct{}),
		vault:              vault,
		issuer:             issuer,
		treasury:           treasury,
		events:             events,
	}
}

// Owner 商店所有人
func (s *ListingStore) Owner() string {
	return s.owner
}

// hasListing 证书是否已有在架挂牌（三类互斥）
func (s *ListingStore) hasListing(certID string) bool {
	if _, ok := s.fixed[certID]; ok {
		return true
	}
	if _, ok := s.auctions[certID]; ok {
		return true
	}
	_, ok := s.displays[certID]
	return ok
}

// checkListable 三类挂牌共用的前置校验，不产生任何副作用
func (s *ListingStore) checkListable(reg *Registry, caller string, cert Certificate) error {
	if err := reg.CheckActive(); err != nil {
		return err
	}
	if caller != s.owner {
		return ErrUnauthorized
	}
	if !s.issuer.IsTradeable(cert) {
		return ErrNotTradeable
	}
	if s.hasListing(cert.ID) {
		return ErrCertAlreadyListed
	}
	return nil
}

// checkPrice 定价校验：价格为正、不低于平台最低挂牌价、费率之和不超过100%
func checkPrice(reg *Registry, price, royaltyBps uint64) error {
	policy := reg.Policy()
	if price == 0 || price < policy.MinListingPrice {
		return ErrInvalidPrice
	}
	if royaltyBps+policy.PlatformFeeRate > BpsDenominator {
		return ErrInvalidPrice
	}
	return nil
}

// royaltyOrDefault 未指定版税率时回退到商店默认值
func (s *ListingStore) royaltyOrDefault(royaltyBps uint64) uint64 {
	if royaltyBps == 0 {
		return s.defaultRoyaltyRate
	}
	return royaltyBps
}

// ListFixedPrice 一口价挂牌
// 校验全部通过后才移交托管：任何失败都不会发生托管转移
func (s *ListingStore) ListFixedPrice(reg *Registry, caller string, cert Certificate, price, royaltyBps uint64, description string, tags []string, expiresInMs int64, now int64) error {
	royalty := s.royaltyOrDefault(royaltyBps)
	if err := checkPrice(reg, price, royalty); err != nil {
		return err
	}
	if err := s.checkListable(reg, caller, cert); err != nil {
		return err
	}

	if err := s.vault.Place(cert); err != nil {
		return err
	}
	if err := s.vault.MarkListed(cert.ID, price); err != nil {
		return err
	}

	var expiresAt int64
	if expiresInMs > 0 {
		expiresAt = now + expiresInMs
	}
	s.fixed[cert.ID] = &model.FixedPriceListing{
		CertID:      cert.ID,
		Seller:      s.owner,
		Price:       price,
		RoyaltyRate: royalty,
		Description: description,
		Tags:        tags,
		ListedAt:    now,
		ExpiresAt:   expiresAt,
	}
	s.certificatesListed++

	reg.RegisterListing(cert.ID, s.issuer.TypeOf(cert), price)
	s.events.ListingCreated(string(model.ListingKindFixedPrice), cert.ID, s.owner, price)
	return nil
}

// ListDisplay 展示挂牌：只托管展示，不携带结算语义
// 展示费一次性计入平台收入
func (s *ListingStore) ListDisplay(reg *Registry, caller string, cert Certificate, fee *Payment, description, contact string, days uint64, now int64) error {
	if days < 1 || days > 365 {
		return ErrInvalidDuration
	}
	if err := s.checkListable(reg, caller, cert); err != nil {
		return err
	}
	required := reg.Policy().DisplayFeePerDay * days
	if fee.Value() < required {
		return ErrInsufficientPayment
	}

	if err := s.vault.Place(cert); err != nil {
		return err
	}

	feePaid := fee.Value()
	s.treasury.CreditPlatform(fee)
	reg.RecordFees(0, feePaid)

	s.displays[cert.ID] = &model.DisplayListing{
		CertID:       cert.ID,
		Owner:        s.owner,
		FeePaid:      feePaid,
		DisplayUntil: now + int64(days)*DayMillis,
		Description:  description,
		Contact:      contact,
	}
	s.certificatesListed++

	reg.RegisterListing(cert.ID, s.issuer.TypeOf(cert), feePaid)
	s.events.ListingCreated(string(model.ListingKindDisplay), cert.ID, s.owner, feePaid)
	return nil
}

// PurchaseFixedPrice 一口价购买
// 效果顺序：先找零，再分账，再释放证书；任何校验失败都不触碰状态
func (s *ListingStore) PurchaseFixedPrice(reg *Registry, analytics *Analytics, buyer, certID string, payment *Payment, now int64) (*PurchaseResult, error) {
	if err := reg.CheckActive(); err != nil {
		return nil, err
	}
	listing, ok := s.fixed[certID]
	if !ok {
		return nil, ErrListingNotFound
	}
	if listing.ExpiresAt > 0 && now > listing.ExpiresAt {
		return nil, ErrExpiredListing
	}
	if payment.Value() < listing.Price {
		return nil, ErrInsufficientPayment
	}

	// 高价值政策：要求核验时，未核验证书不得成交
	policy := reg.Policy()
	held, err := s.vault.Inspect(certID)
	if err != nil {
		return nil, err
	}
	if policy.VerificationRequired && listing.Price >= policy.HighValueThreshold && !held.Verified {
		return nil, ErrNotTradeable
	}
	// 挂牌后政策可能变更，分账前重新校验费率之和，避免拆分中途失败
	if listing.RoyaltyRate+policy.PlatformFeeRate > BpsDenominator {
		return nil, ErrInvalidPrice
	}

	// 1. 找零先于其他任何效果
	change := NewPayment(0)
	if excess := payment.Value() - listing.Price; excess > 0 {
		change, err = payment.Split(excess)
		if err != nil {
			return nil, err
		}
	}

	// 2. 三方分账
	royalty, platformFee, sellerProceeds := SplitFees(listing.Price, listing.RoyaltyRate, policy.PlatformFeeRate)
	royaltyPay, err := payment.Split(royalty)
	if err != nil {
		return nil, err
	}
	platformPay, err := payment.Split(platformFee)
	if err != nil {
		return nil, err
	}
	s.treasury.CreditRoyalty(held.Issuer, royaltyPay)
	s.treasury.CreditPlatform(platformPay)
	s.treasury.CreditSeller(s.owner, payment)

	// 3. 释放证书，删除挂牌
	cert, err := s.vault.Withdraw(certID)
	if err != nil {
		return nil, err
	}
	cert.Owner = buyer
	delete(s.fixed, certID)

	// 4. 商店与注册表计数在同一原子操作内更新
	s.totalSales++
	s.totalRevenue += listing.Price
	s.successfulSales++
	s.lifetimeEarnings += sellerProceeds

	certType := s.issuer.TypeOf(cert)
	reg.UnregisterListing(certID, certType, listing.Price)
	reg.RecordSale(listing.Price)
	reg.RecordFees(royalty, platformFee)
	analytics.RecordSale(certType, listing.Price, now)

	s.events.SaleCompleted(certID, s.owner, buyer, listing.Price)

	return &PurchaseResult{
		Cert:           cert,
		Change:         change,
		Price:          listing.Price,
		Royalty:        royalty,
		PlatformFee:    platformFee,
		SellerProceeds: sellerProceeds,
	}, nil
}

// CancelFixedPrice 主动下架一口价挂牌，证书退还卖家
func (s *ListingStore) CancelFixedPrice(reg *Registry, caller, certID string) (Certificate, error) {
	if err := reg.CheckActive(); err != nil {
		return Certificate{}, err
	}
	if caller != s.owner {
		return Certificate{}, ErrUnauthorized
	}
	listing, ok := s.fixed[certID]
	if !ok {
		return Certificate{}, ErrListingNotFound
	}

	cert, err := s.vault.Withdraw(certID)
	if err != nil {
		return Certificate{}, err
	}
	delete(s.fixed, certID)
	reg.UnregisterListing(certID, s.issuer.TypeOf(cert), listing.Price)
	return cert, nil
}

// CancelDisplay 下架展示挂牌，证书退还持有人（展示费不退）
func (s *ListingStore) CancelDisplay(reg *Registry, caller, certID string) (Certificate, error) {
	if err := reg.CheckActive(); err != nil {
		return Certificate{}, err
	}
	if caller != s.owner {
		return Certificate{}, ErrUnauthorized
	}
	listing, ok := s.displays[certID]
	if !ok {
		return Certificate{}, ErrListingNotFound
	}

	cert, err := s.vault.Withdraw(certID)
	if err != nil {
		return Certificate{}, err
	}
	delete(s.displays, certID)
	reg.UnregisterListing(certID, s.issuer.TypeOf(cert), listing.FeePaid)
	return cert, nil
}

// RecordView 浏览计数（一口价或展示挂牌）
func (s *ListingStore) RecordView(certID string) error {
	if listing, ok := s.fixed[certID]; ok {
		listing.ViewCount++
		return nil
	}
	if listing, ok := s.displays[certID]; ok {
		listing.ViewCount++
		return nil
	}
	return ErrListingNotFound
}

// RecordInquiry 询价计数（仅一口价挂牌）
func (s *ListingStore) RecordInquiry(certID string) error {
	listing, ok := s.fixed[certID]
	if !ok {
		return ErrListingNotFound
	}
	listing.InquiryCount++
	return nil
}

// FixedPrice 查询一口价挂牌
func (s *ListingStore) FixedPrice(certID string) (*model.FixedPriceListing, bool) {
	listing, ok := s.fixed[certID]
	return listing, ok
}

// Auction 查询拍卖挂牌
func (s *ListingStore) Auction(certID string) (*model.AuctionListing, bool) {
	listing, ok := s.auctions[certID]
	return listing, ok
}

// Display 查询展示挂牌
func (s *ListingStore) Display(certID string) (*model.DisplayListing, bool) {
	listing, ok := s.displays[certID]
	return listing, ok
}

// Stats 商店经营计数快照
func (s *ListingStore) Stats() StoreStats {
	return StoreStats{
		Owner:              s.owner,
		TotalSales:         s.totalSales,
		TotalRevenue:       s.totalRevenue,
		CertificatesListed: s.certificatesListed,
		SuccessfulSales:    s.successfulSales,
		LifetimeEarnings:   s.lifetimeEarnings,
		ActiveFixedPrice:   len(s.fixed),
		ActiveAuctions:     len(s.auctions),
		ActiveDisplays:     len(s.displays),
	}
}
