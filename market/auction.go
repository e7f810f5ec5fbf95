package market

import "cert_market/model"

// AuctionResult 拍卖结算结果
// Winner为空表示流拍（无出价或保留价未达），证书退还卖家
type AuctionResult struct {
	CertID         string      `json:"cert_id"`
	Winner         string      `json:"winner"`
	FinalPrice     uint64      `json:"final_price"`
	Royalty        uint64      `json:"royalty"`
	PlatformFee    uint64      `json:"platform_fee"`
	SellerProceeds uint64      `json:"seller_proceeds"`
	Sold           bool        `json:"sold"`
	BidCount       int         `json:"bid_count"`
	Cert           Certificate `json:"-"` // 释放对象：中标人或卖家
}

const millisPerHour int64 = 3_600_000

// ListAuction 创建拍卖挂牌
// 时长限制 1 <= durationHours <= 政策上限；证书入库托管但不标记在售
func (s *ListingStore) ListAuction(reg *Registry, caller string, cert Certificate, startingPrice, reservePrice, durationHours uint64, autoExtend bool, now int64) error {
	policy := reg.Policy()
	if durationHours < 1 || durationHours > policy.MaxAuctionHours {
		return ErrInvalidDuration
	}
	royalty := s.royaltyOrDefault(0)
	if err := checkPrice(reg, startingPrice, royalty); err != nil {
		return err
	}
	if err := s.checkListable(reg, caller, cert); err != nil {
		return err
	}

	if err := s.vault.Place(cert); err != nil {
		return err
	}

	// 同一证书再次拍卖时清除上一轮的结算墓碑
	delete(s.ended, cert.ID)
	s.auctions[cert.ID] = &model.AuctionListing{
		CertID:        cert.ID,
		Seller:        s.owner,
		StartingPrice: startingPrice,
		RoyaltyRate:   royalty,
		AuctionEnd:    now + int64(durationHours)*millisPerHour,
		Status:        model.AuctionStatusActive,
		ReservePrice:  reservePrice,
		AutoExtend:    autoExtend,
	}
	s.certificatesListed++

	reg.RegisterListing(cert.ID, s.issuer.TypeOf(cert), startingPrice)
	s.events.ListingCreated(string(model.ListingKindAuction), cert.ID, s.owner, startingPrice)
	return nil
}

// MinimumBid 当前最低可接受出价
// 无出价时为起拍价，否则为当前价加最低加价幅度；
// 比例加价截断后不足1分时按1分计，保证当前价严格抬升
func (s *ListingStore) MinimumBid(reg *Registry, certID string) (uint64, error) {
	auction, ok := s.auctions[certID]
	if !ok {
		return 0, ErrListingNotFound
	}
	if auction.CurrentBid == 0 {
		return auction.StartingPrice, nil
	}
	increment := auction.CurrentBid * reg.Policy().BidIncrementPct / 100
	if increment == 0 {
		increment = 1
	}
	return auction.CurrentBid + increment, nil
}

// PlaceBid 出价
// 接受后当前价严格抬升、出价记录按提交顺序追加、保证金入押；
// 被超越出价人的保证金转入其可取回池，由其另行调用ReclaimBid取回
func (s *ListingStore) PlaceBid(reg *Registry, bidder, certID string, amount uint64, payment *Payment, now int64) error {
	if err := reg.CheckActive(); err != nil {
		return err
	}
	auction, ok := s.auctions[certID]
	if !ok {
		if _, done := s.ended[certID]; done {
			return ErrAuctionNotActive
		}
		return ErrListingNotFound
	}
	if auction.Status != model.AuctionStatusActive {
		return ErrAuctionNotActive
	}
	if now >= auction.AuctionEnd {
		return ErrAuctionEnded
	}
	if payment.Value() < amount {
		return ErrInsufficientPayment
	}
	minBid, err := s.MinimumBid(reg, certID)
	if err != nil {
		return err
	}
	if amount < minBid {
		return ErrBidTooLow
	}

	// 被超越出价人的保证金转入可取回池
	if prev, ok := s.escrow[certID]; ok {
		s.creditReclaimable(auction.HighestBidder, prev)
		delete(s.escrow, certID)
	}

	s.escrow[certID] = payment
	auction.CurrentBid = amount
	auction.HighestBidder = bidder
	auction.BidHistory = append(auction.BidHistory, model.BidRecord{
		Bidder:    bidder,
		Amount:    amount,
		Timestamp: now,
	})

	// 临近结束自动延时，抑制最后一秒狙击
	policy := reg.Policy()
	if auction.AutoExtend && auction.AuctionEnd-now < policy.AutoExtendMs {
		auction.AuctionEnd = now + policy.AutoExtendMs
	}

	s.events.BidPlaced(certID, bidder, amount)
	return nil
}

// FinalizeAuction 拍卖结算（唯一且不可重复的关闭路径）
// 结果优先级：无出价流拍 > 保留价未达流拍 > 正常成交；
// 三种结果都把状态置为Ended后删除拍卖条目，重复调用返回ErrAuctionNotActive
func (s *ListingStore) FinalizeAuction(reg *Registry, analytics *Analytics, certID string, now int64) (*AuctionResult, error) {
	if err := reg.CheckActive(); err != nil {
		return nil, err
	}
	auction, ok := s.auctions[certID]
	if !ok {
		if _, done := s.ended[certID]; done {
			return nil, ErrAuctionNotActive
		}
		return nil, ErrListingNotFound
	}
	if auction.Status != model.AuctionStatusActive {
		return nil, ErrAuctionNotActive
	}
	if now < auction.AuctionEnd {
		return nil, ErrAuctionStillOpen
	}

	result := &AuctionResult{
		CertID:   certID,
		BidCount: len(auction.BidHistory),
	}

	noBids := auction.CurrentBid == 0
	reserveMissed := !noBids && auction.ReservePrice > 0 && auction.CurrentBid < auction.ReservePrice

	if noBids || reserveMissed {
		// 流拍：保证金（如有）转入最高出价人的可取回池，证书退还卖家
		if pay, ok := s.escrow[certID]; ok {
			s.creditReclaimable(auction.HighestBidder, pay)
			delete(s.escrow, certID)
		}
		cert, err := s.vault.Withdraw(certID)
		if err != nil {
			return nil, err
		}
		result.Cert = cert

		auction.Status = model.AuctionStatusEnded
		delete(s.auctions, certID)
		s.ended[certID] = struct{}{}
		reg.UnregisterListing(certID, s.issuer.TypeOf(cert), auction.StartingPrice)

		s.events.AuctionEnded(certID, "", 0)
		return result, nil
	}

	// 正常成交：费率校验与证书取出先行，之后才动保证金，
	// 任何失败路径都不产生部分放款
	policy := reg.Policy()
	if auction.RoyaltyRate+policy.PlatformFeeRate > BpsDenominator {
		return nil, ErrInvalidPrice
	}
	cert, err := s.vault.Withdraw(certID)
	if err != nil {
		return nil, err
	}

	finalPrice := auction.CurrentBid
	winner := auction.HighestBidder
	pay := s.escrow[certID]
	delete(s.escrow, certID)

	// 保证金超出成交价的部分转入中标人可取回池
	if excess := pay.Value() - finalPrice; excess > 0 {
		over, err := pay.Split(excess)
		if err != nil {
			return nil, err
		}
		s.creditReclaimable(winner, over)
	}

	royalty, platformFee, sellerProceeds := SplitFees(finalPrice, auction.RoyaltyRate, policy.PlatformFeeRate)
	royaltyPay, err := pay.Split(royalty)
	if err != nil {
		return nil, err
	}
	platformPay, err := pay.Split(platformFee)
	if err != nil {
		return nil, err
	}
	cert.Owner = winner

	s.treasury.CreditRoyalty(cert.Issuer, royaltyPay)
	s.treasury.CreditPlatform(platformPay)
	s.treasury.CreditSeller(s.owner, pay)

	auction.Status = model.AuctionStatusEnded
	delete(s.auctions, certID)
	s.ended[certID] = struct{}{}

	s.totalSales++
	s.totalRevenue += finalPrice
	s.successfulSales++
	s.lifetimeEarnings += sellerProceeds

	certType := s.issuer.TypeOf(cert)
	reg.UnregisterListing(certID, certType, auction.StartingPrice)
	reg.RecordSale(finalPrice)
	reg.RecordFees(royalty, platformFee)
	analytics.RecordSale(certType, finalPrice, now)

	s.events.AuctionEnded(certID, winner, finalPrice)
	s.events.SaleCompleted(certID, s.owner, winner, finalPrice)

	result.Winner = winner
	result.FinalPrice = finalPrice
	result.Royalty = royalty
	result.PlatformFee = platformFee
	result.SellerProceeds = sellerProceeds
	result.Sold = true
	result.Cert = cert
	return result, nil
}

// ReclaimBid 取回被超越出价的保证金
// 流拍后的最高出价保证金同样从这里取回
func (s *ListingStore) ReclaimBid(bidder string) (*Payment, error) {
	pool, ok := s.reclaimable[bidder]
	if !ok || pool.IsZero() {
		return nil, ErrNothingToReclaim
	}
	delete(s.reclaimable, bidder)
	return pool, nil
}

// ReclaimableAmount 查询可取回保证金余额
func (s *ListingStore) ReclaimableAmount(bidder string) uint64 {
	if pool, ok := s.reclaimable[bidder]; ok {
		return pool.Value()
	}
	return 0
}

// DueAuctions 已到结束时间但尚未结算的拍卖（过期巡检用）
func (s *ListingStore) DueAuctions(now int64) []string {
	var due []string
	for certID, auction := range s.auctions {
		if auction.Status == model.AuctionStatusActive && now >= auction.AuctionEnd {
			due = append(due, certID)
		}
	}
	return due
}

// creditReclaimable 保证金并入出价人的可取回池
func (s *ListingStore) creditReclaimable(bidder string, pay *Payment) {
	pool, ok := s.reclaimable[bidder]
	if !ok {
		pool = NewPayment(0)
		s.reclaimable[bidder] = pool
	}
	pool.Merge(pay)
}
