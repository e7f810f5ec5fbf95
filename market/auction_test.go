package market_test

import (
	"testing"

	"cert_market/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hourMs int64 = 3_600_000

func TestListAuction(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")

	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", c, 100, 0, 24, false, baseNow))

	auction, ok := f.store.Auction("cert_1")
	require.True(t, ok)
	assert.Equal(t, uint64(100), auction.StartingPrice)
	assert.Equal(t, baseNow+24*hourMs, auction.AuctionEnd)
	// 未显式指定版税率，回退到商店默认值
	assert.Equal(t, uint64(500), auction.RoyaltyRate)

	// 注册表按起拍价分桶
	assert.Equal(t, []string{"cert_1"}, f.reg.ListingsByBucket(market.PriceBucket(100)))
	assert.Equal(t, uint64(1), f.reg.Stats().TotalListings)
}

func TestListAuctionDurationBounds(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")

	err := f.store.ListAuction(f.reg, "seller_1", c, 100, 0, 0, false, baseNow)
	assert.ErrorIs(t, err, market.ErrInvalidDuration)

	err = f.store.ListAuction(f.reg, "seller_1", c, 100, 0, 169, false, baseNow)
	assert.ErrorIs(t, err, market.ErrInvalidDuration)
}

// 场景：起拍价100，出价100接受、104拒绝（低于100+5%）、105接受，结算按105分账
func TestAuctionBidLadder(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", c, 100, 0, 1, false, baseNow))

	// 无出价时最低出价等于起拍价
	min, err := f.store.MinimumBid(f.reg, "cert_1")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), min)

	require.NoError(t, f.store.PlaceBid(f.reg, "bidder_a", "cert_1", 100, market.NewPayment(100), baseNow+1))

	min, err = f.store.MinimumBid(f.reg, "cert_1")
	require.NoError(t, err)
	assert.Equal(t, uint64(105), min)

	err = f.store.PlaceBid(f.reg, "bidder_b", "cert_1", 104, market.NewPayment(104), baseNow+2)
	assert.ErrorIs(t, err, market.ErrBidTooLow)

	require.NoError(t, f.store.PlaceBid(f.reg, "bidder_b", "cert_1", 105, market.NewPayment(105), baseNow+3))

	// 被超越的bidder_a保证金进入可取回池
	assert.Equal(t, uint64(100), f.store.ReclaimableAmount("bidder_a"))

	// 出价历史按提交顺序追加，当前价严格抬升
	auction, _ := f.store.Auction("cert_1")
	require.Len(t, auction.BidHistory, 2)
	assert.Equal(t, "bidder_a", auction.BidHistory[0].Bidder)
	assert.Equal(t, uint64(100), auction.BidHistory[0].Amount)
	assert.Equal(t, "bidder_b", auction.BidHistory[1].Bidder)
	assert.Equal(t, uint64(105), auction.BidHistory[1].Amount)
	assert.Equal(t, uint64(105), auction.CurrentBid)

	result, err := f.store.FinalizeAuction(f.reg, f.analytics, "cert_1", baseNow+hourMs)
	require.NoError(t, err)

	assert.True(t, result.Sold)
	assert.Equal(t, "bidder_b", result.Winner)
	assert.Equal(t, uint64(105), result.FinalPrice)
	assert.Equal(t, uint64(5), result.Royalty)     // 105*500/10000
	assert.Equal(t, uint64(2), result.PlatformFee) // 105*250/10000
	assert.Equal(t, uint64(98), result.SellerProceeds)
	assert.Equal(t, 2, result.BidCount)
	assert.Equal(t, "bidder_b", result.Cert.Owner)

	assert.Equal(t, uint64(98), f.treasury.SellerBalance("seller_1"))
	assert.Equal(t, uint64(5), f.treasury.RoyaltyBalance("issuer_1"))
	assert.Equal(t, uint64(2), f.treasury.PlatformBalance())

	stats := f.reg.Stats()
	assert.Equal(t, uint64(1), stats.TotalSales)
	assert.Equal(t, uint64(105), stats.TotalVolume)
	assert.Equal(t, uint64(0), stats.TotalListings)

	// 取回被超越的保证金，二次取回报错
	refund, err := f.store.ReclaimBid("bidder_a")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), refund.Value())
	_, err = f.store.ReclaimBid("bidder_a")
	assert.ErrorIs(t, err, market.ErrNothingToReclaim)
}

// 场景：保留价200、最高出价150，结算流拍，证书退还卖家
func TestAuctionReserveNotMet(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", c, 100, 200, 1, false, baseNow))
	require.NoError(t, f.store.PlaceBid(f.reg, "bidder_a", "cert_1", 150, market.NewPayment(150), baseNow+1))

	result, err := f.store.FinalizeAuction(f.reg, f.analytics, "cert_1", baseNow+hourMs)
	require.NoError(t, err)

	assert.False(t, result.Sold)
	assert.Empty(t, result.Winner)
	assert.Equal(t, "seller_1", result.Cert.Owner)
	assert.Equal(t, 1, result.BidCount)

	// 保证金转入出价人可取回池，成交计数不变
	assert.Equal(t, uint64(150), f.store.ReclaimableAmount("bidder_a"))
	assert.Equal(t, uint64(0), f.reg.Stats().TotalSales)
	assert.Equal(t, uint64(0), f.store.Stats().TotalSales)
	assert.Equal(t, uint64(0), f.treasury.SellerBalance("seller_1"))
}

// 无出价流拍
func TestAuctionNoBids(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", c, 100, 0, 1, false, baseNow))

	result, err := f.store.FinalizeAuction(f.reg, f.analytics, "cert_1", baseNow+hourMs)
	require.NoError(t, err)

	assert.False(t, result.Sold)
	assert.Equal(t, 0, result.BidCount)
	assert.Equal(t, "seller_1", result.Cert.Owner)
	assert.Equal(t, uint64(0), f.reg.Stats().TotalListings)
}

// 场景：临近结束出价触发自动延时至出价时刻+10分钟
func TestAuctionAutoExtend(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", c, 100, 0, 1, true, baseNow))

	// 距结束尚远的出价不延时
	require.NoError(t, f.store.PlaceBid(f.reg, "bidder_a", "cert_1", 100, market.NewPayment(100), baseNow+10*60_000))
	auction, _ := f.store.Auction("cert_1")
	assert.Equal(t, baseNow+hourMs, auction.AuctionEnd)

	// 距结束5分钟的出价把结束时间推到出价时刻+10分钟
	bidAt := baseNow + hourMs - 5*60_000
	require.NoError(t, f.store.PlaceBid(f.reg, "bidder_b", "cert_1", 105, market.NewPayment(105), bidAt))
	auction, _ = f.store.Auction("cert_1")
	assert.Equal(t, bidAt+10*60_000, auction.AuctionEnd)

	// 原结束时间已过但延时后仍在进行中
	_, err := f.store.FinalizeAuction(f.reg, f.analytics, "cert_1", baseNow+hourMs+1)
	assert.ErrorIs(t, err, market.ErrAuctionStillOpen)
}

// 未开启自动延时的拍卖不受临近出价影响
func TestAuctionNoAutoExtend(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", c, 100, 0, 1, false, baseNow))

	require.NoError(t, f.store.PlaceBid(f.reg, "bidder_a", "cert_1", 100, market.NewPayment(100), baseNow+hourMs-60_000))
	auction, _ := f.store.Auction("cert_1")
	assert.Equal(t, baseNow+hourMs, auction.AuctionEnd)
}

// 低价位拍卖：比例加价截断为0时最低加价按1分计，同价出价不得顶替最高出价人
func TestBidIncrementFloor(t *testing.T) {
	policy := defaultPolicy()
	policy.MinListingPrice = 1
	f := newFixtureWithPolicy("seller_1", policy)
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", c, 10, 0, 1, false, baseNow))

	require.NoError(t, f.store.PlaceBid(f.reg, "bidder_a", "cert_1", 10, market.NewPayment(10), baseNow+1))

	// 10*5/100截断为0，最低可接受出价仍须严格高于当前价
	min, err := f.store.MinimumBid(f.reg, "cert_1")
	require.NoError(t, err)
	assert.Equal(t, uint64(11), min)

	err = f.store.PlaceBid(f.reg, "bidder_b", "cert_1", 10, market.NewPayment(10), baseNow+2)
	assert.ErrorIs(t, err, market.ErrBidTooLow)

	auction, _ := f.store.Auction("cert_1")
	assert.Equal(t, "bidder_a", auction.HighestBidder)
	assert.Equal(t, uint64(10), auction.CurrentBid)

	require.NoError(t, f.store.PlaceBid(f.reg, "bidder_b", "cert_1", 11, market.NewPayment(11), baseNow+3))
	auction, _ = f.store.Auction("cert_1")
	assert.Equal(t, uint64(11), auction.CurrentBid)
}

// 拍卖期间政策抬高平台费率使费率之和超限：结算整体中止，保证金与托管原样保留
func TestFinalizeAfterFeeRateRaise(t *testing.T) {
	f := newFixture("seller_1")
	store := market.NewListingStore(f.reg, "seller_2", 9700, f.vault, f.issuer, f.treasury, market.NopEventSink{})
	c := market.Certificate{ID: "cert_1", TypeTag: "art", Issuer: "issuer_1", Owner: "seller_2", Verified: true}
	require.NoError(t, store.ListAuction(f.reg, "seller_2", c, 1000, 0, 1, false, baseNow))
	require.NoError(t, store.PlaceBid(f.reg, "bidder_a", "cert_1", 1000, market.NewPayment(1000), baseNow+1))

	adminCap := market.MintAdminCap("ops")
	raised := defaultPolicy()
	raised.PlatformFeeRate = 900
	require.NoError(t, f.reg.SetPolicy(adminCap, raised))

	_, err := store.FinalizeAuction(f.reg, f.analytics, "cert_1", baseNow+hourMs)
	assert.ErrorIs(t, err, market.ErrInvalidPrice)

	// 拍卖条目保留、未发生任何入账，证书仍在托管
	_, ok := store.Auction("cert_1")
	assert.True(t, ok)
	assert.Equal(t, uint64(0), f.treasury.SellerBalance("seller_2"))
	assert.Equal(t, uint64(0), f.treasury.PlatformBalance())
	_, err = f.vault.Inspect("cert_1")
	assert.NoError(t, err)

	// 费率回落后可重新结算
	require.NoError(t, f.reg.SetPolicy(adminCap, defaultPolicy()))
	result, err := store.FinalizeAuction(f.reg, f.analytics, "cert_1", baseNow+hourMs)
	require.NoError(t, err)
	assert.True(t, result.Sold)
	assert.Equal(t, uint64(970), result.Royalty)
	assert.Equal(t, uint64(25), result.PlatformFee)
	assert.Equal(t, uint64(5), result.SellerProceeds)
}

func TestPlaceBidValidation(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", c, 100, 0, 1, false, baseNow))

	// 低于起拍价
	err := f.store.PlaceBid(f.reg, "bidder_a", "cert_1", 99, market.NewPayment(99), baseNow+1)
	assert.ErrorIs(t, err, market.ErrBidTooLow)

	// 付款凭证余额低于出价额
	err = f.store.PlaceBid(f.reg, "bidder_a", "cert_1", 100, market.NewPayment(99), baseNow+1)
	assert.ErrorIs(t, err, market.ErrInsufficientPayment)

	// 不存在的拍卖
	err = f.store.PlaceBid(f.reg, "bidder_a", "missing", 100, market.NewPayment(100), baseNow+1)
	assert.ErrorIs(t, err, market.ErrListingNotFound)

	// 结束时刻及之后的出价拒绝
	err = f.store.PlaceBid(f.reg, "bidder_a", "cert_1", 100, market.NewPayment(100), baseNow+hourMs)
	assert.ErrorIs(t, err, market.ErrAuctionEnded)
}

// 结算时序与幂等边界：提前结算拒绝，重复结算报拍卖已结束且不二次放款
func TestFinalizeIdempotence(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", c, 100, 0, 1, false, baseNow))
	require.NoError(t, f.store.PlaceBid(f.reg, "bidder_a", "cert_1", 100, market.NewPayment(100), baseNow+1))

	_, err := f.store.FinalizeAuction(f.reg, f.analytics, "cert_1", baseNow+hourMs-1)
	assert.ErrorIs(t, err, market.ErrAuctionStillOpen)

	_, err = f.store.FinalizeAuction(f.reg, f.analytics, "cert_1", baseNow+hourMs)
	require.NoError(t, err)

	_, err = f.store.FinalizeAuction(f.reg, f.analytics, "cert_1", baseNow+hourMs)
	assert.ErrorIs(t, err, market.ErrAuctionNotActive)

	// 卖家只入账一次
	assert.Equal(t, uint64(93), f.treasury.SellerBalance("seller_1")) // 100 - 5 - 2
	assert.Equal(t, uint64(1), f.reg.Stats().TotalSales)

	// 结算后的出价同样拒绝
	err = f.store.PlaceBid(f.reg, "bidder_b", "cert_1", 200, market.NewPayment(200), baseNow+hourMs+1)
	assert.ErrorIs(t, err, market.ErrAuctionNotActive)
}

// 保证金超出成交价的部分转入中标人可取回池
func TestFinalizeExcessEscrow(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", c, 100, 0, 1, false, baseNow))
	require.NoError(t, f.store.PlaceBid(f.reg, "bidder_a", "cert_1", 150, market.NewPayment(200), baseNow+1))

	result, err := f.store.FinalizeAuction(f.reg, f.analytics, "cert_1", baseNow+hourMs)
	require.NoError(t, err)

	assert.Equal(t, uint64(150), result.FinalPrice)
	assert.Equal(t, uint64(50), f.store.ReclaimableAmount("bidder_a"))
}

// 同一证书流拍后可再次拍卖，新一轮生命周期完整
func TestAuctionRelist(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", c, 100, 0, 1, false, baseNow))
	_, err := f.store.FinalizeAuction(f.reg, f.analytics, "cert_1", baseNow+hourMs)
	require.NoError(t, err)

	restart := baseNow + 2*hourMs
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", c, 100, 0, 1, false, restart))
	require.NoError(t, f.store.PlaceBid(f.reg, "bidder_a", "cert_1", 100, market.NewPayment(100), restart+1))

	result, err := f.store.FinalizeAuction(f.reg, f.analytics, "cert_1", restart+hourMs)
	require.NoError(t, err)
	assert.True(t, result.Sold)
}

func TestDueAuctions(t *testing.T) {
	f := newFixture("seller_1")
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", cert("cert_1", "art", "issuer_1"), 100, 0, 1, false, baseNow))
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", cert("cert_2", "art", "issuer_1"), 100, 0, 2, false, baseNow))

	assert.Empty(t, f.store.DueAuctions(baseNow+hourMs-1))
	assert.Equal(t, []string{"cert_1"}, f.store.DueAuctions(baseNow+hourMs))

	due := f.store.DueAuctions(baseNow + 2*hourMs)
	assert.Len(t, due, 2)
	assert.Contains(t, due, "cert_1")
	assert.Contains(t, due, "cert_2")
}

// 暂停市场阻断出价与结算
func TestAuctionPaused(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListAuction(f.reg, "seller_1", c, 100, 0, 1, false, baseNow))

	adminCap := market.MintAdminCap("ops")
	require.NoError(t, f.reg.Pause(adminCap))

	err := f.store.PlaceBid(f.reg, "bidder_a", "cert_1", 100, market.NewPayment(100), baseNow+1)
	assert.ErrorIs(t, err, market.ErrMarketplacePaused)

	_, err = f.store.FinalizeAuction(f.reg, f.analytics, "cert_1", baseNow+hourMs)
	assert.ErrorIs(t, err, market.ErrMarketplacePaused)
}
