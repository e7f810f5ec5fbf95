package market_test

import (
	"testing"

	"cert_market/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFixedPrice(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")

	err := f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 500, "限量版艺术证书", []string{"art"}, 0, baseNow)
	require.NoError(t, err)

	listing, ok := f.store.FixedPrice("cert_1")
	require.True(t, ok)
	assert.Equal(t, uint64(1000), listing.Price)
	assert.Equal(t, uint64(500), listing.RoyaltyRate)
	assert.Equal(t, baseNow, listing.ListedAt)
	assert.Equal(t, int64(0), listing.ExpiresAt)

	// 商店与注册表在同一操作内保持一致
	assert.Equal(t, uint64(1), f.store.Stats().CertificatesListed)
	assert.Equal(t, uint64(1), f.reg.Stats().TotalListings)
	assert.Equal(t, []string{"cert_1"}, f.reg.ListingsByType("art"))
	assert.Equal(t, []string{"cert_1"}, f.reg.ListingsByBucket(market.PriceBucket(1000)))

	// 证书已入库托管
	held, err := f.vault.Inspect("cert_1")
	require.NoError(t, err)
	assert.Equal(t, "cert_1", held.ID)
}

// 价格为0时在任何托管转移发生前失败
func TestListFixedPriceInvalidPrice(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")

	err := f.store.ListFixedPrice(f.reg, "seller_1", c, 0, 500, "", nil, 0, baseNow)
	assert.ErrorIs(t, err, market.ErrInvalidPrice)

	// 低于平台最低挂牌价同样拒绝
	err = f.store.ListFixedPrice(f.reg, "seller_1", c, 50, 500, "", nil, 0, baseNow)
	assert.ErrorIs(t, err, market.ErrInvalidPrice)

	// 未发生托管，注册表无变化
	_, err = f.vault.Inspect("cert_1")
	assert.Error(t, err)
	assert.Equal(t, uint64(0), f.reg.Stats().TotalListings)
}

func TestListFixedPriceUnauthorized(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")

	err := f.store.ListFixedPrice(f.reg, "someone_else", c, 1000, 500, "", nil, 0, baseNow)
	assert.ErrorIs(t, err, market.ErrUnauthorized)
}

func TestListFixedPriceNotTradeable(t *testing.T) {
	f := newFixture("seller_1")
	f.issuer.frozen["cert_1"] = true
	c := cert("cert_1", "art", "issuer_1")

	err := f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 500, "", nil, 0, baseNow)
	assert.ErrorIs(t, err, market.ErrNotTradeable)
}

// 版税率与平台费率之和不得超过100%
func TestListFixedPriceRateOverflow(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")

	err := f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 9800, "", nil, 0, baseNow)
	assert.ErrorIs(t, err, market.ErrInvalidPrice)
}

// 同一证书在三类挂牌中至多出现一次
func TestMutualExclusion(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")

	require.NoError(t, f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 500, "", nil, 0, baseNow))

	err := f.store.ListAuction(f.reg, "seller_1", c, 1000, 0, 24, false, baseNow)
	assert.ErrorIs(t, err, market.ErrCertAlreadyListed)

	err = f.store.ListDisplay(f.reg, "seller_1", c, market.NewPayment(300), "", "", 30, baseNow)
	assert.ErrorIs(t, err, market.ErrCertAlreadyListed)
}

// 场景：价格1000、版税500基点、平台费250基点，足额支付
func TestPurchaseExactPayment(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 500, "", nil, 0, baseNow))

	pay := market.NewPayment(1000)
	result, err := f.store.PurchaseFixedPrice(f.reg, f.analytics, "buyer_1", "cert_1", pay, baseNow+1)
	require.NoError(t, err)

	assert.Equal(t, uint64(1000), result.Price)
	assert.Equal(t, uint64(50), result.Royalty)
	assert.Equal(t, uint64(25), result.PlatformFee)
	assert.Equal(t, uint64(925), result.SellerProceeds)
	assert.Equal(t, uint64(0), result.Change.Value())
	assert.Equal(t, "buyer_1", result.Cert.Owner)

	// 三方入账
	assert.Equal(t, uint64(925), f.treasury.SellerBalance("seller_1"))
	assert.Equal(t, uint64(50), f.treasury.RoyaltyBalance("issuer_1"))
	assert.Equal(t, uint64(25), f.treasury.PlatformBalance())

	// 挂牌删除，索引与计数同步
	_, ok := f.store.FixedPrice("cert_1")
	assert.False(t, ok)
	stats := f.reg.Stats()
	assert.Equal(t, uint64(0), stats.TotalListings)
	assert.Equal(t, uint64(1), stats.TotalSales)
	assert.Equal(t, uint64(1000), stats.TotalVolume)
	assert.Equal(t, uint64(1000), stats.AverageSalePrice)
	assert.Equal(t, uint64(50), stats.RoyaltiesPaid)
	assert.Equal(t, uint64(25), stats.PlatformRevenue)

	storeStats := f.store.Stats()
	assert.Equal(t, uint64(1), storeStats.TotalSales)
	assert.Equal(t, uint64(1), storeStats.SuccessfulSales)
	assert.Equal(t, uint64(1000), storeStats.TotalRevenue)
	assert.Equal(t, uint64(925), storeStats.LifetimeEarnings)

	// 成交喂入分析聚合器
	assert.Equal(t, uint64(1000), f.analytics.DailyVolume((baseNow+1)/market.DayMillis))
}

// 超额支付先找零
func TestPurchaseWithChange(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 500, "", nil, 0, baseNow))

	pay := market.NewPayment(1500)
	result, err := f.store.PurchaseFixedPrice(f.reg, f.analytics, "buyer_1", "cert_1", pay, baseNow+1)
	require.NoError(t, err)

	assert.Equal(t, uint64(500), result.Change.Value())
	assert.Equal(t, uint64(925), f.treasury.SellerBalance("seller_1"))
	// 成交按标价计，不按付款额
	assert.Equal(t, uint64(1000), f.reg.Stats().TotalVolume)
}

// 过期挂牌购买失败，状态不变
func TestPurchaseExpiredListing(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	oneHour := int64(3_600_000)
	require.NoError(t, f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 500, "", nil, oneHour, baseNow))

	pay := market.NewPayment(1000)
	_, err := f.store.PurchaseFixedPrice(f.reg, f.analytics, "buyer_1", "cert_1", pay, baseNow+2*oneHour)
	assert.ErrorIs(t, err, market.ErrExpiredListing)

	// 挂牌仍在，付款未被动用，计数未变
	_, ok := f.store.FixedPrice("cert_1")
	assert.True(t, ok)
	assert.Equal(t, uint64(1000), pay.Value())
	assert.Equal(t, uint64(0), f.reg.Stats().TotalSales)
}

func TestPurchaseInsufficientPayment(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 500, "", nil, 0, baseNow))

	pay := market.NewPayment(999)
	_, err := f.store.PurchaseFixedPrice(f.reg, f.analytics, "buyer_1", "cert_1", pay, baseNow+1)
	assert.ErrorIs(t, err, market.ErrInsufficientPayment)
	assert.Equal(t, uint64(999), pay.Value())
}

func TestPurchaseNotFound(t *testing.T) {
	f := newFixture("seller_1")
	_, err := f.store.PurchaseFixedPrice(f.reg, f.analytics, "buyer_1", "missing", market.NewPayment(1000), baseNow)
	assert.ErrorIs(t, err, market.ErrListingNotFound)
}

// 市场暂停后所有变更操作拒绝
func TestMarketplacePaused(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 500, "", nil, 0, baseNow))

	adminCap := market.MintAdminCap("ops")
	require.NoError(t, f.reg.Pause(adminCap))

	c2 := cert("cert_2", "art", "issuer_1")
	err := f.store.ListFixedPrice(f.reg, "seller_1", c2, 1000, 500, "", nil, 0, baseNow)
	assert.ErrorIs(t, err, market.ErrMarketplacePaused)

	_, err = f.store.PurchaseFixedPrice(f.reg, f.analytics, "buyer_1", "cert_1", market.NewPayment(1000), baseNow+1)
	assert.ErrorIs(t, err, market.ErrMarketplacePaused)

	// 恢复后购买成功
	require.NoError(t, f.reg.Resume(adminCap))
	_, err = f.store.PurchaseFixedPrice(f.reg, f.analytics, "buyer_1", "cert_1", market.NewPayment(1000), baseNow+1)
	assert.NoError(t, err)
}

// 高价值政策：要求核验时未核验证书不得成交
func TestHighValueVerification(t *testing.T) {
	policy := defaultPolicy()
	policy.VerificationRequired = true
	policy.HighValueThreshold = 1000
	f := newFixtureWithPolicy("seller_1", policy)

	c := cert("cert_1", "art", "issuer_1")
	c.Verified = false
	require.NoError(t, f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 500, "", nil, 0, baseNow))

	_, err := f.store.PurchaseFixedPrice(f.reg, f.analytics, "buyer_1", "cert_1", market.NewPayment(1000), baseNow+1)
	assert.ErrorIs(t, err, market.ErrNotTradeable)
}

// 挂牌后政策抬高平台费率使费率之和超限：购买整体中止，付款分文未动
func TestPurchaseAfterFeeRateRaise(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 9700, "", nil, 0, baseNow))

	adminCap := market.MintAdminCap("ops")
	raised := defaultPolicy()
	raised.PlatformFeeRate = 900
	require.NoError(t, f.reg.SetPolicy(adminCap, raised))

	pay := market.NewPayment(1000)
	_, err := f.store.PurchaseFixedPrice(f.reg, f.analytics, "buyer_1", "cert_1", pay, baseNow+1)
	assert.ErrorIs(t, err, market.ErrInvalidPrice)

	// 付款与挂牌原样保留，未发生任何入账
	assert.Equal(t, uint64(1000), pay.Value())
	_, ok := f.store.FixedPrice("cert_1")
	assert.True(t, ok)
	assert.Equal(t, uint64(0), f.treasury.SellerBalance("seller_1"))
	assert.Equal(t, uint64(0), f.treasury.PlatformBalance())

	// 费率回落后购买恢复
	require.NoError(t, f.reg.SetPolicy(adminCap, defaultPolicy()))
	_, err = f.store.PurchaseFixedPrice(f.reg, f.analytics, "buyer_1", "cert_1", pay, baseNow+2)
	assert.NoError(t, err)
}

// 未指定版税率时使用商店默认值
func TestRoyaltyDefault(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 0, "", nil, 0, baseNow))

	listing, ok := f.store.FixedPrice("cert_1")
	require.True(t, ok)
	assert.Equal(t, uint64(500), listing.RoyaltyRate)
}

func TestCancelFixedPrice(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 500, "", nil, 0, baseNow))

	_, err := f.store.CancelFixedPrice(f.reg, "someone_else", "cert_1")
	assert.ErrorIs(t, err, market.ErrUnauthorized)

	returned, err := f.store.CancelFixedPrice(f.reg, "seller_1", "cert_1")
	require.NoError(t, err)
	assert.Equal(t, "cert_1", returned.ID)

	assert.Equal(t, uint64(0), f.reg.Stats().TotalListings)
	assert.Empty(t, f.reg.ListingsByType("art"))
}

func TestListDisplay(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")

	// 天数越界
	err := f.store.ListDisplay(f.reg, "seller_1", c, market.NewPayment(10), "", "", 0, baseNow)
	assert.ErrorIs(t, err, market.ErrInvalidDuration)
	err = f.store.ListDisplay(f.reg, "seller_1", c, market.NewPayment(10), "", "", 366, baseNow)
	assert.ErrorIs(t, err, market.ErrInvalidDuration)

	// 展示费不足：30天 * 10/天 = 300
	err = f.store.ListDisplay(f.reg, "seller_1", c, market.NewPayment(299), "", "", 30, baseNow)
	assert.ErrorIs(t, err, market.ErrInsufficientPayment)

	require.NoError(t, f.store.ListDisplay(f.reg, "seller_1", c, market.NewPayment(300), "珍藏展示", "mail@example.com", 30, baseNow))

	listing, ok := f.store.Display("cert_1")
	require.True(t, ok)
	assert.Equal(t, uint64(300), listing.FeePaid)
	assert.Equal(t, baseNow+30*market.DayMillis, listing.DisplayUntil)

	// 展示费计入平台收入，不产生成交
	assert.Equal(t, uint64(300), f.treasury.PlatformBalance())
	stats := f.reg.Stats()
	assert.Equal(t, uint64(300), stats.PlatformRevenue)
	assert.Equal(t, uint64(0), stats.TotalSales)
	assert.Equal(t, uint64(1), stats.TotalListings)

	returned, err := f.store.CancelDisplay(f.reg, "seller_1", "cert_1")
	require.NoError(t, err)
	assert.Equal(t, "cert_1", returned.ID)
}

func TestRecordViewAndInquiry(t *testing.T) {
	f := newFixture("seller_1")
	c := cert("cert_1", "art", "issuer_1")
	require.NoError(t, f.store.ListFixedPrice(f.reg, "seller_1", c, 1000, 500, "", nil, 0, baseNow))

	require.NoError(t, f.store.RecordView("cert_1"))
	require.NoError(t, f.store.RecordView("cert_1"))
	require.NoError(t, f.store.RecordInquiry("cert_1"))

	listing, _ := f.store.FixedPrice("cert_1")
	assert.Equal(t, uint64(2), listing.ViewCount)
	assert.Equal(t, uint64(1), listing.InquiryCount)

	assert.ErrorIs(t, f.store.RecordView("missing"), market.ErrListingNotFound)
	assert.ErrorIs(t, f.store.RecordInquiry("missing"), market.ErrListingNotFound)
}
