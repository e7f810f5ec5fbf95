package market_test

import (
	"cert_market/market"
)

// 测试基准时间（Unix毫秒）
const baseNow int64 = 1_700_000_000_000

// stubIssuer 发行方协作者桩：除显式冻结外一律可交易
type stubIssuer struct {
	frozen map[string]bool
}

func (i stubIssuer) IsTradeable(cert market.Certificate) bool {
	return !i.frozen[cert.ID]
}

func (i stubIssuer) TypeOf(cert market.Certificate) string {
	return cert.TypeTag
}

// fixture 核心测试装置：注册表 + 单卖家商店 + 进程内协作者
type fixture struct {
	reg       *market.Registry
	analytics *market.Analytics
	vault     *market.MemoryVault
	treasury  *market.MemoryTreasury
	issuer    stubIssuer
	store     *market.ListingStore
}

func defaultPolicy() market.TransferPolicy {
	return market.TransferPolicy{
		PlatformFeeRate:    250,
		MinListingPrice:    100,
		MaxAuctionHours:    168,
		HighValueThreshold: 1_000_000,
		DisplayFeePerDay:   10,
		BidIncrementPct:    5,
		AutoExtendMs:       10 * 60_000,
	}
}

func newFixture(owner string) *fixture {
	return newFixtureWithPolicy(owner, defaultPolicy())
}

func newFixtureWithPolicy(owner string, policy market.TransferPolicy) *fixture {
	f := &fixture{
		reg:       market.NewRegistry(policy),
		analytics: market.NewAnalytics(),
		vault:     market.NewMemoryVault(),
		treasury:  market.NewMemoryTreasury(),
		issuer:    stubIssuer{frozen: make(map[string]bool)},
	}
	f.store = market.NewListingStore(f.reg, owner, 500, f.vault, f.issuer, f.treasury, market.NopEventSink{})
	return f
}

// cert 构造测试证书
func cert(id, typeTag, issuer string) market.Certificate {
	return market.Certificate{
		ID:       id,
		TypeTag:  typeTag,
		Issuer:   issuer,
		Owner:    "seller_1",
		Verified: true,
	}
}
