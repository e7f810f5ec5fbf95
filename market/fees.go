package market

// BpsDenominator 基点分母：10000基点 = 100%
const BpsDenominator = 10000

// SplitFees 三方分账纯函数
// 按基点计算版税与平台手续费，整数截断除法，舍入损耗归卖家
// 调用方需保证 royaltyBps+platformBps <= 10000，此时卖家实收不可能为负
func SplitFees(price, royaltyBps, platformBps uint64) (royalty, platform, seller uint64) {
	royalty = price * royaltyBps / BpsDenominator
	platform = price * platformBps / BpsDenominator
	seller = price - royalty - platform
	return royalty, platform, seller
}

// 价格分桶阈值（分）：<1元、<10元、<100元、≥100元
const (
	bucketThresholdLow  = 100
	bucketThresholdMid  = 1000
	bucketThresholdHigh = 10000
)

// PriceBucket 价格分桶纯函数
// 仅用于发现索引，不参与任何结算
func PriceBucket(price uint64) int {
	switch {
	case price < bucketThresholdLow:
		return 0
	case price < bucketThresholdMid:
		return 1
	case price < bucketThresholdHigh:
		return 2
	default:
		return 3
	}
}
