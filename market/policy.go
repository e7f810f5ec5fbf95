package market

// TransferPolicy 平台转让政策（全局配置）
type TransferPolicy struct {
	PlatformFeeRate      uint64 `json:"platform_fee_rate"`     // 平台手续费率（基点）
	MinListingPrice      uint64 `json:"min_listing_price"`     // 最低挂牌价（分）
	MaxAuctionHours      uint64 `json:"max_auction_hours"`     // 拍卖最长时长（小时）
	HighValueThreshold   uint64 `json:"high_value_threshold"`  // 高价值证书阈值（分）
	VerificationRequired bool   `json:"verification_required"` // 高价值交易是否要求证书已核验
	DisplayFeePerDay     uint64 `json:"display_fee_per_day"`   // 展示位每日费用（分）
	BidIncrementPct      uint64 `json:"bid_increment_pct"`     // 最低加价百分比
	AutoExtendMs         int64  `json:"auto_extend_ms"`        // 临近结束自动延时窗口（毫秒）
}

// AdminCap 管理能力凭证
// 持有凭证即视为拥有管理权限，核心不做进一步身份校验；
// 凭证在进程启动时铸造一次，交由运维持有
type AdminCap struct {
	holder string
}

// MintAdminCap 铸造管理凭证
func MintAdminCap(holder string) *AdminCap {
	return &AdminCap{holder: holder}
}

// Holder 凭证持有人标识（审计用）
func (c *AdminCap) Holder() string {
	return c.holder
}
