package market

import "sort"

// Registry 市场全局注册表
// 单例由进程显式创建并注入各操作，不使用包级单例；
// 执行层保证对注册表的变更严格串行，因此内部不加锁
type Registry struct {
	policy TransferPolicy
	paused bool

	totalStores      uint64
	totalListings    uint64
	totalSales       uint64
	totalVolume      uint64
	royaltiesPaid    uint64
	platformRevenue  uint64
	averageSalePrice uint64

	typeIndex   map[string]map[string]struct{} // 证书类型 -> 挂牌ID集合
	bucketIndex map[int]map[string]struct{}    // 价格桶 -> 挂牌ID集合
}

// RegistryStats 注册表聚合计数快照
type RegistryStats struct {
	TotalStores      uint64 `json:"total_stores"`
	TotalListings    uint64 `json:"total_listings"`
	TotalSales       uint64 `json:"total_sales"`
	TotalVolume      uint64 `json:"total_volume"`
	RoyaltiesPaid    uint64 `json:"royalties_paid"`
	PlatformRevenue  uint64 `json:"platform_revenue"`
	AverageSalePrice uint64 `json:"average_sale_price"`
	Paused           bool   `json:"paused"`
}

// NewRegistry 创建市场注册表
func NewRegistry(policy TransferPolicy) *Registry {
	return &Registry{
		policy:      policy,
		typeIndex:   make(map[string]map[string]struct{}),
		bucketIndex: make(map[int]map[string]struct{}),
	}
}

// Policy 当前转让政策
func (r *Registry) Policy() TransferPolicy {
	return r.policy
}

// SetPolicy 更新转让政策（需管理凭证）
// 平台费率不得超过100%；与在架挂牌版税率之和的校验在各结算路径分账前进行
func (r *Registry) SetPolicy(cap *AdminCap, policy TransferPolicy) error {
	if cap == nil {
		return ErrUnauthorized
	}
	if policy.PlatformFeeRate > BpsDenominator {
		return ErrInvalidPrice
	}
	r.policy = policy
	return nil
}

// Pause 暂停市场（需管理凭证），之后所有变更操作返回ErrMarketplacePaused
func (r *Registry) Pause(cap *AdminCap) error {
	if cap == nil {
		return ErrUnauthorized
	}
	r.paused = true
	return nil
}

// Resume 恢复市场（需管理凭证）
func (r *Registry) Resume(cap *AdminCap) error {
	if cap == nil {
		return ErrUnauthorized
	}
	r.paused = false
	return nil
}

// CheckActive 市场是否可交易，暂停时返回ErrMarketplacePaused
func (r *Registry) CheckActive() error {
	if r.paused {
		return ErrMarketplacePaused
	}
	return nil
}

// RegisterStore 商店开张计数
func (r *Registry) RegisterStore() {
	r.totalStores++
}

// RegisterListing 挂牌登记：加入类型索引与价格桶索引，累计挂牌数
// 价格桶由PriceBucket分类，仅用于发现
func (r *Registry) RegisterListing(listingID, certType string, price uint64) {
	if _, ok := r.typeIndex[certType]; !ok {
		r.typeIndex[certType] = make(map[string]struct{})
	}
	r.typeIndex[certType][listingID] = struct{}{}

	bucket := PriceBucket(price)
	if _, ok := r.bucketIndex[bucket]; !ok {
		r.bucketIndex[bucket] = make(map[string]struct{})
	}
	r.bucketIndex[bucket][listingID] = struct{}{}

	r.totalListings++
}

// UnregisterListing 挂牌下架：从两个索引中移除
// 与挂牌删除同一原子操作内调用，保持索引与商店状态一致
func (r *Registry) UnregisterListing(listingID, certType string, price uint64) {
	if ids, ok := r.typeIndex[certType]; ok {
		delete(ids, listingID)
		if len(ids) == 0 {
			delete(r.typeIndex, certType)
		}
	}
	bucket := PriceBucket(price)
	if ids, ok := r.bucketIndex[bucket]; ok {
		delete(ids, listingID)
		if len(ids) == 0 {
			delete(r.bucketIndex, bucket)
		}
	}
	if r.totalListings > 0 {
		r.totalListings--
	}
}

// RecordSale 成交计数：累计成交笔数、成交额，并滚动更新平均成交价
// average = (average*(n-1) + price) / n，n为更新后的总成交笔数
func (r *Registry) RecordSale(price uint64) {
	r.totalSales++
	r.totalVolume += price
	n := r.totalSales
	r.averageSalePrice = (r.averageSalePrice*(n-1) + price) / n
}

// RecordFees 累计版税与平台收入
func (r *Registry) RecordFees(royalty, platform uint64) {
	r.royaltiesPaid += royalty
	r.platformRevenue += platform
}

// ListingsByType 按证书类型检索挂牌ID（升序，结果可复现）
func (r *Registry) ListingsByType(certType string) []string {
	return sortedKeys(r.typeIndex[certType])
}

// ListingsByBucket 按价格桶检索挂牌ID（升序，结果可复现）
func (r *Registry) ListingsByBucket(bucket int) []string {
	return sortedKeys(r.bucketIndex[bucket])
}

// Stats 聚合计数快照
func (r *Registry) Stats() RegistryStats {
	return RegistryStats{
		TotalStores:      r.totalStores,
		TotalListings:    r.totalListings,
		TotalSales:       r.totalSales,
		TotalVolume:      r.totalVolume,
		RoyaltiesPaid:    r.royaltiesPaid,
		PlatformRevenue:  r.platformRevenue,
		AverageSalePrice: r.averageSalePrice,
		Paused:           r.paused,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
