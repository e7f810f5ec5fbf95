package model

// AuctionStatus 拍卖状态
type AuctionStatus string

const (
	AuctionStatusActive    AuctionStatus = "active"    // 进行中
	AuctionStatusEnded     AuctionStatus = "ended"     // 已结束（唯一正常终态）
	AuctionStatusCancelled AuctionStatus = "cancelled" // 已取消（状态机保留，默认结算路径不产生）
)

// ListingKind 挂牌类型
type ListingKind string

const (
	ListingKindFixedPrice ListingKind = "fixed_price" // 一口价
	ListingKindAuction    ListingKind = "auction"     // 英式拍卖
	ListingKindDisplay    ListingKind = "display"     // 纯展示
)

// FixedPriceListing 一口价挂牌
// 三种挂牌互为独立结构体，证书ID/卖家字段按变体各自持有，便于就地校验各自的不变式
type FixedPriceListing struct {
	CertID       string   `json:"cert_id"`       // 证书ID
	Seller       string   `json:"seller"`        // 卖家地址
	Price        uint64   `json:"price"`         // 售价（分，避免浮点精度问题）
	RoyaltyRate  uint64   `json:"royalty_rate"`  // 版税率（基点）
	Description  string   `json:"description"`   // 描述
	Tags         []string `json:"tags"`          // 检索标签
	ListedAt     int64    `json:"listed_at"`     // 挂牌时间（Unix毫秒）
	ExpiresAt    int64    `json:"expires_at"`    // 过期时间（Unix毫秒，0表示不过期）
	ViewCount    uint64   `json:"view_count"`    // 浏览次数
	InquiryCount uint64   `json:"inquiry_count"` // 询价次数
}

// BidRecord 出价记录（追加后不可变）
type BidRecord struct {
	Bidder    string `json:"bidder"`    // 出价人地址
	Amount    uint64 `json:"amount"`    // 出价金额（分）
	Timestamp int64  `json:"timestamp"` // 出价时间（Unix毫秒）
}

// AuctionListing 拍卖挂牌
// 不变式：CurrentBid随每次接受的出价严格递增；BidHistory按提交顺序追加；
// Status只发生一次Active→Ended/Cancelled迁移，不可逆转
type AuctionListing struct {
	CertID        string        `json:"cert_id"`        // 证书ID
	Seller        string        `json:"seller"`         // 卖家地址
	StartingPrice uint64        `json:"starting_price"` // 起拍价（分）
	CurrentBid    uint64        `json:"current_bid"`    // 当前最高出价（无出价时为0）
	HighestBidder string        `json:"highest_bidder"` // 当前最高出价人（无出价时为空）
	RoyaltyRate   uint64        `json:"royalty_rate"`   // 版税率（基点）
	AuctionEnd    int64         `json:"auction_end"`    // 结束时间（Unix毫秒）
	Status        AuctionStatus `json:"status"`         // 拍卖状态
	BidHistory    []BidRecord   `json:"bid_history"`    // 出价历史（按提交顺序）
	ReservePrice  uint64        `json:"reserve_price"`  // 保留价（0表示无保留价）
	AutoExtend    bool          `json:"auto_extend"`    // 临近结束是否自动延时
}

// DisplayListing 展示挂牌（纯发现用途，不携带结算语义）
type DisplayListing struct {
	CertID       string `json:"cert_id"`       // 证书ID
	Owner        string `json:"owner"`         // 持有人地址
	FeePaid      uint64 `json:"fee_paid"`      // 已付展示费（分）
	DisplayUntil int64  `json:"display_until"` // 展示截止时间（Unix毫秒）
	Description  string `json:"description"`   // 描述
	Contact      string `json:"contact"`       // 联系方式（可选）
	ViewCount    uint64 `json:"view_count"`    // 浏览次数
}
