package market

// Certificate 已发行证书在市场侧的最小视图
// 发行、真伪校验均在发行方协作者处完成，市场只读取结果
type Certificate struct {
	ID       string `json:"id"`       // 证书唯一ID
	TypeTag  string `json:"type_tag"` // 证书类型标签
	Issuer   string `json:"issuer"`   // 原始发行方地址（版税受益人）
	Owner    string `json:"owner"`    // 当前持有者地址
	Verified bool   `json:"verified"` // 是否已核验
}

// Vault 资产托管容器协作者
// 证书挂牌期间由托管容器持有，核心从不直接持有资产；
// 容器负责防止同一证书被二次取出
type Vault interface {
	// Place 证书入库托管
	Place(cert Certificate) error
	// Withdraw 取出证书（托管结束）
	Withdraw(certID string) (Certificate, error)
	// Inspect 查看在库证书，不改变托管状态
	Inspect(certID string) (Certificate, error)
	// MarkListed 标记证书已公开在售及其标价
	MarkListed(certID string, price uint64) error
}

// IssuerRegistry 发行方协作者：任何挂牌创建前必须咨询
type IssuerRegistry interface {
	// IsTradeable 证书当前是否可交易
	IsTradeable(cert Certificate) bool
	// TypeOf 证书类型标签（发现索引用）
	TypeOf(cert Certificate) string
}

// Treasury 资金账本协作者：结算时三方分账的去向
type Treasury interface {
	// CreditSeller 卖家实收入账
	CreditSeller(seller string, payment *Payment)
	// CreditRoyalty 发行方版税入账
	CreditRoyalty(issuer string, payment *Payment)
	// CreditPlatform 平台手续费入账
	CreditPlatform(payment *Payment)
}

// EventSink 事件出口：fire-and-forget，至少一次投递
// 投递失败不影响核心正确性，实现方自行记录日志
type EventSink interface {
	ListingCreated(kind string, certID, seller string, price uint64)
	SaleCompleted(certID, seller, buyer string, price uint64)
	BidPlaced(certID, bidder string, amount uint64)
	AuctionEnded(certID, winner string, finalPrice uint64)
}

// -------------------------- 进程内实现 --------------------------

// MemoryVault 进程内托管容器
// 服务层以它作为托管事实源，链上释放由contract适配器异步跟进
type MemoryVault struct {
	held   map[string]Certificate
	listed map[string]uint64
}

// NewMemoryVault 创建进程内托管容器
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		held:   make(map[string]Certificate),
		listed: make(map[string]uint64),
	}
}

// Place 证书入库，已在库的证书拒绝二次托管
func (v *MemoryVault) Place(cert Certificate) error {
	if _, ok := v.held[cert.ID]; ok {
		return ErrCertAlreadyListed
	}
	v.held[cert.ID] = cert
	return nil
}

// Withdraw 取出证书并清除在售标记
func (v *MemoryVault) Withdraw(certID string) (Certificate, error) {
	cert, ok := v.held[certID]
	if !ok {
		return Certificate{}, ErrListingNotFound
	}
	delete(v.held, certID)
	delete(v.listed, certID)
	return cert, nil
}

// Inspect 查看在库证书
func (v *MemoryVault) Inspect(certID string) (Certificate, error) {
	cert, ok := v.held[certID]
	if !ok {
		return Certificate{}, ErrListingNotFound
	}
	return cert, nil
}

// MarkListed 标记在售标价
func (v *MemoryVault) MarkListed(certID string, price uint64) error {
	if _, ok := v.held[certID]; !ok {
		return ErrListingNotFound
	}
	v.listed[certID] = price
	return nil
}

// MemoryTreasury 进程内资金账本，按账户累计入账金额
// 入账的凭证余额并入归集池，原凭证清零
type MemoryTreasury struct {
	sellerBalances  map[string]uint64
	royaltyBalances map[string]uint64
	platformBalance uint64
	pool            *Payment
}

// NewMemoryTreasury 创建进程内资金账本
func NewMemoryTreasury() *MemoryTreasury {
	return &MemoryTreasury{
		sellerBalances:  make(map[string]uint64),
		royaltyBalances: make(map[string]uint64),
		pool:            NewPayment(0),
	}
}

// CreditSeller 卖家入账
func (t *MemoryTreasury) CreditSeller(seller string, payment *Payment) {
	t.sellerBalances[seller] += payment.Value()
	t.pool.Merge(payment)
}

// CreditRoyalty 版税入账
func (t *MemoryTreasury) CreditRoyalty(issuer string, payment *Payment) {
	t.royaltyBalances[issuer] += payment.Value()
	t.pool.Merge(payment)
}

// CreditPlatform 平台手续费入账
func (t *MemoryTreasury) CreditPlatform(payment *Payment) {
	t.platformBalance += payment.Value()
	t.pool.Merge(payment)
}

// SellerBalance 查询卖家累计实收
func (t *MemoryTreasury) SellerBalance(seller string) uint64 {
	return t.sellerBalances[seller]
}

// RoyaltyBalance 查询发行方累计版税
func (t *MemoryTreasury) RoyaltyBalance(issuer string) uint64 {
	return t.royaltyBalances[issuer]
}

// PlatformBalance 查询平台累计手续费
func (t *MemoryTreasury) PlatformBalance() uint64 {
	return t.platformBalance
}

// WithdrawPlatform 提取平台累计手续费（需管理凭证）
// 提取额不得超过平台余额，卖家与版税账户的资金不可经此口径流出
func (t *MemoryTreasury) WithdrawPlatform(cap *AdminCap, amount uint64) (*Payment, error) {
	if cap == nil {
		return nil, ErrUnauthorized
	}
	if amount == 0 || amount > t.platformBalance {
		return nil, ErrInsufficientFunds
	}
	t.platformBalance -= amount
	return t.pool.Split(amount)
}

// NopEventSink 空事件出口（测试与单机模式）
type NopEventSink struct{}

func (NopEventSink) ListingCreated(kind string, certID, seller string, price uint64) {}
func (NopEventSink) SaleCompleted(certID, seller, buyer string, price uint64)        {}
func (NopEventSink) BidPlaced(certID, bidder string, amount uint64)                  {}
func (NopEventSink) AuctionEnded(certID, winner string, finalPrice uint64)           {}
