package model

import (
	"time"

	"gorm.io/gorm"
)

// CertAsset 证书资产表（发行方协作数据源）
type CertAsset struct {
	ID           uint64         `gorm:"primaryKey;comment:资产ID"`
	CertID       string         `gorm:"uniqueIndex;comment:证书唯一ID"`
	TypeTag      string         `gorm:"index;comment:证书类型标签"`
	ContractAddr string         `gorm:"comment:链上合约地址"`
	TokenID      string         `gorm:"comment:链上代币ID（十进制）"`
	OwnerAddr    string         `gorm:"comment:当前持有者钱包地址"`
	IssuerAddr   string         `gorm:"comment:原始发行方地址（版税受益人）"`
	Verified     bool           `gorm:"comment:是否已核验（高价值交易前置条件）"`
	ChainID      int            `gorm:"comment:所属链ID"`
	Status       int            `gorm:"comment:0-可交易 1-已销毁 2-冻结"`
	CreatedAt    time.Time      `gorm:"comment:创建时间"`
	UpdatedAt    time.Time      `gorm:"comment:更新时间"`
	DeletedAt    gorm.DeletedAt `gorm:"index;comment:删除时间"`
}

// CustodyLock 证书托管锁定表（防止同一证书重复挂牌）
type CustodyLock struct {
	ID          uint64         `gorm:"primaryKey;comment:锁定ID"`
	CertID      string         `gorm:"uniqueIndex;comment:证书唯一ID"`
	ListingKind string         `gorm:"comment:挂牌类型 fixed_price/auction/display"`
	SellerAddr  string         `gorm:"comment:挂牌人钱包地址"`
	LockTime    time.Time      `gorm:"comment:托管时间"`
	UnlockTime  *time.Time     `gorm:"comment:释放时间（null表示仍在托管）"`
	CreatedAt   time.Time      `gorm:"comment:创建时间"`
	UpdatedAt   time.Time      `gorm:"comment:更新时间"`
	DeletedAt   gorm.DeletedAt `gorm:"index;comment:删除时间"`
}

// SaleRecord 成交记录表（最终账本，含三方分账）
type SaleRecord struct {
	ID             uint64         `gorm:"primaryKey;comment:成交记录ID"`
	SaleNo         string         `gorm:"uniqueIndex;comment:成交编号（UUID）"`
	CertID         string         `gorm:"index;comment:证书唯一ID"`
	ListingKind    string         `gorm:"comment:成交来源 fixed_price/auction"`
	SellerAddr     string         `gorm:"index;comment:卖家钱包地址"`
	BuyerAddr      string         `gorm:"index;comment:买家钱包地址"`
	Price          uint64         `gorm:"comment:成交价格（分）"`
	Royalty        uint64         `gorm:"comment:发行方版税（分）"`
	PlatformFee    uint64         `gorm:"comment:平台手续费（分）"`
	SellerProceeds uint64         `gorm:"comment:卖家实收（分）"`
	TxHash         string         `gorm:"comment:链上交易哈希（证书转移）"`
	ChainID        int            `gorm:"comment:所属链ID"`
	TradeTime      time.Time      `gorm:"comment:成交时间"`
	CreatedAt      time.Time      `gorm:"comment:创建时间"`
	UpdatedAt      time.Time      `gorm:"comment:更新时间"`
	DeletedAt      gorm.DeletedAt `gorm:"index;comment:删除时间"`
}

// BidLog 出价流水表（拍卖审计）
type BidLog struct {
	ID         uint64    `gorm:"primaryKey;comment:流水ID"`
	CertID     string    `gorm:"index;comment:证书唯一ID"`
	BidderAddr string    `gorm:"index;comment:出价人钱包地址"`
	Amount     uint64    `gorm:"comment:出价金额（分）"`
	BidTime    time.Time `gorm:"comment:出价时间"`
	CreatedAt  time.Time `gorm:"comment:创建时间"`
}
