package dao

import (
	"fmt"
	"time"

	"cert_market/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var db *gorm.DB

// InitMySQL 初始化MySQL连接
func InitMySQL(dsn string) error {
	var err error
	db, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return err
	}
	// 自动迁移表结构（开发环境）
	return db.AutoMigrate(
		&model.CertAsset{},
		&model.CustodyLock{},
		&model.SaleRecord{},
		&model.BidLog{},
	)
}

// DB 全局gorm实例（服务层事务用）
func DB() *gorm.DB {
	return db
}

// GetCertAsset 按证书ID查询资产行
func GetCertAsset(certID string) (*model.CertAsset, error) {
	var asset model.CertAsset
	if err := db.Where("cert_id = ?", certID).First(&asset).Error; err != nil {
		return nil, fmt.Errorf("query cert asset failed: %w", err)
	}
	return &asset, nil
}

// GetOwnedTradeableAsset 查询属于卖家且可交易的资产行
func GetOwnedTradeableAsset(certID, ownerAddr string) (*model.CertAsset, error) {
	var asset model.CertAsset
	if err := db.Where("cert_id = ? AND owner_addr = ? AND status = 0", certID, ownerAddr).First(&asset).Error; err != nil {
		return nil, fmt.Errorf("query owned asset failed: %w", err)
	}
	return &asset, nil
}

// HasActiveCustodyLock 证书是否仍在托管中
func HasActiveCustodyLock(certID string) bool {
	var lock model.CustodyLock
	err := db.Where("cert_id = ? AND unlock_time IS NULL", certID).First(&lock).Error
	return err == nil
}

// CreateBidLog 写入一条出价流水
func CreateBidLog(certID, bidderAddr string, amount uint64, bidTime time.Time) error {
	return db.Create(&model.BidLog{
		CertID:     certID,
		BidderAddr: bidderAddr,
		Amount:     amount,
		BidTime:    bidTime,
	}).Error
}

// GetSaleRecords 分页查询成交记录
func GetSaleRecords(userAddr, certID string, page, pageSize int) ([]model.SaleRecord, int64, error) {
	var records []model.SaleRecord
	var total int64

	query := db.Model(&model.SaleRecord{})
	if userAddr != "" {
		query = query.Where("seller_addr = ? OR buyer_addr = ?", userAddr, userAddr)
	}
	if certID != "" {
		query = query.Where("cert_id = ?", certID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("trade_time DESC").Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
