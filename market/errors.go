package market

import "errors"

// 市场核心错误集合
// 每个错误都表示整个操作原子性中止，不保留任何部分状态；
// 是否重试由调用方决定，核心不做内部重试与恢复
var (
	ErrUnauthorized        = errors.New("无权操作该挂牌商店")
	ErrInvalidPrice        = errors.New("价格无效或低于平台最低挂牌价")
	ErrNotTradeable        = errors.New("证书不可交易")
	ErrListingNotFound     = errors.New("挂牌不存在")
	ErrAuctionNotActive    = errors.New("拍卖未处于进行中状态")
	ErrAuctionStillOpen    = errors.New("拍卖尚未到达结束时间")
	ErrAuctionEnded        = errors.New("拍卖已结束，无法出价")
	ErrBidTooLow           = errors.New("出价低于最低加价要求")
	ErrInsufficientPayment = errors.New("支付金额不足")
	ErrMarketplacePaused   = errors.New("市场已暂停交易")
	ErrExpiredListing      = errors.New("挂牌已过期")

	// 以下为核心补充错误（非结算路径）
	ErrInvalidDuration   = errors.New("时长超出允许范围")
	ErrCertAlreadyListed = errors.New("证书已有在架挂牌")
	ErrNothingToReclaim  = errors.New("无可取回的出价保证金")
	ErrInsufficientFunds = errors.New("支付凭证余额不足以拆分")
	ErrNonZeroPayment    = errors.New("支付凭证余额非零，禁止销毁")
)
