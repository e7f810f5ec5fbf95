package handler

import (
	"errors"
	"net/http"
	"strconv"

	"cert_market/dao"
	"cert_market/market"
	"cert_market/service"
	"cert_market/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MarketHandler 市场处理器
type MarketHandler struct {
	marketService service.MarketService
}

// NewMarketHandler 创建市场处理器
func NewMarketHandler(marketService service.MarketService) *MarketHandler {
	return &MarketHandler{
		marketService: marketService,
	}
}

// errStatus 错误分类到HTTP状态码
func errStatus(err error) int {
	switch {
	case errors.Is(err, market.ErrListingNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, market.ErrMarketplacePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrInvalidDuration),
		errors.Is(err, market.ErrNotTradeable),
		errors.Is(err, market.ErrCertAlreadyListed),
		errors.Is(err, market.ErrExpiredListing),
		errors.Is(err, market.ErrInsufficientPayment),
		errors.Is(err, market.ErrBidTooLow),
		errors.Is(err, market.ErrAuctionNotActive),
		errors.Is(err, market.ErrAuctionStillOpen),
		errors.Is(err, market.ErrAuctionEnded),
		errors.Is(err, market.ErrNothingToReclaim),
		errors.Is(err, market.ErrInsufficientFunds):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail 统一错误响应
func fail(c *gin.Context, err error) {
	status := errStatus(err)
	c.JSON(status, gin.H{
		"code": status,
		"msg":  err.Error(),
	})
}

// ok 统一成功响应
func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code": 200,
		"msg":  "success",
		"data": data,
	})
}

// bindJSON 参数绑定，失败时写400响应
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.Logger.Error("参数绑定失败", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"code": 400,
			"msg":  err.Error(),
		})
		return false
	}
	return true
}

// CreateFixedPriceListing 一口价挂牌
func (h *MarketHandler) CreateFixedPriceListing(c *gin.Context) {
	var req service.ListFixedPriceReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.marketService.ListFixedPrice(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"cert_id": req.CertID})
}

// CreateAuctionListing 拍卖挂牌
func (h *MarketHandler) CreateAuctionListing(c *gin.Context) {
	var req service.ListAuctionReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.marketService.ListAuction(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"cert_id": req.CertID})
}

// CreateDisplayListing 展示挂牌
func (h *MarketHandler) CreateDisplayListing(c *gin.Context) {
	var req service.ListDisplayReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.marketService.ListDisplay(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"cert_id": req.CertID})
}

// CancelListing 主动下架
func (h *MarketHandler) CancelListing(c *gin.Context) {
	var req service.CancelListingReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.marketService.CancelListing(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"cert_id": req.CertID})
}

// Purchase 一口价购买
func (h *MarketHandler) Purchase(c *gin.Context) {
	var req service.PurchaseReq
	if !bindJSON(c, &req) {
		return
	}
	resp, err := h.marketService.Purchase(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, resp)
}

// PlaceBid 拍卖出价
func (h *MarketHandler) PlaceBid(c *gin.Context) {
	var req service.PlaceBidReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.marketService.PlaceBid(c.Request.Context(), req); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"cert_id": req.CertID, "amount": req.Amount})
}

// finalizeReq 结算/取回请求体
type finalizeReq struct {
	Seller string `json:"seller"`
	CertID string `json:"cert_id"`
	Bidder string `json:"bidder"`
}

// FinalizeAuction 拍卖结算
func (h *MarketHandler) FinalizeAuction(c *gin.Context) {
	var req finalizeReq
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.marketService.FinalizeAuction(c.Request.Context(), req.Seller, req.CertID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, result)
}

// ReclaimBid 取回被超越出价的保证金
func (h *MarketHandler) ReclaimBid(c *gin.Context) {
	var req finalizeReq
	if !bindJSON(c, &req) {
		return
	}
	amount, err := h.marketService.ReclaimBid(c.Request.Context(), req.Seller, req.Bidder)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"bidder": req.Bidder, "amount": amount})
}

// RecordView 浏览计数
func (h *MarketHandler) RecordView(c *gin.Context) {
	var req finalizeReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.marketService.RecordView(c.Request.Context(), req.Seller, req.CertID); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// RecordInquiry 询价计数
func (h *MarketHandler) RecordInquiry(c *gin.Context) {
	var req finalizeReq
	if !bindJSON(c, &req) {
		return
	}
	if err := h.marketService.RecordInquiry(c.Request.Context(), req.Seller, req.CertID); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// StoreStats 商店经营计数
func (h *MarketHandler) StoreStats(c *gin.Context) {
	stats, err := h.marketService.StoreStats(c.Param("seller"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, stats)
}

// MarketStats 市场聚合计数
func (h *MarketHandler) MarketStats(c *gin.Context) {
	ok(c, h.marketService.MarketStats())
}

// TrendingTypes 热门证书类型
func (h *MarketHandler) TrendingTypes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = 10
	}
	ok(c, gin.H{
		"trending":  h.marketService.TrendingTypes(limit),
		"sentiment": h.marketService.SentimentScore(),
	})
}

// BrowseByBucket 按价格桶浏览（Redis发现索引镜像）
func (h *MarketHandler) BrowseByBucket(c *gin.Context) {
	bucket, err := strconv.Atoi(c.Param("bucket"))
	if err != nil || bucket < 0 || bucket > 3 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "价格桶必须在0~3之间"})
		return
	}
	maxPrice, _ := strconv.ParseUint(c.Query("max_price"), 10, 64)
	ids, err := dao.GetBucketListings(bucket, maxPrice)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"bucket": bucket, "listings": ids})
}

// BrowseByType 按证书类型浏览（Redis发现索引镜像）
func (h *MarketHandler) BrowseByType(c *gin.Context) {
	certType := c.Param("type")
	ids, err := dao.GetTypeListings(certType)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"type": certType, "listings": ids})
}

// GetSaleRecords 查询成交记录
func (h *MarketHandler) GetSaleRecords(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page <= 0 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	if pageSize <= 0 {
		pageSize = 10
	}

	req := service.GetSaleRecordsReq{
		UserAddr: c.Query("user_addr"),
		CertID:   c.Query("cert_id"),
		Page:     page,
		PageSize: pageSize,
	}
	records, total, err := h.marketService.GetSaleRecords(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{
		"list":      records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// -------------- 管理接口 --------------

// adminKey 从请求头提取管理密钥
func adminKey(c *gin.Context) string {
	return c.GetHeader("X-Admin-Key")
}

// Pause 暂停市场
func (h *MarketHandler) Pause(c *gin.Context) {
	if err := h.marketService.Pause(c.Request.Context(), adminKey(c)); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"paused": true})
}

// Resume 恢复市场
func (h *MarketHandler) Resume(c *gin.Context) {
	if err := h.marketService.Resume(c.Request.Context(), adminKey(c)); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"paused": false})
}

// WithdrawFees 提取平台累计手续费
func (h *MarketHandler) WithdrawFees(c *gin.Context) {
	var req struct {
		Amount uint64 `json:"amount"`
	}
	if !bindJSON(c, &req) {
		return
	}
	withdrawn, err := h.marketService.WithdrawPlatformFees(c.Request.Context(), adminKey(c), req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"withdrawn": withdrawn})
}

// UpdatePolicy 更新转让政策
func (h *MarketHandler) UpdatePolicy(c *gin.Context) {
	var policy market.TransferPolicy
	if !bindJSON(c, &policy) {
		return
	}
	if err := h.marketService.UpdatePolicy(c.Request.Context(), adminKey(c), policy); err != nil {
		fail(c, err)
		return
	}
	ok(c, policy)
}
