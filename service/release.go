package service

import (
	"fmt"
	"sync"

	"cert_market/config"
	"cert_market/contract"
	"cert_market/dao"
	"cert_market/model"
	"cert_market/utils"

	"go.uber.org/zap"
)

// 释放器按 链ID+合约地址 缓存，复用节点连接
var (
	releaserMu sync.Mutex
	releasers  = make(map[string]*contract.CertReleaser)
)

// getReleaser 取证书释放器，首次访问时建立节点连接
func getReleaser(chainID int, contractAddr string) (*contract.CertReleaser, error) {
	rpcUrl, ok := config.GlobalConfig.ChainRPCUrl[chainID]
	if !ok {
		return nil, fmt.Errorf("未配置链%d的RPC地址", chainID)
	}

	key := fmt.Sprintf("%d:%s", chainID, contractAddr)
	releaserMu.Lock()
	defer releaserMu.Unlock()
	if r, ok := releasers[key]; ok {
		return r, nil
	}
	r, err := contract.NewCertReleaser(rpcUrl, contractAddr)
	if err != nil {
		return nil, err
	}
	releasers[key] = r
	return r, nil
}

// releaseOnChain 结算后把证书代币从托管地址释放给接收人
// 进程内托管状态是结算事实源，链上释放异步跟进；
// 失败只记日志，由对账任务或人工补发，不回滚已完成的结算
func (s *marketService) releaseOnChain(saleNo, certID, to string) {
	if config.GlobalConfig.CustodyPrivateKey == "" {
		return
	}

	asset, err := dao.GetCertAsset(certID)
	if err != nil {
		utils.Logger.Error("链上释放查询资产失败", zap.String("cert_id", certID), zap.Error(err))
		return
	}

	releaser, err := getReleaser(asset.ChainID, asset.ContractAddr)
	if err != nil {
		utils.Logger.Error("创建证书释放器失败", zap.String("cert_id", certID), zap.Error(err))
		return
	}

	txHash, err := releaser.Release(config.GlobalConfig.CustodyPrivateKey,
		config.GlobalConfig.CustodyAddr, to, asset.TokenID)
	if err != nil {
		utils.Logger.Error("链上释放证书失败",
			zap.String("cert_id", certID),
			zap.String("to", to),
			zap.Error(err))
		return
	}

	// 回填成交账本的链上交易哈希
	if saleNo != "" {
		if err := s.db.Model(&model.SaleRecord{}).Where("sale_no = ?", saleNo).
			Updates(map[string]interface{}{"tx_hash": txHash, "chain_id": asset.ChainID}).Error; err != nil {
			utils.Logger.Error("回填交易哈希失败", zap.String("sale_no", saleNo), zap.Error(err))
		}
	}

	utils.Logger.Info("链上释放完成",
		zap.String("cert_id", certID),
		zap.String("to", to),
		zap.String("tx_hash", txHash))
}
