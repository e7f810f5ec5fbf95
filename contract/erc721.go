package contract

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"cert_market/utils"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// ERC721ABI 证书代币合约基础ABI（仅包含safeTransferFrom方法）
// 证书在链上以ERC-721代币存在，结算时托管地址把代币释放给买家/中标人
const ERC721ABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "from", "type": "address"},
			{"internalType": "address", "name": "to", "type": "address"},
			{"internalType": "uint256", "name": "tokenId", "type": "uint256"}
		],
		"name": "safeTransferFrom",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// CertReleaser 证书链上释放器（托管容器的链上出口）
type CertReleaser struct {
	client       *ethclient.Client
	abi          abi.ABI
	contractAddr common.Address
	chainID      *big.Int
}

// NewCertReleaser 创建证书释放器
func NewCertReleaser(rpcUrl string, contractAddr string) (*CertReleaser, error) {
	// 连接区块链节点
	client, err := ethclient.Dial(rpcUrl)
	if err != nil {
		utils.Logger.Error("连接区块链节点失败", zap.String("rpcUrl", rpcUrl), zap.Error(err))
		return nil, err
	}

	// 解析ABI
	abiObj, err := abi.JSON(strings.NewReader(ERC721ABI))
	if err != nil {
		utils.Logger.Error("解析ABI失败", zap.Error(err))
		return nil, err
	}

	// 获取链ID
	chainID, err := client.ChainID(context.Background())
	if err != nil {
		utils.Logger.Error("获取链ID失败", zap.Error(err))
		return nil, err
	}

	return &CertReleaser{
		client:       client,
		abi:          abiObj,
		contractAddr: common.HexToAddress(contractAddr),
		chainID:      chainID,
	}, nil
}

// Release 托管释放：证书代币从托管地址转给接收人
// params:
// - privateKey: 托管地址私钥（生产环境需走钱包签名服务，勿直接存储）
// - from: 托管地址
// - to: 接收人地址（买家/中标人，流拍时为卖家）
// - tokenId: 证书代币ID
// return: 交易哈希、错误
func (r *CertReleaser) Release(privateKey string, from, to, tokenId string) (string, error) {
	ctx := context.Background()

	// 解析私钥
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		utils.Logger.Error("解析私钥失败", zap.Error(err))
		return "", err
	}

	// 构建交易授权
	auth, err := bind.NewKeyedTransactorWithChainID(key, r.chainID)
	if err != nil {
		utils.Logger.Error("构建交易授权失败", zap.Error(err))
		return "", err
	}

	// 转换TokenID为big.Int
	tokenID := new(big.Int)
	if _, ok := tokenID.SetString(tokenId, 10); !ok {
		utils.Logger.Error("转换TokenID失败", zap.String("tokenId", tokenId))
		return "", errors.New("invalid token id")
	}

	// 调用合约方法
	boundContract := bind.NewBoundContract(r.contractAddr, r.abi, r.client, r.client, r.client)
	tx, err := boundContract.Transact(auth, "safeTransferFrom", common.HexToAddress(from), common.HexToAddress(to), tokenID)
	if err != nil {
		utils.Logger.Error("执行safeTransferFrom失败", zap.Error(err))
		return "", err
	}

	// 等待交易上链
	receipt, err := bind.WaitMined(ctx, r.client, tx)
	if err != nil {
		utils.Logger.Error("等待交易上链失败", zap.String("txHash", tx.Hash().Hex()), zap.Error(err))
		return "", err
	}

	if receipt.Status == 0 {
		utils.Logger.Error("交易执行失败（状态为0）", zap.String("txHash", tx.Hash().Hex()))
		return "", errors.New("release transaction reverted")
	}

	return tx.Hash().Hex(), nil
}
