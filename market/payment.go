package market

import "math/big"

// Payment 任意精度无符号支付凭证
// 模拟可拆分/合并的资金对象：拆分产生新凭证，合并吞并对方余额，
// 只有余额为零的凭证才允许销毁
type Payment struct {
	amount *big.Int
}

// NewPayment 以指定金额（分）创建支付凭证
func NewPayment(amount uint64) *Payment {
	return &Payment{amount: new(big.Int).SetUint64(amount)}
}

// Value 返回凭证余额（分）
// 余额超出uint64范围时按big.Int语义截断，市场内价格均在uint64内
func (p *Payment) Value() uint64 {
	return p.amount.Uint64()
}

// BigValue 返回余额的big.Int副本
func (p *Payment) BigValue() *big.Int {
	return new(big.Int).Set(p.amount)
}

// Split 从凭证中拆出指定金额，返回新凭证
// 余额不足时返回ErrInsufficientFunds，原凭证不变
func (p *Payment) Split(amount uint64) (*Payment, error) {
	take := new(big.Int).SetUint64(amount)
	if p.amount.Cmp(take) < 0 {
		return nil, ErrInsufficientFunds
	}
	p.amount.Sub(p.amount, take)
	return &Payment{amount: take}, nil
}

// Merge 合并另一张凭证的余额，对方余额清零
func (p *Payment) Merge(other *Payment) {
	if other == nil {
		return
	}
	p.amount.Add(p.amount, other.amount)
	other.amount.SetUint64(0)
}

// IsZero 余额是否为零
func (p *Payment) IsZero() bool {
	return p.amount.Sign() == 0
}

// DestroyZero 销毁零余额凭证
// 余额非零时返回ErrNonZeroPayment，资金不允许凭空消失
func (p *Payment) DestroyZero() error {
	if !p.IsZero() {
		return ErrNonZeroPayment
	}
	p.amount = nil
	return nil
}
