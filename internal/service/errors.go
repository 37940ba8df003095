package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrValidation 入参不合法，不会触达存储层
// 具体原因用 fmt.Errorf("%w: ...") 包装
var ErrValidation = errors.New("参数校验失败")

// ConservationViolationError 分配总额超出打款总额
// Overrun 是精确的超出金额，给调用方展示用
type ConservationViolationError struct {
	PayoutRequestID int64
	Total           decimal.Decimal
	Proposed        decimal.Decimal
	Overrun         decimal.Decimal
}

func (e *ConservationViolationError) Error() string {
	return fmt.Sprintf("分配总额 %s 超出打款总额 %s，超出 %s",
		e.Proposed.StringFixed(2), e.Total.StringFixed(2), e.Overrun.StringFixed(2))
}

func validateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: allocated_amount 必须大于 0", ErrValidation)
	}
	return nil
}

var percentageMax = decimal.NewFromInt(100)

func validatePercentage(p *decimal.Decimal) error {
	if p == nil {
		return nil
	}
	if p.IsNegative() || p.GreaterThan(percentageMax) {
		return fmt.Errorf("%w: percentage 必须在 0-100 之间", ErrValidation)
	}
	return nil
}
