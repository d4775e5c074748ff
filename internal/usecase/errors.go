package usecase

import (
	"errors"
	"fmt"
)

type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 課金成立後に注文の確定トランザクションが失敗した。
// 返金か手動照合が必要なので、通常の「もう一度お試しください」とは別扱いにする。
// TransactionIDはゲートウェイ側の取引ID（サポートの照合用）
type PostPaymentFailure struct {
	TransactionID string
}

func (e *PostPaymentFailure) Error() string {
	return fmt.Sprintf("payment captured but order not recorded (transaction_id=%s)", e.TransactionID)
}

func AsPostPaymentFailure(err error) (*PostPaymentFailure, bool) {
	var pf *PostPaymentFailure
	ok := errors.As(err, &pf)
	return pf, ok
}
