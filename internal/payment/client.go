package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// 決済ゲートウェイへの課金リクエスト。
// Tokenはフロントでカード情報から作ったワンタイムトークン
type ChargeRequest struct {
	Amount          int64  // 最小通貨単位
	Currency        string
	Token           string
	OrderRef        string // 照合用の注文参照（冪等キー）
	CardholderName  string
	CardholderEmail string
}

type ChargeResult struct {
	TransactionID string
}

// ゲートウェイに届いたが課金が拒否された（ユーザーが再試行できる）
type DeclinedError struct {
	Code    int
	Message string
}

func (e *DeclinedError) Error() string {
	return fmt.Sprintf("payment declined (status=%d): %s", e.Code, e.Message)
}

// ゲートウェイに届かなかった（タイムアウト・接続失敗・5xx）。
// どちらの場合も課金は成立しておらず、システム状態は変わらない
type UnreachableError struct {
	Cause error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("payment gateway unreachable: %v", e.Cause)
}

func (e *UnreachableError) Unwrap() error { return e.Cause }

// ゲートウェイのHTTPクライアント。
// 1回のcheckoutにつき呼び出しは必ず1回（曖昧な失敗でも再試行しない。二重課金を防ぐ）
type Client struct {
	apiURL     string
	partnerKey string
	merchantID string
	httpClient *http.Client
}

func NewClient(apiURL, partnerKey, merchantID string, timeout time.Duration) *Client {
	return &Client{
		apiURL:     apiURL,
		partnerKey: partnerKey,
		merchantID: merchantID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chargeRequestBody struct {
	PartnerKey string            `json:"partner_key"`
	MerchantID string            `json:"merchant_id"`
	Prime      string            `json:"prime"`
	Amount     int64             `json:"amount"`
	Currency   string            `json:"currency"`
	OrderRef   string            `json:"order_number"`
	Details    string            `json:"details"`
	Cardholder map[string]string `json:"cardholder"`
}

type chargeResponseBody struct {
	Status     int    `json:"status"`
	Msg        string `json:"msg"`
	RecTradeID string `json:"rec_trade_id"`
}

// Charge は1回だけ課金を試みる。
// status!=0はDeclinedError、通信不能はUnreachableErrorで区別して返す
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	body := chargeRequestBody{
		PartnerKey: c.partnerKey,
		MerchantID: c.merchantID,
		Prime:      req.Token,
		Amount:     req.Amount,
		Currency:   req.Currency,
		OrderRef:   req.OrderRef,
		Details:    "storefront order",
		Cardholder: map[string]string{
			"name":  req.CardholderName,
			"email": req.CardholderEmail,
		},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return ChargeResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(raw))
	if err != nil {
		return ChargeResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.partnerKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ChargeResult{}, &UnreachableError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return ChargeResult{}, &UnreachableError{Cause: fmt.Errorf("gateway returned %d", resp.StatusCode)}
	}

	var out chargeResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ChargeResult{}, &UnreachableError{Cause: err}
	}

	//0以外は課金拒否
	if out.Status != 0 {
		return ChargeResult{}, &DeclinedError{Code: out.Status, Message: out.Msg}
	}

	return ChargeResult{TransactionID: out.RecTradeID}, nil
}
