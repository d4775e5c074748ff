package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	"app/internal/notify"
	"app/internal/payment"
	repo "app/internal/repository"

	"github.com/labstack/gommon/log"
)

// 決済ゲートウェイの約束（実装はinternal/payment）
type PaymentGateway interface {
	Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error)
}

// カート→支払→注文確定を束ねる
type CheckoutUsecase struct {
	tx        repo.TransactionManager
	orders    repo.OrderRepository
	orderItem repo.OrderItemRepository
	payments  repo.PaymentRepository
	carts     repo.CartRepository
	cartItems repo.CartItemRepository
	variants  repo.VariantRepository
	products  repo.ProductRepository
	addresses repo.AddressRepository
	users     repo.UserRepository
	gateway   PaymentGateway
	notifier  notify.Notifier
	currency  string
	provider  string
}

func NewCheckoutUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	orderItem repo.OrderItemRepository,
	payments repo.PaymentRepository,
	carts repo.CartRepository,
	cartItems repo.CartItemRepository,
	variants repo.VariantRepository,
	products repo.ProductRepository,
	addresses repo.AddressRepository,
	users repo.UserRepository,
	gateway PaymentGateway,
	notifier notify.Notifier,
	currency string,
	provider string,
) *CheckoutUsecase {
	return &CheckoutUsecase{
		tx:        tx,
		orders:    orders,
		orderItem: orderItem,
		payments:  payments,
		carts:     carts,
		cartItems: cartItems,
		variants:  variants,
		products:  products,
		addresses: addresses,
		users:     users,
		gateway:   gateway,
		notifier:  notifier,
		currency:  currency,
		provider:  provider,
	}
}

type CheckoutInput struct {
	ShippingAddressID int64
	BillingAddressID  int64 // 0なら配送先と同じ
	PaymentToken      string
	IdempotencyKey    string
}

type CheckoutItemOutput struct {
	VariantID int64  `json:"variant_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

type CheckoutOutput struct {
	OrderID       int64                `json:"order_id"`
	Status        string               `json:"status"`
	TotalPrice    int64                `json:"total_price"`
	Currency      string               `json:"currency"`
	TransactionID string               `json:"transaction_id"`
	CreatedAt     time.Time            `json:"created_at"`
	Items         []CheckoutItemOutput `json:"items"`
}

// 確定処理中に組み立てる行
type checkoutLine struct {
	variant model.Variant
	product model.Product
	qty     int64
}

// Checkout はカートの中身を注文に確定する。
// 流れ: 事前チェック → 課金（1回だけ）→ 在庫減算＋注文作成＋カート削除を1トランザクション。
// 課金後に確定トランザクションが失敗した場合はPostPaymentFailureで返す（全ロールバック、課金は残る）
func (u *CheckoutUsecase) Checkout(ctx context.Context, userID int64, in CheckoutInput) (CheckoutOutput, error) {
	if userID <= 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.ShippingAddressID <= 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid shipping_address_id")
	}
	if strings.TrimSpace(in.PaymentToken) == "" {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_token")
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" || len(key) > 255 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency_key")
	}

	//同じキーなら既存注文を返す（再課金しない）
	if existing, found, err := u.orders.FindByIdempotencyKey(ctx, userID, key); err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	} else if found {
		return u.replayOutput(ctx, existing)
	}

	//住所の存在＋所有チェック。配送先の宛名はカード名義にも使う
	billingID := in.BillingAddressID
	if billingID == 0 {
		billingID = in.ShippingAddressID
	}
	var shippingAddr model.Address
	for _, addrID := range []int64{in.ShippingAddressID, billingID} {
		addr, err := u.addresses.FindByID(ctx, addrID)
		if errors.Is(err, repo.ErrNotFound) {
			return CheckoutOutput{}, NewHTTPError(http.StatusNotFound, "address not found")
		}
		if err != nil {
			return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if addr.UserID != userID {
			return CheckoutOutput{}, NewHTTPError(http.StatusForbidden, "forbidden")
		}
		if addrID == in.ShippingAddressID {
			shippingAddr = addr
		}
	}

	//ACTIVEカート取得
	cart, err := u.carts.FindActiveByUserID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "cart empty")
	}
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	items, err := u.cartItems.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if len(items) == 0 {
		return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "cart empty")
	}

	//合計は「今の」SKU価格で計算し直す（カート追加時のスナップショットは使わない）。
	//在庫はここでは助言チェックのみ。確定は減算のWHERE句で行う
	lines := make([]checkoutLine, 0, len(items))
	var total int64 = 0

	for _, ci := range items {
		v, err := u.variants.FindByID(ctx, ci.VariantID)
		if errors.Is(err, repo.ErrNotFound) {
			return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid cart item")
		}
		if err != nil {
			return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}

		p, err := u.products.FindByID(ctx, v.ProductID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsActive) {
			return CheckoutOutput{}, NewHTTPError(http.StatusBadRequest, "invalid cart item")
		}
		if err != nil {
			return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if v.Inventory < ci.Quantity {
			return CheckoutOutput{}, NewHTTPError(http.StatusConflict, "out of stock")
		}

		lines = append(lines, checkoutLine{variant: v, product: p, qty: ci.Quantity})
		total += v.Price * ci.Quantity
	}

	//通知メール宛先用
	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//課金。ここは1回だけ。失敗したら何も変更せず返す
	charge, err := u.gateway.Charge(ctx, payment.ChargeRequest{
		Amount:          total,
		Currency:        u.currency,
		Token:           in.PaymentToken,
		OrderRef:        key,
		CardholderName:  shippingAddr.Name,
		CardholderEmail: user.Email,
	})
	if err != nil {
		var declined *payment.DeclinedError
		if errors.As(err, &declined) {
			return CheckoutOutput{}, NewHTTPError(http.StatusPaymentRequired, "payment declined")
		}
		var unreachable *payment.UnreachableError
		if errors.As(err, &unreachable) {
			return CheckoutOutput{}, NewHTTPError(http.StatusBadGateway, "payment gateway unreachable")
		}
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "payment error")
	}

	//確定トランザクション。
	//課金はもう成立しているので、ここから先の失敗は理由を問わず全ロールバック＋
	//PostPaymentFailure（取引IDを必ず持ち出して照合できるようにする）
	var out CheckoutOutput

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orderItems := make([]model.OrderItem, 0, len(lines))
		now := time.Now()

		for _, ln := range lines {
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, ln.variant.ID, ln.qty)
			if err != nil {
				return &PostPaymentFailure{TransactionID: charge.TransactionID}
			}
			if !ok {
				//同時注文に負けた。課金は成立しているので照合対象として返す
				return &PostPaymentFailure{TransactionID: charge.TransactionID}
			}

			orderItems = append(orderItems, model.OrderItem{
				VariantID:           ln.variant.ID,
				ProductNameSnapshot: ln.product.Name,
				SKUSnapshot:         ln.variant.SKU,
				UnitPriceSnapshot:   ln.variant.Price,
				Quantity:            ln.qty,
				CreatedAt:           now,
			})
		}

		orderID, err := r.Orders().Create(ctx, model.Order{
			UserID:            userID,
			Status:            model.OrderStatusPaid,
			ShippingAddressID: in.ShippingAddressID,
			BillingAddressID:  billingID,
			TotalPrice:        total,
			IdempotencyKey:    key,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		if err != nil {
			//同じキーが同時に入った等。課金済みなので照合対象
			return &PostPaymentFailure{TransactionID: charge.TransactionID}
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return &PostPaymentFailure{TransactionID: charge.TransactionID}
		}

		if _, err := r.Payments().Create(ctx, model.Payment{
			OrderID:       orderID,
			Status:        model.PaymentStatusCaptured,
			Amount:        total,
			Currency:      u.currency,
			Provider:      u.provider,
			TransactionID: charge.TransactionID,
			CreatedAt:     now,
		}); err != nil {
			return &PostPaymentFailure{TransactionID: charge.TransactionID}
		}

		//カートをCHECKED_OUTにして明細を消す（再注文防止）
		if err := r.Carts().UpdateStatus(ctx, cart.ID, model.CartStatusCheckedOut); err != nil {
			return &PostPaymentFailure{TransactionID: charge.TransactionID}
		}
		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return &PostPaymentFailure{TransactionID: charge.TransactionID}
		}

		outItems := make([]CheckoutItemOutput, 0, len(orderItems))
		for _, it := range orderItems {
			outItems = append(outItems, CheckoutItemOutput{
				VariantID: it.VariantID,
				Name:      it.ProductNameSnapshot,
				SKU:       it.SKUSnapshot,
				Price:     it.UnitPriceSnapshot,
				Quantity:  it.Quantity,
			})
		}

		out = CheckoutOutput{
			OrderID:       orderID,
			Status:        string(model.OrderStatusPaid),
			TotalPrice:    total,
			Currency:      u.currency,
			TransactionID: charge.TransactionID,
			CreatedAt:     now,
			Items:         outItems,
		}
		return nil
	})

	if err != nil {
		if pf, ok := AsPostPaymentFailure(err); ok {
			//手動照合が必要。取引IDは必ずログに残す
			log.Errorf("checkout failed after capture: user_id=%d transaction_id=%s", userID, pf.TransactionID)
		}
		return CheckoutOutput{}, err
	}

	//確定後の通知は非同期・ベストエフォート。失敗しても注文は成立したまま
	go func(orderID int64, email string, total int64, items []CheckoutItemOutput) {
		mailItems := make([]notify.OrderMailItem, 0, len(items))
		for _, it := range items {
			mailItems = append(mailItems, notify.OrderMailItem{Name: it.Name, Quantity: it.Quantity, Price: it.Price})
		}
		if err := u.notifier.SendOrderConfirmation(context.Background(), email, notify.OrderMail{
			OrderID:    orderID,
			TotalPrice: total,
			Currency:   u.currency,
			Items:      mailItems,
		}); err != nil {
			log.Warnf("order confirmation mail failed: order_id=%d err=%v", orderID, err)
		}
	}(out.OrderID, user.Email, out.TotalPrice, out.Items)

	return out, nil
}

// 同じ冪等キーの再送に、保存済みの注文から同じレスポンスを作る
func (u *CheckoutUsecase) replayOutput(ctx context.Context, o model.Order) (CheckoutOutput, error) {
	items, err := u.orderItem.ListByOrderID(ctx, o.ID)
	if err != nil {
		return CheckoutOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	outItems := make([]CheckoutItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, CheckoutItemOutput{
			VariantID: it.VariantID,
			Name:      it.ProductNameSnapshot,
			SKU:       it.SKUSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
		})
	}

	out := CheckoutOutput{
		OrderID:    o.ID,
		Status:     string(o.Status),
		TotalPrice: o.TotalPrice,
		Currency:   u.currency,
		CreatedAt:  o.CreatedAt,
		Items:      outItems,
	}

	//保存済みの決済から取引IDも返す
	if p, err := u.payments.FindByOrderID(ctx, o.ID); err == nil {
		out.TransactionID = p.TransactionID
		out.Currency = p.Currency
	}

	return out, nil
}
