package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"app/internal/domain/model"
	"app/internal/notify"
	"app/internal/payment"
	repo "app/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// checkoutのユニットテスト用の部品一式
type checkoutFixture struct {
	orders    *OrderRepoMock
	orderItem *OrderItemRepoMock
	payments  *PaymentRepoMock
	carts     *CartRepoMock
	cartItems *CartItemRepoMock
	variants  *VariantRepoMock
	products  *ProductRepoMock
	addresses *AddressRepoMock
	users     *UserRepoMock
	inventory *InventoryRepoMock
	gateway   *GatewayMock
	uc        *CheckoutUsecase
}

func newCheckoutFixture() *checkoutFixture {
	f := &checkoutFixture{
		orders:    &OrderRepoMock{},
		orderItem: &OrderItemRepoMock{},
		payments:  &PaymentRepoMock{},
		carts:     &CartRepoMock{},
		cartItems: &CartItemRepoMock{},
		variants:  &VariantRepoMock{},
		products:  &ProductRepoMock{},
		addresses: &AddressRepoMock{},
		users:     &UserRepoMock{},
		inventory: &InventoryRepoMock{},
		gateway:   &GatewayMock{},
	}

	tx := &TxManagerMock{Repos: &TxReposStub{
		orders:     f.orders,
		orderItems: f.orderItem,
		payments:   f.payments,
		carts:      f.carts,
		cartItems:  f.cartItems,
		inventory:  f.inventory,
		variants:   f.variants,
	}}

	//通知はログのみ（非同期goroutineのアサートはしない）
	f.uc = NewCheckoutUsecase(
		tx,
		f.orders, f.orderItem, f.payments,
		f.carts, f.cartItems,
		f.variants, f.products,
		f.addresses, f.users,
		f.gateway, notify.NewLogNotifier(),
		"USD", "tappay",
	)
	return f
}

func validInput() CheckoutInput {
	return CheckoutInput{
		ShippingAddressID: 10,
		BillingAddressID:  0,
		PaymentToken:      "tok_abc",
		IdempotencyKey:    "idem-1",
	}
}

// 事前チェックが全部通るところまでのmock設定
func (f *checkoutFixture) arrangeHappyPreconditions() {
	f.orders.On("FindByIdempotencyKey", mock.Anything, int64(1), "idem-1").
		Return(model.Order{}, false, nil)

	f.addresses.On("FindByID", mock.Anything, int64(10)).
		Return(model.Address{ID: 10, UserID: 1, Name: "Taro Yamada"}, nil)

	f.carts.On("FindActiveByUserID", mock.Anything, int64(1)).
		Return(model.Cart{ID: 5, UserID: 1, Status: model.CartStatusActive}, nil)

	//カートには2点。スナップショット価格はわざと現在価格とズラす
	f.cartItems.On("ListByCartID", mock.Anything, int64(5)).
		Return([]model.CartItem{
			{ID: 1, CartID: 5, VariantID: 100, Quantity: 2, UnitPriceSnapshot: 900},
			{ID: 2, CartID: 5, VariantID: 200, Quantity: 1, UnitPriceSnapshot: 100},
		}, nil)

	f.variants.On("FindByID", mock.Anything, int64(100)).
		Return(model.Variant{ID: 100, ProductID: 1000, SKU: "CG-ROB-50", Price: 1200, Inventory: 10}, nil)
	f.variants.On("FindByID", mock.Anything, int64(200)).
		Return(model.Variant{ID: 200, ProductID: 2000, SKU: "CG-TOR-25", Price: 500, Inventory: 3}, nil)

	f.products.On("FindByID", mock.Anything, int64(1000)).
		Return(model.Product{ID: 1000, Name: "Robusto", IsActive: true}, nil)
	f.products.On("FindByID", mock.Anything, int64(2000)).
		Return(model.Product{ID: 2000, Name: "Torpedo", IsActive: true}, nil)

	f.users.On("FindByID", mock.Anything, int64(1)).
		Return(&model.User{ID: 1, Email: "buyer@example.com"}, nil)
}

func TestCheckout_HappyPath(t *testing.T) {
	f := newCheckoutFixture()
	f.arrangeHappyPreconditions()

	//合計は現在価格で 1200*2 + 500*1 = 2900（スナップショットの1900ではない）。
	//カード名義は配送先の宛名、メールはアカウントのもの
	f.gateway.On("Charge", mock.Anything, mock.MatchedBy(func(req payment.ChargeRequest) bool {
		return req.Amount == 2900 && req.Currency == "USD" && req.Token == "tok_abc" &&
			req.CardholderName == "Taro Yamada" && req.CardholderEmail == "buyer@example.com"
	})).Return(payment.ChargeResult{TransactionID: "txn-001"}, nil)

	f.inventory.On("DecreaseStockIfEnough", mock.Anything, int64(100), int64(2)).Return(true, nil)
	f.inventory.On("DecreaseStockIfEnough", mock.Anything, int64(200), int64(1)).Return(true, nil)

	f.orders.On("Create", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.Status == model.OrderStatusPaid &&
			o.TotalPrice == 2900 &&
			o.IdempotencyKey == "idem-1" &&
			o.ShippingAddressID == 10 &&
			o.BillingAddressID == 10
	})).Return(int64(77), nil)

	f.orderItem.On("CreateBulk", mock.Anything, int64(77), mock.MatchedBy(func(items []model.OrderItem) bool {
		//スナップショットは現在価格で保存される
		return len(items) == 2 &&
			items[0].UnitPriceSnapshot == 1200 && items[0].SKUSnapshot == "CG-ROB-50" &&
			items[1].UnitPriceSnapshot == 500
	})).Return(nil)

	f.payments.On("Create", mock.Anything, mock.MatchedBy(func(p model.Payment) bool {
		return p.OrderID == 77 &&
			p.Status == model.PaymentStatusCaptured &&
			p.Amount == 2900 &&
			p.TransactionID == "txn-001"
	})).Return(int64(1), nil)

	f.carts.On("UpdateStatus", mock.Anything, int64(5), model.CartStatusCheckedOut).Return(nil)
	f.carts.On("Clear", mock.Anything, int64(5)).Return(nil)

	out, err := f.uc.Checkout(context.Background(), 1, validInput())

	assert.NoError(t, err)
	assert.Equal(t, int64(77), out.OrderID)
	assert.Equal(t, "PAID", out.Status)
	assert.Equal(t, int64(2900), out.TotalPrice)
	assert.Equal(t, "txn-001", out.TransactionID)
	assert.Len(t, out.Items, 2)

	f.gateway.AssertNumberOfCalls(t, "Charge", 1)
	f.orders.AssertExpectations(t)
	f.payments.AssertExpectations(t)
	f.carts.AssertExpectations(t)
}

func TestCheckout_PaymentDeclined_NoMutation(t *testing.T) {
	f := newCheckoutFixture()
	f.arrangeHappyPreconditions()

	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.ChargeResult{}, &payment.DeclinedError{Code: 10003, Message: "card declined"})

	_, err := f.uc.Checkout(context.Background(), 1, validInput())

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusPaymentRequired, he.Status)
	assert.Equal(t, "payment declined", he.Message)

	//何も書き込まれない
	f.inventory.AssertNotCalled(t, "DecreaseStockIfEnough", mock.Anything, mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.carts.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
}

func TestCheckout_GatewayUnreachable(t *testing.T) {
	f := newCheckoutFixture()
	f.arrangeHappyPreconditions()

	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.ChargeResult{}, &payment.UnreachableError{Cause: errors.New("timeout")})

	_, err := f.uc.Checkout(context.Background(), 1, validInput())

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, he.Status)
	assert.Equal(t, "payment gateway unreachable", he.Message)

	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCheckout_PostPaymentFailure_CarriesTransactionID(t *testing.T) {
	f := newCheckoutFixture()
	f.arrangeHappyPreconditions()

	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.ChargeResult{TransactionID: "txn-lost"}, nil)

	//課金後の本減算で同時注文に負ける
	f.inventory.On("DecreaseStockIfEnough", mock.Anything, int64(100), int64(2)).Return(false, nil)

	_, err := f.uc.Checkout(context.Background(), 1, validInput())

	pf, ok := AsPostPaymentFailure(err)
	assert.True(t, ok)
	assert.Equal(t, "txn-lost", pf.TransactionID)

	//注文もカート削除も行われない（全ロールバック）
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.carts.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
}

func TestCheckout_PostPaymentFailure_OrderItemsWriteFails(t *testing.T) {
	f := newCheckoutFixture()
	f.arrangeHappyPreconditions()

	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.ChargeResult{TransactionID: "txn-orphaned"}, nil)

	f.inventory.On("DecreaseStockIfEnough", mock.Anything, int64(100), int64(2)).Return(true, nil)
	f.inventory.On("DecreaseStockIfEnough", mock.Anything, int64(200), int64(1)).Return(true, nil)
	f.orders.On("Create", mock.Anything, mock.Anything).Return(int64(77), nil)

	//注文明細の書き込みで失敗。課金だけが残るので取引IDを持ち出す
	f.orderItem.On("CreateBulk", mock.Anything, int64(77), mock.Anything).
		Return(errors.New("bulk insert failed"))

	_, err := f.uc.Checkout(context.Background(), 1, validInput())

	pf, ok := AsPostPaymentFailure(err)
	assert.True(t, ok)
	assert.Equal(t, "txn-orphaned", pf.TransactionID)

	f.payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.carts.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
}

func TestCheckout_PostPaymentFailure_CartClearFails(t *testing.T) {
	f := newCheckoutFixture()
	f.arrangeHappyPreconditions()

	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.ChargeResult{TransactionID: "txn-cart"}, nil)

	f.inventory.On("DecreaseStockIfEnough", mock.Anything, int64(100), int64(2)).Return(true, nil)
	f.inventory.On("DecreaseStockIfEnough", mock.Anything, int64(200), int64(1)).Return(true, nil)
	f.orders.On("Create", mock.Anything, mock.Anything).Return(int64(77), nil)
	f.orderItem.On("CreateBulk", mock.Anything, int64(77), mock.Anything).Return(nil)
	f.payments.On("Create", mock.Anything, mock.Anything).Return(int64(1), nil)
	f.carts.On("UpdateStatus", mock.Anything, int64(5), model.CartStatusCheckedOut).Return(nil)

	//最後のカート削除で失敗しても照合用の取引IDは落とさない
	f.carts.On("Clear", mock.Anything, int64(5)).Return(errors.New("delete failed"))

	_, err := f.uc.Checkout(context.Background(), 1, validInput())

	pf, ok := AsPostPaymentFailure(err)
	assert.True(t, ok)
	assert.Equal(t, "txn-cart", pf.TransactionID)
}

func TestCheckout_IdempotentReplay_DoesNotChargeAgain(t *testing.T) {
	f := newCheckoutFixture()

	existing := model.Order{
		ID:         55,
		UserID:     1,
		Status:     model.OrderStatusPaid,
		TotalPrice: 2900,
	}
	f.orders.On("FindByIdempotencyKey", mock.Anything, int64(1), "idem-1").
		Return(existing, true, nil)

	f.orderItem.On("ListByOrderID", mock.Anything, int64(55)).
		Return([]model.OrderItem{
			{VariantID: 100, ProductNameSnapshot: "Robusto", SKUSnapshot: "CG-ROB-50", UnitPriceSnapshot: 1200, Quantity: 2},
		}, nil)

	f.payments.On("FindByOrderID", mock.Anything, int64(55)).
		Return(model.Payment{OrderID: 55, TransactionID: "txn-001", Currency: "USD"}, nil)

	out, err := f.uc.Checkout(context.Background(), 1, validInput())

	assert.NoError(t, err)
	assert.Equal(t, int64(55), out.OrderID)
	assert.Equal(t, "txn-001", out.TransactionID)

	//再課金しない
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newCheckoutFixture()

	f.orders.On("FindByIdempotencyKey", mock.Anything, int64(1), "idem-1").
		Return(model.Order{}, false, nil)
	f.addresses.On("FindByID", mock.Anything, int64(10)).
		Return(model.Address{ID: 10, UserID: 1}, nil)
	f.carts.On("FindActiveByUserID", mock.Anything, int64(1)).
		Return(model.Cart{ID: 5, UserID: 1}, nil)
	f.cartItems.On("ListByCartID", mock.Anything, int64(5)).
		Return([]model.CartItem{}, nil)

	_, err := f.uc.Checkout(context.Background(), 1, validInput())

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	assert.Equal(t, "cart empty", he.Message)
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCheckout_AddressNotFound(t *testing.T) {
	f := newCheckoutFixture()

	f.orders.On("FindByIdempotencyKey", mock.Anything, int64(1), "idem-1").
		Return(model.Order{}, false, nil)
	f.addresses.On("FindByID", mock.Anything, int64(10)).
		Return(model.Address{}, repo.ErrNotFound)

	_, err := f.uc.Checkout(context.Background(), 1, validInput())

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
}

func TestCheckout_AddressOwnedByOther(t *testing.T) {
	f := newCheckoutFixture()

	f.orders.On("FindByIdempotencyKey", mock.Anything, int64(1), "idem-1").
		Return(model.Order{}, false, nil)
	f.addresses.On("FindByID", mock.Anything, int64(10)).
		Return(model.Address{ID: 10, UserID: 999}, nil)

	_, err := f.uc.Checkout(context.Background(), 1, validInput())

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusForbidden, he.Status)
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCheckout_AdvisoryOutOfStock(t *testing.T) {
	f := newCheckoutFixture()

	f.orders.On("FindByIdempotencyKey", mock.Anything, int64(1), "idem-1").
		Return(model.Order{}, false, nil)
	f.addresses.On("FindByID", mock.Anything, int64(10)).
		Return(model.Address{ID: 10, UserID: 1}, nil)
	f.carts.On("FindActiveByUserID", mock.Anything, int64(1)).
		Return(model.Cart{ID: 5, UserID: 1}, nil)
	f.cartItems.On("ListByCartID", mock.Anything, int64(5)).
		Return([]model.CartItem{{ID: 1, CartID: 5, VariantID: 100, Quantity: 5}}, nil)
	f.variants.On("FindByID", mock.Anything, int64(100)).
		Return(model.Variant{ID: 100, ProductID: 1000, Price: 1200, Inventory: 2}, nil)
	f.products.On("FindByID", mock.Anything, int64(1000)).
		Return(model.Product{ID: 1000, Name: "Robusto", IsActive: true}, nil)

	_, err := f.uc.Checkout(context.Background(), 1, validInput())

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusConflict, he.Status)
	assert.Equal(t, "out of stock", he.Message)

	//課金前に止める
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestCheckout_MissingIdempotencyKey(t *testing.T) {
	f := newCheckoutFixture()

	in := validInput()
	in.IdempotencyKey = ""

	_, err := f.uc.Checkout(context.Background(), 1, in)

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
}

// 「足りるときだけ減らす」をそのまま持つ在庫ストア。
// 本番のUPDATE ... WHERE inventory >= ? と同じく、この判定だけが直列化点になる
type stockLedgerStub struct {
	mu    sync.Mutex
	stock map[int64]int64
}

func (s *stockLedgerStub) DecreaseStockIfEnough(ctx context.Context, variantID int64, qty int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stock[variantID] < qty {
		return false, nil
	}
	s.stock[variantID] -= qty
	return true, nil
}

func (s *stockLedgerStub) IncreaseStock(ctx context.Context, variantID int64, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[variantID] += qty
	return nil
}

func (s *stockLedgerStub) SetStockWithAdjustment(ctx context.Context, adminUserID int64, variantID int64, newStock int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[variantID] = newStock
	return nil
}

func (s *stockLedgerStub) CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error {
	return nil
}

// 在庫1に対して複数人が同時にcheckoutしても、勝者は1人だけで在庫は負にならない
func TestCheckout_ConcurrentBuyers_OnlyOneWins(t *testing.T) {
	const buyers = 8

	store := &stockLedgerStub{stock: map[int64]int64{100: 1}}

	f := newCheckoutFixture()
	tx := &TxManagerMock{Repos: &TxReposStub{
		orders:     f.orders,
		orderItems: f.orderItem,
		payments:   f.payments,
		carts:      f.carts,
		cartItems:  f.cartItems,
		inventory:  store,
		variants:   f.variants,
	}}
	uc := NewCheckoutUsecase(
		tx,
		f.orders, f.orderItem, f.payments,
		f.carts, f.cartItems,
		f.variants, f.products,
		f.addresses, f.users,
		f.gateway, notify.NewLogNotifier(),
		"USD", "tappay",
	)

	for i := int64(1); i <= buyers; i++ {
		f.orders.On("FindByIdempotencyKey", mock.Anything, i, fmt.Sprintf("idem-%d", i)).
			Return(model.Order{}, false, nil)
		f.addresses.On("FindByID", mock.Anything, 100+i).
			Return(model.Address{ID: 100 + i, UserID: i, Name: "Buyer"}, nil)
		f.carts.On("FindActiveByUserID", mock.Anything, i).
			Return(model.Cart{ID: 500 + i, UserID: i}, nil)
		f.cartItems.On("ListByCartID", mock.Anything, 500+i).
			Return([]model.CartItem{{CartID: 500 + i, VariantID: 100, Quantity: 1}}, nil)
		f.users.On("FindByID", mock.Anything, i).
			Return(&model.User{ID: i, Email: fmt.Sprintf("buyer%d@example.com", i)}, nil)
	}

	//助言チェックは全員通る。勝敗は確定減算側で決まる
	f.variants.On("FindByID", mock.Anything, int64(100)).
		Return(model.Variant{ID: 100, ProductID: 1000, SKU: "CG-ROB-50", Price: 1200, Inventory: 1}, nil)
	f.products.On("FindByID", mock.Anything, int64(1000)).
		Return(model.Product{ID: 1000, Name: "Robusto", IsActive: true}, nil)

	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(payment.ChargeResult{TransactionID: "txn-race"}, nil)

	f.orders.On("Create", mock.Anything, mock.Anything).Return(int64(900), nil)
	f.orderItem.On("CreateBulk", mock.Anything, int64(900), mock.Anything).Return(nil)
	f.payments.On("Create", mock.Anything, mock.Anything).Return(int64(1), nil)
	f.carts.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.carts.On("Clear", mock.Anything, mock.Anything).Return(nil)

	errs := make(chan error, buyers)
	var wg sync.WaitGroup
	for i := int64(1); i <= buyers; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := uc.Checkout(context.Background(), userID, CheckoutInput{
				ShippingAddressID: 100 + userID,
				PaymentToken:      "tok_abc",
				IdempotencyKey:    fmt.Sprintf("idem-%d", userID),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	winners := 0
	losers := 0
	for err := range errs {
		if err == nil {
			winners++
			continue
		}
		pf, ok := AsPostPaymentFailure(err)
		assert.True(t, ok)
		assert.Equal(t, "txn-race", pf.TransactionID)
		losers++
	}

	assert.Equal(t, 1, winners)
	assert.Equal(t, buyers-1, losers)

	//在庫は0で止まる
	assert.Equal(t, int64(0), store.stock[100])
}
