package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/sales-system/internal/model"
	"github.com/mmeshcher/sales-system/internal/repository"
)

type stubRepo struct {
	createUserID  int64
	createUserErr error

	getUser    *model.User
	getUserErr error

	client    *model.Client
	clientErr error

	createProductID  int64
	createProductErr error
	createdProduct   *model.Product

	createOrderResp   *model.Order
	createOrderErr    error
	createOrderCalled bool
	createOrderItems  []model.OrderItem

	updateOrderResp  *model.Order
	updateOrderErr   error
	updateOrderItems []model.OrderItem

	statusPrev     model.OrderStatus
	statusClientID int64
	statusErr      error
	statusCalled   bool
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) CreateClient(ctx context.Context, c *model.Client) (int64, error) {
	return 0, nil
}

func (s *stubRepo) GetClientByID(ctx context.Context, id int64) (*model.Client, error) {
	return s.client, s.clientErr
}

func (s *stubRepo) ListClients(ctx context.Context, f repository.ClientFilter) ([]model.Client, error) {
	return nil, nil
}

func (s *stubRepo) UpdateClient(ctx context.Context, c *model.Client) error { return nil }

func (s *stubRepo) DeleteClient(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) CreateProduct(ctx context.Context, p *model.Product) (int64, error) {
	s.createdProduct = p
	return s.createProductID, s.createProductErr
}

func (s *stubRepo) GetProductByID(ctx context.Context, id int64) (*model.Product, error) {
	return nil, repository.ErrProductNotFound
}

func (s *stubRepo) ListProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error) {
	return nil, nil
}

func (s *stubRepo) UpdateProduct(ctx context.Context, p *model.Product) error { return nil }

func (s *stubRepo) DeleteProduct(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) CreateOrder(ctx context.Context, clientID int64, createdAt time.Time, items []model.OrderItem) (*model.Order, error) {
	s.createOrderCalled = true
	s.createOrderItems = items
	return s.createOrderResp, s.createOrderErr
}

func (s *stubRepo) UpdateOrder(ctx context.Context, orderID, clientID int64, items []model.OrderItem) (*model.Order, error) {
	s.updateOrderItems = items
	return s.updateOrderResp, s.updateOrderErr
}

func (s *stubRepo) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) (model.OrderStatus, int64, error) {
	s.statusCalled = true
	return s.statusPrev, s.statusClientID, s.statusErr
}

func (s *stubRepo) DeleteOrder(ctx context.Context, orderID int64) error { return nil }

func (s *stubRepo) GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error) {
	return nil, repository.ErrOrderNotFound
}

func (s *stubRepo) ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error) {
	return nil, nil
}

type stubNotifier struct {
	phone string
	text  string
	calls int
	err   error
}

func (n *stubNotifier) SendText(ctx context.Context, phone, text string) error {
	n.calls++
	n.phone = phone
	n.text = text
	return n.err
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{
		createUserErr: repository.ErrUserExists,
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.RegisterUser(context.Background(), "Admin", "admin@example.com", "", "password1", model.AccessLevelAdmin)
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthenticateUser_InvalidPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct1"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	repo := &stubRepo{
		getUser: &model.User{
			ID:           1,
			Email:        "user@example.com",
			PasswordHash: hash,
		},
	}
	svc := NewService(repo, nil, nil)

	_, err = svc.AuthenticateUser(context.Background(), "user@example.com", "wrong123")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateUser_UnknownUser(t *testing.T) {
	repo := &stubRepo{
		getUserErr: repository.ErrUserNotFound,
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.AuthenticateUser(context.Background(), "nobody@example.com", "password1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestCreateProduct_PriceConversion(t *testing.T) {
	repo := &stubRepo{createProductID: 5}
	svc := NewService(repo, nil, nil)

	p, err := svc.CreateProduct(context.Background(), ProductInput{
		Description: "Black T-shirt",
		Price:       decimal.RequireFromString("49.90"),
		Barcode:     "7891000100103",
		Section:     "clothes",
		Stock:       10,
		ExpiresAt:   time.Now().AddDate(1, 0, 0),
	})
	if err != nil {
		t.Fatalf("CreateProduct error: %v", err)
	}
	if p.ID != 5 {
		t.Fatalf("ID = %d, want 5", p.ID)
	}
	if p.PriceCents != 4990 {
		t.Fatalf("PriceCents = %d, want 4990", p.PriceCents)
	}
}

func TestCreateProduct_NegativePrice(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil)

	_, err := svc.CreateProduct(context.Background(), ProductInput{
		Description: "broken",
		Price:       decimal.RequireFromString("-1"),
		Barcode:     "123",
		Section:     "misc",
	})
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestCreateOrder_ItemValidation(t *testing.T) {
	tests := []struct {
		name    string
		items   []model.OrderItem
		wantErr error
	}{
		{name: "no items", items: nil, wantErr: ErrNoItems},
		{name: "zero quantity", items: []model.OrderItem{{ProductID: 1, Quantity: 0}}, wantErr: ErrInvalidQuantity},
		{name: "negative quantity", items: []model.OrderItem{{ProductID: 1, Quantity: -2}}, wantErr: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{}
			svc := NewService(repo, nil, nil)

			_, err := svc.CreateOrder(context.Background(), 1, time.Now(), tt.items)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if repo.createOrderCalled {
				t.Fatalf("repository must not be called for invalid items")
			}
		})
	}
}

func TestCreateOrder_MergesDuplicateProducts(t *testing.T) {
	repo := &stubRepo{
		createOrderResp: &model.Order{ID: 10, ClientID: 3, Status: model.OrderStatusPending},
		client:          &model.Client{ID: 3},
	}
	svc := NewService(repo, nil, nil)

	items := []model.OrderItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
		{ProductID: 1, Quantity: 1},
	}
	if _, err := svc.CreateOrder(context.Background(), 3, time.Now(), items); err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}

	want := []model.OrderItem{
		{ProductID: 1, Quantity: 3},
		{ProductID: 2, Quantity: 1},
	}
	if len(repo.createOrderItems) != len(want) {
		t.Fatalf("items = %v, want %v", repo.createOrderItems, want)
	}
	for i, item := range want {
		if repo.createOrderItems[i] != item {
			t.Fatalf("item %d = %v, want %v", i, repo.createOrderItems[i], item)
		}
	}
}

func TestUpdateOrder_MergesDuplicateProducts(t *testing.T) {
	repo := &stubRepo{
		updateOrderResp: &model.Order{ID: 10, ClientID: 3, Status: model.OrderStatusPending},
	}
	svc := NewService(repo, nil, nil)

	items := []model.OrderItem{
		{ProductID: 5, Quantity: 1},
		{ProductID: 5, Quantity: 4},
	}
	if _, err := svc.UpdateOrder(context.Background(), 10, 3, items); err != nil {
		t.Fatalf("UpdateOrder error: %v", err)
	}

	if len(repo.updateOrderItems) != 1 {
		t.Fatalf("items = %v, want single merged item", repo.updateOrderItems)
	}
	if got := repo.updateOrderItems[0]; got != (model.OrderItem{ProductID: 5, Quantity: 5}) {
		t.Fatalf("merged item = %v, want {5 5}", got)
	}
}

func TestCreateOrder_NotifiesClient(t *testing.T) {
	repo := &stubRepo{
		createOrderResp: &model.Order{
			ID:       7,
			ClientID: 3,
			Status:   model.OrderStatusPending,
			Items:    []model.OrderItem{{ProductID: 1, Quantity: 2}},
		},
		client: &model.Client{ID: 3, Phone: "5511999999999"},
	}
	notifier := &stubNotifier{}
	svc := NewService(repo, notifier, nil)

	order, err := svc.CreateOrder(context.Background(), 3, time.Now(), []model.OrderItem{{ProductID: 1, Quantity: 2}})
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if order.ID != 7 {
		t.Fatalf("order ID = %d, want 7", order.ID)
	}
	if notifier.calls != 1 {
		t.Fatalf("notifier calls = %d, want 1", notifier.calls)
	}
	if notifier.phone != "5511999999999" {
		t.Fatalf("notifier phone = %q", notifier.phone)
	}
	if !strings.Contains(notifier.text, "#7") {
		t.Fatalf("notification %q must reference order id", notifier.text)
	}
}

func TestCreateOrder_NotifierFailureDoesNotFailOrder(t *testing.T) {
	repo := &stubRepo{
		createOrderResp: &model.Order{ID: 8, ClientID: 3, Status: model.OrderStatusPending},
		client:          &model.Client{ID: 3, Phone: "5511999999999"},
	}
	notifier := &stubNotifier{err: errors.New("provider down")}
	svc := NewService(repo, notifier, nil)

	order, err := svc.CreateOrder(context.Background(), 3, time.Now(), []model.OrderItem{{ProductID: 1, Quantity: 1}})
	if err != nil {
		t.Fatalf("CreateOrder must not fail on notifier error, got %v", err)
	}
	if order == nil || order.ID != 8 {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestCreateOrder_NoPhoneNoNotification(t *testing.T) {
	repo := &stubRepo{
		createOrderResp: &model.Order{ID: 9, ClientID: 4, Status: model.OrderStatusPending},
		client:          &model.Client{ID: 4, Phone: ""},
	}
	notifier := &stubNotifier{}
	svc := NewService(repo, notifier, nil)

	if _, err := svc.CreateOrder(context.Background(), 4, time.Now(), []model.OrderItem{{ProductID: 1, Quantity: 1}}); err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if notifier.calls != 0 {
		t.Fatalf("notifier must not be called without phone")
	}
}

func TestUpdateOrderStatus_RejectsUnknownStatus(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil, nil)

	err := svc.UpdateOrderStatus(context.Background(), 1, "teleported")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if repo.statusCalled {
		t.Fatalf("repository must not be called for unknown status")
	}
}

func TestUpdateOrderStatus_NotifiesClient(t *testing.T) {
	repo := &stubRepo{
		statusPrev:     model.OrderStatusPending,
		statusClientID: 3,
		client:         &model.Client{ID: 3, Phone: "5511999999999"},
	}
	notifier := &stubNotifier{}
	svc := NewService(repo, notifier, nil)

	if err := svc.UpdateOrderStatus(context.Background(), 7, model.OrderStatusProcessing); err != nil {
		t.Fatalf("UpdateOrderStatus error: %v", err)
	}
	if notifier.calls != 1 {
		t.Fatalf("notifier calls = %d, want 1", notifier.calls)
	}
	if !strings.Contains(notifier.text, "processing") {
		t.Fatalf("notification %q must mention new status", notifier.text)
	}
}
