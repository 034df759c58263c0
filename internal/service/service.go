// Package service реализует бизнес-логику сервиса продаж.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/sales-system/internal/model"
	"github.com/mmeshcher/sales-system/internal/repository"
)

// ErrInvalidCredentials возвращается при неверной паре email/пароль.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidStatus возвращается, если статус не входит в допустимый набор.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrNoItems возвращается, если заказ не содержит ни одной позиции.
	ErrNoItems = errors.New("order must contain at least one item")
	// ErrInvalidQuantity возвращается, если количество в позиции не положительно.
	ErrInvalidQuantity = errors.New("order item quantity must be positive")
	// ErrInvalidPrice возвращается, если цена товара отрицательна.
	ErrInvalidPrice = errors.New("product price must be non-negative")
	// ErrInvalidStock возвращается, если остаток товара отрицателен.
	ErrInvalidStock = errors.New("product stock must be non-negative")
)

const notifyTimeout = 5 * time.Second

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	CreateClient(ctx context.Context, c *model.Client) (int64, error)
	GetClientByID(ctx context.Context, id int64) (*model.Client, error)
	ListClients(ctx context.Context, f repository.ClientFilter) ([]model.Client, error)
	UpdateClient(ctx context.Context, c *model.Client) error
	DeleteClient(ctx context.Context, id int64) error

	CreateProduct(ctx context.Context, p *model.Product) (int64, error)
	GetProductByID(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error)
	UpdateProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, clientID int64, createdAt time.Time, items []model.OrderItem) (*model.Order, error)
	UpdateOrder(ctx context.Context, orderID, clientID int64, items []model.OrderItem) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) (model.OrderStatus, int64, error)
	DeleteOrder(ctx context.Context, orderID int64) error
	GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error)
	ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error)
}

// Notifier описывает контракт отправки сообщений клиентам.
type Notifier interface {
	SendText(ctx context.Context, phone, text string) error
}

// Service содержит бизнес-логику сервиса продаж.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом отправки сообщений.
func NewService(repo Repository, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя с хэшированием пароля.
func (s *Service) RegisterUser(ctx context.Context, name, email, phone, password string, level model.AccessLevel) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.CreateUser(ctx, &model.User{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		IsActive:     true,
		AccessLevel:  level,
	})
}

// AuthenticateUser проверяет email и пароль пользователя и возвращает его учётную запись.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (s *Service) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// CreateClient создаёт нового клиента.
func (s *Service) CreateClient(ctx context.Context, c *model.Client) (int64, error) {
	return s.repo.CreateClient(ctx, c)
}

// GetClientByID возвращает клиента по идентификатору.
func (s *Service) GetClientByID(ctx context.Context, id int64) (*model.Client, error) {
	return s.repo.GetClientByID(ctx, id)
}

// ListClients возвращает клиентов по заданным фильтрам.
func (s *Service) ListClients(ctx context.Context, f repository.ClientFilter) ([]model.Client, error) {
	return s.repo.ListClients(ctx, f)
}

// UpdateClient обновляет данные клиента.
func (s *Service) UpdateClient(ctx context.Context, c *model.Client) error {
	return s.repo.UpdateClient(ctx, c)
}

// DeleteClient удаляет клиента без заказов.
func (s *Service) DeleteClient(ctx context.Context, id int64) error {
	return s.repo.DeleteClient(ctx, id)
}

// ProductInput описывает данные товара с ценой в десятичном представлении.
type ProductInput struct {
	Description string
	Price       decimal.Decimal
	Barcode     string
	Section     string
	Stock       int
	ExpiresAt   time.Time
	Image       *string
}

func (in ProductInput) toModel(id int64) (*model.Product, error) {
	if in.Price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	if in.Stock < 0 {
		return nil, ErrInvalidStock
	}

	return &model.Product{
		ID:          id,
		Description: in.Description,
		PriceCents:  in.Price.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Barcode:     in.Barcode,
		Section:     in.Section,
		Stock:       in.Stock,
		ExpiresAt:   in.ExpiresAt,
		Image:       in.Image,
	}, nil
}

// CreateProduct создаёт новый товар. Цена конвертируется в центы без плавающей точки.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*model.Product, error) {
	p, err := in.toModel(0)
	if err != nil {
		return nil, err
	}

	id, err := s.repo.CreateProduct(ctx, p)
	if err != nil {
		return nil, err
	}
	p.ID = id

	return p, nil
}

// GetProductByID возвращает товар по идентификатору.
func (s *Service) GetProductByID(ctx context.Context, id int64) (*model.Product, error) {
	return s.repo.GetProductByID(ctx, id)
}

// ListProducts возвращает товары по заданным фильтрам.
func (s *Service) ListProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error) {
	return s.repo.ListProducts(ctx, f)
}

// UpdateProduct обновляет данные товара.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) (*model.Product, error) {
	p, err := in.toModel(id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

// DeleteProduct удаляет товар, не входящий в заказы.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return s.repo.DeleteProduct(ctx, id)
}

func validateItems(items []model.OrderItem) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: product %d", ErrInvalidQuantity, item.ProductID)
		}
	}
	return nil
}

// mergeItems объединяет позиции с одинаковым товаром, суммируя количество.
// Заказ хранит не более одной позиции на товар.
func mergeItems(items []model.OrderItem) []model.OrderItem {
	merged := make([]model.OrderItem, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// CreateOrder создаёт заказ и после фиксации транзакции уведомляет клиента.
// Ошибка уведомления не влияет на результат операции.
func (s *Service) CreateOrder(ctx context.Context, clientID int64, createdAt time.Time, items []model.OrderItem) (*model.Order, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	order, err := s.repo.CreateOrder(ctx, clientID, createdAt, mergeItems(items))
	if err != nil {
		return nil, err
	}

	s.notifyClient(order.ClientID,
		fmt.Sprintf("We received your order #%d. We will let you know once payment is approved.", order.ID))

	return order, nil
}

// UpdateOrder заменяет клиента и позиции заказа.
func (s *Service) UpdateOrder(ctx context.Context, orderID, clientID int64, items []model.OrderItem) (*model.Order, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	return s.repo.UpdateOrder(ctx, orderID, clientID, mergeItems(items))
}

// UpdateOrderStatus меняет статус заказа и уведомляет клиента о смене статуса.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	_, clientID, err := s.repo.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return err
	}

	s.notifyClient(clientID,
		fmt.Sprintf("Your order #%d status changed to %s.", orderID, status))

	return nil
}

// DeleteOrder удаляет заказ. Остатки товаров не восстанавливаются.
func (s *Service) DeleteOrder(ctx context.Context, orderID int64) error {
	return s.repo.DeleteOrder(ctx, orderID)
}

// GetOrderByID возвращает заказ по идентификатору.
func (s *Service) GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.repo.GetOrderByID(ctx, orderID)
}

// ListOrders возвращает заказы по заданным фильтрам.
func (s *Service) ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error) {
	return s.repo.ListOrders(ctx, f)
}

// notifyClient отправляет сообщение клиенту после фиксации транзакции.
// Вызов ограничен собственным таймаутом и не привязан к контексту запроса.
func (s *Service) notifyClient(clientID int64, text string) {
	if s.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	client, err := s.repo.GetClientByID(ctx, clientID)
	if err != nil {
		s.logger.Warn("load client for notification", zap.Int64("clientID", clientID), zap.Error(err))
		return
	}

	if client.Phone == "" {
		return
	}

	if err := s.notifier.SendText(ctx, client.Phone, text); err != nil {
		s.logger.Warn("send notification", zap.Int64("clientID", clientID), zap.Error(err))
	}
}
