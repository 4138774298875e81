package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Hari-prasath-6380/KCP-organics/internal/logger"
	"github.com/Hari-prasath-6380/KCP-organics/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ErrChannelNotConfigured канал не настроен: сообщение только залогировано
var ErrChannelNotConfigured = errors.New("notification channel is not configured")

// NotificationChannel один независимый канал доставки уведомлений
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, order *models.Order) error
}

// Notifier рассылает уведомление о заказе по всем каналам параллельно.
// Каждая попытка единственная: без повторов и очереди недоставленных.
type Notifier struct {
	channels []NotificationChannel
	log      *logger.Logger
}

// NewNotifier создаёт рассыльщик с заданным набором каналов
func NewNotifier(log *logger.Logger, channels ...NotificationChannel) *Notifier {
	return &Notifier{channels: channels, log: log}
}

// Channels возвращает имена подключённых каналов
func (n *Notifier) Channels() []string {
	names := make([]string, 0, len(n.channels))
	for _, ch := range n.channels {
		names = append(names, ch.Name())
	}
	return names
}

// NotifyOrderCreated отправляет заказ во все каналы и возвращает успех по каждому.
// Ошибка одного канала не влияет на остальные и не возвращается вызывающему.
func (n *Notifier) NotifyOrderCreated(ctx context.Context, order *models.Order) map[string]bool {
	results := make(map[string]bool, len(n.channels))
	var mu sync.Mutex

	var g errgroup.Group
	for _, ch := range n.channels {
		ch := ch
		g.Go(func() error {
			err := safeSend(ctx, ch, order)

			mu.Lock()
			results[ch.Name()] = err == nil
			mu.Unlock()

			entry := n.log.WithOrder(order.OrderID).WithField("channel", ch.Name())
			switch {
			case err == nil:
				entry.Info("Notification delivered")
			case errors.Is(err, ErrChannelNotConfigured):
				entry.Info("Notification channel not configured, message logged only")
			default:
				entry.WithError(err).Error("Notification delivery failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func safeSend(ctx context.Context, ch NotificationChannel, order *models.Order) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch.Name(), r)
		}
	}()
	return ch.Send(ctx, order)
}

// FormatOrderMessage собирает текст уведомления о заказе
func FormatOrderMessage(order *models.Order) string {
	var b strings.Builder
	b.WriteString("Order Confirmed!\n\n")
	fmt.Fprintf(&b, "Order ID: %s\n", order.OrderID)
	fmt.Fprintf(&b, "Customer: %s\n", order.CustomerName)
	fmt.Fprintf(&b, "Phone: %s\n\n", order.CustomerPhone)

	b.WriteString("PRODUCTS:\n")
	for i, p := range order.Products {
		name := p.Name
		if name == "" {
			name = "Product"
		}
		productID := p.ProductID
		if productID == "" {
			productID = "N/A"
		}
		qty := p.Quantity
		if qty <= 0 {
			qty = 1
		}
		price := decimal.NewFromFloat(p.Price)
		total := price.Mul(decimal.NewFromInt(int64(qty)))

		fmt.Fprintf(&b, "%d. %s\n", i+1, name)
		fmt.Fprintf(&b, "   ID: %s\n", productID)
		fmt.Fprintf(&b, "   Price: Rs.%s\n", price.StringFixed(2))
		fmt.Fprintf(&b, "   Qty: %d\n", qty)
		fmt.Fprintf(&b, "   Total: Rs.%s\n\n", total.StringFixed(2))
	}

	fmt.Fprintf(&b, "\nTotal Amount: Rs.%s\n", decimal.NewFromFloat(order.TotalAmount).StringFixed(2))
	fmt.Fprintf(&b, "Payment: %s\n", paymentLabel(order.PaymentMethod))
	b.WriteString("Status: Pending\n\n")
	fmt.Fprintf(&b, "Delivery Address:\n%s\n\n", order.CustomerAddress)
	b.WriteString("Track: Use Order ID and Mobile on track-order.html")
	return b.String()
}

func paymentLabel(method models.PaymentMethod) string {
	if method == models.PaymentMethodCOD {
		return "Cash on Delivery"
	}
	return strings.ToUpper(string(method))
}
