package services

import (
	"fmt"
	"math/rand"
	"time"
)

// maxOrderNumberAttempts сколько раз пробуем вставить заказ при коллизии номера
const maxOrderNumberAttempts = 3

// NewOrderNumber формирует номер заказа ORD-<ГГГГММДД>-<6 последних цифр unix ms>-<3 случайные цифры>.
// Номер предназначен для людей, уникальность обеспечивает индекс в базе.
func NewOrderNumber(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("ORD-%s-%06d-%03d", now.Format("20060102"), now.UnixMilli()%1_000_000, rand.Intn(1000))
}
