package logger

import (
	"io"
	"os"

	"github.com/Hari-prasath-6380/KCP-organics/internal/config"

	"github.com/sirupsen/logrus"
)

// Logger обёртка над logrus с полями сервиса по умолчанию
type Logger struct {
	*logrus.Logger
}

// New создаёт логгер по конфигурации: уровень, формат и, при необходимости, файл
func New(cfg *config.LoggerConfig) *Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.WithError(err).Warn("Failed to open log file, falling back to stdout")
		} else {
			out = io.MultiWriter(os.Stdout, file)
		}
	}
	log.SetOutput(out)

	return &Logger{Logger: log}
}

// WithField добавляет одно поле к записи
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields добавляет несколько полей к записи
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithError добавляет ошибку к записи
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// WithOrder добавляет идентификатор заказа к записи
func (l *Logger) WithOrder(orderID string) *logrus.Entry {
	return l.Logger.WithField("order_id", orderID)
}

// WithCoupon добавляет код купона к записи
func (l *Logger) WithCoupon(code string) *logrus.Entry {
	return l.Logger.WithField("coupon_code", code)
}
