// Package mailer emails payment receipts to students once an order succeeds.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"log"

	"feeportal/config"
	"feeportal/internal/domain"
	"feeportal/internal/models"
	"feeportal/internal/report"

	"gopkg.in/gomail.v2"
)

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// ReceiptMailer queues successful payments and mails a PDF receipt for each
// from a single background worker. Run must be started for mail to go out.
type ReceiptMailer struct {
	from   string
	dialer sender
	queue  chan models.OrderWithStatus
}

// NewReceiptMailer returns nil when no SMTP host is configured.
func NewReceiptMailer(cfg *config.MailConfig) *ReceiptMailer {
	if cfg.Host == "" {
		return nil
	}
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	return newReceiptMailer(from, gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass), cfg.QueueSize)
}

func newReceiptMailer(from string, d sender, queueSize int) *ReceiptMailer {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &ReceiptMailer{from: from, dialer: d, queue: make(chan models.OrderWithStatus, queueSize)}
}

// StatusChanged enqueues successful payments. It never blocks the caller.
func (m *ReceiptMailer) StatusChanged(_ context.Context, view models.OrderWithStatus) {
	if m == nil || view.Status != domain.StatusSuccess || view.StudentInfo.Email == "" {
		return
	}
	select {
	case m.queue <- view:
	default:
		log.Printf("[mail] queue full, dropping receipt for order_id=%s", view.OrderID)
	}
}

// Run sends queued receipts until ctx is done.
func (m *ReceiptMailer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-m.queue:
			if err := m.send(v); err != nil {
				log.Printf("[mail] receipt for order_id=%s to %s failed: %v", v.OrderID, v.StudentInfo.Email, err)
				continue
			}
			log.Printf("[mail] receipt sent order_id=%s", v.OrderID)
		}
	}
}

var receiptBody = template.Must(template.New("receipt").Parse(
	`<p>Dear {{.StudentInfo.Name}},</p>
<p>We have received your fee payment of <b>{{printf "%.2f" .TransactionAmount}}</b> (order {{.CustomOrderID}}).</p>
<p>Your receipt is attached.</p>`))

func (m *ReceiptMailer) buildMessage(v models.OrderWithStatus) (*gomail.Message, error) {
	var pdf bytes.Buffer
	if err := report.WriteReceiptPDF(&pdf, v); err != nil {
		return nil, err
	}
	var body bytes.Buffer
	if err := receiptBody.Execute(&body, v); err != nil {
		return nil, err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", v.StudentInfo.Email)
	msg.SetHeader("Subject", fmt.Sprintf("Fee payment receipt %s", v.CustomOrderID))
	msg.SetBody("text/html", body.String())
	data := pdf.Bytes()
	msg.Attach(fmt.Sprintf("receipt_%s.pdf", v.CustomOrderID), gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}))
	return msg, nil
}

func (m *ReceiptMailer) send(v models.OrderWithStatus) error {
	msg, err := m.buildMessage(v)
	if err != nil {
		return err
	}
	return m.dialer.DialAndSend(msg)
}
