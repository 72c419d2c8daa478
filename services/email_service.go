package services

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/gomail.v2"

	"schoolcoop/config"
	"schoolcoop/utils"
)

// Notifier отправляет участникам письма о проведенных операциях
type Notifier interface {
	SendCatchUpReceipt(to string, result *CatchUpResult) error
	SendLoanPaidNotification(to string, loanID uint) error
	SendAccountClosedNotification(to string, closure ClosureResult) error
}

// EmailService предоставляет методы для отправки email
type EmailService struct {
	dialer  *gomail.Dialer
	from    string
	enabled bool
}

// NewEmailService создает новый экземпляр EmailService
func NewEmailService(cfg *config.Config) *EmailService {
	dialer := gomail.NewDialer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
	)

	return &EmailService{
		dialer:  dialer,
		from:    cfg.SMTP.From,
		enabled: cfg.MailEnabled(),
	}
}

// SendEmail отправляет email. Без настроенного SMTP письмо только пишется в лог.
func (s *EmailService) SendEmail(to, subject, body string) error {
	if to == "" {
		return nil
	}
	if !s.enabled {
		utils.LogDebug("email to %s skipped, SMTP is not configured: %s", to, subject)
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("ошибка отправки email: %w", err)
	}

	return nil
}

// SendCatchUpReceipt отправляет квитанцию о погашении задолженности
func (s *EmailService) SendCatchUpReceipt(to string, result *CatchUpResult) error {
	return s.SendEmail(to, "Квитанция о погашении задолженности", catchUpReceiptBody(result))
}

// SendLoanPaidNotification отправляет уведомление о погашении займа
func (s *EmailService) SendLoanPaidNotification(to string, loanID uint) error {
	return s.SendEmail(to, "Ваш заем полностью погашен", loanPaidBody(loanID))
}

// SendAccountClosedNotification отправляет расчет выплаты при закрытии счета
func (s *EmailService) SendAccountClosedNotification(to string, closure ClosureResult) error {
	return s.SendEmail(to, "Ваш счет в кассе взаимопомощи закрыт", accountClosedBody(closure))
}

// Все подставляемые в HTML значения проходят через html.EscapeString:
// имя участника и номер операции приходят из запроса.

func catchUpReceiptBody(result *CatchUpResult) string {
	var rows strings.Builder
	if result.Saving != nil {
		fmt.Fprintf(&rows, "<p>Сбережения: %s</p>", money(result.Saving.Amount))
	}
	for _, share := range result.Shares {
		fmt.Fprintf(&rows, "<p>Паи (тип #%d): %d шт. на %s</p>",
			share.ShareTypeID, share.NumberOfShares, money(share.AllocatedValue()))
	}
	for _, charge := range result.PaidCharges {
		fmt.Fprintf(&rows, "<p>Оплачен сбор от %s: %s</p>",
			html.EscapeString(charge.DateApplied.Format("02.01.2006")), money(charge.AmountCharged))
	}

	return fmt.Sprintf(`
		<h2>Квитанция о погашении задолженности</h2>
		<p>Участник: %s</p>
		<p>Номер операции: %s</p>
		%s
		<p>Дата: %s</p>
	`, html.EscapeString(result.MemberName), html.EscapeString(result.BatchRef), rows.String(),
		html.EscapeString(result.PaymentDate.Format("02.01.2006")))
}

func loanPaidBody(loanID uint) string {
	return fmt.Sprintf(`
		<h2>Поздравляем!</h2>
		<p>Ваш заем #%d был успешно погашен.</p>
		<p>С уважением,<br>Касса взаимопомощи</p>
	`, loanID)
}

func accountClosedBody(closure ClosureResult) string {
	return fmt.Sprintf(`
		<h2>Счет закрыт</h2>
		<p>Сбережения: %s</p>
		<p>Стоимость паев: %s</p>
		<p>Удержано сборов: %s</p>
		<p>К выплате: %s</p>
		<p>Дата: %s</p>
	`, money(closure.SavingsBalance), money(closure.ShareValue), money(closure.ChargesSettled),
		money(closure.Payout), html.EscapeString(closure.ClosedAt.Format("02.01.2006 15:04:05")))
}

func money(d decimal.Decimal) string {
	return html.EscapeString(d.StringFixed(2))
}

// notify вызывает отправку и только логирует ошибку: письмо не должно влиять на операцию
func notify(what string, send func() error) {
	start := time.Now()
	if err := send(); err != nil {
		utils.LogError("ошибка при отправке уведомления (%s): %v", what, err)
		return
	}
	utils.LogDebug("notification %s sent in %v", what, time.Since(start))
}
