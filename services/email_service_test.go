package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolcoop/config"
	"schoolcoop/models"
)

func TestCatchUpReceiptBody_EscapesMemberInput(t *testing.T) {
	body := catchUpReceiptBody(&CatchUpResult{
		BatchRef:    `"><img src=x onerror=alert(1)>`,
		MemberName:  "<script>alert('x')</script> O'Neil & Co",
		PaymentDate: day(2023, 4, 10),
		Saving:      &models.Saving{Amount: dec("300")},
	})

	assert.NotContains(t, body, "<script>")
	assert.NotContains(t, body, "<img")
	assert.Contains(t, body, "&lt;script&gt;alert(&#39;x&#39;)&lt;/script&gt; O&#39;Neil &amp; Co")
	assert.Contains(t, body, "&#34;&gt;&lt;img src=x onerror=alert(1)&gt;")
	assert.Contains(t, body, "<p>Сбережения: 300.00</p>")
	assert.Contains(t, body, "10.04.2023")
}

func TestAccountClosedBody(t *testing.T) {
	body := accountClosedBody(ClosureResult{
		ClosedAt:       time.Date(2023, 6, 30, 15, 4, 5, 0, time.UTC),
		SavingsBalance: dec("1200"),
		ShareValue:     dec("200"),
		ChargesSettled: dec("50"),
		Payout:         dec("1350"),
	})

	assert.Contains(t, body, "<p>К выплате: 1350.00</p>")
	assert.Contains(t, body, "30.06.2023 15:04:05")
}

func TestEmailService_SkipsWithoutSMTP(t *testing.T) {
	svc := NewEmailService(&config.Config{})

	require.NoError(t, svc.SendCatchUpReceipt("member@example.com", &CatchUpResult{MemberName: "Mary"}))
	require.NoError(t, svc.SendLoanPaidNotification("member@example.com", 7))
	require.NoError(t, svc.SendEmail("", "subject", "body"))
}
