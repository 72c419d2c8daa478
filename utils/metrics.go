package utils

import (
	"sync"
	"time"
)

// Operation - учитываемая метриками операция кассы
type Operation string

const (
	OpCatchUpPayment     Operation = "catch_up_payment"
	OpSavingApproved     Operation = "saving_approved"
	OpShareApproved      Operation = "share_approved"
	OpLoanIssued         Operation = "loan_issued"
	OpLoanRepayment      Operation = "loan_repayment"
	OpInstallmentOverdue Operation = "installment_overdue"
	OpDividendsPaid      Operation = "dividends_distributed"
	OpAccountClosed      Operation = "account_closed"
	OpOverdueReport      Operation = "overdue_report"
)

// Metrics содержит метрики приложения
type Metrics struct {
	mu sync.RWMutex

	// Метрики запросов
	TotalRequests   int64
	FailedRequests  int64
	RequestLatency  time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time

	// Метрики операций
	Operations      map[Operation]int64
	LastOperationAt time.Time

	// Метрики ошибок
	ErrorCount    int64
	LastErrorTime time.Time
	ErrorTypes    map[string]int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics возвращает экземпляр метрик
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics()
	})
	return metrics
}

// NewMetrics создает пустой набор метрик
func NewMetrics() *Metrics {
	return &Metrics{
		Operations: make(map[Operation]int64),
		ErrorTypes: make(map[string]int64),
	}
}

// RecordRequest записывает метрики запроса. failed - ответ со статусом 5xx.
func (m *Metrics) RecordRequest(duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = time.Now()

	if failed {
		m.FailedRequests++
	}
}

// RecordOperation записывает выполнение операции кассы
func (m *Metrics) RecordOperation(op Operation, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.recordErrorLocked(string(op) + ": " + err.Error())
		return
	}
	m.Operations[op]++
	m.LastOperationAt = time.Now()
}

// RecordError записывает метрики ошибки
func (m *Metrics) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	errorType := "unknown"
	if err != nil {
		errorType = err.Error()
	}
	m.recordErrorLocked(errorType)
}

func (m *Metrics) recordErrorLocked(errorType string) {
	m.ErrorCount++
	m.LastErrorTime = time.Now()
	m.ErrorTypes[errorType]++
}

// OperationCount возвращает число успешных операций данного типа
func (m *Metrics) OperationCount(op Operation) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Operations[op]
}

// GetMetricsSnapshot возвращает снимок текущих метрик
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	operations := make(map[string]int64, len(m.Operations))
	for op, n := range m.Operations {
		operations[string(op)] = n
	}
	errorTypes := make(map[string]int64, len(m.ErrorTypes))
	for t, n := range m.ErrorTypes {
		errorTypes[t] = n
	}

	return map[string]interface{}{
		"total_requests":    m.TotalRequests,
		"failed_requests":   m.FailedRequests,
		"average_latency":   m.AverageLatency.String(),
		"operations":        operations,
		"last_operation_at": m.LastOperationAt,
		"error_count":       m.ErrorCount,
		"last_error_time":   m.LastErrorTime,
		"error_types":       errorTypes,
	}
}

// ResetMetrics сбрасывает все метрики
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests = 0
	m.FailedRequests = 0
	m.RequestLatency = 0
	m.AverageLatency = 0
	m.ErrorCount = 0
	m.Operations = make(map[Operation]int64)
	m.ErrorTypes = make(map[string]int64)
}
