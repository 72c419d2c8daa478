package models

// DepositChannel - канал поступления денег
type DepositChannel string

const (
	DepositChannelCash   DepositChannel = "Cash"
	DepositChannelBank   DepositChannel = "Bank"
	DepositChannelWallet DepositChannel = "Wallet"
)

// DepositDetails - метаданные канала, сохраняются как есть
type DepositDetails struct {
	Channel        DepositChannel `gorm:"column:deposit_channel;type:varchar(10)" json:"channel,omitempty"`
	SourceName     string         `gorm:"column:source_name;size:100" json:"sourceName,omitempty"`
	TransactionRef string         `gorm:"column:transaction_ref;size:100" json:"transactionRef,omitempty"`
	EvidenceRef    string         `gorm:"column:evidence_ref;size:255" json:"evidenceRef,omitempty"`
}
