// internal/storage/models/record.go
package models

// WalletStateRecord is the SQL row holding one encoded WalletState.
type WalletStateRecord struct {
	BaseModel
	WalletID string `gorm:"primaryKey;type:varchar(64)"`
	Version  int64  `gorm:"not null"`
	Payload  []byte `gorm:"type:jsonb;not null"`
}

// TableName pins the table name.
func (WalletStateRecord) TableName() string {
	return "wallet_states"
}
