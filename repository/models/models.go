package models

import "time"

// MirrorUser mirrors the on-ledger user records for relational queries. The
// ledger remains the source of truth; rows here are rewritten after every
// committed admin operation.
type MirrorUser struct {
	Address    string    `gorm:"column:metamask_address;primaryKey;type:varchar(66)"`
	Role       string    `gorm:"column:role;primaryKey;type:varchar(30)"`
	Name       string    `gorm:"column:name;type:varchar(100);not null"`
	IdentityID string    `gorm:"column:identity_id;type:varchar(100)"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// LedgerTransaction records every invocation that reached consensus, success
// or failure, keyed by the consensus transaction hash.
type LedgerTransaction struct {
	TxHash        string    `gorm:"column:tx_hash;primaryKey;type:varchar(66)"`
	BlockHeight   int64     `gorm:"column:block_height;not null;index"`
	Contract      string    `gorm:"column:contract;type:varchar(50);index;not null"`
	Op            string    `gorm:"column:op;type:varchar(50);not null"`
	CallerAddress string    `gorm:"column:caller_address;type:varchar(66);index"`
	CallerRole    string    `gorm:"column:caller_role;type:varchar(30)"`
	Code          uint32    `gorm:"column:code;not null"`
	Log           string    `gorm:"column:log;type:text"`
	Payload       string    `gorm:"column:payload;type:jsonb"`
	Timestamp     time.Time `gorm:"column:timestamp;not null"`
}
