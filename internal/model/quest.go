package model

import "time"

type ProofVendor string

const (
	VendorTwitter  ProofVendor = "twitter"
	VendorTelegram ProofVendor = "telegram"
	VendorDiscord  ProofVendor = "discord"
	VendorLink     ProofVendor = "link"
)

func (v ProofVendor) Valid() bool {
	switch v {
	case VendorTwitter, VendorTelegram, VendorDiscord, VendorLink:
		return true
	}
	return false
}

type ProofStatus string

const (
	ProofPending  ProofStatus = "pending"
	ProofApproved ProofStatus = "approved"
)

type Quest struct {
	ID            string
	Title         string
	Description   string
	XP            float64
	RequiresProof bool
}

// QuestProof is ephemeral evidence keyed by (wallet, quest). Resubmission
// overwrites the previous record.
type QuestProof struct {
	ID        string
	Wallet    string
	QuestID   string
	Vendor    ProofVendor
	URL       string
	Status    ProofStatus
	UpdatedAt time.Time
}
