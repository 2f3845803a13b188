package payment

import (
	"encoding/base64"
	"math/big"
	"strings"

	"github.com/goccy/go-json"
)

// Transaction is the canonical shape every accepted upstream payload is
// normalized into before any verification rule runs.
type Transaction struct {
	// IDs holds every candidate identifier extracted from the raw payload:
	// top-level hash, transaction-id hash, transaction-id logical time and
	// inbound-message hashes. A claimed hash matches if it equals any of
	// them case-insensitively.
	IDs         []string
	Destination string
	Amount      *big.Int
	Comment     string
	Utime       int64
}

// Matches reports whether the claimed hash equals any candidate identifier.
func (t Transaction) Matches(hash string) bool {
	for _, id := range t.IDs {
		if id != "" && strings.EqualFold(id, hash) {
			return true
		}
	}
	return false
}

// flexString tolerates upstream fields that arrive either as JSON strings or
// bare numbers depending on provider quirks.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	*f = flexString(s)
	return nil
}

type rawTransactionID struct {
	Hash string     `json:"hash"`
	LT   flexString `json:"lt"`
}

type rawAddress struct {
	AccountAddress string `json:"account_address"`
}

type rawMessageData struct {
	Text string `json:"text"`
	Body string `json:"body"`
}

type rawMessage struct {
	Hash        string          `json:"hash"`
	BodyHash    string          `json:"body_hash"`
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	Value       flexString      `json:"value"`
	Amount      flexString      `json:"amount"`
	Comment     string          `json:"comment"`
	MsgData     *rawMessageData `json:"msg_data"`
}

type rawTransaction struct {
	Hash          string            `json:"hash"`
	TransactionID *rawTransactionID `json:"transaction_id"`
	Account       string            `json:"account"`
	Address       *rawAddress       `json:"address"`
	Value         flexString        `json:"value"`
	Utime         int64             `json:"utime"`
	InMsg         *rawMessage       `json:"in_msg"`
}

func normalize(raw rawTransaction) Transaction {
	tx := Transaction{Utime: raw.Utime}

	if raw.Hash != "" {
		tx.IDs = append(tx.IDs, raw.Hash)
	}
	if raw.TransactionID != nil {
		if raw.TransactionID.Hash != "" {
			tx.IDs = append(tx.IDs, raw.TransactionID.Hash)
		}
		if raw.TransactionID.LT != "" {
			tx.IDs = append(tx.IDs, string(raw.TransactionID.LT))
		}
	}
	if raw.InMsg != nil {
		if raw.InMsg.Hash != "" {
			tx.IDs = append(tx.IDs, raw.InMsg.Hash)
		}
		if raw.InMsg.BodyHash != "" {
			tx.IDs = append(tx.IDs, raw.InMsg.BodyHash)
		}
	}

	switch {
	case raw.InMsg != nil && raw.InMsg.Destination != "":
		tx.Destination = raw.InMsg.Destination
	case raw.Account != "":
		tx.Destination = raw.Account
	case raw.Address != nil:
		tx.Destination = raw.Address.AccountAddress
	}

	tx.Amount = big.NewInt(0)
	var amount flexString
	switch {
	case raw.InMsg != nil && raw.InMsg.Value != "":
		amount = raw.InMsg.Value
	case raw.InMsg != nil && raw.InMsg.Amount != "":
		amount = raw.InMsg.Amount
	default:
		amount = raw.Value
	}
	if amount != "" {
		// Native smallest units must stay integral; parsing through a
		// float would truncate large ledger values.
		if v, ok := new(big.Int).SetString(string(amount), 10); ok {
			tx.Amount = v
		}
	}

	tx.Comment = extractComment(raw.InMsg)
	return tx
}

func extractComment(msg *rawMessage) string {
	if msg == nil {
		return ""
	}
	if msg.Comment != "" {
		return msg.Comment
	}
	if msg.MsgData == nil {
		return ""
	}
	body := msg.MsgData.Text
	if body == "" {
		body = msg.MsgData.Body
	}
	if body == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(decoded), "\x00")
}
