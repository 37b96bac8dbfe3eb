package events

import (
	"strings"

	"github.com/holiman/uint256"

	"stakevault/core/types"
	"stakevault/crypto"
)

const (
	// TypeTransfer is emitted for every token balance movement.
	TypeTransfer = "token.transfer"
)

type Transfer struct {
	Token     string
	From      crypto.Address
	To        crypto.Address
	Amount    *uint256.Int
	Timestamp uint64
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{}
	if token := strings.ToUpper(strings.TrimSpace(e.Token)); token != "" {
		attrs["token"] = token
	}
	attrs["from"] = e.From.String()
	attrs["to"] = e.To.String()
	attrs["amount"] = formatAmount(e.Amount)
	return &types.Event{Type: TypeTransfer, Attributes: attrs, Timestamp: e.Timestamp}
}
