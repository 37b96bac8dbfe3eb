package events

import (
	"testing"

	"github.com/holiman/uint256"

	"stakevault/crypto"
)

func TestTokenSupplyEvent(t *testing.T) {
	evt := TokenSupply{
		Token:  "stake",
		Total:  uint256.NewInt(5000),
		Delta:  uint256.NewInt(250),
		Reason: SupplyReasonMint,
	}.Event()
	if evt == nil {
		t.Fatalf("expected event")
	}
	if evt.Type != TypeTokenSupply {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["token"] != "STAKE" {
		t.Fatalf("unexpected token attr: %s", evt.Attributes["token"])
	}
	if evt.Attributes["total"] != "5000" || evt.Attributes["delta"] != "250" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["reason"] != SupplyReasonMint {
		t.Fatalf("unexpected reason: %s", evt.Attributes["reason"])
	}
}

func TestStakeWithdrawnEventAttributes(t *testing.T) {
	account := crypto.DeriveModuleAddress("withdrawer")
	evt := StakeWithdrawn{
		Account:         account,
		Slot:            3,
		Amount:          uint256.NewInt(970),
		Fee:             uint256.NewInt(30),
		NewBalance:      new(uint256.Int),
		AccruedEmission: nil,
		Forced:          true,
		Timestamp:       1700000000,
	}.Event()
	if evt.Type != TypeStakeWithdrawn {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attr("addr") != account.String() || evt.Attr("slot") != "3" {
		t.Fatalf("unexpected identity attrs: %+v", evt.Attributes)
	}
	if evt.Attr("amount") != "970" || evt.Attr("fee") != "30" || evt.Attr("accrued") != "0" {
		t.Fatalf("unexpected amount attrs: %+v", evt.Attributes)
	}
	if evt.Attr("forced") != "true" {
		t.Fatalf("expected forced flag")
	}
	if evt.Timestamp != 1700000000 {
		t.Fatalf("unexpected timestamp: %d", evt.Timestamp)
	}
}

func TestRecorderAndFanout(t *testing.T) {
	first := &Recorder{}
	second := &Recorder{}
	fan := Fanout{first, nil, second}
	fan.Emit(StakeWithdrawalRequested{Slot: 1})
	fan.Emit(StakeWithdrawalRequested{Slot: 2})
	if len(first.Events()) != 2 || len(second.Events()) != 2 {
		t.Fatalf("expected both recorders to receive events")
	}
	first.Reset()
	if len(first.Events()) != 0 {
		t.Fatalf("expected reset recorder to be empty")
	}
}
