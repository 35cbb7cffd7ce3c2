package computation

import (
	"crypto/sha256"
	"encoding/binary"
)

// Circuit names a confidential instruction the cluster knows how to run.
type Circuit string

const (
	CircuitShuffleAndDeal Circuit = "shuffle_and_deal"
	CircuitPlayerHit      Circuit = "player_hit"
	CircuitDoubleDown     Circuit = "player_double_down"
	CircuitPlayerStand    Circuit = "player_stand"
	CircuitDealerPlay     Circuit = "dealer_play"
	CircuitResolveGame    Circuit = "resolve_game"
)

// Circuits lists every registered circuit in deal order.
var Circuits = []Circuit{
	CircuitShuffleAndDeal,
	CircuitPlayerHit,
	CircuitDoubleDown,
	CircuitPlayerStand,
	CircuitDealerPlay,
	CircuitResolveGame,
}

func (c Circuit) Known() bool {
	for _, k := range Circuits {
		if k == c {
			return true
		}
	}
	return false
}

// CompDefID is the computation-definition id: the first four bytes of
// sha256(name), little-endian.
func (c Circuit) CompDefID() uint32 {
	sum := sha256.Sum256([]byte(c))
	return binary.LittleEndian.Uint32(sum[:4])
}

// CircuitByCompDef maps a computation-definition id back to its circuit.
func CircuitByCompDef(id uint32) (Circuit, bool) {
	for _, c := range Circuits {
		if c.CompDefID() == id {
			return c, true
		}
	}
	return "", false
}
