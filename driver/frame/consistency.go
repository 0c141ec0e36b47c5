package frame

import "fmt"

// --------------------------------------------------------------------------
// Consistency Level Definition
// --------------------------------------------------------------------------

// Consistency is the number/quorum of replicas that must acknowledge an
// operation before it is considered successful.
type Consistency uint16

const (
	Any         Consistency = 0x00
	One         Consistency = 0x01
	Two         Consistency = 0x02
	Three       Consistency = 0x03
	Quorum      Consistency = 0x04
	All         Consistency = 0x05
	LocalQuorum Consistency = 0x06
	EachQuorum  Consistency = 0x07
	LocalOne    Consistency = 0x0A
)

// String returns the string representation of a Consistency.
func (c Consistency) String() string {
	switch c {
	case Any:
		return "ANY"
	case One:
		return "ONE"
	case Two:
		return "TWO"
	case Three:
		return "THREE"
	case Quorum:
		return "QUORUM"
	case All:
		return "ALL"
	case LocalQuorum:
		return "LOCAL_QUORUM"
	case EachQuorum:
		return "EACH_QUORUM"
	case LocalOne:
		return "LOCAL_ONE"
	default:
		return fmt.Sprintf("UNKNOWN_CONS_0x%x", uint16(c))
	}
}

// ParseConsistency converts a string to a Consistency, returning an error
// for unknown levels.
func ParseConsistency(s string) (Consistency, error) {
	switch s {
	case "ANY":
		return Any, nil
	case "ONE":
		return One, nil
	case "TWO":
		return Two, nil
	case "THREE":
		return Three, nil
	case "QUORUM":
		return Quorum, nil
	case "ALL":
		return All, nil
	case "LOCAL_QUORUM":
		return LocalQuorum, nil
	case "EACH_QUORUM":
		return EachQuorum, nil
	case "LOCAL_ONE":
		return LocalOne, nil
	default:
		return 0, fmt.Errorf("invalid consistency %q", s)
	}
}
