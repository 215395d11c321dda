package paramspec

import "fmt"

// Kind identifies which Parameter variant a descriptor describes.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindChoice
	KindMulti
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindChoice:
		return "choice"
	case KindMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// GroupName identifies one of the fixed parameter groups a camera exposes.
type GroupName string

const (
	GroupExposure GroupName = "Exposure"
	GroupPaint    GroupName = "Paint"
	GroupTally    GroupName = "Tally"
	GroupCamera   GroupName = "Camera"
	GroupNTP      GroupName = "NTP"
	GroupBattery  GroupName = "Battery"
	GroupLens     GroupName = "Lens"
)

// PollDescriptor declares the HTTP GET used to fetch a group's wire state
// and maps response JSON fields onto parameter names within the group.
type PollDescriptor struct {
	Path string
}

// IntRange bounds an IntValue parameter; Step of 0 means any step is valid.
type IntRange struct {
	Min, Max, Step int
}

func (r IntRange) Contains(v int) bool {
	if v < r.Min || v > r.Max {
		return false
	}
	if r.Step > 0 && (v-r.Min)%r.Step != 0 {
		return false
	}
	return true
}

// SetRequest is a rendered wire request for applying a value.
type SetRequest struct {
	Method string
	Path   string
}

// SetDescriptor declares how a user-intended value becomes an HTTP request.
// Camera control APIs of this family encode writes as query parameters on
// a GET/PUT-style endpoint; BuildRequest renders that string.
type SetDescriptor struct {
	BuildRequest func(value interface{}) (SetRequest, error)

	// RejectInMode names another parameter in the same group (by name)
	// whose current ChoiceValue equal to RejectValue means this parameter
	// must reject local writes without any HTTP traffic (spec.md §4.C:
	// iris writes rejected while iris.mode == "auto").
	RejectInMode string
	RejectValue  string
}

// Descriptor is the full declaration for one named parameter.
type Descriptor struct {
	Group GroupName
	Name  string
	Kind  Kind

	// WireField is the poll-response field this parameter reads from, for
	// Bool/Int/Choice kinds.
	WireField string
	Enum      []string
	Range     IntRange

	// MultiWireFields names the poll-response fields a MultiParameter
	// derives from; they always change together in one poll response.
	MultiWireFields []string
	Derive          func(wire map[string]interface{}) (interface{}, error)

	Set *SetDescriptor // nil => read-only

	// ContinuousMotion marks a parameter as shuttle-capable: its Set value
	// is a signed deflection re-sent at the poll heartbeat until released,
	// rather than a one-shot absolute value (spec.md §4.D, §5 scenario 6).
	ContinuousMotion bool
}

// Validate checks a candidate value against this descriptor's static
// constraints (range/enum), without touching the network. This is the
// boundary check spec.md §8 requires: out-of-range IntValue writes are
// rejected locally.
func (d Descriptor) Validate(value interface{}) error {
	switch d.Kind {
	case KindBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("paramspec: %s: expected bool, got %T", d.Name, value)
		}
	case KindInt:
		iv, ok := value.(int)
		if !ok {
			return fmt.Errorf("paramspec: %s: expected int, got %T", d.Name, value)
		}
		if !d.Range.Contains(iv) {
			return fmt.Errorf("paramspec: %s: value %d outside range [%d,%d]", d.Name, iv, d.Range.Min, d.Range.Max)
		}
	case KindChoice:
		sv, ok := value.(string)
		if !ok {
			return fmt.Errorf("paramspec: %s: expected string, got %T", d.Name, value)
		}
		for _, e := range d.Enum {
			if e == sv {
				return nil
			}
		}
		return fmt.Errorf("paramspec: %s: value %q not in enum %v", d.Name, sv, d.Enum)
	case KindMulti:
		return fmt.Errorf("paramspec: %s: multi-parameters are read-only", d.Name)
	}
	return nil
}

// Group is a fixed, named set of parameters sharing one poll descriptor.
type Group struct {
	Name   GroupName
	Poll   PollDescriptor
	Params map[string]Descriptor
}
