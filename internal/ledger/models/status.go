package models

import (
	"strconv"
	"strings"

	dErrors "provenance/pkg/domain-errors"
)

// BatchStatus is the lifecycle position of a batch. Ordinals are stable and
// exchanged with external systems.
type BatchStatus uint8

const (
	StatusInProduction BatchStatus = iota
	StatusInInspection
	StatusInTransit
	StatusAtDistributor
	StatusAtRetailer
	StatusRecalled
	StatusDisposed
	StatusSold
)

var batchStatusNames = [...]string{
	StatusInProduction:  "in_production",
	StatusInInspection:  "in_inspection",
	StatusInTransit:     "in_transit",
	StatusAtDistributor: "at_distributor",
	StatusAtRetailer:    "at_retailer",
	StatusRecalled:      "recalled",
	StatusDisposed:      "disposed",
	StatusSold:          "sold",
}

// forwardRank orders the supply-chain statuses. Statuses absent from the map
// are off the forward path.
var forwardRank = map[BatchStatus]int{
	StatusInProduction:  0,
	StatusInInspection:  1,
	StatusInTransit:     2,
	StatusAtDistributor: 3,
	StatusAtRetailer:    4,
	StatusSold:          5,
}

func (s BatchStatus) String() string {
	if int(s) < len(batchStatusNames) {
		return batchStatusNames[s]
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

func (s BatchStatus) IsValid() bool { return int(s) < len(batchStatusNames) }

// IsTerminal reports whether no further mutation of the batch is permitted.
func (s BatchStatus) IsTerminal() bool { return s == StatusDisposed }

// ParseBatchStatus accepts either the snake_case name or the ordinal.
func ParseBatchStatus(raw string) (BatchStatus, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.ParseUint(raw, 10, 8); err == nil {
		s := BatchStatus(n)
		if !s.IsValid() {
			return 0, dErrors.Newf(dErrors.CodeInvalidInput, "status ordinal %d is out of range", n)
		}
		return s, nil
	}
	for i, name := range batchStatusNames {
		if name == raw {
			return BatchStatus(i), nil
		}
	}
	return 0, dErrors.Newf(dErrors.CodeInvalidInput, "unknown batch status %q", raw)
}

func (s BatchStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *BatchStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseBatchStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CanTransitionTo checks a requested status update.
//
// Disposed is terminal and rejected as InvalidState. Any other status may move
// to Recalled. Along the supply-chain path a batch may only move forward,
// possibly skipping steps. Disposed is never a valid target here; it is
// reached only by returning a recalled batch.
func (s BatchStatus) CanTransitionTo(next BatchStatus) error {
	if !next.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "status ordinal %d is out of range", uint8(next))
	}
	if s.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "batch is disposed")
	}
	if next == StatusRecalled {
		return nil
	}
	if next == StatusDisposed {
		return dErrors.New(dErrors.CodeInvalidTransition, "batch can only be disposed by returning recalled goods")
	}
	from, onPath := forwardRank[s]
	if !onPath {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot move from %s to %s", s, next)
	}
	if forwardRank[next] <= from {
		return dErrors.Newf(dErrors.CodeInvalidTransition, "cannot move from %s back to %s", s, next)
	}
	return nil
}

// InspectionStatus is the outcome of an inspector assignment.
type InspectionStatus uint8

const (
	InspectionPending InspectionStatus = iota
	InspectionApproved
	InspectionRejected
)

var inspectionStatusNames = [...]string{"pending", "approved", "rejected"}

func (s InspectionStatus) String() string {
	if int(s) < len(inspectionStatusNames) {
		return inspectionStatusNames[s]
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// ParseInspectionStatus accepts a name or ordinal.
func ParseInspectionStatus(raw string) (InspectionStatus, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.ParseUint(raw, 10, 8); err == nil && int(n) < len(inspectionStatusNames) {
		return InspectionStatus(n), nil
	}
	for i, name := range inspectionStatusNames {
		if name == raw {
			return InspectionStatus(i), nil
		}
	}
	return 0, dErrors.Newf(dErrors.CodeInvalidInput, "unknown inspection status %q", raw)
}

func (s InspectionStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *InspectionStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseInspectionStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ReturnStatus tracks a buyer's return request.
type ReturnStatus uint8

const (
	ReturnPending ReturnStatus = iota
	ReturnApproved
	ReturnDenied
)

var returnStatusNames = [...]string{"pending", "approved", "denied"}

func (s ReturnStatus) String() string {
	if int(s) < len(returnStatusNames) {
		return returnStatusNames[s]
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

func (s ReturnStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ReturnStatus) UnmarshalText(text []byte) error {
	for i, name := range returnStatusNames {
		if name == string(text) {
			*s = ReturnStatus(i)
			return nil
		}
	}
	return dErrors.Newf(dErrors.CodeInvalidInput, "unknown return status %q", string(text))
}
