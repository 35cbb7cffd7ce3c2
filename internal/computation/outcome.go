package computation

import (
	"encoding/json"

	errorsmod "cosmossdk.io/errors"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusTimeout Status = "timeout"
)

// Outcome is the closed set {Success, Failure, Timeout}. Consumers switch on
// the concrete type.
type Outcome interface {
	Status() Status
	isOutcome()
}

type Success struct {
	Fields []ResultField
}

type Failure struct {
	Reason string
}

type Timeout struct{}

func (Success) Status() Status { return StatusSuccess }
func (Failure) Status() Status { return StatusFailure }
func (Timeout) Status() Status { return StatusTimeout }

func (Success) isOutcome() {}
func (Failure) isOutcome() {}
func (Timeout) isOutcome() {}

// Envelope is the wire form of an Outcome. A split success carries the
// binary head in Payload instead of Fields.
type Envelope struct {
	Status  Status        `json:"status"`
	Fields  []ResultField `json:"fields,omitempty"`
	Payload []byte        `json:"payload,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

func NewEnvelope(o Outcome) Envelope {
	switch o := o.(type) {
	case Success:
		return Envelope{Status: StatusSuccess, Fields: o.Fields}
	case Failure:
		return Envelope{Status: StatusFailure, Reason: o.Reason}
	case Timeout:
		return Envelope{Status: StatusTimeout}
	default:
		return Envelope{}
	}
}

// Outcome converts an envelope that carries a complete result.
func (e Envelope) Outcome() (Outcome, error) {
	switch e.Status {
	case StatusSuccess:
		if len(e.Payload) > 0 {
			if len(e.Fields) > 0 {
				return nil, errorsmod.Wrap(ErrMalformedOutcome, "both fields and payload set")
			}
			fields, err := UnmarshalFields(e.Payload)
			if err != nil {
				return nil, err
			}
			return Success{Fields: fields}, nil
		}
		return Success{Fields: e.Fields}, nil
	case StatusFailure:
		return Failure{Reason: e.Reason}, nil
	case StatusTimeout:
		return Timeout{}, nil
	default:
		return nil, errorsmod.Wrapf(ErrMalformedOutcome, "unknown status %q", e.Status)
	}
}

func EncodeOutcome(o Outcome) ([]byte, error) {
	return json.Marshal(NewEnvelope(o))
}

func DecodeOutcome(b []byte) (Outcome, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errorsmod.Wrap(ErrMalformedOutcome, err.Error())
	}
	return env.Outcome()
}
