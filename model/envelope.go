package model

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

type (
	EnvelopeType string

	// Envelope is the tagged union of every relay message. Parse into the
	// variant, route on the label; no dispatch through virtual calls.
	Envelope interface {
		Label() string
		UnmarshalJSON([]byte) error
		MarshalJSON() ([]byte, error)
	}

	EventEnvelope struct {
		SubscriptionID *string
		Event          Event
	}

	ReqEnvelope struct {
		SubscriptionID string
		Filters        Filters
	}

	CloseEnvelope string

	ClosedEnvelope struct {
		SubscriptionID string
		Reason         string
	}

	EOSEEnvelope string

	NoticeEnvelope string

	OKEnvelope struct {
		EventID string
		OK      bool
		Reason  string
	}

	AuthEnvelope struct {
		Challenge *string
		Event     *Event
	}
)

const (
	EnvelopeTypeEvent  EnvelopeType = "EVENT"
	EnvelopeTypeReq    EnvelopeType = "REQ"
	EnvelopeTypeNotice EnvelopeType = "NOTICE"
	EnvelopeTypeEOSE   EnvelopeType = "EOSE"
	EnvelopeTypeOK     EnvelopeType = "OK"
	EnvelopeTypeAuth   EnvelopeType = "AUTH"
	EnvelopeTypeClosed EnvelopeType = "CLOSED"
	EnvelopeTypeClose  EnvelopeType = "CLOSE"
)

// ParseMessage decodes one wire frame into its envelope variant.
func ParseMessage(message []byte) (Envelope, error) {
	r := gjson.ParseBytes(message)
	if !r.IsArray() {
		return nil, errors.Wrap(ErrUnknownMessage, "frame is not a json array")
	}
	arr := r.Array()
	if len(arr) == 0 || arr[0].Type != gjson.String {
		return nil, errors.Wrap(ErrUnknownMessage, "missing label")
	}

	var e Envelope
	switch EnvelopeType(arr[0].Str) {
	case EnvelopeTypeEvent:
		e = new(EventEnvelope)
	case EnvelopeTypeReq:
		e = new(ReqEnvelope)
	case EnvelopeTypeClose:
		e = new(CloseEnvelope)
	case EnvelopeTypeClosed:
		e = new(ClosedEnvelope)
	case EnvelopeTypeEOSE:
		e = new(EOSEEnvelope)
	case EnvelopeTypeNotice:
		e = new(NoticeEnvelope)
	case EnvelopeTypeOK:
		e = new(OKEnvelope)
	case EnvelopeTypeAuth:
		e = new(AuthEnvelope)
	default:
		return nil, errors.Wrapf(ErrUnknownMessage, "label %q", arr[0].Str)
	}
	if err := e.UnmarshalJSON(message); err != nil {
		return nil, errors.Wrapf(ErrParseMessage, "%v envelope: %v", arr[0].Str, err)
	}

	return e, nil
}

func (*EventEnvelope) Label() string { return string(EnvelopeTypeEvent) }

func (v *EventEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	switch len(arr) {
	case 2:
		return v.Event.UnmarshalJSON([]byte(arr[1].Raw))
	case 3:
		v.SubscriptionID = &arr[1].Str

		return v.Event.UnmarshalJSON([]byte(arr[2].Raw))
	default:
		return errors.New("failed to decode EVENT envelope")
	}
}

func (v *EventEnvelope) MarshalJSON() ([]byte, error) {
	if v.SubscriptionID != nil {
		return json.Marshal([]any{EnvelopeTypeEvent, *v.SubscriptionID, &v.Event})
	}

	return json.Marshal([]any{EnvelopeTypeEvent, &v.Event})
}

func (*ReqEnvelope) Label() string { return string(EnvelopeTypeReq) }

func (v *ReqEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 3 {
		return errors.New("failed to decode REQ envelope: missing filters")
	}
	v.SubscriptionID = arr[1].Str
	v.Filters = make(Filters, len(arr)-2)
	for i := 2; i < len(arr); i++ {
		if err := v.Filters[i-2].UnmarshalJSON([]byte(arr[i].Raw)); err != nil {
			return errors.Wrapf(err, "on filter %d", i-2)
		}
	}

	return nil
}

func (v *ReqEnvelope) MarshalJSON() ([]byte, error) {
	data := []any{EnvelopeTypeReq, v.SubscriptionID}
	for i := range v.Filters {
		filterData, err := json.Marshal(v.Filters[i])
		if err != nil {
			return nil, err
		}
		data = append(data, json.RawMessage(filterData))
	}

	return json.Marshal(data)
}

func (*CloseEnvelope) Label() string { return string(EnvelopeTypeClose) }

func (v *CloseEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 2 {
		return errors.New("failed to decode CLOSE envelope")
	}
	*v = CloseEnvelope(arr[1].Str)

	return nil
}

func (v *CloseEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{EnvelopeTypeClose, string(*v)})
}

func (*ClosedEnvelope) Label() string { return string(EnvelopeTypeClosed) }

func (v *ClosedEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 3 {
		return errors.New("failed to decode CLOSED envelope")
	}
	v.SubscriptionID = arr[1].Str
	v.Reason = arr[2].Str

	return nil
}

func (v *ClosedEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{EnvelopeTypeClosed, v.SubscriptionID, v.Reason})
}

func (*EOSEEnvelope) Label() string { return string(EnvelopeTypeEOSE) }

func (v *EOSEEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 2 {
		return errors.New("failed to decode EOSE envelope")
	}
	*v = EOSEEnvelope(arr[1].Str)

	return nil
}

func (v *EOSEEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{EnvelopeTypeEOSE, string(*v)})
}

func (*NoticeEnvelope) Label() string { return string(EnvelopeTypeNotice) }

func (v *NoticeEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 2 {
		return errors.New("failed to decode NOTICE envelope")
	}
	*v = NoticeEnvelope(arr[1].Str)

	return nil
}

func (v *NoticeEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{EnvelopeTypeNotice, string(*v)})
}

func (*OKEnvelope) Label() string { return string(EnvelopeTypeOK) }

func (v *OKEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 3 {
		return errors.New("failed to decode OK envelope")
	}
	v.EventID = arr[1].Str
	v.OK = arr[2].Bool()
	if len(arr) > 3 {
		v.Reason = arr[3].Str
	}

	return nil
}

func (v *OKEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{EnvelopeTypeOK, v.EventID, v.OK, v.Reason})
}

func (*AuthEnvelope) Label() string { return string(EnvelopeTypeAuth) }

func (v *AuthEnvelope) UnmarshalJSON(data []byte) error {
	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 2 {
		return errors.New("failed to decode AUTH envelope")
	}
	if arr[1].IsObject() {
		v.Event = new(Event)

		return v.Event.UnmarshalJSON([]byte(arr[1].Raw))
	}
	v.Challenge = &arr[1].Str

	return nil
}

func (v *AuthEnvelope) MarshalJSON() ([]byte, error) {
	if v.Event != nil {
		return json.Marshal([]any{EnvelopeTypeAuth, v.Event})
	}
	challenge := ""
	if v.Challenge != nil {
		challenge = *v.Challenge
	}

	return json.Marshal([]any{EnvelopeTypeAuth, challenge})
}
