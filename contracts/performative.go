package contracts

// Performative denotes the communicative intent of a message, independent of
// its payload. The fabric itself never branches on the performative; protocol
// layers interpret it (request-reply conventionally pairs Request with an
// Inform or Refuse reply).
type Performative string

const (
	Inform     Performative = "inform"
	Request    Performative = "request"
	Query      Performative = "query"
	Propose    Performative = "propose"
	Accept     Performative = "accept"
	Reject     Performative = "reject"
	Confirm    Performative = "confirm"
	Disconfirm Performative = "disconfirm"
	Subscribe  Performative = "subscribe"
	CFP        Performative = "cfp"
	Refuse     Performative = "refuse"
	Agree      Performative = "agree"
)

// Performatives returns all members of the enumeration.
func Performatives() []Performative {
	return []Performative{
		Inform, Request, Query, Propose, Accept, Reject,
		Confirm, Disconfirm, Subscribe, CFP, Refuse, Agree,
	}
}

// Valid reports whether p is a member of the closed enumeration.
func (p Performative) Valid() bool {
	switch p {
	case Inform, Request, Query, Propose, Accept, Reject,
		Confirm, Disconfirm, Subscribe, CFP, Refuse, Agree:
		return true
	default:
		return false
	}
}

// String returns the performative name.
func (p Performative) String() string {
	return string(p)
}
