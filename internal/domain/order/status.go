package order

// Status is the fulfillment state of an order.
type Status string

const (
	StatusReceived   Status = "Received"
	StatusConfirmed  Status = "Confirmed"
	StatusDispatched Status = "Dispatched"
	StatusDelivered  Status = "Delivered"
	StatusOnHold     Status = "On-Hold"
	StatusCancelled  Status = "Cancelled"
	StatusSpammed    Status = "Spammed"
)

// Statuses lists every accepted status.
var Statuses = []Status{
	StatusReceived,
	StatusConfirmed,
	StatusDispatched,
	StatusDelivered,
	StatusOnHold,
	StatusCancelled,
	StatusSpammed,
}

// Valid reports whether s is one of Statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// transitions is only consulted when transition enforcement is enabled.
// Delivered, Cancelled and Spammed are terminal.
var transitions = map[Status][]Status{
	StatusReceived:   {StatusConfirmed, StatusOnHold, StatusCancelled, StatusSpammed},
	StatusConfirmed:  {StatusDispatched, StatusOnHold, StatusCancelled},
	StatusOnHold:     {StatusConfirmed, StatusCancelled},
	StatusDispatched: {StatusDelivered, StatusCancelled},
}

// CanTransition reports whether from may move to to. Setting the current
// status again is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
