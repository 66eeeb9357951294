package order

// OrderState implements the state pattern for order lifecycle transitions.
//
//	pending -> processing -> completed
//	   |           \-> failed
//	   \-> failed
type OrderState interface {
	Status() Status
	OnPaymentInitiated(o *Order, externalReference string) (OrderState, error)
	OnInitiationFailed(o *Order, reason string) (OrderState, error)
	OnPaymentSucceeded(o *Order, receipt string) (OrderState, error)
	OnPaymentFailed(o *Order, reason string) (OrderState, error)
}

func stateFor(s Status) OrderState {
	switch s {
	case StatusProcessing:
		return processingState{}
	case StatusCompleted:
		return completedState{}
	case StatusFailed:
		return failedState{}
	default:
		return pendingState{}
	}
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnPaymentInitiated(o *Order, externalReference string) (OrderState, error) {
	if externalReference == "" {
		return nil, ErrInvalidStateTransition
	}
	ref := externalReference
	o.ExternalReference = &ref
	return processingState{}, nil
}

func (pendingState) OnInitiationFailed(o *Order, reason string) (OrderState, error) {
	o.FailureReason = reason
	return failedState{}, nil
}

func (pendingState) OnPaymentSucceeded(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (pendingState) OnPaymentFailed(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

type processingState struct{}

func (processingState) Status() Status { return StatusProcessing }

func (processingState) OnPaymentInitiated(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (processingState) OnInitiationFailed(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (processingState) OnPaymentSucceeded(o *Order, receipt string) (OrderState, error) {
	if receipt != "" {
		r := receipt
		o.PaymentReceipt = &r
	}
	o.FailureReason = ""
	o.Stock = StockCommitting
	return completedState{}, nil
}

func (processingState) OnPaymentFailed(o *Order, reason string) (OrderState, error) {
	o.FailureReason = reason
	return failedState{}, nil
}

type completedState struct{}

func (completedState) Status() Status { return StatusCompleted }

func (completedState) OnPaymentInitiated(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (completedState) OnInitiationFailed(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (completedState) OnPaymentSucceeded(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (completedState) OnPaymentFailed(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

type failedState struct{}

func (failedState) Status() Status { return StatusFailed }

func (failedState) OnPaymentInitiated(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (failedState) OnInitiationFailed(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (failedState) OnPaymentSucceeded(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}

func (failedState) OnPaymentFailed(*Order, string) (OrderState, error) {
	return nil, ErrInvalidStateTransition
}
