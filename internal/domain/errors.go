package domain

import "errors"

// Kind classifies an error for callers that need to react to its category.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindBadRequest
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindForbidden:
		return "FORBIDDEN"
	case KindConflict:
		return "CONFLICT"
	case KindBadRequest:
		return "BAD_REQUEST"
	default:
		return "INTERNAL"
	}
}

var (
	// Not found
	ErrFlightNotFound      = errors.New("flight not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrAircraftNotFound    = errors.New("aircraft not found")

	// Forbidden
	ErrForbidden = errors.New("you are not authorized to access this reservation")

	// Conflict
	ErrSeatUnavailable       = errors.New("seat unavailable, choose another")
	ErrNotPendingPayment     = errors.New("this reservation is not pending payment")
	ErrPaymentAlreadyStarted = errors.New("a payment has already been initiated for this reservation")
	ErrInvalidTransition     = errors.New("invalid reservation status transition")
	ErrFlightNotActive       = errors.New("flight is not active")
	ErrConcurrentUpdate      = errors.New("concurrent update, retry the request")

	// Bad request
	ErrNoSeatsRequested     = errors.New("at least one seat number is required")
	ErrDuplicateSeat        = errors.New("seat number requested more than once")
	ErrInvalidLayout        = errors.New("invalid seat map layout")
	ErrInvalidFlight        = errors.New("flight number, aircraft, origin and destination are required and origin must differ from destination")
	ErrInvalidSchedule      = errors.New("departure must be before arrival")
	ErrInvalidStopover      = errors.New("stopover must be ordered and within the flight window")
	ErrCardDetailsRequired  = errors.New("card type and card number are required for credit card payments")
	ErrBankSlipTooLate      = errors.New("bank slip payments are only available for flights more than 3 days away")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
)

var kinds = map[Kind][]error{
	KindNotFound:  {ErrFlightNotFound, ErrReservationNotFound, ErrAircraftNotFound},
	KindForbidden: {ErrForbidden},
	KindConflict: {
		ErrSeatUnavailable, ErrNotPendingPayment, ErrPaymentAlreadyStarted,
		ErrInvalidTransition, ErrFlightNotActive, ErrConcurrentUpdate,
	},
	KindBadRequest: {
		ErrNoSeatsRequested, ErrDuplicateSeat, ErrInvalidLayout, ErrInvalidFlight,
		ErrInvalidSchedule, ErrInvalidStopover, ErrCardDetailsRequired,
		ErrBankSlipTooLate, ErrInvalidPaymentMethod,
	},
}

// KindOf returns the kind of the first known sentinel wrapped by err.
// Anything unrecognised is internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for kind, sentinels := range kinds {
		for _, s := range sentinels {
			if errors.Is(err, s) {
				return kind
			}
		}
	}
	return KindInternal
}

func IsNotFoundError(err error) bool {
	return KindOf(err) == KindNotFound
}

func IsConflictError(err error) bool {
	return KindOf(err) == KindConflict
}
