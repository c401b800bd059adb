package circulation

// Transition is the decided outcome of a state change, applied by the store
// as a compare-and-swap from From to To.
type Transition[S ~string] struct {
	From S
	To   S
	// RestoresCopy is set when the change hands a copy back to the shelf.
	RestoresCopy bool
}

type (
	ReservationTransition = Transition[ReservationStatus]
	LoanTransition        = Transition[LoanStatus]
)
