package retriever

// State is the retriever lifecycle position. Transitions only move forward
// except for the rollback to StateUninitialized after a failed ingest or
// state load.
type State int

const (
	StateUninitialized State = iota
	StateStatisticsFitted
	StateIndexReady
	StateServing
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStatisticsFitted:
		return "statistics_fitted"
	case StateIndexReady:
		return "index_ready"
	case StateServing:
		return "serving"
	default:
		return "unknown"
	}
}
