package engine

import "time"

// Observer is notified after every execution, once its outcome is durable.
// Observers run on the executing goroutine and must not block.
type Observer interface {
	ObserveExecution(r Receipt, elapsed time.Duration)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r Receipt, elapsed time.Duration)

// ObserveExecution implements Observer.
func (f ObserverFunc) ObserveExecution(r Receipt, elapsed time.Duration) {
	f(r, elapsed)
}
