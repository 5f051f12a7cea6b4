package main

import "time"

// Clock permite injetar o tempo no reconciliador e nos casos de uso
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystemClock devolve o relógio baseado em time.Now
func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type fixedClock struct {
	now time.Time
}

// NewFixedClock devolve um relógio parado no instante informado
func NewFixedClock(t time.Time) Clock {
	return fixedClock{now: t.UTC()}
}

func (f fixedClock) Now() time.Time {
	return f.now
}
