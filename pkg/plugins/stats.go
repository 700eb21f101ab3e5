package plugins

import "time"

// Operation tags a dispatched call for statistics
type Operation int

const (
	OpList Operation = iota
	OpRead
	OpWrite
	OpNotify
)

func (o Operation) String() string {
	return [...]string{"list", "read", "write", "notify"}[o]
}

// Statistics receives call start/end notifications around every dispatched
// List, Read, Write and Notify
type Statistics interface {
	CallStart() time.Time
	CallEnd(op Operation, start time.Time)
}

type nopStatistics struct{}

func (nopStatistics) CallStart() time.Time { return time.Time{} }
func (nopStatistics) CallEnd(op Operation, start time.Time) {}

// NopStatistics discards all call statistics
var NopStatistics Statistics = nopStatistics{}
