// Package errclass tags errors with a severity class.
package errclass

import (
	"github.com/zircuit-labs/zkr-taskworker/xerrors"
)

// Class orders errors by severity. Higher is more severe.
type Class int

const (
	Nil     Class = -1
	Unknown Class = 0

	Transient  Class = 100
	Persistent Class = 110

	Panic Class = 900
)

func (c Class) String() string {
	switch c {
	case Nil:
		return "nil"
	case Transient:
		return "transient"
	case Persistent:
		return "persistent"
	case Panic:
		return "panic"
	default:
		return "unknown"
	}
}

// WrapAs tags err with class.
func WrapAs(err error, class Class) error {
	if err == nil {
		return nil
	}
	return xerrors.Extend(class, err)
}

// GetClass returns the class of err. For joined errors the most severe class wins,
// and an untagged child counts as Unknown.
func GetClass(err error) Class {
	if err == nil {
		return Nil
	}

	result := Nil
	for _, e := range xerrors.Unjoin(err) {
		class, ok := xerrors.Extract[Class](e)
		if !ok {
			class = Unknown
		}
		result = max(result, class)
	}
	return result
}
