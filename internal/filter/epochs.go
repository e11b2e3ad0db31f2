package filter

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type selectorKind uint8

const (
	selectAll selectorKind = iota
	selectSet
	selectRange
)

// EpochSelector accepts epochs by one of three rules: every epoch, an explicit
// set of epochs, or an inclusive range. The zero value selects every epoch.
type EpochSelector struct {
	kind   selectorKind
	set    map[int]struct{}
	lo, hi int
}

// AllEpochs selects every epoch.
func AllEpochs() EpochSelector { return EpochSelector{} }

// EpochSet selects exactly the given epochs.
func EpochSet(epochs ...int) (EpochSelector, error) {
	if len(epochs) == 0 {
		return EpochSelector{}, errors.New("empty epoch set")
	}
	set := make(map[int]struct{}, len(epochs))
	for _, e := range epochs {
		if e < 1 {
			return EpochSelector{}, fmt.Errorf("epoch %d is not a positive integer", e)
		}
		set[e] = struct{}{}
	}
	return EpochSelector{kind: selectSet, set: set}, nil
}

// EpochRange selects epochs in [lo, hi].
func EpochRange(lo, hi int) (EpochSelector, error) {
	if lo < 1 || hi < 1 {
		return EpochSelector{}, fmt.Errorf("range %d-%d must use positive integers", lo, hi)
	}
	if lo > hi {
		return EpochSelector{}, fmt.Errorf("range %d-%d is not increasing", lo, hi)
	}
	return EpochSelector{kind: selectRange, lo: lo, hi: hi}, nil
}

// ParseEpochs parses "all", "3", "1,2,5" or "2-4".
func ParseEpochs(s string) (EpochSelector, error) {
	sel, err := parseEpochs(strings.TrimSpace(s))
	if err != nil {
		return EpochSelector{}, &InvalidFilterError{Field: "epochs", Value: s, Err: err}
	}
	return sel, nil
}

func parseEpochs(s string) (EpochSelector, error) {
	if s == "" || strings.EqualFold(s, "all") {
		return AllEpochs(), nil
	}

	if lo, hi, ok := strings.Cut(s, "-"); ok {
		a, err := parseEpoch(lo)
		if err != nil {
			return EpochSelector{}, err
		}
		b, err := parseEpoch(hi)
		if err != nil {
			return EpochSelector{}, err
		}
		return EpochRange(a, b)
	}

	parts := strings.Split(s, ",")
	epochs := make([]int, 0, len(parts))
	for _, p := range parts {
		e, err := parseEpoch(p)
		if err != nil {
			return EpochSelector{}, err
		}
		epochs = append(epochs, e)
	}
	return EpochSet(epochs...)
}

func parseEpoch(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("missing epoch number")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("epoch %d is not a positive integer", n)
	}
	return n, nil
}

// IsAll reports whether every epoch is accepted.
func (s EpochSelector) IsAll() bool { return s.kind == selectAll }

// Contains reports whether epoch e is accepted.
func (s EpochSelector) Contains(e int) bool {
	switch s.kind {
	case selectSet:
		_, ok := s.set[e]
		return ok
	case selectRange:
		return e >= s.lo && e <= s.hi
	default:
		return true
	}
}

func (s EpochSelector) String() string {
	switch s.kind {
	case selectSet:
		epochs := make([]int, 0, len(s.set))
		for e := range s.set {
			epochs = append(epochs, e)
		}
		slices.Sort(epochs)
		parts := make([]string, len(epochs))
		for i, e := range epochs {
			parts[i] = strconv.Itoa(e)
		}
		return strings.Join(parts, ",")
	case selectRange:
		return fmt.Sprintf("%d-%d", s.lo, s.hi)
	default:
		return "all"
	}
}
