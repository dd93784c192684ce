// Package seatmap turns an aircraft type's seat map descriptor into the ordered
// list of seat numbers a flight is seeded with.
package seatmap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Domenick1991/skyreserve/internal/domain"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// DefaultLayout is used when an aircraft type carries no seat map at all.
const DefaultLayout = "3-3"

// Generate returns seat numbers such as "1A", "1B", ... in row-major order,
// exactly capacity entries long unless an explicit grid is smaller than capacity.
//
// An explicit grid (Rows, optionally Columns) takes precedence over Layout.
// Without Columns the grid uses the Layout's letters, or A-F.
func Generate(capacity int, desc domain.SeatMapDescriptor) ([]string, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", domain.ErrInvalidLayout, capacity)
	}

	if desc.Rows > 0 {
		columns, err := gridColumns(desc)
		if err != nil {
			return nil, err
		}
		return fill(desc.Rows, columns, capacity), nil
	}
	if desc.Rows < 0 {
		return nil, fmt.Errorf("%w: rows must be positive, got %d", domain.ErrInvalidLayout, desc.Rows)
	}

	layout := desc.Layout
	if layout == "" && len(desc.Columns) == 0 {
		layout = DefaultLayout
	}
	perRow, err := ParseLayout(layout)
	if err != nil {
		return nil, err
	}
	rows := (capacity + perRow - 1) / perRow
	return fill(rows, letters(perRow), capacity), nil
}

// ParseLayout validates an "L-R" layout and returns the seats per row.
func ParseLayout(layout string) (int, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(layout), "-")
	if !ok {
		return 0, fmt.Errorf("%w: %q is not of the form L-R", domain.ErrInvalidLayout, layout)
	}
	l, errL := strconv.Atoi(strings.TrimSpace(left))
	r, errR := strconv.Atoi(strings.TrimSpace(right))
	if errL != nil || errR != nil || l < 1 || r < 1 {
		return 0, fmt.Errorf("%w: %q must have positive seat counts on both sides", domain.ErrInvalidLayout, layout)
	}
	if l+r > len(alphabet) {
		return 0, fmt.Errorf("%w: %q has more than %d seats per row", domain.ErrInvalidLayout, layout, len(alphabet))
	}
	return l + r, nil
}

func gridColumns(desc domain.SeatMapDescriptor) ([]string, error) {
	if len(desc.Columns) == 0 {
		if desc.Layout != "" {
			perRow, err := ParseLayout(desc.Layout)
			if err != nil {
				return nil, err
			}
			return letters(perRow), nil
		}
		return letters(6), nil
	}

	seen := make(map[string]struct{}, len(desc.Columns))
	for _, c := range desc.Columns {
		if c == "" {
			return nil, fmt.Errorf("%w: empty column label", domain.ErrInvalidLayout)
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("%w: column %q repeated", domain.ErrInvalidLayout, c)
		}
		seen[c] = struct{}{}
	}
	return desc.Columns, nil
}

func letters(n int) []string {
	out := make([]string, n)
	for i := range n {
		out[i] = alphabet[i : i+1]
	}
	return out
}

func fill(rows int, columns []string, capacity int) []string {
	total := min(rows*len(columns), capacity)
	seats := make([]string, 0, total)
	for row := 1; row <= rows; row++ {
		for _, col := range columns {
			if len(seats) == total {
				return seats
			}
			seats = append(seats, strconv.Itoa(row)+col)
		}
	}
	return seats
}
