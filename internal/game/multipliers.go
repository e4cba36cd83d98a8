package game

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Multipliers maps a location's 1-based position in the day's list to a score
// factor. Positions that are not listed score x1.
type Multipliers map[int]int

// DefaultMultipliers weights the end of the game: 3rd x2, 4th and 5th x3.
func DefaultMultipliers() Multipliers {
	return Multipliers{3: 2, 4: 3, 5: 3}
}

// For returns the factor for the location at 0-based index.
func (m Multipliers) For(index int) int {
	if f, ok := m[index+1]; ok && f >= 1 {
		return f
	}
	return 1
}

// Validate rejects non-positive positions or factors.
func (m Multipliers) Validate() error {
	for pos, f := range m {
		if pos < 1 {
			return fmt.Errorf("multiplier position %d must be 1 or more", pos)
		}
		if f < 1 {
			return fmt.Errorf("multiplier for position %d: %w (got %d)", pos, ErrInvalidMultiplier, f)
		}
	}
	return nil
}

func (m Multipliers) String() string {
	positions := make([]int, 0, len(m))
	for pos := range m {
		positions = append(positions, pos)
	}
	sort.Ints(positions)
	parts := make([]string, 0, len(positions))
	for _, pos := range positions {
		parts = append(parts, fmt.Sprintf("%d:%d", pos, m[pos]))
	}
	return strings.Join(parts, ",")
}

// ParseMultipliers reads the "position:factor,..." form produced by String.
// An empty string means no multipliers.
func ParseMultipliers(s string) (Multipliers, error) {
	m := Multipliers{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pos, factor, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("multiplier %q: want position:factor", part)
		}
		p, err := strconv.Atoi(strings.TrimSpace(pos))
		if err != nil {
			return nil, fmt.Errorf("multiplier %q: %w", part, err)
		}
		f, err := strconv.Atoi(strings.TrimSpace(factor))
		if err != nil {
			return nil, fmt.Errorf("multiplier %q: %w", part, err)
		}
		m[p] = f
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
