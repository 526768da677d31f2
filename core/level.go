package core

import (
	"errors"
	"sort"
)

// LevelTable maps total XP to a level via an ascending threshold table.
// thresholds[i] is the minimum XP for level i+1; thresholds[0] is always 0.
// Levels cap at len(thresholds) once XP passes the last threshold.
type LevelTable struct {
	thresholds []int64
}

// NewLevelTable validates and builds a table. The table must start at 0 and
// be strictly ascending.
func NewLevelTable(thresholds []int64) (*LevelTable, error) {
	if len(thresholds) == 0 {
		return nil, errors.New("level table must have at least one threshold")
	}
	if thresholds[0] != 0 {
		return nil, errors.New("level table must start at 0")
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return nil, errors.New("level table thresholds must be strictly ascending")
		}
	}
	return &LevelTable{thresholds: append([]int64(nil), thresholds...)}, nil
}

// DefaultLevelTable covers levels 1 through 10.
func DefaultLevelTable() *LevelTable {
	t, _ := NewLevelTable([]int64{0, 100, 250, 500, 1000, 2000, 3500, 5500, 8000, 11000})
	return t
}

// LevelFor returns 1 + the highest index whose threshold is <= xp. Pure,
// O(log n). Thresholds are inclusive: reaching one promotes immediately.
func (t *LevelTable) LevelFor(xp int64) int {
	if xp < 0 {
		return 1
	}
	// first index with threshold > xp
	i := sort.Search(len(t.thresholds), func(i int) bool { return t.thresholds[i] > xp })
	return i
}

// XPForLevel returns the minimum XP for the given level. Levels below 1
// clamp to 1 and levels beyond the table clamp to the last threshold.
func (t *LevelTable) XPForLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	if level > len(t.thresholds) {
		level = len(t.thresholds)
	}
	return t.thresholds[level-1]
}

// MaxLevel is the highest level the table can produce.
func (t *LevelTable) MaxLevel() int {
	return len(t.thresholds)
}
