// ABOUTME: Summary of rows and batches moved by one sink or source call
// ABOUTME: Returned by value so no counter outlives the call that produced it
package models

import "fmt"

// Summary counts rows written (or read) and batches flushed
type Summary struct {
	Rows    int `json:"rows" yaml:"rows"`
	Batches int `json:"batches" yaml:"batches"`
}

// Add returns the sum of two summaries
func (s Summary) Add(other Summary) Summary {
	return Summary{Rows: s.Rows + other.Rows, Batches: s.Batches + other.Batches}
}

func (s Summary) String() string {
	return fmt.Sprintf("%d rows in %d batches", s.Rows, s.Batches)
}
