// ABOUTME: Markov transition records read from the key-value store
// ABOUTME: One weighted edge from a token to its successor
package models

// Transition is one weighted edge of a Markov model
type Transition struct {
	From      string `json:"from" yaml:"from"`
	To        string `json:"to" yaml:"to"`
	Frequency int    `json:"frequency" yaml:"frequency"`
}
