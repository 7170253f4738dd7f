// ABOUTME: Entity kinds a migration can move and the fixed dump order
// ABOUTME: Pipelines are built, prepared and dumped in that order
package migrate

// Kind is one family of bot data
type Kind string

const (
	KindBrain   Kind = "brain"
	KindMarkov  Kind = "markov"
	KindQuote   Kind = "quote"
	KindMapping Kind = "mapping"
)

// AllKinds lists every kind in dump order
var AllKinds = []Kind{KindBrain, KindMarkov, KindQuote, KindMapping}

// order returns the position of k in AllKinds
func (k Kind) order() int {
	for i, known := range AllKinds {
		if k == known {
			return i
		}
	}
	return len(AllKinds)
}
