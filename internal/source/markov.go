// ABOUTME: Streams Markov transitions out of the key-value store in fixed-size batches
// ABOUTME: Decodes length-prefixed keys and bounds memory to one batch per model
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/harper/brain-migrate/internal/models"
)

const (
	// ForwardPrefix and ReversePrefix are the key namespaces of the two models
	ForwardPrefix = "markov"
	ReversePrefix = "remarkov"

	// DefaultScanBatch is the number of transitions handed to each callback
	DefaultScanBatch = 5000

	// scanCount is the COUNT hint passed to each SCAN call
	scanCount = 1000

	// emptyToken stands in for the empty from-token (start of a sentence)
	emptyToken = " "
)

// ErrStop may be returned by a batch callback to end the scan early without error
var ErrStop = errors.New("stop iteration")

// BatchFunc receives each full batch, and the trailing partial batch
type BatchFunc func(ctx context.Context, batch []models.Transition) error

// MarkovReader scans one model's keys
type MarkovReader struct {
	kv     KeyValueStore
	prefix string
}

// NewMarkovReader creates a reader over keys "<prefix>:*"
func NewMarkovReader(kv KeyValueStore, prefix string) *MarkovReader {
	return &MarkovReader{kv: kv, prefix: prefix}
}

// ForEachBatch scans every key of the model, expands each hash into
// transitions and calls onBatch whenever batchSize transitions accumulate,
// then once more for any remainder. Batches arrive in scan order. The returned
// summary counts transitions handed to onBatch and the calls made, including
// a call that failed or returned ErrStop.
func (r *MarkovReader) ForEachBatch(ctx context.Context, batchSize int, onBatch BatchFunc) (models.Summary, error) {
	if batchSize <= 0 {
		batchSize = DefaultScanBatch
	}

	var summary models.Summary
	batch := make([]models.Transition, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := onBatch(ctx, batch)
		summary.Rows += len(batch)
		summary.Batches++
		batch = make([]models.Transition, 0, batchSize)
		return err
	}

	match := r.prefix + ":*"
	var cursor uint64
	for {
		keys, next, err := r.kv.Scan(ctx, cursor, match, scanCount)
		if err != nil {
			return summary, fmt.Errorf("scanning %s: %w: %w", match, models.ErrSourceUnavailable, err)
		}

		for _, key := range keys {
			transitions, err := r.transitionsFromKey(ctx, key)
			if err != nil {
				return summary, err
			}
			for _, t := range transitions {
				batch = append(batch, t)
				if len(batch) < batchSize {
					continue
				}
				if err := flush(); err != nil {
					return summary, stopOrErr(err)
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if err := flush(); err != nil {
		return summary, stopOrErr(err)
	}
	return summary, nil
}

func (r *MarkovReader) transitionsFromKey(ctx context.Context, key string) ([]models.Transition, error) {
	from, err := DecodeMarkovKey(r.prefix, key)
	if err != nil {
		return nil, err
	}

	hash, err := r.kv.HGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w: %w", key, models.ErrSourceUnavailable, err)
	}

	tos := make([]string, 0, len(hash))
	for to := range hash {
		tos = append(tos, to)
	}
	sort.Strings(tos)

	transitions := make([]models.Transition, 0, len(tos))
	for _, to := range tos {
		freq, err := strconv.Atoi(hash[to])
		if err != nil {
			return nil, fmt.Errorf("%s field %q frequency %q: %w", key, to, hash[to], models.ErrMalformedKey)
		}
		transitions = append(transitions, models.Transition{From: from, To: to, Frequency: freq})
	}
	return transitions, nil
}

func stopOrErr(err error) error {
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

// DecodeMarkovKey extracts the from-token of "<prefix>:<len><token>" where
// <len> is the decimal byte length of <token>. The shortest digit run that
// satisfies the length equation wins, since the token may itself start with
// digits. The empty token decodes to a single space; that mapping is not
// inverted on the way back.
func DecodeMarkovKey(prefix, key string) (string, error) {
	encoded, ok := strings.CutPrefix(key, prefix+":")
	if !ok {
		return "", fmt.Errorf("key %q outside prefix %q: %w", key, prefix, models.ErrMalformedKey)
	}

	declared := 0
	for i := 1; i <= len(encoded); i++ {
		c := encoded[i-1]
		if c < '0' || c > '9' {
			break
		}
		declared = declared*10 + int(c-'0')
		if declared > len(encoded) {
			break
		}
		if declared == len(encoded)-i {
			if token := encoded[i:]; token != "" {
				return token, nil
			}
			return emptyToken, nil
		}
	}

	return "", fmt.Errorf("key %q: no length prefix matches: %w", key, models.ErrMalformedKey)
}
