package randomness

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInvalidRandomness = errors.New("randomness: invalid random words")
	ErrUnknownRequest    = errors.New("randomness: unknown request")
	ErrDuplicateRequest  = errors.New("randomness: request id already pending")
)

// MaxWord is the largest value a random word may take (2^256 - 1).
var MaxWord = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Port issues randomness requests. The caller allocates the request id and
// records it before calling Request, so a delivery can never arrive for an id
// the caller does not know yet. Delivery happens later, at most once per
// request, through a Deliverer.
type Port interface {
	Request(ctx context.Context, requestId string, gameId uint64) error
}

type Deliverer interface {
	OnRandomnessDelivered(ctx context.Context, requestId string, words []*big.Int) error
}

// FirstWord validates a delivery and returns the word that decides the game.
// Words are unsigned 256 bit integers; any extra words are ignored.
func FirstWord(words []*big.Int) (*big.Int, error) {
	if len(words) == 0 || words[0] == nil {
		return nil, fmt.Errorf("%w: no words delivered", ErrInvalidRandomness)
	}
	word := words[0]
	if word.Sign() < 0 || word.Cmp(MaxWord) > 0 {
		return nil, fmt.Errorf("%w: %s is outside the uint256 range", ErrInvalidRandomness, word.String())
	}
	return word, nil
}

// ParseWords reads words as delivered on the wire: decimal, or 0x-prefixed
// hex.
func ParseWords(values []string) ([]*big.Int, error) {
	words := make([]*big.Int, 0, len(values))
	for _, value := range values {
		word, ok := new(big.Int).SetString(value, 0)
		if !ok {
			return nil, fmt.Errorf("%w: cannot parse %q", ErrInvalidRandomness, value)
		}
		words = append(words, word)
	}
	return words, nil
}

// IsEven is the parity rule: an even word means the creator wins.
func IsEven(word *big.Int) bool {
	return word.Bit(0) == 0
}
