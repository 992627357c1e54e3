package audit

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/model"
	"github.com/wealdtech/go-merkletree"
	keccak "github.com/wealdtech/go-merkletree/keccak256"
)

var ErrNotSettled = errors.New("audit: game is not settled")

// Source lists settled games in id order.
type Source interface {
	ListResolved(ctx context.Context) ([]model.Game, error)
}

type Root struct {
	Root  string `json:"root"`
	Games int    `json:"games"`
}

type Proof struct {
	GameId uint64   `json:"gameId"`
	Leaf   string   `json:"leaf"`
	Root   string   `json:"root"`
	Index  uint64   `json:"index"`
	Hashes []string `json:"hashes"`
}

// Auditor commits every settled game to a keccak256 merkle tree so an
// outcome can be checked against a single published root.
type Auditor struct {
	source Source
}

func NewAuditor(source Source) *Auditor {
	return &Auditor{source: source}
}

// Leaf is the keccak256 hash of the settlement fields of a game, in the form
// id|token|winner|loser|payout|fee|randomValue.
func Leaf(game model.Game) []byte {
	var winner string
	if game.Winner != nil {
		winner = *game.Winner
	}
	line := fmt.Sprintf("%d|%s|%s|%s|%d|%d|%s",
		game.Id, game.Token, winner, game.Loser(), game.Payout, game.Fee, game.RandomValue)
	return keccak.New().Hash([]byte(line))
}

func (a *Auditor) Root(ctx context.Context) (Root, error) {
	tree, leaves, err := a.build(ctx)
	if err != nil {
		return Root{}, err
	}
	if tree == nil {
		return Root{}, nil
	}
	return Root{Root: encode(tree.Root()), Games: len(leaves)}, nil
}

func (a *Auditor) Proof(ctx context.Context, gameId uint64) (Proof, error) {
	tree, leaves, err := a.build(ctx)
	if err != nil {
		return Proof{}, err
	}

	index := slices.IndexFunc(leaves, func(l leaf) bool { return l.gameId == gameId })
	if index < 0 {
		return Proof{}, fmt.Errorf("%w: %d", ErrNotSettled, gameId)
	}

	proof, err := tree.GenerateProof(leaves[index].data)
	if err != nil {
		return Proof{}, err
	}

	hashes := make([]string, 0, len(proof.Hashes))
	for _, hash := range proof.Hashes {
		hashes = append(hashes, encode(hash))
	}
	return Proof{
		GameId: gameId,
		Leaf:   encode(leaves[index].data),
		Root:   encode(tree.Root()),
		Index:  proof.Index,
		Hashes: hashes,
	}, nil
}

type leaf struct {
	gameId uint64
	data   []byte
}

func (a *Auditor) build(ctx context.Context) (*merkletree.MerkleTree, []leaf, error) {
	games, err := a.source.ListResolved(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(games) == 0 {
		return nil, nil, nil
	}

	leaves := make([]leaf, 0, len(games))
	data := make([][]byte, 0, len(games))
	for _, game := range games {
		l := leaf{gameId: game.Id, data: Leaf(game)}
		leaves = append(leaves, l)
		data = append(data, l.data)
	}

	tree, err := merkletree.NewUsing(data, keccak.New(), nil)
	if err != nil {
		return nil, nil, err
	}
	return tree, leaves, nil
}

func encode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
