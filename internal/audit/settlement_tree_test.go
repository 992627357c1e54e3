package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/reject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource []model.Game

func (s staticSource) ListResolved(context.Context) ([]model.Game, error) {
	return s, nil
}

func settled(id uint64, winner string) model.Game {
	creator, opponent := "0x0000000000000a01", "0x0000000000000b02"
	return model.Game{
		Id:          id,
		Token:       "A.0000000000000001.USDC",
		Amount:      100,
		Creator:     creator,
		Opponent:    &opponent,
		Status:      model.GameResolved,
		Winner:      &winner,
		Payout:      190,
		Fee:         10,
		RandomValue: "2",
	}
}

func TestLeaf_CoversSettlementFields(t *testing.T) {
	game := settled(1, "0x0000000000000a01")
	other := settled(1, "0x0000000000000b02")

	assert.Len(t, Leaf(game), 32)
	assert.Equal(t, Leaf(game), Leaf(settled(1, "0x0000000000000a01")))
	assert.NotEqual(t, Leaf(game), Leaf(other))
}

func TestAuditor_Root(t *testing.T) {
	ctx := context.Background()

	root, err := NewAuditor(staticSource{}).Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, Root{}, root)

	two := staticSource{settled(1, "0x0000000000000a01"), settled(2, "0x0000000000000b02")}
	first, err := NewAuditor(two).Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Games)
	assert.Len(t, first.Root, 66)

	three := staticSource{two[0], two[1], settled(3, "0x0000000000000a01")}
	second, err := NewAuditor(three).Root(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Root, second.Root)
}

func TestAuditor_Proof(t *testing.T) {
	ctx := context.Background()
	source := staticSource{settled(1, "0x0000000000000a01"), settled(4, "0x0000000000000b02"), settled(7, "0x0000000000000a01")}
	auditor := NewAuditor(source)

	proof, err := auditor.Proof(ctx, 4)
	require.NoError(t, err)
	root, err := auditor.Root(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(4), proof.GameId)
	assert.Equal(t, root.Root, proof.Root)
	assert.Equal(t, encode(Leaf(source[1])), proof.Leaf)
	assert.Equal(t, uint64(1), proof.Index)
	assert.NotEmpty(t, proof.Hashes)

	_, err = auditor.Proof(ctx, 2)
	assert.ErrorIs(t, err, ErrNotSettled)
}

func TestHandler_Proof(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router.Group("/coinflip-api"), NewAuditor(staticSource{settled(1, "0x0000000000000a01")}))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/coinflip-api/audit/proof/9", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	var problem reject.Problem
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &problem))
	assert.Equal(t, gameNotSettled, problem.Code)

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/coinflip-api/audit/root", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
	var root Root
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &root))
	assert.Equal(t, 1, root.Games)
}
