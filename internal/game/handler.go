package game

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/accesskey"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/middleware"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/utils"
)

type gameHandler struct {
	engine *Engine
}

func RegisterRoutes(rg *gin.RouterGroup, engine *Engine) {
	handler := gameHandler{engine: engine}

	routes := rg.Group("/game")
	routes.POST("", middleware.VerifyAuthToken, handler.createGame)
	routes.GET("", middleware.VerifyAuthToken, handler.getActiveGames)
	routes.POST("/access-key", middleware.VerifyAuthToken, handler.generateAccessKey)
	routes.GET("/stalled", middleware.VerifyAuthToken, middleware.RequireAdmin, handler.getStalledGames)
	routes.GET("/unsettled", middleware.VerifyAuthToken, middleware.RequireAdmin, handler.getUnsettledGames)
	routes.GET("/stats/:participant", middleware.VerifyAuthToken, handler.getPlayerStats)
	routes.GET("/result/:participant", middleware.VerifyAuthToken, handler.getLastResult)

	routes.GET("/:id", middleware.VerifyAuthToken, handler.getGame)
	routes.POST("/:id/join", middleware.VerifyAuthToken, handler.joinGame)
	routes.POST("/:id/timeout", middleware.VerifyAuthToken, handler.claimTimeout)
	routes.POST("/:id/randomness", middleware.VerifyAuthToken, middleware.RequireAdmin, handler.retryRandomness)
	routes.POST("/:id/settlement", middleware.VerifyAuthToken, middleware.RequireAdmin, handler.retrySettlement)
}

type CreateGameRequest struct {
	Token         string `json:"token" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	IsPrivate     bool   `json:"isPrivate"`
	AccessKeyHash string `json:"accessKeyHash"`
}

type CreateGameResponse struct {
	GameId uint64 `json:"gameId"`
}

func (gh *gameHandler) createGame(c *gin.Context) {
	body := CreateGameRequest{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
		return
	}

	amount, err := strconv.ParseUint(body.Amount, 10, 64)
	if err != nil {
		respond(c, ErrInvalidAmount)
		return
	}
	keyHash, err := accesskey.ParseHash(body.AccessKeyHash)
	if err != nil {
		respond(c, err)
		return
	}

	id, err := gh.engine.CreateGame(c.Request.Context(), CreateGameParams{
		Creator:       utils.GetParticipant(c),
		Token:         body.Token,
		Amount:        amount,
		IsPrivate:     body.IsPrivate,
		AccessKeyHash: keyHash,
	})
	if err != nil {
		respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateGameResponse{GameId: id})
}

type JoinGameRequest struct {
	Key string `json:"key"`
}

func (gh *gameHandler) joinGame(c *gin.Context) {
	gameId, ok := gameIdParam(c)
	if !ok {
		return
	}

	body := JoinGameRequest{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, reject.BodyParseProblem())
			return
		}
	}

	err := gh.engine.JoinGame(c.Request.Context(), gameId, utils.GetParticipant(c), accesskey.ParseKey(body.Key))
	if err != nil {
		respond(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (gh *gameHandler) claimTimeout(c *gin.Context) {
	gameId, ok := gameIdParam(c)
	if !ok {
		return
	}

	if err := gh.engine.ClaimTimeout(c.Request.Context(), gameId, utils.GetParticipant(c)); err != nil {
		respond(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (gh *gameHandler) getGame(c *gin.Context) {
	gameId, ok := gameIdParam(c)
	if !ok {
		return
	}

	game, err := gh.engine.GetGame(c.Request.Context(), gameId)
	if err != nil {
		respond(c, err)
		return
	}

	c.JSON(http.StatusOK, game)
}

func (gh *gameHandler) getActiveGames(c *gin.Context) {
	page, problem := utils.NewPageRequest(c)
	if problem != nil {
		c.JSON(problem.Problem.Status, problem.Problem)
		return
	}

	games := make([]GameView, 0, page.Size)
	hasMore := false
	for game, err := range gh.engine.ActiveGames(c.Request.Context(), page.Token) {
		if err != nil {
			respond(c, err)
			return
		}
		if len(games) == page.Size {
			hasMore = true
			break
		}
		games = append(games, game)
	}

	response := utils.NewPageResponse[GameView]().
		WithItems(games).
		WithItemCount(int64(len(games)))
	if hasMore {
		response.WithNextPageToken(games[len(games)-1].Id)
	}

	c.JSON(http.StatusOK, response.Build())
}

func (gh *gameHandler) getPlayerStats(c *gin.Context) {
	participant, ok := participantParam(c)
	if !ok {
		return
	}

	stats, err := gh.engine.PlayerStats(c.Request.Context(), participant)
	if err != nil {
		respond(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (gh *gameHandler) getLastResult(c *gin.Context) {
	participant, ok := participantParam(c)
	if !ok {
		return
	}

	result, err := gh.engine.LastResult(c.Request.Context(), participant)
	if err != nil {
		respond(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type AccessKeyResponse struct {
	Key  string `json:"key"`
	Hash string `json:"hash"`
}

// generateAccessKey hands the creator of a private game a key to share and
// the commitment to publish. The key is not stored.
func (gh *gameHandler) generateAccessKey(c *gin.Context) {
	key, hash, err := accesskey.Generate()
	if err != nil {
		c.JSON(http.StatusInternalServerError, reject.UnexpectedProblem(err))
		return
	}

	c.JSON(http.StatusOK, AccessKeyResponse{Key: key, Hash: hash.String()})
}

func (gh *gameHandler) getStalledGames(c *gin.Context) {
	games, err := gh.engine.StalledGames(c.Request.Context())
	if err != nil {
		respond(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewPageResponse[GameView]().
		WithItems(games).
		WithItemCount(int64(len(games))).
		Build())
}

func (gh *gameHandler) getUnsettledGames(c *gin.Context) {
	games, err := gh.engine.UnsettledGames(c.Request.Context())
	if err != nil {
		respond(c, err)
		return
	}

	c.JSON(http.StatusOK, utils.NewPageResponse[GameView]().
		WithItems(games).
		WithItemCount(int64(len(games))).
		Build())
}

type RetryRandomnessResponse struct {
	RequestId string `json:"requestId"`
}

func (gh *gameHandler) retryRandomness(c *gin.Context) {
	gameId, ok := gameIdParam(c)
	if !ok {
		return
	}

	requestId, err := gh.engine.RetryRandomness(c.Request.Context(), gameId)
	if err != nil {
		respond(c, err)
		return
	}

	c.JSON(http.StatusAccepted, RetryRandomnessResponse{RequestId: requestId})
}

func (gh *gameHandler) retrySettlement(c *gin.Context) {
	gameId, ok := gameIdParam(c)
	if !ok {
		return
	}

	if err := gh.engine.RetrySettlement(c.Request.Context(), gameId); err != nil {
		respond(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func gameIdParam(c *gin.Context) (uint64, bool) {
	gameId, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, reject.RequestParamsProblem())
		return 0, false
	}
	return gameId, true
}

func participantParam(c *gin.Context) (string, bool) {
	participant, err := utils.CanonicalAddress(c.Param("participant"))
	if err != nil {
		c.JSON(http.StatusBadRequest, reject.RequestParamsProblem())
		return "", false
	}
	return participant, true
}

func respond(c *gin.Context, err error) {
	problem := toProblem(err, c.Param("id"))
	c.JSON(problem.Problem.Status, problem.Problem)
}
