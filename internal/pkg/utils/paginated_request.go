package utils

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/reject"
)

const (
	pageSizeInvalid  string = "error.request.page-size-invalid"
	pageTokenInvalid string = "error.request.page-token-invalid"

	defaultPageSize = 20
	maxPageSize     = 100
)

// PageRequest pages by cursor: Token is the last id of the previous page.
type PageRequest struct {
	Size  int
	Token uint64
}

func NewPageRequest(c *gin.Context) (PageRequest, *reject.ProblemWithTrace) {
	pageSize := defaultPageSize
	if raw := c.Query("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return PageRequest{}, &reject.ProblemWithTrace{
				Problem: reject.NewProblem().
					WithTitle("Page size must be a positive number").
					WithStatus(http.StatusBadRequest).
					WithCode(pageSizeInvalid).
					Build(),
				Cause: err,
			}
		}
		pageSize = parsed
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var pageToken uint64
	if raw := c.Query("page_token"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return PageRequest{}, &reject.ProblemWithTrace{
				Problem: reject.NewProblem().
					WithTitle("Page token is not valid").
					WithStatus(http.StatusBadRequest).
					WithCode(pageTokenInvalid).
					Build(),
				Cause: err,
			}
		}
		pageToken = parsed
	}

	return PageRequest{
		Size:  pageSize,
		Token: pageToken,
	}, nil
}
