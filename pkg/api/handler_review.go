package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// listPendingHandler handles GET /api/v1/reviews/pending.
func (s *Server) listPendingHandler(c *echo.Context) error {
	limit := int64(50)
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}

	items, err := s.review.ListPending(c.Request().Context(), limit)
	if err != nil {
		return mapServiceError(err)
	}

	out := make([]*InteractionResponse, len(items))
	for i, in := range items {
		out[i] = toInteractionResponse(in)
	}
	return c.JSON(http.StatusOK, out)
}

// claimHandler handles POST /api/v1/reviews/:id/claim.
func (s *Server) claimHandler(c *echo.Context) error {
	var req ClaimRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ReviewerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reviewer_id is required")
	}

	if err := s.review.Claim(c.Request().Context(), c.Param("id"), req.ReviewerID); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// approveHandler handles POST /api/v1/reviews/:id/approve.
func (s *Server) approveHandler(c *echo.Context) error {
	var req ApproveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ReviewerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reviewer_id is required")
	}
	if len(req.FinalBubbles) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "final_bubbles must not be empty")
	}

	if err := s.review.Approve(c.Request().Context(), c.Param("id"), req.ReviewerID,
		req.FinalBubbles, req.EditTags, req.QualityScore, req.Note); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// rejectHandler handles POST /api/v1/reviews/:id/reject.
func (s *Server) rejectHandler(c *echo.Context) error {
	var req RejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ReviewerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reviewer_id is required")
	}

	if err := s.review.Reject(c.Request().Context(), c.Param("id"), req.ReviewerID, req.Reason); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// getInteractionHandler handles GET /api/v1/interactions/:id.
func (s *Server) getInteractionHandler(c *echo.Context) error {
	in, err := s.review.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, toInteractionResponse(in))
}

// editNoteHandler handles POST /api/v1/interactions/:id/reviewer-notes.
func (s *Server) editNoteHandler(c *echo.Context) error {
	var req ReviewerNoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := s.review.EditNote(c.Request().Context(), c.Param("id"), req.Note); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
