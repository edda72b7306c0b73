package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"staffpresence/internal/apperr"
	"staffpresence/internal/attendance"
	"staffpresence/internal/auth"
	"staffpresence/internal/presence"
	"staffpresence/internal/queue"
)

// Handler exposes the ledger, aggregator and presence board over HTTP.
type Handler struct {
	ledger     *attendance.Ledger
	aggregator *attendance.Aggregator
	board      *presence.Board
	queue      queue.Queue
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a handler. q may be nil, in which case no change
// notifications are published.
func New(ledger *attendance.Ledger, aggregator *attendance.Aggregator, board *presence.Board, q queue.Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ledger:     ledger,
		aggregator: aggregator,
		board:      board,
		queue:      q,
		logger:     logger,
		now:        time.Now,
	}
}

// Register mounts the v1 routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/clock/in", h.clock(attendance.KindIn))
	r.POST("/clock/out", h.clock(attendance.KindOut))
	r.GET("/status/:identifier", h.status)
	r.GET("/records/:identifier", h.record)
	r.GET("/summary", h.summary)

	r.POST("/locations", h.postLocation)
	r.GET("/locations/:identifier", h.currentLocation)
	r.GET("/locations", h.activePostings)
}

type clockRequest struct {
	Identifier string     `json:"identifier"`
	At         *time.Time `json:"at"`
}

func (h *Handler) clock(kind attendance.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req clockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.fail(c, apperr.Invalid("malformed request: %v", err))
			return
		}
		identifier := h.identifierOrCaller(c, req.Identifier)
		at := h.now()
		if req.At != nil {
			at = *req.At
		}

		var (
			rec attendance.Record
			err error
		)
		if kind == attendance.KindIn {
			rec, err = h.ledger.ClockIn(c.Request.Context(), identifier, at)
		} else {
			rec, err = h.ledger.ClockOut(c.Request.Context(), identifier, at)
		}
		if err != nil {
			h.fail(c, err)
			return
		}

		h.publish(c.Request.Context(), queue.Message{
			Type:       queue.TypeClock,
			Identifier: rec.Identifier,
			Date:       rec.Date,
			At:         at.UTC(),
		})
		c.JSON(http.StatusOK, gin.H{"record": rec, "status": attendance.DeriveStatus(&rec)})
	}
}

func (h *Handler) status(c *gin.Context) {
	identifier := c.Param("identifier")
	date := h.dateParam(c)
	st, err := h.ledger.GetStatus(c.Request.Context(), identifier, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identifier": identifier, "date": date, "status": st})
}

func (h *Handler) record(c *gin.Context) {
	rec, err := h.ledger.GetRecord(c.Request.Context(), c.Param("identifier"), h.dateParam(c))
	if apperr.CodeOf(err) == apperr.CodeNotFound {
		c.JSON(http.StatusOK, gin.H{"found": false})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"found": true, "record": rec, "status": attendance.DeriveStatus(&rec)})
}

func (h *Handler) summary(c *gin.Context) {
	s, err := h.aggregator.Summarize(c.Request.Context(), h.dateParam(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

type postLocationRequest struct {
	Identifier      string     `json:"identifier"`
	Location        string     `json:"location"`
	Reason          string     `json:"reason"`
	DurationMinutes int        `json:"duration_minutes"`
	At              *time.Time `json:"at"`
}

func (h *Handler) postLocation(c *gin.Context) {
	var req postLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Invalid("malformed request: %v", err))
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	at := h.now()
	if req.At != nil {
		at = *req.At
	}

	p, err := h.board.PostLocation(c.Request.Context(), presence.PostRequest{
		Identifier:      h.identifierOrCaller(c, req.Identifier),
		PosterRole:      string(claims.Role),
		Location:        req.Location,
		Reason:          req.Reason,
		DurationMinutes: req.DurationMinutes,
		At:              at,
		PostedBy:        claims.Identifier(),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.publish(c.Request.Context(), queue.Message{
		Type:       queue.TypePosting,
		Identifier: p.Identifier,
		At:         p.PostedAt,
	})
	c.JSON(http.StatusOK, gin.H{"posting": p})
}

func (h *Handler) currentLocation(c *gin.Context) {
	v, err := h.board.CurrentLocation(c.Request.Context(), c.Param("identifier"))
	if apperr.CodeOf(err) == apperr.CodeNotFound {
		c.JSON(http.StatusOK, gin.H{"found": false})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"found": true, "posting": v})
}

func (h *Handler) activePostings(c *gin.Context) {
	views := []presence.View{}
	for v, err := range h.board.ActivePostings(c.Request.Context()) {
		if err != nil {
			h.fail(c, err)
			return
		}
		views = append(views, v)
	}
	c.JSON(http.StatusOK, gin.H{"postings": views})
}

// identifierOrCaller defaults an omitted identifier to the authenticated caller.
func (h *Handler) identifierOrCaller(c *gin.Context, identifier string) string {
	if identifier != "" {
		return identifier
	}
	claims, _ := auth.ClaimsFrom(c)
	return claims.Identifier()
}

func (h *Handler) dateParam(c *gin.Context) string {
	if d := c.Query("date"); d != "" {
		return d
	}
	return h.ledger.Today()
}

// publish is best effort: the write has already succeeded.
func (h *Handler) publish(ctx context.Context, msg queue.Message) {
	if h.queue == nil {
		return
	}
	if err := h.queue.Publish(ctx, msg); err != nil {
		h.logger.Warn("queue publish failed",
			zap.String("type", msg.Type),
			zap.String("identifier", msg.Identifier),
			zap.Error(err),
		)
	}
}
