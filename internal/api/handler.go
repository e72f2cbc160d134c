// Package api exposes the ledger over HTTP: append, block and record reads,
// filtered queries, chain verification, and derived profiles.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/attestry/attestry/internal/auth"
	"github.com/attestry/attestry/internal/ledger"
	"github.com/attestry/attestry/internal/query"
	"github.com/attestry/attestry/internal/record"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler serves the ledger API.
type Handler struct {
	ledger *ledger.Ledger
	tokens *auth.Issuer
	logger *zap.Logger
}

// NewHandler creates a Handler. tokens may be nil, in which case the append
// endpoint is left unauthenticated (development mode).
func NewHandler(l *ledger.Ledger, tokens *auth.Issuer, logger *zap.Logger) *Handler {
	return &Handler{ledger: l, tokens: tokens, logger: logger}
}

// Register mounts the API routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	records := rg.Group("/records")
	{
		if h.tokens != nil {
			records.POST("", auth.Middleware(h.tokens), h.AppendRecord)
		} else {
			records.POST("", h.AppendRecord)
		}
		records.GET("", h.ListRecords)
		records.GET("/:id", h.GetRecord)
	}

	ch := rg.Group("/chain")
	{
		ch.GET("", h.ChainOverview)
		ch.GET("/verify", h.VerifyChain)
	}

	rg.GET("/blocks/:height", h.GetBlock)
	rg.GET("/profiles/:actor", h.GetProfile)
}

// AppendRequest is the payload for POST /records. Payload is decoded into
// the kind-specific payload type before any ledger work happens.
type AppendRequest struct {
	Kind    record.Kind     `json:"kind" binding:"required"`
	Actor   string          `json:"actor" binding:"required"`
	Subject string          `json:"subject"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// AppendRecord handles POST /records — appends one attestation.
func (h *Handler) AppendRecord(c *gin.Context) {
	var req AppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	payload, err := decodePayload(req.Kind, req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	block, err := h.ledger.Append(c.Request.Context(), req.Kind, req.Actor, req.Subject, payload)
	switch {
	case errors.Is(err, record.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ledger.ErrPersistence):
		h.logger.Error("append persistence failure", zap.Error(err))
		RecordAppend(string(req.Kind), false)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to persist record; safe to retry"})
		return
	case err != nil:
		h.logger.Error("append failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "append failed"})
		return
	}

	RecordAppend(string(req.Kind), true)
	SetChainHeight(block.Height)
	c.JSON(http.StatusCreated, block)
}

// decodePayload parses raw into the payload type for kind. Unknown fields
// are rejected so malformed submissions fail loudly instead of hashing an
// empty payload.
func decodePayload(kind record.Kind, raw json.RawMessage) (record.Payload, error) {
	switch kind {
	case record.KindObservation:
		var p record.ObservationPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case record.KindEndorsement:
		var p record.EndorsementPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case record.KindSignature:
		var p record.SignaturePayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, errors.New("unknown record kind: " + string(kind))
	}
}

func strictUnmarshal(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid payload: " + err.Error())
	}
	return nil
}

// ListRecords handles GET /records — filtered query over the loaded chain.
// Filters (actor, kind, from, to, min_weight) compose via AND; results are
// most recent first.
func (h *Handler) ListRecords(c *gin.Context) {
	var q query.Query
	q.Actor = c.Query("actor")
	q.Kind = record.Kind(c.Query("kind"))
	if q.Kind != "" && !q.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown kind"})
		return
	}

	var err error
	if q.From, err = parseTimeParam(c.Query("from")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return
	}
	if q.To, err = parseTimeParam(c.Query("to")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return
	}
	if s := c.Query("min_weight"); s != "" {
		w, err := strconv.ParseFloat(s, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_weight must be a number"})
			return
		}
		q.MinWeight = &w
	}

	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1–1000"})
			return
		}
		limit = n
	}

	recs := h.ledger.Records(q)
	if len(recs) > limit {
		recs = recs[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}

func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// GetRecord handles GET /records/:id — single-record lookup by id.
func (h *Handler) GetRecord(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a non-negative integer"})
		return
	}

	rec, err := h.ledger.Record(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ChainOverview handles GET /chain — head hash and height.
func (h *Handler) ChainOverview(c *gin.Context) {
	head, height, ok := h.ledger.Head()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"blocks": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"blocks": h.ledger.Len(),
		"height": height,
		"head":   head,
	})
}

// VerifyChain handles GET /chain/verify — recomputes every hash in the
// loaded chain, or in [from, to] when both query params are supplied.
func (h *Handler) VerifyChain(c *gin.Context) {
	fromStr, toStr := c.Query("from"), c.Query("to")
	if fromStr != "" || toStr != "" {
		from, err1 := strconv.ParseUint(fromStr, 10, 64)
		to, err2 := strconv.ParseUint(toStr, 10, 64)
		if err1 != nil || err2 != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from and to must both be heights"})
			return
		}
		res, err := h.ledger.VerifyRange(c.Request.Context(), from, to)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		RecordVerify(res.Valid)
		c.JSON(http.StatusOK, res)
		return
	}

	res := h.ledger.Verify(c.Request.Context())
	RecordVerify(res.Valid)
	if !res.Valid {
		h.logger.Warn("chain integrity check failed",
			zap.Uint64p("first_invalid_height", res.FirstInvalidHeight),
			zap.String("reason", res.Reason),
		)
	}
	c.JSON(http.StatusOK, res)
}

// GetBlock handles GET /blocks/:height — returns one chain block.
func (h *Handler) GetBlock(c *gin.Context) {
	height, err := strconv.ParseUint(c.Param("height"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "height must be a non-negative integer"})
		return
	}

	block, err := h.ledger.Block(height)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
		return
	}
	c.JSON(http.StatusOK, block)
}

// GetProfile handles GET /profiles/:actor — derived profile at the current
// height, or at ?as_of_height=N for reproducible historical reads.
func (h *Handler) GetProfile(c *gin.Context) {
	actor := c.Param("actor")

	if s := c.Query("as_of_height"); s != "" {
		height, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "as_of_height must be a non-negative integer"})
			return
		}
		c.JSON(http.StatusOK, h.ledger.Profile(actor, height))
		return
	}

	c.JSON(http.StatusOK, h.ledger.CurrentProfile(actor))
}
