package server

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Skufu/triage/internal/engine"
	"github.com/Skufu/triage/internal/profile"
	"github.com/Skufu/triage/internal/report"
	"github.com/Skufu/triage/internal/session"
	"github.com/Skufu/triage/internal/symptom"
)

type handlers struct {
	svc Service
}

type profileView struct {
	Name       string             `json:"name"`
	Thresholds profile.Thresholds `json:"thresholds"`
	Critical   []symptom.Name     `json:"criticalSymptoms"`
	Weights    []profile.Weight   `json:"symptomWeights"`
}

type diagnosisResponse struct {
	SessionID           uuid.UUID       `json:"sessionId"`
	CreatedAt           time.Time       `json:"createdAt"`
	Results             []engine.Result `json:"results"`
	AnyRequiresLabTests bool            `json:"anyRequiresLabTests"`
	TopDisease          string          `json:"topDisease"`
	TopConfidence       int             `json:"topConfidence"`
}

func (h *handlers) symptoms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symptoms": h.svc.Rules().Catalog().Entries()})
}

func (h *handlers) riskFactors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"riskFactors": h.svc.Rules().RiskFactors()})
}

func (h *handlers) profiles(c *gin.Context) {
	ps := h.svc.Rules().Profiles()
	out := make([]profileView, 0, len(ps))
	for _, p := range ps {
		out = append(out, profileView{
			Name:       p.Name(),
			Thresholds: p.Thresholds(),
			Critical:   p.Critical(),
			Weights:    p.Weights(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"profiles": out})
}

func (h *handlers) diagnose(c *gin.Context) {
	var req engine.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	sess, err := h.svc.Diagnose(c.Request.Context(), req)
	if err != nil {
		var ve *engine.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation_failed",
				"field":   ve.Field,
				"message": ve.Message,
			})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
		return
	}

	c.JSON(http.StatusOK, diagnosisResponse{
		SessionID:           sess.ID,
		CreatedAt:           sess.CreatedAt,
		Results:             sess.Results,
		AnyRequiresLabTests: sess.AnyRequiresLabTests,
		TopDisease:          sess.TopDisease,
		TopConfidence:       sess.TopConfidence,
	})
}

func (h *handlers) report(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	format, err := report.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.svc.Lookup(c.Request.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, format, sess); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report rendering failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+format.FileName(id)+`"`)
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (h *handlers) unrecorded(c *gin.Context) {
	ids := h.svc.Unrecorded()
	c.JSON(http.StatusOK, gin.H{"sessionIds": ids, "count": len(ids)})
}
