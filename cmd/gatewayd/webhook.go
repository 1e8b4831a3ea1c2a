package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arc-self/safeclaw-gateway/internal/channels"
	"github.com/arc-self/safeclaw-gateway/internal/errs"
	"github.com/arc-self/safeclaw-gateway/internal/orchestrator"
)

// webhookHandler exposes the channel-agnostic webhook surface described in
// spec §4.10: one endpoint per channel, gated by that channel's registered
// ChannelAuth, decoding into the transport-agnostic RawEvent shape a real
// per-vendor adapter would otherwise build from its platform's payload.
type webhookHandler struct {
	processor *orchestrator.Processor
	auth      *channels.AuthLayer
	lookup    orchestrator.AdapterLookup
	dedup     *channels.Deduplicator
	log       *zap.Logger
}

func newWebhookHandler(processor *orchestrator.Processor, auth *channels.AuthLayer, lookup orchestrator.AdapterLookup, log *zap.Logger) *webhookHandler {
	return &webhookHandler{
		processor: processor,
		auth:      auth,
		lookup:    lookup,
		dedup:     channels.NewDeduplicator(),
		log:       log,
	}
}

func (h *webhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook/:channel", h.handleWebhook)
	e.POST("/webhook/:channel/actions", h.handleCardAction)
}

func (h *webhookHandler) handleWebhook(c echo.Context) error {
	channel := c.Param("channel")
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
	}

	outcome, err := h.auth.VerifyRequest(channel, flattenHeaders(c.Request().Header), body)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown channel: " + channel})
	}
	if !outcome.IsAllowed() {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication failed: " + outcome.Reason})
	}

	var raw channels.RawEvent
	if len(body) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed webhook payload"})
		}
	}
	raw.ChannelID = channel

	result, resp, err := h.processor.ProcessWebhook(c.Request().Context(), raw, h.dedup, nil)
	if err != nil {
		return h.webhookError(c, err)
	}

	switch result.Outcome {
	case channels.OutcomeChallenge:
		return c.JSON(http.StatusOK, map[string]string{"challenge": result.Challenge})
	case channels.OutcomeIgnored:
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored", "reason": result.IgnoredReason})
	case channels.OutcomeCardAction:
		return c.JSON(http.StatusOK, map[string]string{"status": "card_action_requires_adapter"})
	case channels.OutcomeMessage:
		if resp == nil {
			return c.JSON(http.StatusOK, map[string]string{"status": "accepted"})
		}
		return c.JSON(http.StatusOK, resp.Outbound)
	default:
		return c.JSON(http.StatusOK, map[string]string{"status": "accepted"})
	}
}

// handleCardAction completes the authorize/cancel flow for a channel whose
// adapter is registered and reachable by the sweeper's lookup. Channels
// with no live adapter cannot complete card actions: the transport needed
// to edit the card back is out of scope here.
func (h *webhookHandler) handleCardAction(c echo.Context) error {
	channel := c.Param("channel")
	adapter, ok := h.lookup(channel)
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no adapter registered for channel: " + channel})
	}

	var ev channels.CardActionEvent
	if err := c.Bind(&ev); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed card action"})
	}
	ev.ChannelID = channel

	if err := h.processor.HandleCardAction(c.Request().Context(), adapter, ev); err != nil {
		return h.webhookError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *webhookHandler) webhookError(c echo.Context, err error) error {
	if kind, ok := errs.KindOf(err); ok {
		switch kind {
		case errs.KindPrivacy:
			return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
		case errs.KindTee:
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		case errs.KindNotFound:
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
	}
	h.log.Error("webhook processing failed", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
