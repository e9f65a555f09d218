package notification

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"notivio/internal/common"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Webhook-Signature"

// Handler handles HTTP requests for the notification domain.
type Handler struct {
	service    *Service
	reconciler *Reconciler

	// webhookSecret enables HMAC-SHA256 verification of inbound webhook
	// bodies when non-empty.
	webhookSecret string
}

// NewHandler creates a new notification handler.
func NewHandler(service *Service, reconciler *Reconciler, webhookSecret string) *Handler {
	return &Handler{
		service:       service,
		reconciler:    reconciler,
		webhookSecret: webhookSecret,
	}
}

// Send handles POST /api/v1/send — one ad-hoc message, delivered inline.
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}

	result, err := h.service.Send(c.Request.Context(), &req)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, result)
}

// SendBulk handles POST /api/v1/send/bulk — small batches run inline with
// per-recipient results, larger ones come back as status "queued".
func (h *Handler) SendBulk(c *gin.Context) {
	var req BulkSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.SendBulk(c.Request.Context(), &req)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Status == "queued" {
		status = http.StatusAccepted
	}
	common.Success(c, status, resp)
}

// RetryLog handles POST /api/v1/logs/:id/retry.
func (h *Handler) RetryLog(c *gin.Context) {
	log, err := h.service.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.Success(c, http.StatusOK, resultFromLog(log))
}

// previewRequest is the payload for POST /api/v1/render.
type previewRequest struct {
	TemplateBody string `json:"template_body" binding:"required"`
	CustomerID   string `json:"customer_id"`
	InsuranceID  string `json:"insurance_id"`
	QuotationID  string `json:"quotation_id"`
}

// Preview handles POST /api/v1/render — synchronous, no persistence. Without
// entity ids it previews against one real customer picked at random.
func (h *Handler) Preview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}

	src, ok := sourceFromIDs(req.CustomerID, req.InsuranceID, req.QuotationID)
	if !ok {
		src = Sample{}
	}

	preview, err := h.service.Preview(c.Request.Context(), req.TemplateBody, src)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, gin.H{"preview": preview})
}

// ListVariables handles GET /api/v1/variables.
func (h *Handler) ListVariables(c *gin.Context) {
	common.Success(c, http.StatusOK, gin.H{
		"categories": Categories(),
		"variables":  VariablesByCategory(c.Query("category")),
	})
}

// GetLog handles GET /api/v1/logs/:id.
func (h *Handler) GetLog(c *gin.Context) {
	log, err := h.service.GetLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.Success(c, http.StatusOK, log)
}

// ListLogs handles GET /api/v1/logs.
func (h *Handler) ListLogs(c *gin.Context) {
	var filter ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		common.Error(c, http.StatusUnprocessableEntity, "invalid query parameters: "+err.Error())
		return
	}

	resp, err := h.service.ListLogs(c.Request.Context(), filter)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, resp)
}

// ArchiveLogs handles POST /api/v1/logs/archive.
func (h *Handler) ArchiveLogs(c *gin.Context) {
	var req struct {
		Days int `json:"days" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}

	removed, err := h.service.ArchiveOlderThan(c.Request.Context(), req.Days)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.SuccessMessage(c, http.StatusOK, "logs archived", gin.H{"removed": removed})
}

// whatsappWebhook is the delivery status payload posted by the WhatsApp
// provider.
type whatsappWebhook struct {
	LogID     string `json:"log_id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// WhatsAppWebhook handles POST /webhooks/whatsapp.
func (h *Handler) WhatsAppWebhook(c *gin.Context) {
	body, ok := h.readSignedBody(c, "whatsapp")
	if !ok {
		return
	}

	var event whatsappWebhook
	if err := json.Unmarshal(body, &event); err != nil {
		common.Error(c, http.StatusUnprocessableEntity, "invalid webhook payload: "+err.Error())
		return
	}
	if event.LogID == "" || event.Status == "" {
		common.Error(c, http.StatusUnprocessableEntity, "log_id and status are required")
		return
	}

	result, err := h.reconciler.ApplyWebhookStatus(c.Request.Context(), event.LogID, event.Status, WebhookMeta{
		Timestamp:         event.Timestamp,
		ProviderMessageID: event.MessageID,
		ErrorReason:       event.Error,
	})
	if err != nil {
		slog.Error("whatsapp webhook processing failed",
			"log_id", event.LogID,
			"status", event.Status,
			"error", err,
		)
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, gin.H{
		"log_id":     result.LogID,
		"new_status": result.NewStatus,
	})
}

// emailWebhook is the delivery status payload posted by the email provider.
// Provider vocabulary (opened, bounced) is mapped to the canonical statuses
// before it reaches the reconciler.
type emailWebhook struct {
	LogID        string `json:"log_id"`
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	EmailID      string `json:"email_id"`
	BounceReason string `json:"bounce_reason"`
}

// EmailWebhook handles POST /webhooks/email.
func (h *Handler) EmailWebhook(c *gin.Context) {
	body, ok := h.readSignedBody(c, "email")
	if !ok {
		return
	}

	var event emailWebhook
	if err := json.Unmarshal(body, &event); err != nil {
		common.Error(c, http.StatusUnprocessableEntity, "invalid webhook payload: "+err.Error())
		return
	}
	if event.LogID == "" || event.Status == "" {
		common.Error(c, http.StatusUnprocessableEntity, "log_id and status are required")
		return
	}

	result, err := h.reconciler.ApplyWebhookStatus(c.Request.Context(), event.LogID, event.Status, WebhookMeta{
		Timestamp:         event.Timestamp,
		ProviderMessageID: event.EmailID,
		ErrorReason:       event.BounceReason,
	})
	if err != nil {
		slog.Error("email webhook processing failed",
			"log_id", event.LogID,
			"status", event.Status,
			"error", err,
		)
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, gin.H{
		"log_id":     result.LogID,
		"new_status": result.NewStatus,
	})
}

// readSignedBody reads the raw request body and, when a webhook secret is
// configured, verifies its HMAC-SHA256 signature. A bad signature is a
// security event: logged with the source, nothing mutated, 401 returned.
func (h *Handler) readSignedBody(c *gin.Context, source string) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		common.Error(c, http.StatusUnprocessableEntity, "unable to read request body")
		return nil, false
	}

	if h.webhookSecret == "" {
		return body, true
	}

	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	provided := c.GetHeader(signatureHeader)
	if provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		slog.Warn("webhook signature verification failed",
			"source", source,
			"remote_addr", c.ClientIP(),
		)
		common.HandleError(c, common.NewSignatureError(source))
		return nil, false
	}

	return body, true
}

// ListTemplates handles GET /api/v1/templates.
func (h *Handler) ListTemplates(c *gin.Context) {
	templates, err := h.service.store.ListTemplates(c.Request.Context(), c.Query("notification_type_id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.Success(c, http.StatusOK, templates)
}

// GetTemplate handles GET /api/v1/templates/:id.
func (h *Handler) GetTemplate(c *gin.Context) {
	t, err := h.service.store.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.HandleError(c, err)
		return
	}
	if t == nil {
		common.HandleError(c, common.NewNotFoundError("template", c.Param("id")))
		return
	}
	common.Success(c, http.StatusOK, t)
}

// SaveTemplate handles POST /api/v1/templates. Declared variables not in the
// catalogue are rejected so operators catch typos before a campaign does.
func (h *Handler) SaveTemplate(c *gin.Context) {
	var t Template
	if err := c.ShouldBindJSON(&t); err != nil {
		common.Error(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if t.Body == "" {
		common.Error(c, http.StatusUnprocessableEntity, "body is required")
		return
	}
	if t.Channel != ChannelWhatsApp && t.Channel != ChannelEmail && t.Channel != ChannelBoth {
		common.Error(c, http.StatusUnprocessableEntity, "channel must be whatsapp, email or both")
		return
	}

	t.Variables = ExtractTokens(t.Body)

	var unknown []string
	for _, name := range t.Variables {
		if !IsKnownToken(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		common.HandleError(c, common.NewValidationError("unknown variables: "+strings.Join(unknown, ", ")))
		return
	}

	if err := h.service.store.SaveTemplate(c.Request.Context(), &t); err != nil {
		common.HandleError(c, err)
		return
	}
	common.Success(c, http.StatusCreated, t)
}

// DeactivateTemplate handles POST /api/v1/templates/:id/deactivate — a soft
// invalidate; templates referenced by pending campaigns are never deleted.
func (h *Handler) DeactivateTemplate(c *gin.Context) {
	if err := h.service.store.DeactivateTemplate(c.Request.Context(), c.Param("id")); err != nil {
		common.HandleError(c, err)
		return
	}
	common.SuccessMessage(c, http.StatusOK, "template deactivated", nil)
}

// ListNotificationTypes handles GET /api/v1/notification-types.
func (h *Handler) ListNotificationTypes(c *gin.Context) {
	types, err := h.service.store.ListNotificationTypes(c.Request.Context())
	if err != nil {
		common.HandleError(c, err)
		return
	}
	common.Success(c, http.StatusOK, types)
}

// RegisterRoutes registers notification routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/send", h.Send)
	rg.POST("/send/bulk", h.SendBulk)
	rg.POST("/render", h.Preview)
	rg.GET("/variables", h.ListVariables)
	rg.GET("/logs", h.ListLogs)
	rg.GET("/logs/:id", h.GetLog)
	rg.POST("/logs/:id/retry", h.RetryLog)
	rg.POST("/logs/archive", h.ArchiveLogs)
	rg.GET("/templates", h.ListTemplates)
	rg.GET("/templates/:id", h.GetTemplate)
	rg.POST("/templates", h.SaveTemplate)
	rg.POST("/templates/:id/deactivate", h.DeactivateTemplate)
	rg.GET("/notification-types", h.ListNotificationTypes)
}

// RegisterWebhookRoutes registers the provider-facing webhook routes. These
// are authenticated by signature, not API key.
func (h *Handler) RegisterWebhookRoutes(rg *gin.RouterGroup) {
	rg.POST("/whatsapp", h.WhatsAppWebhook)
	rg.POST("/email", h.EmailWebhook)
}
