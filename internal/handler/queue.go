package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/queuekill/queuekill/internal/config"
	"github.com/queuekill/queuekill/internal/events"
	"github.com/queuekill/queuekill/internal/model"
	"github.com/queuekill/queuekill/internal/realtime"
	"github.com/queuekill/queuekill/internal/service"
)

// Notifier is the realtime surface the queue handler emits to after a
// mutation commits. Pushes are best effort and never affect the HTTP
// response.
type Notifier interface {
	QueueUpdated(service.QueueDetail)
	UserCalled(userID uint64, p realtime.UserCalledPayload)
	PositionUpdates(notices []service.PositionNotice)
	QueueDeleted(deleted service.DeletedQueue)
}

// QueueHandler serves queue management for owners and join/leave for
// customers. Publish sends audit events to the broker; a nil Publish
// disables auditing (tests run without a broker).
type QueueHandler struct {
	Cfg     config.Config
	Svc     *service.QueueService
	Notify  Notifier
	Publish func(ctx context.Context, ev events.QueueEvent) error
}

func NewQueueHandler(cfg config.Config, svc *service.QueueService, notify Notifier, publish func(context.Context, events.QueueEvent) error) *QueueHandler {
	return &QueueHandler{Cfg: cfg, Svc: svc, Notify: notify, Publish: publish}
}

type createQueueReq struct {
	Name string `json:"name"`
}

type joinQueueReq struct {
	Name      string  `json:"name"`
	Phone     *string `json:"phone"`
	GroupSize int     `json:"groupSize"`
}

// Create adds a queue to the owner's restaurant.
func (h *QueueHandler) Create(c echo.Context) error {
	uid, okAuth := userID(c)
	if !okAuth {
		return fail(c, http.StatusUnauthorized, "missing bearer token")
	}
	var req createQueueReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return failValidation(c, []fieldError{{Field: "name", Message: "queue name is required"}})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	q, err := h.Svc.CreateQueue(ctx, uid, req.Name)
	if err != nil {
		return failFrom(c, err, "create queue failed")
	}
	return ok(c, http.StatusCreated, "Queue created", q)
}

// Get returns a queue with its restaurant and all entries. Public, so
// walk-ins scanning a QR code can see the queue before joining.
func (h *QueueHandler) Get(c echo.Context) error {
	qid, err := parseID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid queue id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	detail, err := h.Svc.QueueDetail(ctx, qid)
	if err != nil {
		return failFrom(c, err, "load queue failed")
	}
	return okData(c, http.StatusOK, detail)
}

// Join places a party at the back of the queue. Works for signed-in
// customers and anonymous walk-ins alike.
func (h *QueueHandler) Join(c echo.Context) error {
	qid, err := parseID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid queue id")
	}
	var req joinQueueReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	var details []fieldError
	if req.Name == "" {
		details = append(details, fieldError{Field: "name", Message: "name is required"})
	}
	if req.GroupSize < 1 {
		details = append(details, fieldError{Field: "groupSize", Message: "group size must be at least 1"})
	}
	if len(details) > 0 {
		return failValidation(c, details)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	entry, err := h.Svc.JoinQueue(ctx, qid, optionalUserID(c), service.JoinInput{
		Name:      req.Name,
		Phone:     req.Phone,
		GroupSize: req.GroupSize,
	})
	if err != nil {
		return failFrom(c, err, "join queue failed")
	}

	h.afterQueueChange(ctx, qid, events.ActionJoined, &entry)
	return ok(c, http.StatusCreated, "Joined queue", entry)
}

// Leave cancels the caller's own entry.
func (h *QueueHandler) Leave(c echo.Context) error {
	uid, okAuth := userID(c)
	if !okAuth {
		return fail(c, http.StatusUnauthorized, "missing bearer token")
	}
	eid, err := parseID(c, "entryId")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid entry id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	entry, err := h.Svc.LeaveQueue(ctx, eid, uid)
	if err != nil {
		return failFrom(c, err, "leave queue failed")
	}

	h.afterQueueChange(ctx, entry.QueueID, events.ActionCancelled, &entry)
	return ok(c, http.StatusOK, "Left queue", entry)
}

// CallNext calls the first waiting party. Responds 200 with null data
// when nobody is waiting.
func (h *QueueHandler) CallNext(c echo.Context) error {
	uid, okAuth := userID(c)
	if !okAuth {
		return fail(c, http.StatusUnauthorized, "missing bearer token")
	}
	qid, err := parseID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid queue id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	entry, err := h.Svc.CallNext(ctx, qid, uid)
	if err != nil {
		return failFrom(c, err, "call next failed")
	}
	if entry == nil {
		return ok(c, http.StatusOK, "No one waiting in queue", nil)
	}

	if entry.UserID != nil {
		h.Notify.UserCalled(*entry.UserID, realtime.UserCalledPayload{
			EntryID:  entry.ID,
			QueueID:  entry.QueueID,
			Position: entry.Position,
		})
	}
	h.afterQueueChange(ctx, qid, events.ActionCalled, entry)
	h.notifyPositions(ctx, qid)
	return ok(c, http.StatusOK, "Called next party", entry)
}

// Complete marks a called party as served.
func (h *QueueHandler) Complete(c echo.Context) error {
	uid, okAuth := userID(c)
	if !okAuth {
		return fail(c, http.StatusUnauthorized, "missing bearer token")
	}
	eid, err := parseID(c, "entryId")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid entry id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	entry, err := h.Svc.CompleteEntry(ctx, eid, uid)
	if err != nil {
		return failFrom(c, err, "complete entry failed")
	}

	h.afterQueueChange(ctx, entry.QueueID, events.ActionCompleted, &entry)
	h.notifyPositions(ctx, entry.QueueID)
	return ok(c, http.StatusOK, "Entry completed", entry)
}

// Remove cancels a party on the owner's behalf.
func (h *QueueHandler) Remove(c echo.Context) error {
	uid, okAuth := userID(c)
	if !okAuth {
		return fail(c, http.StatusUnauthorized, "missing bearer token")
	}
	eid, err := parseID(c, "entryId")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid entry id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	entry, err := h.Svc.RemoveEntry(ctx, eid, uid)
	if err != nil {
		return failFrom(c, err, "remove entry failed")
	}

	h.afterQueueChange(ctx, entry.QueueID, events.ActionCancelled, &entry)
	h.notifyPositions(ctx, entry.QueueID)
	return ok(c, http.StatusOK, "Entry removed", entry)
}

// Delete removes the queue and all its entries, then notifies viewers
// and every user who was still waiting.
func (h *QueueHandler) Delete(c echo.Context) error {
	uid, okAuth := userID(c)
	if !okAuth {
		return fail(c, http.StatusUnauthorized, "missing bearer token")
	}
	qid, err := parseID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid queue id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	deleted, err := h.Svc.DeleteQueue(ctx, qid, uid)
	if err != nil {
		return failFrom(c, err, "delete queue failed")
	}

	h.Notify.QueueDeleted(deleted)
	h.publish(events.QueueEvent{
		Action:         events.ActionDeleted,
		QueueID:        deleted.Queue.ID,
		QueueName:      deleted.Queue.Name,
		RestaurantID:   deleted.Restaurant.ID,
		RestaurantName: deleted.Restaurant.Name,
		OccurredAt:     time.Now().UTC().Format(time.RFC3339),
	})
	return ok(c, http.StatusOK, "Queue deleted", nil)
}

// MyEntries lists the customer's active entries with live rank and
// wait estimates.
func (h *QueueHandler) MyEntries(c echo.Context) error {
	uid, okAuth := userID(c)
	if !okAuth {
		return fail(c, http.StatusUnauthorized, "missing bearer token")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.Svc.ActiveEntriesForUser(ctx, uid)
	if err != nil {
		return failFrom(c, err, "load entries failed")
	}
	return okData(c, http.StatusOK, out)
}

// MyQueues lists the owner's queues with their full entry lists.
func (h *QueueHandler) MyQueues(c echo.Context) error {
	uid, okAuth := userID(c)
	if !okAuth {
		return fail(c, http.StatusUnauthorized, "missing bearer token")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	out, err := h.Svc.QueuesByOwner(ctx, uid)
	if err != nil {
		return failFrom(c, err, "load queues failed")
	}
	return okData(c, http.StatusOK, out)
}

// QRCode renders a PNG linking to the queue's public page, for owners
// to print and put on the door.
func (h *QueueHandler) QRCode(c echo.Context) error {
	qid, err := parseID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid queue id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	detail, err := h.Svc.QueueDetail(ctx, qid)
	if err != nil {
		return failFrom(c, err, "load queue failed")
	}

	link := strings.TrimSuffix(h.Cfg.FrontendURL, "/") +
		"/restaurant/" + strconv.FormatUint(detail.Restaurant.ID, 10) +
		"/queue/" + strconv.FormatUint(detail.Queue.ID, 10)
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "render qr code failed")
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

// afterQueueChange runs the shared post-mutation fanout: broadcast the
// fresh queue state and publish an audit event. Everything here is
// best effort.
func (h *QueueHandler) afterQueueChange(ctx context.Context, queueID uint64, action string, entry *model.QueueEntry) {
	detail, err := h.Svc.QueueDetail(ctx, queueID)
	if err != nil {
		log.Printf("realtime: reload queue %d after %s: %v", queueID, action, err)
		return
	}
	h.Notify.QueueUpdated(detail)

	ev := events.QueueEvent{
		Action:         action,
		QueueID:        detail.Queue.ID,
		QueueName:      detail.Queue.Name,
		RestaurantID:   detail.Restaurant.ID,
		RestaurantName: detail.Restaurant.Name,
		OccurredAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if entry != nil {
		ev.EntryID = entry.ID
		ev.UserID = entry.UserID
		ev.PartyName = entry.Name
		ev.GroupSize = entry.GroupSize
		ev.Position = entry.Position
	}
	h.publish(ev)
}

// notifyPositions pushes rank notifications to parties that moved up
// after the head of the queue changed. Joins only append to the tail,
// so nobody's rank improves and no notice goes out for them.
func (h *QueueHandler) notifyPositions(ctx context.Context, queueID uint64) {
	notices, err := h.Svc.PositionNotifications(ctx, queueID)
	if err != nil {
		log.Printf("realtime: position notices for queue %d: %v", queueID, err)
		return
	}
	h.Notify.PositionUpdates(notices)
}

func (h *QueueHandler) publish(ev events.QueueEvent) {
	if h.Publish == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.Publish(ctx, ev)
	}()
}

func parseID(c echo.Context, param string) (uint64, error) {
	return strconv.ParseUint(c.Param(param), 10, 64)
}
