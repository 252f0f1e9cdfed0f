package connection

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/termhub/termhubd/internal/apierr"
	"github.com/termhub/termhubd/internal/protocol"
	"github.com/termhub/termhubd/internal/session"
)

// dispatch routes one parsed frame by type. Payload validation is this
// layer's job; the codec only validated envelope shape.
func (h *Handler) dispatch(frame protocol.Frame) {
	switch frame.Type {
	case protocol.TypeAuth:
		h.send(protocol.TypeAuthSuccess, frame.ID, nil)
	case protocol.TypePing:
		h.send(protocol.TypePong, frame.ID, protocol.PongPayload{Timestamp: time.Now()})

	case protocol.TypeSessionList:
		h.handleSessionList(frame)
	case protocol.TypeSessionCreate:
		h.handleSessionCreate(frame)
	case protocol.TypeSessionAttach:
		h.handleSessionAttach(frame)
	case protocol.TypeSessionDetach:
		h.handleSessionDetach(frame)
	case protocol.TypeSessionTerminate:
		h.handleSessionTerminate(frame)
	case protocol.TypeSessionDelete:
		h.handleSessionDelete(frame)
	case protocol.TypeSessionRename:
		h.handleSessionRename(frame)
	case protocol.TypeSessionMove:
		h.handleSessionMove(frame)

	case protocol.TypeTerminalData:
		h.handleTerminalData(frame)
	case protocol.TypeTerminalResize:
		h.handleTerminalResize(frame)

	case protocol.TypeCategoryList:
		h.handleCategoryList(frame)
	case protocol.TypeCategoryCreate:
		h.handleCategoryCreate(frame)
	case protocol.TypeCategoryRename:
		h.handleCategoryRename(frame)
	case protocol.TypeCategoryDelete:
		h.handleCategoryDelete(frame)
	case protocol.TypeCategoryReorder:
		h.handleCategoryReorder(frame)
	case protocol.TypeCategoryToggle:
		h.handleCategoryToggle(frame)

	case protocol.TypeNotificationPreferencesGet:
		h.handlePreferencesGet(frame)
	case protocol.TypeNotificationPreferencesSet:
		h.handlePreferencesSet(frame)
	case protocol.TypeNotificationDismiss:
		h.handleNotificationDismiss(frame)

	default:
		h.replyError(frame.ID, false, apierr.New(apierr.InvalidInput, "unknown message type: "+frame.Type))
	}
}

func (h *Handler) handleSessionList(frame protocol.Frame) {
	views, err := h.deps.Manager.List()
	if err != nil {
		h.replyError(frame.ID, false, err)
		return
	}
	h.send(protocol.TypeSessionListReply, frame.ID, protocol.SessionListPayload{Sessions: toSessionViews(views)})
}

func (h *Handler) handleSessionCreate(frame protocol.Frame) {
	var p protocol.SessionCreatePayload
	if len(frame.Payload) > 0 {
		if err := protocol.DecodePayload(frame, &p); err != nil {
			h.replyError(frame.ID, true, apierr.New(apierr.InvalidInput, "invalid payload"))
			return
		}
	}

	sess, err := h.deps.Manager.Create(session.CreateOpts{
		Name: p.Name, Shell: p.Shell, Cwd: p.Cwd, Cols: p.Cols, Rows: p.Rows,
		Owner: h.principal.UserID, Env: p.Env,
	})
	if err != nil {
		h.replyError(frame.ID, true, err)
		return
	}

	h.send(protocol.TypeSessionCreated, frame.ID, protocol.SessionRecordPayload{Session: toSessionRecord(sess, true)})
	h.broadcast(protocol.TypeSessionCreated, protocol.SessionRecordPayload{Session: toSessionRecord(sess, true)})

	attached, scrollback, pendingKind, err := h.attachTo(sess.ID)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sess.ID).Warn("connection: auto-attach after create failed")
		return
	}
	h.send(protocol.TypeSessionAttached, "", protocol.SessionAttachedPayload{
		Session: toSessionRecord(attached, true), Scrollback: scrollback, PendingNotificationKind: pendingKind,
	})
}

func (h *Handler) handleSessionAttach(frame protocol.Frame) {
	var p protocol.SessionAttachPayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		h.replyError(frame.ID, true, apierr.New(apierr.InvalidInput, "invalid payload"))
		return
	}
	sess, scrollback, pendingKind, err := h.attachTo(p.SessionID)
	if err != nil {
		h.replyError(frame.ID, true, err)
		return
	}
	h.send(protocol.TypeSessionAttached, frame.ID, protocol.SessionAttachedPayload{
		Session: toSessionRecord(sess, true), Scrollback: scrollback, PendingNotificationKind: pendingKind,
	})
}

func (h *Handler) handleSessionDetach(frame protocol.Frame) {
	h.detachCurrent()
	h.send(protocol.TypeSessionDetached, frame.ID, nil)
}

func (h *Handler) handleSessionTerminate(frame protocol.Frame) {
	var p protocol.SessionIDPayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		h.replyError(frame.ID, true, apierr.New(apierr.InvalidInput, "invalid payload"))
		return
	}
	ok, err := h.deps.Manager.Terminate(p.SessionID)
	if err != nil {
		h.replyError(frame.ID, true, err)
		return
	}
	if !ok {
		h.replyError(frame.ID, true, apierr.New(apierr.NotFound, "session not found"))
		return
	}

	h.mu.Lock()
	wasAttached := h.attachedSessionID == p.SessionID
	h.mu.Unlock()
	if wasAttached {
		h.detachCurrent()
	}

	sess, _, err := h.deps.Manager.Get(p.SessionID)
	if err != nil {
		return
	}
	record := protocol.SessionRecordPayload{Session: toSessionRecord(sess, false)}
	h.send(protocol.TypeSessionTerminated, frame.ID, record)
	h.broadcast(protocol.TypeSessionTerminated, record)
}

func (h *Handler) handleSessionDelete(frame protocol.Frame) {
	var p protocol.SessionIDPayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		h.replyError(frame.ID, true, apierr.New(apierr.InvalidInput, "invalid payload"))
		return
	}

	h.mu.Lock()
	wasAttached := h.attachedSessionID == p.SessionID
	h.mu.Unlock()
	if wasAttached {
		h.detachCurrent()
	}

	if err := h.deps.Manager.Delete(p.SessionID); err != nil {
		h.replyError(frame.ID, true, err)
		return
	}

	payload := protocol.SessionIDPayload{SessionID: p.SessionID}
	h.send(protocol.TypeSessionDeleted, frame.ID, payload)
	h.broadcast(protocol.TypeSessionDeleted, payload)
}

func (h *Handler) handleSessionRename(frame protocol.Frame) {
	var p protocol.SessionRenamePayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		h.replyError(frame.ID, true, apierr.New(apierr.InvalidInput, "invalid payload"))
		return
	}
	if err := h.deps.Manager.Rename(p.SessionID, p.Name); err != nil {
		h.replyError(frame.ID, true, err)
		return
	}
	sess, _, err := h.deps.Manager.Get(p.SessionID)
	if err != nil {
		h.replyError(frame.ID, true, err)
		return
	}
	record := protocol.SessionRecordPayload{Session: toSessionRecord(sess, h.isAttachedTo(p.SessionID))}
	h.send(protocol.TypeSessionRenamed, frame.ID, record)
	h.broadcast(protocol.TypeSessionRenamed, record)
}

func (h *Handler) handleSessionMove(frame protocol.Frame) {
	var p protocol.SessionMovePayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		h.replyError(frame.ID, false, apierr.New(apierr.InvalidInput, "invalid payload"))
		return
	}
	if err := h.deps.Manager.Move(p.SessionID, p.CategoryID); err != nil {
		h.replyError(frame.ID, false, err)
		return
	}
	sess, _, err := h.deps.Manager.Get(p.SessionID)
	if err != nil {
		h.replyError(frame.ID, false, err)
		return
	}
	record := protocol.SessionRecordPayload{Session: toSessionRecord(sess, h.isAttachedTo(p.SessionID))}
	h.send(protocol.TypeSessionMoved, frame.ID, record)
	h.broadcast(protocol.TypeSessionMoved, record)
}

func (h *Handler) isAttachedTo(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attachedSessionID == sessionID
}

func (h *Handler) handleTerminalData(frame protocol.Frame) {
	var p protocol.TerminalDataPayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		h.replyError(frame.ID, false, apierr.New(apierr.InvalidInput, "invalid payload"))
		return
	}
	if !h.isAttachedTo(p.SessionID) {
		h.replyError(frame.ID, false, apierr.New(apierr.InvalidInput, "not attached to session "+p.SessionID))
		return
	}
	if err := h.deps.Manager.Write(p.SessionID, []byte(p.Data)); err != nil {
		h.replyError(frame.ID, false, err)
	}
}

// handleTerminalResize silently ignores a resize for a session this
// connection is not attached to, per the design — no error reply, unlike
// terminal.data.
func (h *Handler) handleTerminalResize(frame protocol.Frame) {
	var p protocol.TerminalResizePayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		return
	}
	if !h.isAttachedTo(p.SessionID) {
		return
	}
	if err := h.deps.Manager.Resize(p.SessionID, p.Cols, p.Rows); err != nil {
		h.replyError(frame.ID, false, err)
	}
}

func (h *Handler) handleCategoryList(frame protocol.Frame) {
	cats, err := h.deps.Categories.List()
	if err != nil {
		h.replyError(frame.ID, false, err)
		return
	}
	h.send(protocol.TypeCategoryListReply, frame.ID, protocol.CategoryListPayload{Categories: toCategoryRecords(cats)})
}

func (h *Handler) handleCategoryCreate(frame protocol.Frame) {
	var p protocol.CategoryCreatePayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		h.replyError(frame.ID, false, apierr.New(apierr.InvalidInput, "invalid payload"))
		return
	}
	c, err := h.deps.Categories.Create(p.Name, h.principal.UserID)
	if err != nil {
		h.replyError(frame.ID, false, err)
		return
	}
	record := protocol.CategoryRecordPayload{Category: toCategoryRecord(c)}
	h.send(protocol.TypeCategoryCreated, frame.ID, record)
	h.broadcast(protocol.TypeCategoryCreated, record)
}

func (h *Handler) handleCategoryRename(frame protocol.Frame) {
	var p protocol.CategoryRenamePayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		h.replyError(frame.ID, false, apierr.New(apierr.InvalidInput, "invalid payload"))
		return
	}
	c, err := h.deps.Categories.Rename(p.CategoryID, p.Name)
	if err != nil {
		h.replyError(frame.ID, false, err)
		return
	}
	record := protocol.CategoryRecordPayload{Category: toCategoryRecord(c)}
	h.send(protocol.TypeCategoryRenamed, frame.ID, record)
	h.broadcast(protocol.TypeCategoryRenamed, record)
}

func (h *Handler) handleCategoryDelete(frame protocol.Frame) {
	var p protocol.CategoryIDPayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		h.replyError(frame.ID, false, apierr.New(apierr.InvalidInput, "invalid payload"))
		return
	}
	if err := h.deps.Categories.Delete(p.CategoryID); err != nil {
		h.replyError(frame.ID, false, err)
		return
	}
	h.send(protocol.TypeCategoryDeleted, frame.ID, p)
	h.broadcast(protocol.TypeCategoryDeleted, p)
}

func (h *Handler) handleCategoryReorder(frame protocol.Frame) {
	var p protocol.CategoryReorderPayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		h.replyError(frame.ID, false, apierr.New(apierr.InvalidInput, "invalid payload"))
		return
	}
	order := make(map[string]int, len(p.CategoryIDs))
	for i, id := range p.CategoryIDs {
		order[id] = i
	}
	if err := h.deps.Categories.Reorder(order); err != nil {
		h.replyError(frame.ID, false, err)
		return
	}
	h.send(protocol.TypeCategoryReordered, frame.ID, p)
	h.broadcast(protocol.TypeCategoryReordered, p)
}

func (h *Handler) handleCategoryToggle(frame protocol.Frame) {
	var p protocol.CategoryIDPayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		h.replyError(frame.ID, false, apierr.New(apierr.InvalidInput, "invalid payload"))
		return
	}
	c, err := h.deps.Categories.Get(p.CategoryID)
	if err != nil {
		h.replyError(frame.ID, false, err)
		return
	}
	c, err = h.deps.Categories.SetCollapsed(p.CategoryID, !c.Collapsed)
	if err != nil {
		h.replyError(frame.ID, false, err)
		return
	}
	payload := protocol.CategoryToggledPayload{CategoryID: c.ID, Collapsed: c.Collapsed}
	h.send(protocol.TypeCategoryToggled, frame.ID, payload)
	h.broadcast(protocol.TypeCategoryToggled, payload)
}

func (h *Handler) handlePreferencesGet(frame protocol.Frame) {
	p, err := h.deps.Categories.GetPreferences(h.principal.UserID)
	if err != nil {
		h.replyError(frame.ID, false, err)
		return
	}
	h.send(protocol.TypeNotificationPreferences, frame.ID, toPreferencesPayload(p))
}

func (h *Handler) handlePreferencesSet(frame protocol.Frame) {
	var p protocol.PreferencesSetPayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		h.replyError(frame.ID, false, apierr.New(apierr.InvalidInput, "invalid payload"))
		return
	}
	current, err := h.deps.Categories.GetPreferences(h.principal.UserID)
	if err != nil {
		h.replyError(frame.ID, false, err)
		return
	}
	current.UserID = h.principal.UserID
	if p.BrowserNotifyEnabled != nil {
		current.BrowserEnabled = *p.BrowserNotifyEnabled
	}
	if p.VisualBadgeEnabled != nil {
		current.VisualEnabled = *p.VisualBadgeEnabled
	}
	if p.NotifyOnInput != nil {
		current.NotifyOnInput = *p.NotifyOnInput
	}
	if p.NotifyOnCompleted != nil {
		current.NotifyOnCompleted = *p.NotifyOnCompleted
	}
	updated, err := h.deps.Categories.SetPreferences(current)
	if err != nil {
		h.replyError(frame.ID, false, err)
		return
	}
	h.send(protocol.TypeNotificationPreferencesUpdated, frame.ID, toPreferencesPayload(updated))
}

func (h *Handler) handleNotificationDismiss(frame protocol.Frame) {
	var p protocol.NotificationDismissPayload
	if err := protocol.DecodePayload(frame, &p); err != nil {
		h.replyError(frame.ID, false, apierr.New(apierr.InvalidInput, "invalid payload"))
		return
	}
	h.deps.Bus.ClearForSession(p.SessionID)
	h.send(protocol.TypeNotificationDismiss, frame.ID, p)
}
