package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/procureflow/internal/application/dispatcher"
	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/domain/entity"
	"github.com/garyjia/procureflow/internal/domain/event"
)

// NotificationService turns committed approval and procurement events into Lark messages
type NotificationService interface {
	// Register subscribes the service to the events it notifies about
	Register(d dispatcher.Dispatcher)

	// HandleEvent sends the notifications for one event
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	users         port.UserRepository
	messageSender port.LarkMessageSender
	logger        Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	users port.UserRepository,
	messageSender port.LarkMessageSender,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		users:         users,
		messageSender: messageSender,
		logger:        logger,
	}
}

// Register subscribes the service to the events it notifies about
func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{
		event.TypeApprovalRequested,
		event.TypeApprovalStepAdvanced,
		event.TypeApprovalApproved,
		event.TypeApprovalRejected,
	} {
		d.Subscribe(t, "lark-notification", s.HandleEvent)
	}
	d.Subscribe(event.TypeProcurementOrdered, "lark-notification", s.HandleEvent,
		dispatcher.ForDocuments(entity.DocumentTypePurchaseOrder))
}

// HandleEvent sends the notifications for one event
func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	switch evt.Type {
	case event.TypeApprovalRequested, event.TypeApprovalStepAdvanced:
		return s.notifyApprovers(ctx, evt)
	case event.TypeApprovalApproved:
		return s.notifyUser(ctx, evt, evt.GetPayloadInt("requested_by"),
			fmt.Sprintf("%sの承認が完了しました。", documentLabel(evt)))
	case event.TypeApprovalRejected:
		msg := fmt.Sprintf("%sが却下されました。", documentLabel(evt))
		if reason := evt.GetPayloadString("reason"); reason != "" {
			msg += "\n理由: " + reason
		}
		return s.notifyUser(ctx, evt, evt.GetPayloadInt("requested_by"), msg)
	case event.TypeProcurementOrdered:
		return s.notifyUser(ctx, evt, evt.GetPayloadInt("created_by"),
			fmt.Sprintf("%s %s を発注しました（発注日 %s）。",
				documentLabel(evt), evt.GetPayloadString("order_number"), evt.GetPayloadString("order_date")))
	default:
		return nil
	}
}

// notifyApprovers sends an approval request card to every user holding the step's approver role
func (s *notificationServiceImpl) notifyApprovers(ctx context.Context, evt *event.Event) error {
	role := entity.Role(evt.GetPayloadString("approver_role"))
	if !role.IsValid() {
		s.logger.Error("Event carries no approver role", "event_id", evt.ID, "event_type", evt.Type.String())
		return fmt.Errorf("event %s has no approver role", evt.ID)
	}

	approvers, err := s.users.ListByRole(ctx, role)
	if err != nil {
		s.logger.Error("Failed to list approvers", "error", err, "role", string(role))
		return fmt.Errorf("list approvers: %w", err)
	}

	card := approvalCard(evt)
	var errs []error
	sent := 0
	for _, approver := range approvers {
		if approver.LarkOpenID == "" {
			continue
		}
		if err := s.messageSender.SendCardMessage(ctx, approver.LarkOpenID, card); err != nil {
			s.logger.Error("Failed to send approval request", "error", err, "user_id", approver.ID, "open_id", approver.LarkOpenID)
			errs = append(errs, err)
			continue
		}
		sent++
	}

	s.logger.Info("Approval request notifications sent",
		"event_type", evt.Type.String(),
		"document_type", evt.DocumentType,
		"document_id", evt.DocumentID,
		"role", string(role),
		"sent", sent,
	)
	return errors.Join(errs...)
}

// notifyUser sends a plain text message to a single user
func (s *notificationServiceImpl) notifyUser(ctx context.Context, evt *event.Event, userID int64, message string) error {
	if userID == 0 {
		userID = evt.ActorID
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to get recipient", "error", err, "user_id", userID)
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil || user.LarkOpenID == "" {
		s.logger.Info("Recipient has no Lark account, skipping", "user_id", userID, "event_type", evt.Type.String())
		return nil
	}

	if err := s.messageSender.SendMessage(ctx, user.LarkOpenID, message); err != nil {
		s.logger.Error("Failed to send message", "error", err, "user_id", userID, "open_id", user.LarkOpenID)
		return fmt.Errorf("send message: %w", err)
	}

	s.logger.Info("Notification sent successfully",
		"event_type", evt.Type.String(),
		"user_id", userID,
		"message_length", len(message),
	)
	return nil
}

func documentLabel(evt *event.Event) string {
	switch entity.DocumentType(evt.DocumentType) {
	case entity.DocumentTypeQuote:
		return fmt.Sprintf("見積 #%d", evt.DocumentID)
	case entity.DocumentTypePurchaseOrder:
		return fmt.Sprintf("発注書 #%d", evt.DocumentID)
	default:
		return fmt.Sprintf("%s #%d", evt.DocumentType, evt.DocumentID)
	}
}

// approvalCard builds a Lark interactive card asking an approver to review a document
func approvalCard(evt *event.Event) map[string]interface{} {
	return map[string]interface{}{
		"config": map[string]interface{}{"wide_screen_mode": true},
		"header": map[string]interface{}{
			"template": "blue",
			"title": map[string]interface{}{
				"tag":     "plain_text",
				"content": "承認依頼",
			},
		},
		"elements": []interface{}{
			map[string]interface{}{
				"tag": "div",
				"text": map[string]interface{}{
					"tag": "lark_md",
					"content": fmt.Sprintf("**%s** の承認をお願いします。\nステップ: %d",
						documentLabel(evt), evt.GetPayloadInt("step_order")),
				},
			},
		},
	}
}
