package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procureflow/internal/application/dispatcher"
	"github.com/garyjia/procureflow/internal/domain/entity"
	"github.com/garyjia/procureflow/internal/domain/event"
)

type mockMessageSender struct {
	sendMessageFunc     func(ctx context.Context, openID string, content string) error
	sendCardMessageFunc func(ctx context.Context, openID string, cardContent interface{}) error
}

func (m *mockMessageSender) SendMessage(ctx context.Context, openID string, content string) error {
	if m.sendMessageFunc != nil {
		return m.sendMessageFunc(ctx, openID, content)
	}
	return nil
}

func (m *mockMessageSender) SendCardMessage(ctx context.Context, openID string, cardContent interface{}) error {
	if m.sendCardMessageFunc != nil {
		return m.sendCardMessageFunc(ctx, openID, cardContent)
	}
	return nil
}

type mockUserRepo struct {
	getByIDFunc    func(ctx context.Context, id int64) (*entity.User, error)
	listByRoleFunc func(ctx context.Context, role entity.Role) ([]*entity.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, user *entity.User) error {
	user.ID = 1
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return &entity.User{ID: id, Name: "user", Role: entity.RoleSales, LarkOpenID: "ou-applicant"}, nil
}

func (m *mockUserRepo) ListByRole(ctx context.Context, role entity.Role) ([]*entity.User, error) {
	if m.listByRoleFunc != nil {
		return m.listByRoleFunc(ctx, role)
	}
	return nil, nil
}

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func TestNotificationService_ApprovalRequested(t *testing.T) {
	var sentTo []string
	sender := &mockMessageSender{
		sendCardMessageFunc: func(ctx context.Context, openID string, cardContent interface{}) error {
			sentTo = append(sentTo, openID)
			card, ok := cardContent.(map[string]interface{})
			require.True(t, ok)
			assert.Contains(t, card, "header")
			return nil
		},
	}
	users := &mockUserRepo{
		listByRoleFunc: func(ctx context.Context, role entity.Role) ([]*entity.User, error) {
			assert.Equal(t, entity.RoleManager, role)
			return []*entity.User{
				{ID: 2, Role: entity.RoleManager, LarkOpenID: "ou-manager-1"},
				{ID: 3, Role: entity.RoleManager},
				{ID: 4, Role: entity.RoleManager, LarkOpenID: "ou-manager-2"},
			}, nil
		},
	}

	svc := NewNotificationService(users, sender, &mockLogger{})
	evt := event.NewEvent(event.TypeApprovalRequested, "quote", 10, 1, map[string]interface{}{
		"step_order":    1,
		"approver_role": "manager",
	})

	require.NoError(t, svc.HandleEvent(context.Background(), evt))
	assert.Equal(t, []string{"ou-manager-1", "ou-manager-2"}, sentTo)
}

func TestNotificationService_ApproverSendFailure(t *testing.T) {
	calls := 0
	sender := &mockMessageSender{
		sendCardMessageFunc: func(ctx context.Context, openID string, cardContent interface{}) error {
			calls++
			if openID == "ou-a" {
				return errors.New("rate limited")
			}
			return nil
		},
	}
	users := &mockUserRepo{
		listByRoleFunc: func(ctx context.Context, role entity.Role) ([]*entity.User, error) {
			return []*entity.User{{ID: 1, LarkOpenID: "ou-a"}, {ID: 2, LarkOpenID: "ou-b"}}, nil
		},
	}
	logger := &mockLogger{}

	svc := NewNotificationService(users, sender, logger)
	evt := event.NewEvent(event.TypeApprovalStepAdvanced, "purchase_order", 3, 2, map[string]interface{}{
		"step_order":    2,
		"approver_role": "director",
	})

	err := svc.HandleEvent(context.Background(), evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, 2, calls, "a failing approver must not stop the others")
	assert.Contains(t, logger.errors, "Failed to send approval request")
}

func TestNotificationService_MissingRole(t *testing.T) {
	svc := NewNotificationService(&mockUserRepo{}, &mockMessageSender{}, &mockLogger{})
	evt := event.NewEvent(event.TypeApprovalRequested, "quote", 1, 1, nil)

	assert.Error(t, svc.HandleEvent(context.Background(), evt))
}

func TestNotificationService_NotifyRequester(t *testing.T) {
	tests := []struct {
		name     string
		evt      *event.Event
		wantUser int64
		contains []string
	}{
		{
			name: "approved",
			evt: event.NewEvent(event.TypeApprovalApproved, "quote", 10, 5, map[string]interface{}{
				"requested_by": int64(7),
			}),
			wantUser: 7,
			contains: []string{"見積 #10", "承認が完了"},
		},
		{
			name: "rejected with reason",
			evt: event.NewEvent(event.TypeApprovalRejected, "purchase_order", 4, 5, map[string]interface{}{
				"requested_by": int64(7),
				"reason":       "金額超過",
			}),
			wantUser: 7,
			contains: []string{"発注書 #4", "却下", "理由: 金額超過"},
		},
		{
			name: "ordered goes to the creator",
			evt: event.NewEvent(event.TypeProcurementOrdered, "purchase_order", 4, 9, map[string]interface{}{
				"created_by":   int64(8),
				"order_number": "PO-1",
				"order_date":   "2025-03-10",
			}),
			wantUser: 8,
			contains: []string{"PO-1", "2025-03-10"},
		},
		{
			name:     "falls back to the actor",
			evt:      event.NewEvent(event.TypeApprovalApproved, "quote", 1, 5, nil),
			wantUser: 5,
			contains: []string{"見積 #1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser int64
			var gotMessage string
			users := &mockUserRepo{
				getByIDFunc: func(ctx context.Context, id int64) (*entity.User, error) {
					gotUser = id
					return &entity.User{ID: id, LarkOpenID: "ou-target"}, nil
				},
			}
			sender := &mockMessageSender{
				sendMessageFunc: func(ctx context.Context, openID string, content string) error {
					assert.Equal(t, "ou-target", openID)
					gotMessage = content
					return nil
				},
			}

			svc := NewNotificationService(users, sender, &mockLogger{})
			require.NoError(t, svc.HandleEvent(context.Background(), tt.evt))

			assert.Equal(t, tt.wantUser, gotUser)
			for _, s := range tt.contains {
				assert.True(t, strings.Contains(gotMessage, s), "message %q should contain %q", gotMessage, s)
			}
		})
	}
}

func TestNotificationService_RecipientWithoutLark(t *testing.T) {
	sender := &mockMessageSender{
		sendMessageFunc: func(ctx context.Context, openID string, content string) error {
			t.Fatal("no message expected")
			return nil
		},
	}
	users := &mockUserRepo{
		getByIDFunc: func(ctx context.Context, id int64) (*entity.User, error) {
			return &entity.User{ID: id}, nil
		},
	}

	svc := NewNotificationService(users, sender, &mockLogger{})
	evt := event.NewEvent(event.TypeApprovalApproved, "quote", 1, 1, map[string]interface{}{"requested_by": int64(1)})
	assert.NoError(t, svc.HandleEvent(context.Background(), evt))
}

func TestNotificationService_SendFailure(t *testing.T) {
	sender := &mockMessageSender{
		sendMessageFunc: func(ctx context.Context, openID string, content string) error {
			return errors.New("lark unavailable")
		},
	}

	svc := NewNotificationService(&mockUserRepo{}, sender, &mockLogger{})
	evt := event.NewEvent(event.TypeApprovalRejected, "quote", 1, 1, map[string]interface{}{"requested_by": int64(1)})
	err := svc.HandleEvent(context.Background(), evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send message")
}

func TestNotificationService_IgnoresOtherEvents(t *testing.T) {
	sender := &mockMessageSender{
		sendMessageFunc: func(ctx context.Context, openID string, content string) error {
			t.Fatal("no message expected")
			return nil
		},
	}

	svc := NewNotificationService(&mockUserRepo{}, sender, &mockLogger{})
	evt := event.NewEvent(event.TypeProcurementReverted, "purchase_order", 1, 1, nil)
	assert.NoError(t, svc.HandleEvent(context.Background(), evt))
}

func TestNotificationService_Register(t *testing.T) {
	d := dispatcher.NewDispatcher()
	defer d.Close()

	NewNotificationService(&mockUserRepo{}, &mockMessageSender{}, &mockLogger{}).Register(d)

	subs := d.Subscriptions(event.TypeProcurementOrdered)
	if assert.Len(t, subs, 1) {
		assert.True(t, subs[0].Filtered)
		assert.Equal(t, "lark-notification", subs[0].Name)
	}

	for _, tt := range []struct {
		eventType event.Type
		want      int
	}{
		{event.TypeApprovalRequested, 1},
		{event.TypeApprovalStepAdvanced, 1},
		{event.TypeApprovalApproved, 1},
		{event.TypeApprovalRejected, 1},
		{event.TypeProcurementOrdered, 1},
		{event.TypeApprovalCancelled, 0},
		{event.TypeProcurementReceived, 0},
	} {
		assert.Len(t, d.Subscriptions(tt.eventType), tt.want, tt.eventType.String())
	}
}
