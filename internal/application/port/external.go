package port

import (
	"context"
	"io"

	"github.com/garyjia/procureflow/internal/domain/entity"
	"github.com/garyjia/procureflow/internal/domain/event"
)

// LarkMessageSender defines message sending operations
type LarkMessageSender interface {
	SendMessage(ctx context.Context, openID string, content string) error
	SendCardMessage(ctx context.Context, openID string, cardContent interface{}) error
}

// EventPublisher forwards committed domain events to an external broker
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event) error
	Close() error
}

// ProcurementLogExporter renders procurement logs into a downloadable workbook
type ProcurementLogExporter interface {
	WriteWorkbook(w io.Writer, logs []*entity.ProcurementLog) error
}
