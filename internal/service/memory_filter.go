package service

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"memory-filter/internal/domain"
	"memory-filter/internal/memoryapi"
	"memory-filter/internal/trace"
)

// Invocation agrupa el contexto de una llamada del host: usuario, conversación,
// marca de tarea de fondo y el sink de estado (opcional).
type Invocation struct {
	User   domain.User
	ChatID string
	Task   bool
	Status StatusSink
}

// ClientFactory construye el cliente del Memory Service con los ajustes vigentes.
type ClientFactory func(valves domain.Valves) memoryapi.Client

// MemoryFilter inyecta memoria en inlet y persiste el último intercambio en outlet.
// Inlet y Outlet siempre devuelven el payload; los errores se reportan como estado.
type MemoryFilter struct {
	logger    *zap.Logger
	valves    ValvesStore
	newClient ClientFactory
}

func NewMemoryFilter(logger *zap.Logger, valves ValvesStore, newClient ClientFactory) *MemoryFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if valves == nil {
		valves = NewMemoryValvesStore(domain.Valves{APIBaseURL: domain.DefaultMemoryAPIBaseURL})
	}
	if newClient == nil {
		newClient = func(v domain.Valves) memoryapi.Client {
			return memoryapi.NewHTTPClient(v.APIBaseURL, v.APIKey, memoryapi.WithLogger(logger))
		}
	}
	return &MemoryFilter{
		logger:    logger,
		valves:    valves,
		newClient: newClient,
	}
}

// Inlet inyecta la memoria guardada del usuario en el contexto de sistema.
func (f *MemoryFilter) Inlet(ctx context.Context, inv Invocation, payload *domain.Payload) *domain.Payload {
	if payload == nil || inv.Task {
		return payload
	}
	if payload.MessagesUndecoded() {
		f.logger.Warn("inlet skipped: messages could not be decoded")
		return payload
	}

	ctx, span := trace.Tracer().Start(ctx, "memory.inlet",
		oteltrace.WithAttributes(attribute.String("chat.id", inv.ChatID)),
	)
	defer span.End()

	userID := inv.User.MemoryUserID()
	if userID == "" {
		f.logger.Debug("inlet skipped: no user identity")
		return payload
	}

	valves, ok := f.loadValves(ctx, inv)
	if !ok {
		return payload
	}

	memory, err := f.newClient(valves).Fetch(ctx, userID, inv.ChatID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.logger.Warn("memory fetch failed", zap.String("user_id", userID), zap.Error(err))
		f.emit(ctx, inv, domain.StatusEvent{Description: "Memory unavailable: " + err.Error(), Done: true})
		return payload
	}

	if strings.TrimSpace(memory) == "" {
		f.emit(ctx, inv, domain.StatusEvent{Description: "No stored memory", Done: true, Hidden: true})
		return payload
	}
	payload.Messages = InjectMemory(payload.Messages, memory)

	span.SetAttributes(attribute.Int("memory.length", len(memory)))
	f.logger.Info("memory injected", zap.String("user_id", userID), zap.Int("chars", len(memory)))
	f.emit(ctx, inv, domain.StatusEvent{Description: "Memory loaded", Done: true})
	return payload
}

// Outlet envía al Memory Service el último par usuario/asistente del transcript.
func (f *MemoryFilter) Outlet(ctx context.Context, inv Invocation, payload *domain.Payload) *domain.Payload {
	if payload == nil {
		return payload
	}
	if payload.MessagesUndecoded() {
		f.logger.Warn("outlet skipped: messages could not be decoded")
		return payload
	}

	ctx, span := trace.Tracer().Start(ctx, "memory.outlet",
		oteltrace.WithAttributes(attribute.String("chat.id", inv.ChatID)),
	)
	defer span.End()

	userID := inv.User.MemoryUserID()
	if userID == "" {
		f.logger.Debug("outlet skipped: no user identity")
		return payload
	}

	valves, ok := f.loadValves(ctx, inv)
	if !ok {
		return payload
	}

	pair, ok := LatestPair(payload.Messages)
	if !ok {
		f.logger.Debug("outlet skipped: no user/assistant pair", zap.String("user_id", userID))
		return payload
	}

	if err := f.newClient(valves).Post(ctx, userID, pair, inv.ChatID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.logger.Warn("memory post failed", zap.String("user_id", userID), zap.Error(err))
		f.emit(ctx, inv, domain.StatusEvent{Description: "Memory failed: " + err.Error(), Done: true})
	} else {
		f.logger.Info("memory saved", zap.String("user_id", userID), zap.String("chat_id", inv.ChatID))
		f.emit(ctx, inv, domain.StatusEvent{Description: "Memory saved", Done: true, Hidden: true})
	}

	if valves.Debug {
		appendDebugEcho(payload, f.logger)
	}
	return payload
}

func (f *MemoryFilter) loadValves(ctx context.Context, inv Invocation) (domain.Valves, bool) {
	valves, err := f.valves.Get(ctx)
	if err != nil {
		f.logger.Warn("valves load failed, using defaults", zap.Error(err))
	}
	if missing := valves.MissingSetting(); missing != "" {
		f.logger.Warn("memory filter not configured", zap.String("missing", missing))
		f.emit(ctx, inv, domain.StatusEvent{Description: "Memory disabled: missing " + missing, Done: true})
		return valves, false
	}
	return valves, true
}

func (f *MemoryFilter) emit(ctx context.Context, inv Invocation, event domain.StatusEvent) {
	if inv.Status == nil {
		return
	}
	if err := inv.Status.Emit(ctx, event); err != nil {
		f.logger.Debug("status emit failed", zap.String("description", event.Description), zap.Error(err))
	}
}

// appendDebugEcho agrega el payload serializado como mensaje del asistente.
func appendDebugEcho(payload *domain.Payload, logger *zap.Logger) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Debug("debug echo marshal failed", zap.Error(err))
		return
	}
	payload.Messages = append(payload.Messages,
		domain.NewMessage(domain.RoleAssistant, domain.TextContent(string(raw))),
	)
}
