package collab

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"codecollab-server/core"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

type (
	JoinPayload struct {
		RoomID   string `json:"roomId" validate:"required"`
		Username string `json:"username"`
	}

	UpdateFieldPayload struct {
		RoomID string     `json:"roomId" validate:"required"`
		Field  core.Field `json:"field" validate:"required,oneof=code input output languageUsed"`
		Value  string     `json:"value"`
	}

	RequestSyncPayload struct {
		RoomID string     `json:"roomId" validate:"required"`
		Field  core.Field `json:"field" validate:"required,oneof=code input output languageUsed"`
	}

	LeaveRoomPayload struct {
		RoomID string `json:"roomId" validate:"required"`
	}
)

type handlerFunc func(ctx context.Context, conn core.ConnectionID, data any) error

var validate = validator.New()

// Dispatch decodes an inbound event and runs its handler. data is usually the
// map[string]any a transport decoded from the wire.
func (e *Engine) Dispatch(ctx context.Context, conn core.ConnectionID, event core.EventKind, data any) error {
	handler, ok := e.handlers[event]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	return handler(ctx, conn, data)
}

func (e *Engine) handlerTable() map[core.EventKind]handlerFunc {
	return map[core.EventKind]handlerFunc{
		core.EventJoin: func(ctx context.Context, conn core.ConnectionID, data any) error {
			var p JoinPayload
			if err := decodePayload(data, &p); err != nil {
				return err
			}
			return e.Join(ctx, conn, core.RoomID(p.RoomID), p.Username)
		},
		core.EventUpdateField: func(ctx context.Context, conn core.ConnectionID, data any) error {
			var p UpdateFieldPayload
			if err := decodePayload(data, &p); err != nil {
				return err
			}
			return e.UpdateField(ctx, conn, core.RoomID(p.RoomID), p.Field, p.Value)
		},
		core.EventRequestSync: func(ctx context.Context, conn core.ConnectionID, data any) error {
			var p RequestSyncPayload
			if err := decodePayload(data, &p); err != nil {
				return err
			}
			return e.RequestSync(ctx, conn, core.RoomID(p.RoomID), p.Field)
		},
		core.EventLeaveRoom: func(ctx context.Context, conn core.ConnectionID, data any) error {
			var p LeaveRoomPayload
			if err := decodePayload(data, &p); err != nil {
				return err
			}
			return e.Leave(ctx, conn, core.RoomID(p.RoomID))
		},
	}
}

func decodePayload(data any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
