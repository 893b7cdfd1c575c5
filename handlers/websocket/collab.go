package websocket

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"codecollab-server/collab"
	"codecollab-server/core"
)

type ackInvoker func(err error, payload map[string]any)

// Options tunes the socket.io transport.
type Options struct {
	AllowedOrigins []string
	// LegacyEvents also emits every outbound message under the first-generation
	// event name and payload shape.
	LegacyEvents bool
	FetchTimeout time.Duration
}

// NewSocketIOServer builds the socket.io server mounted at /socket.io/.
func NewSocketIOServer(opts Options) *socketio.Server {
	serverOpts := socketio.DefaultServerOptions()
	serverOpts.SetMaxHttpBufferSize(5000000)
	serverOpts.SetPath("/socket.io")
	serverOpts.SetAllowEIO3(true)
	serverOpts.SetCors(socketCors(opts.AllowedOrigins))
	return socketio.NewServer(nil, serverOpts)
}

func socketCors(origins []string) *types.Cors {
	if len(origins) == 0 || lo.Contains(origins, "*") {
		return &types.Cors{Origin: "*"}
	}
	return &types.Cors{
		Origin:      lo.Map(origins, func(o string, _ int) any { return o }),
		Credentials: true,
	}
}

// SocketTransport drives socket.io rooms on behalf of the engine. Connection ids are
// socket ids.
type SocketTransport struct {
	srv  *socketio.Server
	opts Options

	mu      sync.RWMutex
	sockets map[core.ConnectionID]*socketio.Socket
}

func NewSocketTransport(srv *socketio.Server, opts Options) *SocketTransport {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 2 * time.Second
	}
	return &SocketTransport{
		srv:     srv,
		opts:    opts,
		sockets: make(map[core.ConnectionID]*socketio.Socket),
	}
}

func (t *SocketTransport) track(conn core.ConnectionID, socket *socketio.Socket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sockets[conn] = socket
}

func (t *SocketTransport) untrack(conn core.ConnectionID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sockets, conn)
}

func (t *SocketTransport) socket(conn core.ConnectionID) (*socketio.Socket, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	socket, ok := t.sockets[conn]
	return socket, ok
}

func (t *SocketTransport) Owns(conn core.ConnectionID) bool {
	_, ok := t.socket(conn)
	return ok
}

func (t *SocketTransport) Join(_ context.Context, conn core.ConnectionID, roomID core.RoomID) error {
	socket, ok := t.socket(conn)
	if !ok {
		return fmt.Errorf("join %s: %w", roomID, collab.ErrUnknownConnection)
	}
	socket.Join(socketio.Room(roomID))
	return nil
}

func (t *SocketTransport) Leave(_ context.Context, conn core.ConnectionID, roomID core.RoomID) error {
	if socket, ok := t.socket(conn); ok {
		socket.Leave(socketio.Room(roomID))
	}
	return nil
}

func (t *SocketTransport) fetch(ctx context.Context, room socketio.Room) ([]*socketio.RemoteSocket, error) {
	type fetched struct {
		sockets []*socketio.RemoteSocket
		err     error
	}
	done := make(chan fetched, 1)
	go t.srv.In(room).FetchSockets()(func(sockets []*socketio.RemoteSocket, err error) {
		done <- fetched{sockets, err}
	})

	timer := time.NewTimer(t.opts.FetchTimeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.sockets, res.err
	case <-timer.C:
		return nil, fmt.Errorf("fetch sockets of %s: timed out after %s", room, t.opts.FetchTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *SocketTransport) Members(ctx context.Context, roomID core.RoomID) ([]core.ConnectionID, error) {
	sockets, err := t.fetch(ctx, socketio.Room(roomID))
	if err != nil {
		return nil, err
	}
	return lo.Map(sockets, func(s *socketio.RemoteSocket, _ int) core.ConnectionID {
		return core.ConnectionID(s.Id())
	}), nil
}

func (t *SocketTransport) Rooms(_ context.Context, conn core.ConnectionID) ([]core.RoomID, error) {
	socket, ok := t.socket(conn)
	if !ok {
		return nil, nil
	}
	var rooms []core.RoomID
	for _, room := range socket.Rooms().Keys() {
		// Every socket sits in a private room named after its id.
		if string(room) != string(conn) {
			rooms = append(rooms, core.RoomID(room))
		}
	}
	return rooms, nil
}

func (t *SocketTransport) Send(_ context.Context, conn core.ConnectionID, msg core.Message) error {
	return t.emit(t.srv.To(socketio.Room(conn)), msg)
}

func (t *SocketTransport) SendRoom(_ context.Context, roomID core.RoomID, msg core.Message) error {
	return t.emit(t.srv.To(socketio.Room(roomID)), msg)
}

func (t *SocketTransport) SendOthers(_ context.Context, roomID core.RoomID, except core.ConnectionID, msg core.Message) error {
	return t.emit(t.srv.To(socketio.Room(roomID)).Except(socketio.Room(except)), msg)
}

func (t *SocketTransport) emit(op *socketio.BroadcastOperator, msg core.Message) error {
	if err := op.Emit(string(msg.Event), msg.Data); err != nil {
		return err
	}
	if t.opts.LegacyEvents {
		event, data := encodeLegacy(msg)
		return op.Emit(event, data)
	}
	return nil
}

var canonicalEvents = []core.EventKind{
	core.EventJoin,
	core.EventUpdateField,
	core.EventRequestSync,
	core.EventLeaveRoom,
}

// BindSocketIO feeds socket.io connections and their events into the engine.
func BindSocketIO(srv *socketio.Server, transport *SocketTransport, engine *collab.Engine) {
	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		conn := core.ConnectionID(socket.Id())
		log := logrus.WithField("connection_id", conn)

		dispatch := func(name string, event core.EventKind, datas []any) {
			ack, args := extractAck(datas)
			var data any
			if len(args) > 0 {
				data = args[0]
			}
			if translated, payload, ok := translateLegacy(name, data); ok {
				event, data = translated, payload
			}

			err := engine.Dispatch(context.Background(), conn, event, data)
			if err != nil {
				log.WithField("event", name).WithError(err).Warn("Failed to handle event")
			}
			respondWithAck(ack, err)
		}

		for _, event := range canonicalEvents {
			event := event
			//nolint:errcheck // Socket.IO event handlers do not return useful errors
			socket.On(string(event), func(datas ...any) {
				dispatch(string(event), event, datas)
			})
		}
		for name := range legacyInboundEvents {
			name := name
			//nolint:errcheck // Socket.IO event handlers do not return useful errors
			socket.On(name, func(datas ...any) {
				dispatch(name, "", datas)
			})
		}

		// Rooms are still attached while disconnecting.
		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("disconnecting", func(...any) {
			if err := engine.Disconnect(context.Background(), conn); err != nil {
				log.WithError(err).Warn("Failed to clean up connection")
			}
		})

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("disconnect", func(...any) {
			transport.untrack(conn)
			log.Info("A user disconnected")
			socket.RemoveAllListeners("")
		})

		// The CONNECT packet is already on its way, so listeners go in before the
		// engine accepts events from this connection.
		transport.track(conn, socket)
		engine.Connect(conn)
		log.Info("A user connected")
	})
}

func extractAck(datas []any) (ack ackInvoker, args []any) {
	if len(datas) == 0 {
		return nil, datas
	}

	candidate := datas[len(datas)-1]
	ack = wrapAck(candidate)
	if ack == nil {
		return nil, datas
	}

	return ack, datas[:len(datas)-1]
}

func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}

	value := reflect.ValueOf(candidate)
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil
	}

	typ := value.Type()
	return func(err error, payload map[string]any) {
		args := buildAckArgs(typ, err, payload)
		if typ.IsVariadic() {
			value.CallSlice(args)
			return
		}
		value.Call(args)
	}
}

func buildAckArgs(typ reflect.Type, err error, payload map[string]any) []reflect.Value {
	numIn := typ.NumIn()
	args := make([]reflect.Value, numIn)

	// socket.io acks take the reply as a slice of arguments first.
	if numIn > 0 && typ.In(0).Kind() == reflect.Slice {
		args[0] = coerceValue([]any{payload}, typ.In(0))
		for i := 1; i < numIn; i++ {
			args[i] = reflect.Zero(typ.In(i))
		}
		if numIn > 1 {
			args[1] = coerceValue(err, typ.In(1))
		}
		return args
	}

	for i := 0; i < numIn; i++ {
		paramType := typ.In(i)
		var argValue any

		switch {
		case numIn == 1:
			if err != nil {
				argValue = err
			} else {
				argValue = payload
			}
		case i == 0:
			argValue = err
		case i == 1:
			argValue = payload
		}

		args[i] = coerceValue(argValue, paramType)
	}

	return args
}

func coerceValue(value any, targetType reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(targetType)
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(targetType) {
		return rv
	}
	if rv.Type().ConvertibleTo(targetType) {
		return rv.Convert(targetType)
	}
	if targetType.Kind() == reflect.String {
		return reflect.ValueOf(fmt.Sprint(value)).Convert(targetType)
	}

	return reflect.Zero(targetType)
}

func respondWithAck(ack ackInvoker, ackErr error) {
	if ack == nil {
		return
	}

	payload := map[string]any{"status": "ok"}
	if ackErr != nil {
		payload["status"] = "error"
		payload["error"] = ackErr.Error()
	}
	ack(ackErr, payload)
}
