package collab

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"codecollab-server/core"
)

var (
	// ErrUnknownConnection is returned for events from a connection that never
	// connected or has already disconnected.
	ErrUnknownConnection = errors.New("unknown connection")
	ErrInvalidField      = errors.New("invalid field")
	// ErrNotMember is returned for edits and sync requests aimed at a room the
	// connection has not joined.
	ErrNotMember = errors.New("not a member of the room")
)

// State is the lifecycle position of a connection.
type State int

const (
	StateGone State = iota
	StateConnected
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	}
	return "gone"
}

// RoomSummary describes an active room for listings.
type RoomSummary struct {
	ID          core.RoomID `json:"id"`
	Users       int         `json:"users"`
	LastActive  int64       `json:"lastActive,omitempty"`
	HasDocument bool        `json:"hasDocument"`
}

// Engine coordinates the connection registry, the room store and the transport.
// Every operation runs to completion under one lock, so no two handlers interleave
// mid-mutation.
type Engine struct {
	mu        sync.Mutex
	transport Transport
	artifacts core.ArtifactStore
	registry  *Registry
	rooms     *RoomStore
	members   *MembershipView
	sessions  map[core.ConnectionID]map[core.RoomID]struct{}
	handlers  map[core.EventKind]handlerFunc
}

// NewEngine builds an engine over a transport. artifacts may be nil, in which case
// code and input edits are not mirrored for execution.
func NewEngine(transport Transport, artifacts core.ArtifactStore) *Engine {
	registry := NewRegistry()
	e := &Engine{
		transport: transport,
		artifacts: artifacts,
		registry:  registry,
		rooms:     NewRoomStore(),
		members:   NewMembershipView(transport, registry),
		sessions:  make(map[core.ConnectionID]map[core.RoomID]struct{}),
	}
	e.handlers = e.handlerTable()
	return e
}

// Connect records a new transport connection.
func (e *Engine) Connect(conn core.ConnectionID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[conn]; !ok {
		e.sessions[conn] = make(map[core.RoomID]struct{})
	}
	logrus.WithField("connection_id", conn).Debug("connection opened")
}

func (e *Engine) State(conn core.ConnectionID) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	rooms, ok := e.sessions[conn]
	switch {
	case !ok:
		return StateGone
	case len(rooms) > 0:
		return StateJoined
	}
	return StateConnected
}

// Join registers the display name, adds the connection to the room, sends the full
// member list to the whole room, catches the joiner up on the current document and
// announces the arrival to everyone else.
func (e *Engine) Join(ctx context.Context, conn core.ConnectionID, roomID core.RoomID, displayName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, ok := e.sessions[conn]
	if !ok {
		return ErrUnknownConnection
	}

	log := logrus.WithFields(logrus.Fields{
		"connection_id": conn,
		"room_id":       roomID,
		"display_name":  displayName,
	})

	if err := e.transport.Join(ctx, conn, roomID); err != nil {
		log.WithError(err).Error("Failed to join room")
		return nil
	}
	e.registry.Register(conn, displayName)
	session[roomID] = struct{}{}

	if users, err := e.members.ListMembers(ctx, roomID); err != nil {
		log.WithError(err).Warn("Failed to list room members")
	} else {
		e.sendRoom(ctx, roomID, core.MemberListUpdated(users))
		log.WithField("members", users).Info("Connection joined room")
	}

	if doc, ok := e.rooms.GetDocument(roomID); ok {
		e.rooms.Touch(roomID)
		for _, field := range core.CatchUpOrder {
			if value, ok := doc.Get(field); ok {
				e.send(ctx, conn, core.FieldChanged(field, value))
			}
		}
	}

	if err := e.transport.SendOthers(ctx, roomID, conn, core.MemberJoined(displayName)); err != nil {
		log.WithError(err).Warn("Failed to announce new member")
	}
	return nil
}

// Leave takes the connection out of a room. It is a no-op for a room the connection
// is not in.
func (e *Engine) Leave(ctx context.Context, conn core.ConnectionID, roomID core.RoomID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[conn]; !ok {
		return nil
	}

	conns, err := e.transport.Members(ctx, roomID)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Warn("Failed to list room members")
		return nil
	}
	if !lo.Contains(conns, conn) {
		logrus.WithFields(logrus.Fields{
			"connection_id": conn,
			"room_id":       roomID,
		}).Debug("Ignoring leave for a room the connection is not in")
		return nil
	}

	name, named := e.registry.Lookup(conn)
	e.leaveRoom(ctx, conn, roomID, name, named)
	return nil
}

// Disconnect runs the leave sequence for every room of the connection that holds a
// document, then forgets the connection.
func (e *Engine) Disconnect(ctx context.Context, conn core.ConnectionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[conn]; !ok {
		return nil
	}

	log := logrus.WithField("connection_id", conn)
	name, named := e.registry.Lookup(conn)

	rooms, err := e.transport.Rooms(ctx, conn)
	if err != nil {
		log.WithError(err).Warn("Failed to list rooms of disconnecting connection")
	}
	for _, roomID := range rooms {
		if !e.rooms.HasDocument(roomID) {
			continue
		}
		e.leaveRoom(ctx, conn, roomID, name, named)
	}

	e.registry.Remove(conn)
	delete(e.sessions, conn)
	log.WithFields(logrus.Fields{
		"rooms":       len(rooms),
		"connections": e.registry.Len(),
	}).Debug("connection closed")
	return nil
}

func (e *Engine) leaveRoom(ctx context.Context, conn core.ConnectionID, roomID core.RoomID, name string, named bool) {
	log := logrus.WithFields(logrus.Fields{
		"connection_id": conn,
		"room_id":       roomID,
		"display_name":  name,
	})

	if err := e.transport.Leave(ctx, conn, roomID); err != nil {
		log.WithError(err).Warn("Failed to leave room")
	}
	if session, ok := e.sessions[conn]; ok {
		delete(session, roomID)
	}

	if named {
		e.sendRoom(ctx, roomID, core.MemberLeft(name))
	}
	e.registry.Remove(conn)

	users, err := e.members.ListMembers(ctx, roomID)
	if err != nil {
		log.WithError(err).Warn("Failed to list room members")
		return
	}
	e.sendRoom(ctx, roomID, core.MemberListUpdated(users))
	log.WithField("members", users).Info("Connection left room")

	if e.rooms.DropIfEmpty(roomID, len(users)) {
		log.Info("Room is empty, document discarded")
	}
}

// UpdateField applies a last-write-wins edit, mirrors code and input for execution
// and forwards the new value to every other member of the room.
func (e *Engine) UpdateField(ctx context.Context, conn core.ConnectionID, roomID core.RoomID, field core.Field, value string) error {
	if !field.Valid() {
		return ErrInvalidField
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[conn]; !ok {
		return ErrUnknownConnection
	}

	log := logrus.WithFields(logrus.Fields{
		"connection_id": conn,
		"room_id":       roomID,
		"field":         field,
	})

	if err := e.requireMember(ctx, conn, roomID); err != nil {
		log.WithError(err).Warn("Ignoring edit from outside the room")
		return err
	}

	if e.rooms.SetField(roomID, field, value) {
		log.Debug("Document created")
	}

	if kind, ok := field.Artifact(); ok && e.artifacts != nil {
		if err := e.artifacts.Write(ctx, roomID, kind, value); err != nil {
			log.WithError(err).Error("Failed to mirror artifact")
		}
	}

	if err := e.transport.SendOthers(ctx, roomID, conn, core.FieldChanged(field, value)); err != nil {
		log.WithError(err).Warn("Failed to broadcast edit")
	}
	log.WithField("data_length", len(value)).Debug("Field updated")
	return nil
}

// RequestSync sends the current value of one field to the requester only.
func (e *Engine) RequestSync(ctx context.Context, conn core.ConnectionID, roomID core.RoomID, field core.Field) error {
	if !field.Valid() {
		return ErrInvalidField
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[conn]; !ok {
		return ErrUnknownConnection
	}

	if err := e.requireMember(ctx, conn, roomID); err != nil {
		logrus.WithFields(logrus.Fields{
			"connection_id": conn,
			"room_id":       roomID,
		}).WithError(err).Warn("Ignoring sync request from outside the room")
		return err
	}

	doc, ok := e.rooms.GetDocument(roomID)
	if !ok {
		return nil
	}
	if value, ok := doc.Get(field); ok {
		e.send(ctx, conn, core.FieldChanged(field, value))
	}
	return nil
}

// requireMember checks the transport membership of conn in roomID. A failed lookup
// lets the event through so a flaky transport does not drop edits.
func (e *Engine) requireMember(ctx context.Context, conn core.ConnectionID, roomID core.RoomID) error {
	conns, err := e.transport.Members(ctx, roomID)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Warn("Failed to list room members")
		return nil
	}
	if !lo.Contains(conns, conn) {
		return ErrNotMember
	}
	return nil
}

// Document returns a copy of a room's shared document.
func (e *Engine) Document(roomID core.RoomID) (core.Document, bool) {
	return e.rooms.GetDocument(roomID)
}

// Rooms summarizes every room with recorded activity.
func (e *Engine) Rooms(ctx context.Context) []RoomSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	activity := e.rooms.Activity()
	summaries := make([]RoomSummary, 0, len(activity))
	for _, room := range activity {
		summary := RoomSummary{
			ID:          room.ID,
			LastActive:  room.LastActive,
			HasDocument: e.rooms.HasDocument(room.ID),
		}
		if conns, err := e.transport.Members(ctx, room.ID); err == nil {
			summary.Users = len(conns)
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

func (e *Engine) send(ctx context.Context, conn core.ConnectionID, msg core.Message) {
	if err := e.transport.Send(ctx, conn, msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"connection_id": conn,
			"event":         msg.Event,
		}).WithError(err).Warn("Failed to send message")
	}
}

func (e *Engine) sendRoom(ctx context.Context, roomID core.RoomID, msg core.Message) {
	if err := e.transport.SendRoom(ctx, roomID, msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"event":   msg.Event,
		}).WithError(err).Warn("Failed to broadcast message")
	}
}
