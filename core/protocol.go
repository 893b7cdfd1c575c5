package core

// EventKind is the name of an inbound or outbound event on the wire.
type EventKind string

// Inbound events.
const (
	EventJoin        EventKind = "join"
	EventUpdateField EventKind = "updateField"
	EventRequestSync EventKind = "requestSync"
	EventLeaveRoom   EventKind = "leaveRoom"
)

// Outbound events.
const (
	EventMemberListUpdated EventKind = "memberListUpdated"
	EventFieldChanged      EventKind = "fieldChanged"
	EventMemberJoined      EventKind = "memberJoined"
	EventMemberLeft        EventKind = "memberLeft"
)

type (
	// Message is an outbound event addressed by the engine to one or more connections.
	Message struct {
		Event EventKind `json:"event"`
		Data  any       `json:"data"`
	}

	MemberList struct {
		Users []string `json:"userslist"`
	}

	FieldValue struct {
		Field Field  `json:"field"`
		Value string `json:"value"`
	}

	Presence struct {
		Username string `json:"username"`
	}
)

func MemberListUpdated(users []string) Message {
	if users == nil {
		users = []string{}
	}
	return Message{Event: EventMemberListUpdated, Data: MemberList{Users: users}}
}

func FieldChanged(field Field, value string) Message {
	return Message{Event: EventFieldChanged, Data: FieldValue{Field: field, Value: value}}
}

func MemberJoined(username string) Message {
	return Message{Event: EventMemberJoined, Data: Presence{Username: username}}
}

func MemberLeft(username string) Message {
	return Message{Event: EventMemberLeft, Data: Presence{Username: username}}
}
