package websocket

import (
	"codecollab-server/core"
)

// legacyInbound maps the event names of the first-generation client onto canonical
// events. field is set for per-field aliases; the value key in the payload is named
// after the field.
type legacyInbound struct {
	event core.EventKind
	field core.Field
}

var legacyInboundEvents = map[string]legacyInbound{
	"when a user joins":    {event: core.EventJoin},
	"leave room":           {event: core.EventLeaveRoom},
	"update code":          {event: core.EventUpdateField, field: core.FieldCode},
	"update input":         {event: core.EventUpdateField, field: core.FieldInput},
	"update output":        {event: core.EventUpdateField, field: core.FieldOutput},
	"update language":      {event: core.EventUpdateField, field: core.FieldLanguageUsed},
	"syncing the code":     {event: core.EventRequestSync, field: core.FieldCode},
	"syncing the input":    {event: core.EventRequestSync, field: core.FieldInput},
	"syncing the output":   {event: core.EventRequestSync, field: core.FieldOutput},
	"syncing the language": {event: core.EventRequestSync, field: core.FieldLanguageUsed},
}

var legacyFieldEvents = map[core.Field]string{
	core.FieldCode:         "on code change",
	core.FieldInput:        "on input change",
	core.FieldOutput:       "on output change",
	core.FieldLanguageUsed: "on language change",
}

// translateLegacy rewrites a legacy event and its payload into canonical form. ok is
// false for names that are not legacy aliases.
func translateLegacy(name string, data any) (core.EventKind, any, bool) {
	alias, ok := legacyInboundEvents[name]
	if !ok {
		return "", nil, false
	}
	if alias.field == "" {
		return alias.event, data, true
	}

	in, _ := data.(map[string]any)
	out := map[string]any{
		"roomId": in["roomId"],
		"field":  string(alias.field),
	}
	if alias.event == core.EventUpdateField {
		out["value"] = in[string(alias.field)]
	}
	return alias.event, out, true
}

// encodeLegacy renders an outbound message with the first-generation event name and
// payload shape.
func encodeLegacy(msg core.Message) (string, any) {
	switch data := msg.Data.(type) {
	case core.MemberList:
		return "updating client list", map[string]any{"userslist": data.Users}
	case core.FieldValue:
		return legacyFieldEvents[data.Field], map[string]any{string(data.Field): data.Value}
	case core.Presence:
		if msg.Event == core.EventMemberLeft {
			return "member left", map[string]any{"username": data.Username}
		}
		return "new member joined", map[string]any{"username": data.Username}
	}
	return string(msg.Event), msg.Data
}
