package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ReplyKind tags the shape of a sanitized model reply.
type ReplyKind int

const (
	// ReplyEmpty is a valid "nothing to extract" outcome: an empty JSON
	// array or an object with zero fields.
	ReplyEmpty ReplyKind = iota
	// ReplySingle is a reply containing one schedule object.
	ReplySingle
	// ReplyMany is a reply containing an array of schedule objects.
	ReplyMany
)

// ParsedReply is the tagged result of sanitizing and parsing a model reply.
// Records is nil for ReplyEmpty, length 1 for ReplySingle, and in reply
// order for ReplyMany.
type ParsedReply struct {
	Kind    ReplyKind
	Records []ScheduleRecord
}

// ParseReply strips a Markdown code fence from a raw model reply and parses
// the remainder as schedule data. The model never promises a fence, but one
// is stripped when present (case-insensitive "json" tag optional). Only
// syntactic invalidity is an error, reported as *MalformedReplyError; empty
// arrays and zero-field objects are valid ReplyEmpty terminal states.
func ParseReply(raw string) (ParsedReply, error) {
	body := StripCodeFence(raw)
	if body == "" {
		return ParsedReply{}, &MalformedReplyError{Reply: raw, Err: errors.New("empty reply body")}
	}

	switch body[0] {
	case '[':
		var records []ScheduleRecord
		if err := json.Unmarshal([]byte(body), &records); err != nil {
			return ParsedReply{}, &MalformedReplyError{Reply: raw, Err: err}
		}
		if len(records) == 0 {
			return ParsedReply{Kind: ReplyEmpty}, nil
		}
		return ParsedReply{Kind: ReplyMany, Records: records}, nil

	case '{':
		// Decode generically first: a zero-field object is the model's
		// other way of saying "no data", and must not surface as a record.
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(body), &fields); err != nil {
			return ParsedReply{}, &MalformedReplyError{Reply: raw, Err: err}
		}
		if len(fields) == 0 {
			return ParsedReply{Kind: ReplyEmpty}, nil
		}
		var record ScheduleRecord
		if err := json.Unmarshal([]byte(body), &record); err != nil {
			return ParsedReply{}, &MalformedReplyError{Reply: raw, Err: err}
		}
		return ParsedReply{Kind: ReplySingle, Records: []ScheduleRecord{record}}, nil

	default:
		return ParsedReply{}, &MalformedReplyError{
			Reply: raw,
			Err:   fmt.Errorf("reply starts with %q, want JSON array or object", body[0]),
		}
	}
}

// StripCodeFence removes one leading and one trailing Markdown code-fence
// marker, tolerating a case-insensitive "json" language tag on the opener.
// Replies without fences pass through untouched apart from whitespace
// trimming.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = s[3:]
		if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	return strings.TrimSpace(s)
}
