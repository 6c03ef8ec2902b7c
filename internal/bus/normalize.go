// Package bus consumes from the Kafka-family message bus, normalizes
// heterogeneous payloads, and drives the batch buffer/flusher (spec §4.1,
// §4.2), grounded on kafka_consumer.py and internal/audit.Writer's
// buffer/flush shape.
package bus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudsentinel/riskguard/internal/domain"
)

// ErrMalformedMessage is returned for any payload normalization must drop:
// null, empty, non-object, or invalid JSON (spec §7 MalformedMessage).
var ErrMalformedMessage = fmt.Errorf("bus: malformed message")

// NormalizeEvent decodes raw bytes into a canonical AuditEvent, merging
// top-level fields with a nested "raw" object by the precedence table in
// spec §4.1. normalize(normalize(x)) is stable: a payload that is already
// canonical round-trips unchanged because every precedence chain prefers
// the top-level field first.
func NormalizeEvent(raw []byte) (domain.AuditEvent, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return domain.AuditEvent{}, err
	}

	rawField, _ := obj["raw"].(map[string]any)

	orgIDStr, _ := firstString(obj, "organization_id")
	orgID, err := uuid.Parse(orgIDStr)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("%w: invalid or missing organization_id", ErrMalformedMessage)
	}

	eventTime := resolveEventTime(obj, rawField)

	e := domain.AuditEvent{
		EventID:        resolveEventID(obj, rawField),
		OrganizationID: orgID,
		EventTime:      eventTime,
		ActorIdentity:  resolveActorIdentity(obj, rawField),
		ActorIPAddress: resolveActorIP(obj, rawField),
		ActionName:     resolveActionName(obj, rawField),
		TargetResource: resolveTargetResource(obj, rawField),
		EventStatus:    resolveEventStatus(obj, rawField),
		RawLog:         obj,
	}
	return e, nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrMalformedMessage, err)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: null payload", ErrMalformedMessage)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: payload is not a json object", ErrMalformedMessage)
	}
	return obj, nil
}

func firstString(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func nested(obj map[string]any, path ...string) (any, bool) {
	cur := any(obj)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[key]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func nestedString(obj map[string]any, path ...string) (string, bool) {
	v, ok := nested(obj, path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func resolveEventTime(obj, rawField map[string]any) time.Time {
	if s, ok := firstString(obj, "event_time"); ok {
		if t, ok := parseTimestamp(s); ok {
			return t
		}
	}
	if rawField != nil {
		for _, key := range []string{"event_time", "eventTime"} {
			if s, ok := firstString(rawField, key); ok {
				if t, ok := parseTimestamp(s); ok {
					return t
				}
			}
		}
	}
	return time.Time{}
}

func parseTimestamp(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(int64(secs), 0).UTC(), true
	}
	return time.Time{}, false
}

// resolveEventID follows the event_id -> raw.event_id -> raw.eventID ->
// generated-UUID precedence chain (spec §4.1). Unlike the other resolvers,
// a miss never returns empty: a freshly normalized event always gets a
// stable identifier distinct from the storage layer's auto-increment id.
func resolveEventID(obj, rawField map[string]any) string {
	if s, ok := firstString(obj, "event_id"); ok {
		return s
	}
	if rawField != nil {
		if s, ok := firstString(rawField, "event_id", "eventID"); ok {
			return s
		}
	}
	return uuid.NewString()
}

func resolveActorIdentity(obj, rawField map[string]any) string {
	if s, ok := firstString(obj, "actor_identity"); ok {
		return s
	}
	if s, ok := nestedString(rawField, "userIdentity", "userName"); ok {
		return s
	}
	if s, ok := nestedString(rawField, "userIdentity", "arn"); ok {
		return s
	}
	if s, ok := firstString(rawField, "AccessKeyId"); ok {
		return s
	}
	return ""
}

func resolveActorIP(obj, rawField map[string]any) string {
	if s, ok := firstString(obj, "actor_ip_address"); ok {
		return s
	}
	if s, ok := firstString(rawField, "sourceIPAddress"); ok {
		return s
	}
	if s, ok := firstString(obj, "ip"); ok {
		return s
	}
	return ""
}

func resolveActionName(obj, rawField map[string]any) string {
	if s, ok := firstString(obj, "action_name"); ok {
		return s
	}
	if s, ok := firstString(rawField, "eventName"); ok {
		return s
	}
	return ""
}

func resolveTargetResource(obj, rawField map[string]any) string {
	if s, ok := firstString(obj, "target_resource"); ok {
		return s
	}

	bucket, hasBucket := firstString(rawField, "bucket", "bucketName")
	key, hasKey := firstString(rawField, "key")
	if hasBucket && hasKey {
		return fmt.Sprintf("s3://%s/%s", bucket, key)
	}
	if hasBucket {
		return fmt.Sprintf("s3://%s", bucket)
	}
	if s, ok := firstString(rawField, "instanceId"); ok {
		return s
	}
	if s, ok := firstString(rawField, "imageId"); ok {
		return s
	}
	if s, ok := firstString(rawField, "eventSource"); ok {
		return s
	}
	if s, ok := firstString(rawField, "resource"); ok {
		return s
	}
	if s, ok := firstString(rawField, "groupId"); ok {
		return s
	}
	return ""
}

func resolveEventStatus(obj, rawField map[string]any) domain.EventStatus {
	if s, ok := firstString(obj, "event_status"); ok {
		return domain.EventStatus(strings.ToUpper(s))
	}

	if _, hasErrCode := firstString(rawField, "errorCode"); hasErrCode {
		return domain.StatusFailure
	}
	if _, hasErrMsg := firstString(rawField, "errorMessage"); hasErrMsg {
		return domain.StatusFailure
	}
	if v, ok := rawField["responseElements"]; ok && v == nil {
		return domain.StatusFailure
	}
	return domain.StatusSuccess
}

// IdentityPayload is the decoded shape of an identities-topic message
// (spec §6).
type IdentityPayload struct {
	OrganizationID uuid.UUID
	IdentityARN    string
	Name           string
	Type           domain.IdentityType
	MFAEnabled     bool
	CreatedAt      *time.Time
}

// NormalizeIdentity decodes and validates an identity-topic message.
// Missing or invalid organization_id/identity_arn cause the message to be
// dropped (spec §4.1).
func NormalizeIdentity(raw []byte) (IdentityPayload, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return IdentityPayload{}, err
	}

	orgIDStr, _ := firstString(obj, "organization_id")
	orgID, err := uuid.Parse(orgIDStr)
	if err != nil {
		return IdentityPayload{}, fmt.Errorf("%w: invalid or missing organization_id", ErrMalformedMessage)
	}

	arn, ok := firstString(obj, "identity_arn")
	if !ok {
		return IdentityPayload{}, fmt.Errorf("%w: missing identity_arn", ErrMalformedMessage)
	}

	p := IdentityPayload{OrganizationID: orgID, IdentityARN: arn}
	p.Name, _ = firstString(obj, "identity_name")
	if p.Name == "" {
		p.Name = arn
	}

	if s, ok := firstString(obj, "identity_type"); ok {
		switch domain.IdentityType(s) {
		case domain.IdentityIAMUser, domain.IdentityIAMRole, domain.IdentityRoot:
			p.Type = domain.IdentityType(s)
		default:
			p.Type = domain.IdentityIAMUser
		}
	} else {
		p.Type = domain.IdentityIAMUser
	}

	if v, ok := obj["is_mfa_enabled"].(bool); ok {
		p.MFAEnabled = v
	}

	if s, ok := firstString(obj, "created_at"); ok {
		if t, ok := parseTimestamp(s); ok {
			p.CreatedAt = &t
		}
	}

	return p, nil
}
