package provider

import (
    "encoding/json"
    "fmt"
    "strings"

    "github.com/bulkwave/campaign-engine/internal/metrics"
)

// Outcome is the canonical result of one send attempt.
type Outcome struct {
    OK        bool
    MessageID string
    Reason    string
}

func Success(messageID string) Outcome {
    return Outcome{OK: true, MessageID: messageID}
}

func Failure(reason string) Outcome {
    return Outcome{OK: false, Reason: reason}
}

// Normalize maps the provider's inconsistent response shapes onto one
// Outcome. The success signal may be a boolean flag, a string status,
// or simply absent on a 200. Rules, applied in order:
//
//  1. non-2xx HTTP status               -> failure
//  2. explicit "error" field (string or {message}) -> failure
//  3. "success": false                  -> failure
//  4. "status" in failure vocabulary    -> failure
//  5. "success": true, or "status" in success vocabulary -> success
//  6. bare 2xx with no marker either way -> success (lenient; counted
//     in provider_ambiguous_responses_total so drift is observable)
//
// The message id is read from "message_id" then "id", at the top level
// or under "data".
func Normalize(httpStatus int, body []byte) Outcome {
    if httpStatus < 200 || httpStatus > 299 {
        reason := fmt.Sprintf("provider returned %d", httpStatus)
        if msg := errorMessage(body); msg != "" {
            reason = fmt.Sprintf("provider returned %d: %s", httpStatus, msg)
        }
        return Failure(reason)
    }

    var m map[string]any
    if len(body) > 0 {
        if err := json.Unmarshal(body, &m); err != nil {
            // 2xx with an unparseable body: no error marker, rule 6.
            metrics.AmbiguousResponsesTotal.Inc()
            return Success("")
        }
    }

    if msg := errorMessage(body); msg != "" {
        return Failure(msg)
    }

    if v, ok := m["success"]; ok {
        if b, ok := v.(bool); ok {
            if !b {
                return Failure(statusReason(m, "provider reported success=false"))
            }
            return Success(extractMessageID(m))
        }
    }

    if status, ok := m["status"].(string); ok {
        switch strings.ToLower(status) {
        case "failed", "failure", "error", "rejected":
            return Failure(statusReason(m, "provider reported status="+status))
        case "sent", "ok", "success", "queued", "accepted", "submitted":
            return Success(extractMessageID(m))
        }
        // Unrecognized status string on a 2xx: no explicit error, rule 6.
    }

    metrics.AmbiguousResponsesTotal.Inc()
    return Success(extractMessageID(m))
}

func errorMessage(body []byte) string {
    var m map[string]any
    if err := json.Unmarshal(body, &m); err != nil {
        return ""
    }
    switch v := m["error"].(type) {
    case string:
        return v
    case map[string]any:
        if msg, ok := v["message"].(string); ok {
            return msg
        }
        return "provider reported an error"
    }
    return ""
}

func statusReason(m map[string]any, fallback string) string {
    if msg, ok := m["message"].(string); ok && msg != "" {
        return msg
    }
    if msg, ok := m["reason"].(string); ok && msg != "" {
        return msg
    }
    return fallback
}

func extractMessageID(m map[string]any) string {
    if id := stringField(m, "message_id"); id != "" {
        return id
    }
    if id := stringField(m, "id"); id != "" {
        return id
    }
    if data, ok := m["data"].(map[string]any); ok {
        if id := stringField(data, "message_id"); id != "" {
            return id
        }
        return stringField(data, "id")
    }
    return ""
}

func stringField(m map[string]any, key string) string {
    switch v := m[key].(type) {
    case string:
        return v
    case float64:
        // Some shapes return numeric ids.
        return fmt.Sprintf("%.0f", v)
    }
    return ""
}
