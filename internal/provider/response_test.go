package provider

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name       string
		httpStatus int
		body       string
		wantOK     bool
		wantID     string
	}{
		{"boolean success", 200, `{"success": true, "message_id": "wamid.1"}`, true, "wamid.1"},
		{"boolean failure", 200, `{"success": false, "message": "template rejected"}`, false, ""},
		{"string status success", 200, `{"status": "sent", "id": "abc-123"}`, true, "abc-123"},
		{"string status queued", 200, `{"status": "queued", "message_id": "q-9"}`, true, "q-9"},
		{"string status failure", 200, `{"status": "rejected", "reason": "blocked recipient"}`, false, ""},
		{"explicit error string", 200, `{"error": "invalid template"}`, false, ""},
		{"explicit error object", 200, `{"error": {"message": "rate limited", "code": 429}}`, false, ""},
		{"bare 200 no markers", 200, `{"message_id": "bare-1"}`, true, "bare-1"},
		{"bare 200 empty body", 200, ``, true, ""},
		{"bare 200 unparseable body", 200, `OK`, true, ""},
		{"nested data id", 200, `{"status": "accepted", "data": {"message_id": "nested-7"}}`, true, "nested-7"},
		{"numeric id", 200, `{"success": true, "id": 42}`, true, "42"},
		{"http 500", 500, `{"error": "upstream down"}`, false, ""},
		{"http 401", 401, ``, false, ""},
		{"unknown status string", 200, `{"status": "buffered", "message_id": "b-1"}`, true, "b-1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := Normalize(tc.httpStatus, []byte(tc.body))
			if out.OK != tc.wantOK {
				t.Errorf("OK = %v, want %v (reason: %q)", out.OK, tc.wantOK, out.Reason)
			}
			if out.MessageID != tc.wantID {
				t.Errorf("MessageID = %q, want %q", out.MessageID, tc.wantID)
			}
			if !out.OK && out.Reason == "" {
				t.Error("failure outcome must carry a reason")
			}
		})
	}
}
