package collectortest

import (
	"bytes"
	"net/http"
	"testing"

	"hamustro/builder"
	"hamustro/codec"
	"hamustro/models"
	"hamustro/signature"
)

func post(t *testing.T, url string, body []byte, headers map[string]string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func signedRequest(t *testing.T, v models.Version, f codec.Format, secret string) ([]byte, map[string]string) {
	t.Helper()
	msg := builder.New(v).Build(true)
	body, err := codec.Marshal(msg.Collection, f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	sig, err := signature.Sign(v, body, msg.Time, secret)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return body, map[string]string{
		"X-Hamustro-Time":      msg.Time,
		"X-Hamustro-Signature": sig,
		"Content-Type":         f.ContentType(),
	}
}

func TestTrackHandler(t *testing.T) {
	c := NewServer("s3cr3t", models.V2)
	defer c.Close()

	body, headers := signedRequest(t, models.V2, codec.FormatJSON, "s3cr3t")
	_, wrongSecret := signedRequest(t, models.V2, codec.FormatJSON, "nope")

	without := func(key string) map[string]string {
		h := make(map[string]string)
		for k, v := range headers {
			if k != key {
				h[k] = v
			}
		}
		return h
	}
	with := func(key, value string) map[string]string {
		h := without(key)
		h[key] = value
		return h
	}

	tests := []struct {
		name         string
		body         []byte
		headers      map[string]string
		expectedCode int
	}{
		{"missing time", body, without("X-Hamustro-Time"), http.StatusUnauthorized},
		{"missing signature", body, without("X-Hamustro-Signature"), http.StatusUnauthorized},
		{"wrong secret", body, with("X-Hamustro-Signature", wrongSecret["X-Hamustro-Signature"]), http.StatusUnauthorized},
		{"unsupported content type", body, with("Content-Type", "text/plain"), http.StatusUnsupportedMediaType},
		{"tampered body", append([]byte(" "), body...), headers, http.StatusUnauthorized},
		{"valid", body, headers, http.StatusOK},
		{"replayed", body, headers, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := post(t, c.URL, tt.body, tt.headers); code != tt.expectedCode {
				t.Errorf("Non-expected status code %d, it should be %d", code, tt.expectedCode)
			}
		})
	}

	if got := len(c.Received()); got != 1 {
		t.Errorf("Expected exactly one accepted collection, got %d", got)
	}
}

func TestTrackHandlerRejectsBadSession(t *testing.T) {
	c := NewServer("s3cr3t", models.V2)
	defer c.Close()

	msg := builder.New(models.V2).Build(false)
	msg.Collection.Session = "00000000000000000000000000000000"
	body, err := codec.Marshal(msg.Collection, codec.FormatProtobuf)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	sig, _ := signature.Sign(models.V2, body, msg.Time, "s3cr3t")

	code := post(t, c.URL, body, map[string]string{
		"X-Hamustro-Time":      msg.Time,
		"X-Hamustro-Signature": sig,
		"Content-Type":         codec.FormatProtobuf.ContentType(),
	})
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a forged session, got %d", code)
	}
}

func TestTrackHandlerLegacy(t *testing.T) {
	c := NewServer("s3cr3t", models.V1)
	defer c.Close()

	body, headers := signedRequest(t, models.V1, codec.FormatProtobuf, "s3cr3t")
	if code := post(t, c.URL, body, headers); code != http.StatusOK {
		t.Errorf("Expected 200 for a legacy protobuf message, got %d", code)
	}

	body, headers = signedRequest(t, models.V1, codec.FormatJSON, "s3cr3t")
	if code := post(t, c.URL, body, headers); code != http.StatusUnsupportedMediaType {
		t.Errorf("Expected 415 for legacy json, got %d", code)
	}
}

func TestTrackHandlerMethod(t *testing.T) {
	c := NewServer("s3cr3t", models.V2)
	defer c.Close()

	resp, err := http.Get(c.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", resp.StatusCode)
	}
}
