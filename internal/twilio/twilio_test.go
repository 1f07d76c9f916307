package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

func signPayload(authToken, requestURL string, params map[string]string) string {
	data := requestURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateSignature(t *testing.T) {
	params := map[string]string{"CallSid": "CA1", "From": "+15550001111"}
	reqURL := "https://example.com/twilio/voice"
	sig := signPayload("token", reqURL, params)

	if !ValidateSignature("token", sig, reqURL, params) {
		t.Fatal("expected valid signature to verify")
	}
	if ValidateSignature("token", sig, reqURL, map[string]string{"CallSid": "CA2"}) {
		t.Fatal("expected tampered params to fail")
	}
	if ValidateSignature("other-token", sig, reqURL, params) {
		t.Fatal("expected wrong token to fail")
	}
	if ValidateSignature("token", "", reqURL, params) {
		t.Fatal("expected missing signature to fail")
	}
}

func postWebhook(t *testing.T, e *echo.Echo, path, authToken string, params map[string]string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Host = "example.com"
	if sign {
		req.Header.Set("X-Twilio-Signature", signPayload(authToken, "https://example.com"+path, params))
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	e := echo.New()
	e.POST("/twilio/voice", func(c echo.Context) error {
		return c.String(http.StatusOK, Params(c)["CallSid"])
	}, AuthMiddleware("token"))

	params := map[string]string{"CallSid": "CA9", "From": "+15550001111"}

	rec := postWebhook(t, e, "/twilio/voice", "token", params, true)
	if rec.Code != http.StatusOK || rec.Body.String() != "CA9" {
		t.Fatalf("expected signed request accepted, got %d %q", rec.Code, rec.Body.String())
	}

	rec = postWebhook(t, e, "/twilio/voice", "token", params, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected unsigned request rejected, got %d", rec.Code)
	}
}

func TestInboundResponse(t *testing.T) {
	doc, err := InboundResponse("wss://example.com/media", "https://example.com/audio/hi.mp3", "Hello.", "/twilio/wait")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, want := range []string{
		"<Start>", `url="wss://example.com/media"`,
		"<Play>https://example.com/audio/hi.mp3</Play>",
		`<Pause length="15"`, "<Redirect>/twilio/wait</Redirect>",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("twiml missing %q:\n%s", want, doc)
		}
	}
}

func TestInboundResponse_SpokenFallback(t *testing.T) {
	doc, err := InboundResponse("wss://example.com/media", "", "Hello, how can I help?", "/twilio/wait")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(doc, "<Say>Hello, how can I help?</Say>") {
		t.Fatalf("expected spoken fallback, got:\n%s", doc)
	}
	if strings.Contains(doc, "<Play>") {
		t.Fatalf("expected no Play without a greeting clip:\n%s", doc)
	}
}

func TestWaitResponse(t *testing.T) {
	doc, err := WaitResponse("/twilio/wait")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(doc, `<Pause length="15"`) || !strings.Contains(doc, "<Redirect>/twilio/wait</Redirect>") {
		t.Fatalf("unexpected wait twiml:\n%s", doc)
	}
}

type fakeCallAPI struct {
	calls   int
	failFor int
	sid     string
	twiml   string
}

func (f *fakeCallAPI) UpdateCall(sid string, params *twilioApi.UpdateCallParams) (*twilioApi.ApiV2010Call, error) {
	f.calls++
	f.sid = sid
	if params != nil && params.Twiml != nil {
		f.twiml = *params.Twiml
	}
	if f.calls <= f.failFor {
		return nil, errors.New("service unavailable")
	}
	return &twilioApi.ApiV2010Call{}, nil
}

func testBridge(t *testing.T, api CallAPI) *Bridge {
	t.Helper()
	return &Bridge{
		API:           api,
		AudioDir:      t.TempDir(),
		PublicBaseURL: "https://example.com",
		WaitPath:      "/twilio/wait",
		RetryDelay:    time.Millisecond,
	}
}

func stageClip(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reply.mp3")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("stage clip: %v", err)
	}
	return path
}

func TestBridge_PlayAndResume(t *testing.T) {
	api := &fakeCallAPI{}
	b := testBridge(t, api)

	if err := b.PlayAndResume(context.Background(), "CA1", stageClip(t, "mp3")); err != nil {
		t.Fatalf("play and resume: %v", err)
	}
	if api.calls != 1 || api.sid != "CA1" {
		t.Fatalf("expected one update for CA1, got %d for %q", api.calls, api.sid)
	}
	if !strings.Contains(api.twiml, "<Play>https://example.com/audio/") {
		t.Fatalf("expected Play with published URL:\n%s", api.twiml)
	}
	if !strings.Contains(api.twiml, "<Redirect>/twilio/wait</Redirect>") {
		t.Fatalf("expected redirect back to wait loop:\n%s", api.twiml)
	}

	entries, err := os.ReadDir(b.AudioDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected published clip in audio dir, got %v %v", entries, err)
	}
	if !strings.HasSuffix(entries[0].Name(), ".mp3") {
		t.Fatalf("expected mp3 extension, got %q", entries[0].Name())
	}
}

func TestBridge_RetriesOnce(t *testing.T) {
	api := &fakeCallAPI{failFor: 1}
	b := testBridge(t, api)

	if err := b.PlayAndResume(context.Background(), "CA1", stageClip(t, "mp3")); err != nil {
		t.Fatalf("expected recovery on retry, got %v", err)
	}
	if api.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", api.calls)
	}
}

func TestBridge_PersistentFailure(t *testing.T) {
	api := &fakeCallAPI{failFor: 10}
	b := testBridge(t, api)

	err := b.PlayAndResume(context.Background(), "CA1", stageClip(t, "mp3"))
	if !errors.Is(err, ErrCallUpdate) {
		t.Fatalf("expected ErrCallUpdate, got %v", err)
	}
	if api.calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", api.calls)
	}
}

func TestBridge_MissingClip(t *testing.T) {
	api := &fakeCallAPI{}
	b := testBridge(t, api)

	err := b.PlayAndResume(context.Background(), "CA1", filepath.Join(t.TempDir(), "missing.mp3"))
	if !errors.Is(err, ErrCallUpdate) {
		t.Fatalf("expected ErrCallUpdate for missing clip, got %v", err)
	}
	if api.calls != 0 {
		t.Fatalf("expected no API call for missing clip, got %d", api.calls)
	}
}

func TestBuildAbsoluteURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Host = "example.com"
	if got := BuildAbsoluteURL(req, "/twilio/wait"); got != "https://example.com/twilio/wait" {
		t.Fatalf("unexpected url %q", got)
	}

	req.Header.Set("X-Forwarded-Host", "edge.example.com")
	if got := BuildAbsoluteURL(req, "/twilio/wait"); got != "https://edge.example.com/twilio/wait" {
		t.Fatalf("unexpected forwarded url %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Host = "localhost:8080"
	if got := BuildAbsoluteURL(req, "/healthz"); got != "http://localhost:8080/healthz" {
		t.Fatalf("unexpected local url %q", got)
	}
}
