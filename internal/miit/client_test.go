package miit_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"icpquery/internal/config"
	"icpquery/internal/miit"
	"icpquery/internal/services"
)

type fakeRegistry struct {
	t           *testing.T
	authCalls   atomic.Int32
	setCookie   bool
	verifyOK    bool
	queryTotal  int
	querySeen   atomic.Value
	lastHeaders atomic.Value
}

func (f *fakeRegistry) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if f.setCookie {
			http.SetCookie(w, &http.Cookie{Name: "__jsluid_s", Value: "abc", Path: "/"})
		}
		_, _ = w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("POST /api/auth", func(w http.ResponseWriter, r *http.Request) {
		f.authCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			f.t.Errorf("parse form: %v", err)
		}
		stamp := r.PostForm.Get("timeStamp")
		sum := md5.Sum([]byte("testtest" + stamp))
		if got := r.PostForm.Get("authKey"); got != hex.EncodeToString(sum[:]) {
			f.t.Errorf("unexpected authKey %q for stamp %q", got, stamp)
		}
		writeEnvelope(w, true, "", map[string]any{"bussiness": "token-" + stamp, "expire": 300000})
	})
	mux.HandleFunc("POST /api/image/getCheckImagePoint", func(w http.ResponseWriter, r *http.Request) {
		f.lastHeaders.Store(r.Header.Clone())
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !strings.HasPrefix(body["clientUid"], "point-") {
			f.t.Errorf("unexpected client uid %q", body["clientUid"])
		}
		writeEnvelope(w, true, "", miit.Challenge{UUID: "ch-1", BigImage: "Ymln", SmallImage: "c21hbGw=", SecretKey: "0123456789abcdef", WordCount: 4})
	})
	mux.HandleFunc("POST /api/image/checkImage", func(w http.ResponseWriter, r *http.Request) {
		var body miit.VerifyRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Token != "ch-1" || body.PointJSON == "" {
			f.t.Errorf("unexpected verify body %+v", body)
		}
		if !f.verifyOK {
			writeEnvelope(w, false, "验证失败", nil)
			return
		}
		writeEnvelope(w, true, "", map[string]string{"sign": "signed"})
	})
	mux.HandleFunc("POST /api/icpAbbreviateInfo/queryByCondition/", func(w http.ResponseWriter, r *http.Request) {
		f.lastHeaders.Store(r.Header.Clone())
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.querySeen.Store(body)
		list := []miit.QueryResult{}
		if f.queryTotal > 0 {
			list = append(list, miit.QueryResult{Domain: "baidu.com", UnitName: "北京百度网讯科技有限公司", MainLicence: "京ICP证030173号"})
		}
		writeEnvelope(w, true, "", map[string]any{"total": f.queryTotal, "list": list, "pageNum": 1})
	})
	return mux
}

func writeEnvelope(w http.ResponseWriter, success bool, msg string, params any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "success": success, "msg": msg, "params": params})
}

func newTestClient(t *testing.T, fake *fakeRegistry, opts ...miit.Option) *miit.Client {
	t.Helper()
	fake.t = t
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Registry.PortalURL = server.URL + "/"
	cfg.Registry.APIBaseURL = server.URL + "/api"
	cfg.Registry.RequestsPerSecond = 0

	client, err := miit.New(&cfg, opts...)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return client
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := miit.New(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestBootstrapRequiresSessionCookie(t *testing.T) {
	client := newTestClient(t, &fakeRegistry{setCookie: false})
	err := client.Bootstrap(context.Background())
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error without cookie, got %v", err)
	}
}

func TestTokenIsReusedUntilTTL(t *testing.T) {
	fake := &fakeRegistry{setCookie: true}
	now := time.UnixMilli(1_700_000_000_000)
	client := newTestClient(t, fake, miit.WithClock(func() time.Time { return now }))

	first, err := client.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if first != "token-1700000000000" {
		t.Fatalf("unexpected token %q", first)
	}
	if _, err := client.Token(context.Background()); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if got := fake.authCalls.Load(); got != 1 {
		t.Fatalf("expected one handshake, got %d", got)
	}

	now = now.Add(time.Hour)
	second, err := client.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if second == first || fake.authCalls.Load() != 2 {
		t.Fatalf("expected refreshed token, got %q after %d calls", second, fake.authCalls.Load())
	}
}

func TestInvalidateTokenForcesHandshake(t *testing.T) {
	fake := &fakeRegistry{setCookie: true}
	client := newTestClient(t, fake)

	if _, err := client.Token(context.Background()); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	client.InvalidateToken()
	if _, err := client.Token(context.Background()); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if got := fake.authCalls.Load(); got != 2 {
		t.Fatalf("expected a second handshake after invalidation, got %d", got)
	}
}

func TestFetchAndVerifyChallenge(t *testing.T) {
	fake := &fakeRegistry{setCookie: true, verifyOK: true}
	client := newTestClient(t, fake)
	ctx := context.Background()

	uid := miit.NewClientUID()
	challenge, err := client.FetchChallenge(ctx, uid)
	if err != nil {
		t.Fatalf("FetchChallenge returned error: %v", err)
	}
	if challenge.UUID != "ch-1" || challenge.WordCount != 4 {
		t.Fatalf("unexpected challenge %+v", challenge)
	}
	headers := fake.lastHeaders.Load().(http.Header)
	if !strings.HasPrefix(headers.Get("Token"), "token-") {
		t.Fatalf("expected Token header, got %q", headers.Get("Token"))
	}
	if headers.Get("Referer") == "" || headers.Get("Origin") == "" || !strings.Contains(headers.Get("User-Agent"), "Edg/") {
		t.Fatalf("expected browser headers, got %v", headers)
	}

	cred, err := client.VerifyChallenge(ctx, miit.VerifyRequest{Token: challenge.UUID, SecretKey: challenge.SecretKey, ClientUID: uid, PointJSON: "cGF5bG9hZA=="})
	if err != nil {
		t.Fatalf("VerifyChallenge returned error: %v", err)
	}
	if cred != (miit.Credential{Identifier: "ch-1", Sign: "signed"}) {
		t.Fatalf("unexpected credential %+v", cred)
	}
}

func TestVerifyRejection(t *testing.T) {
	client := newTestClient(t, &fakeRegistry{setCookie: true, verifyOK: false})
	_, err := client.VerifyChallenge(context.Background(), miit.VerifyRequest{Token: "ch-1", PointJSON: "x"})
	if !errors.Is(err, services.ErrCaptchaRejected) {
		t.Fatalf("expected captcha rejected, got %v", err)
	}
}

func TestQuerySendsCredentialHeaders(t *testing.T) {
	fake := &fakeRegistry{setCookie: true, queryTotal: 1}
	client := newTestClient(t, fake)

	page, err := client.Query(context.Background(), miit.Credential{Identifier: "ch-1", Sign: "signed"}, "baidu.com", 0)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(page.List) != 1 || page.List[0].Domain != "baidu.com" {
		t.Fatalf("unexpected page %+v", page)
	}
	headers := fake.lastHeaders.Load().(http.Header)
	if headers.Get("Sign") != "signed" || headers.Get("Uuid") != "ch-1" {
		t.Fatalf("missing credential headers: %v", headers)
	}
	body := fake.querySeen.Load().(map[string]any)
	if body["unitName"] != "baidu.com" || body["pageNum"] != float64(1) || body["pageSize"] != float64(40) || body["serviceType"] != float64(1) {
		t.Fatalf("unexpected query body %v", body)
	}
}

func TestQueryZeroTotal(t *testing.T) {
	client := newTestClient(t, &fakeRegistry{setCookie: true})
	page, err := client.Query(context.Background(), miit.Credential{Identifier: "a", Sign: "b"}, "nothing.cn", 1)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(page.List) != 0 {
		t.Fatalf("expected empty list, got %+v", page.List)
	}
}

func TestQueryTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.SetCookie(w, &http.Cookie{Name: "__jsluid_s", Value: "x", Path: "/"})
			return
		}
		if r.URL.Path == "/api/auth" {
			writeEnvelope(w, true, "", map[string]string{"bussiness": "tok"})
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Registry.PortalURL = server.URL + "/"
	cfg.Registry.APIBaseURL = server.URL + "/api"
	client, err := miit.New(&cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.Query(context.Background(), miit.Credential{}, "baidu.com", 1)
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestNewClientUIDFormat(t *testing.T) {
	uid := miit.NewClientUID()
	rest, ok := strings.CutPrefix(uid, "point-")
	if !ok || len(rest) != 36 || rest[14] != '4' || strings.Count(rest, "-") != 4 {
		t.Fatalf("unexpected client uid %q", uid)
	}
	if !strings.ContainsRune("89ab", rune(rest[19])) {
		t.Fatalf("unexpected variant nibble in %q", uid)
	}
}
