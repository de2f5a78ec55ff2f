package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaoxuxiansheng/olatx"
	"github.com/xiaoxuxiansheng/olatx/store"
)

const selfBaseURL = "http://ola:8080/api"

type fakeCoordinator struct {
	mu    sync.Mutex
	calls []string
	links []string
	srv   *httptest.Server
}

func newFakeCoordinator(t *testing.T) *fakeCoordinator {
	f := &fakeCoordinator{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tx/transaction-manager", func(w http.ResponseWriter, r *http.Request) {
		f.record("start")
		w.Header().Set("Location", f.srv.URL+"/tx/1")
		w.Header().Add("Link", fmt.Sprintf(`<%s/tx/1/participant>; rel="durable-participant"`, f.srv.URL))
		w.Header().Add("Link", fmt.Sprintf(`<%s/tx/1/terminator>; rel="terminator"`, f.srv.URL))
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /tx/1/participant", func(w http.ResponseWriter, r *http.Request) {
		f.record("enlist")
		f.mu.Lock()
		f.links = append(f.links, r.Header.Get("Link"))
		f.mu.Unlock()
		w.Header().Set("Location", f.srv.URL+"/tx/1/participant/1")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("PUT /tx/1/terminator", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "TransactionCommitted") {
			f.record("commit")
		} else {
			f.record("abort")
		}
		w.WriteHeader(http.StatusOK)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCoordinator) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeCoordinator) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCoordinator) URL() string {
	return f.srv.URL + "/tx/transaction-manager"
}

func newFakePeer(t *testing.T, code int, greetings ...string) (*httptest.Server, *[]string) {
	var enlistments []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enlistments = append(enlistments, r.Header.Get(olatx.EnlistmentURIHeader))
		if code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(greetings)
	}))
	t.Cleanup(srv.Close)
	return srv, &enlistments
}

func newTestServer(t *testing.T, coordinatorURL string, peers ...olatx.Peer) *Server {
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore()
	t.Cleanup(func() {
		_ = st.Close()
	})

	participant := olatx.NewParticipant(st)
	orchestrator := olatx.NewOrchestrator("", selfBaseURL,
		olatx.NewTXClient(coordinatorURL, olatx.WithRequestTimeout(time.Second)), participant,
		olatx.WithCoordinatorURL(coordinatorURL))
	for _, peer := range peers {
		require.NoError(t, orchestrator.Register(peer))
	}
	return New(orchestrator, participant)
}

func do(s *Server, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func Test_Ola(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	w := do(s, http.MethodGet, "/api/ola", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Olá de Unknown", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func Test_Health(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	w := do(s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "I'm ok", w.Body.String())
}

func Test_Terminate(t *testing.T) {
	tests := []struct {
		name       string
		bodies     []string
		expectCode int
		expectBody string
	}{
		{
			name:       "prepare",
			bodies:     []string{"PREPARE"},
			expectCode: http.StatusOK,
			expectBody: "txstatus=PREPARE",
		},
		{
			name:       "prepareTwice",
			bodies:     []string{"PREPARE", "PREPARE"},
			expectCode: http.StatusOK,
			expectBody: "txstatus=PREPARE",
		},
		{
			name:       "restATStatusContent",
			bodies:     []string{"txstatus=TransactionPrepared", "txstatus=TransactionCommitted"},
			expectCode: http.StatusOK,
			expectBody: "txstatus=TransactionCommitted",
		},
		{
			name:       "restATPrepared",
			bodies:     []string{"txstatus=TransactionPrepared"},
			expectCode: http.StatusOK,
			expectBody: "txstatus=TransactionPrepared",
		},
		{
			name:       "commitOnePhase",
			bodies:     []string{"commit-one-phase"},
			expectCode: http.StatusOK,
			expectBody: "txstatus=COMMIT_ONE_PHASE",
		},
		{
			name:       "abortAfterPrepare",
			bodies:     []string{"PREPARE", "ABORT"},
			expectCode: http.StatusOK,
			expectBody: "txstatus=ABORT",
		},
		{
			name:       "bogus",
			bodies:     []string{"BOGUS"},
			expectCode: http.StatusBadRequest,
		},
		{
			name:       "commitAfterAbort",
			bodies:     []string{"ABORT", "COMMIT"},
			expectCode: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, "http://127.0.0.1:1")
			var w *httptest.ResponseRecorder
			for _, body := range tt.bodies {
				w = do(s, http.MethodPut, "/api/42/terminator", body)
			}
			assert.Equal(t, tt.expectCode, w.Code)
			if tt.expectBody != "" {
				assert.Equal(t, tt.expectBody, w.Body.String())
			}
		})
	}
}

func Test_Terminate_idempotent(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	first := do(s, http.MethodPut, "/api/42/terminator", "PREPARE")
	second := do(s, http.MethodPut, "/api/42/terminator", "PREPARE")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Code, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func Test_Terminate_bogus_no_side_effect(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	w := do(s, http.MethodPut, "/api/42/terminator", "BOGUS")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(s, http.MethodGet, "/api/42/terminator", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func Test_Status(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	require.Equal(t, http.StatusOK, do(s, http.MethodPut, "/api/7/terminator", "PREPARE").Code)

	w := do(s, http.MethodGet, "/api/7/terminator", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "txstatus=PREPARE", w.Body.String())
}

func Test_ParticipantInfo(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	w := do(s, http.MethodHead, "http://ola:8080/api/42/participant", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	expect := olatx.BuildLinkHeader(selfBaseURL, true, "42", nil)
	assert.Equal(t, expect.String(), w.Header().Get("Link"))
	links := olatx.ParseLinkHeader(w.Header().Get("Link"))
	assert.Equal(t, "http://ola:8080/api/42/terminator", links[olatx.RelTerminator])

	w = do(s, http.MethodHead, "http://ola:8080/api/42/participant", "", "X-Forwarded-Proto", "https")
	links = olatx.ParseLinkHeader(w.Header().Get("Link"))
	assert.Equal(t, "https://ola:8080/api/42/terminator", links[olatx.RelTerminator])
}

func Test_OlaChaining(t *testing.T) {
	coordinator := newFakeCoordinator(t)
	peerSrv, enlistments := newFakePeer(t, http.StatusOK, "Hola de hola-1")
	s := newTestServer(t, coordinator.URL(), olatx.NewHTTPPeer("hola", peerSrv.URL, olatx.WithPeerTimeout(time.Second)))

	w := do(s, http.MethodGet, "/api/ola-chaining", "")
	require.Equal(t, http.StatusOK, w.Code)

	var greetings []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &greetings))
	assert.Equal(t, []string{"Olá de Unknown", "Hola de hola-1"}, greetings)
	assert.Equal(t, []string{"start", "enlist", "commit"}, coordinator.Calls())
	assert.Equal(t, []string{coordinator.srv.URL + "/tx/1/participant"}, *enlistments)

	// 协调者按登记的 link 回调参与者
	require.Len(t, coordinator.links, 1)
	links := olatx.ParseLinkHeader(coordinator.links[0])
	terminator := links[olatx.RelTerminator]
	require.True(t, strings.HasPrefix(terminator, selfBaseURL+"/"))

	w = do(s, http.MethodPut, terminator, "txstatus=TransactionPrepared")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "txstatus=TransactionPrepared", w.Body.String())
	w = do(s, http.MethodPut, terminator, "txstatus=TransactionCommitted")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "txstatus=TransactionCommitted", w.Body.String())
}

func Test_OlaChaining_peer_failure(t *testing.T) {
	coordinator := newFakeCoordinator(t)
	peerSrv, _ := newFakePeer(t, http.StatusInternalServerError)
	s := newTestServer(t, coordinator.URL(), olatx.NewHTTPPeer("hola", peerSrv.URL, olatx.WithPeerTimeout(time.Second)))

	w := do(s, http.MethodGet, "/api/ola-chaining", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, []string{"start", "enlist", "abort"}, coordinator.Calls())
}

func Test_OlaChaining_coordinator_unreachable(t *testing.T) {
	coordinator := newFakeCoordinator(t)
	url := coordinator.URL()
	coordinator.srv.Close()

	s := newTestServer(t, url)
	w := do(s, http.MethodGet, "/api/ola-chaining", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func Test_OlaChaining_join(t *testing.T) {
	coordinator := newFakeCoordinator(t)
	peerSrv, enlistments := newFakePeer(t, http.StatusOK, "Hola de hola-1")
	s := newTestServer(t, coordinator.URL(), olatx.NewHTTPPeer("hola", peerSrv.URL, olatx.WithPeerTimeout(time.Second)))

	inbound := coordinator.srv.URL + "/tx/1/participant"
	w := do(s, http.MethodGet, "/api/ola-chaining", "", olatx.EnlistmentURIHeader, inbound)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"enlist"}, coordinator.Calls())
	assert.Equal(t, []string{inbound}, *enlistments)
}

func Test_OlaChaining_join_foreign_host(t *testing.T) {
	coordinator := newFakeCoordinator(t)
	var hits int
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusCreated)
	}))
	defer target.Close()
	peerSrv, enlistments := newFakePeer(t, http.StatusOK, "Hola de hola-1")
	s := newTestServer(t, coordinator.URL(), olatx.NewHTTPPeer("hola", peerSrv.URL, olatx.WithPeerTimeout(time.Second)))

	w := do(s, http.MethodGet, "/api/ola-chaining", "", olatx.EnlistmentURIHeader, target.URL+"/internal")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, hits)
	assert.Empty(t, coordinator.Calls())
	assert.Empty(t, *enlistments)
}

func Test_CORS(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")

	w := do(s, http.MethodOptions, "/api/ola-chaining", "",
		"Origin", "http://browser.local",
		"Access-Control-Request-Method", http.MethodGet,
	)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), olatx.EnlistmentURIHeader)

	w = do(s, http.MethodGet, "/api/ola", "", "Origin", "http://browser.local")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func Test_allowedOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		expect  string
	}{
		{name: "noOrigin", allowed: []string{"*"}, origin: "", expect: ""},
		{name: "wildcard", allowed: nil, origin: "http://a.local", expect: "*"},
		{name: "exact", allowed: []string{"http://a.local"}, origin: "http://a.local", expect: "http://a.local"},
		{name: "pattern", allowed: []string{"https://*.example.com"}, origin: "https://ui.example.com", expect: "https://ui.example.com"},
		{name: "denied", allowed: []string{"https://*.example.com"}, origin: "http://evil.local", expect: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, allowedOrigin(tt.allowed, tt.origin))
		})
	}
}

func Test_Metrics(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	do(s, http.MethodGet, "/api/ola", "")
	do(s, http.MethodPut, "/api/1/terminator", "BOGUS")

	w := do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `olatx_ola_http_requests_total{handler="/api/ola",status="200"} 1`)
	assert.Contains(t, w.Body.String(), `olatx_ola_participant_callbacks_total{outcome="rejected",status="unrecognized"} 1`)
}

func Test_httpStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect int
	}{
		{name: "unrecognized", err: fmt.Errorf("x: %w", olatx.ErrUnrecognizedStatus), expect: http.StatusBadRequest},
		{name: "malformed", err: olatx.ErrMalformedParticipantURI, expect: http.StatusBadRequest},
		{name: "untrusted", err: olatx.ErrUntrustedEnlistment, expect: http.StatusBadRequest},
		{name: "notFound", err: olatx.ErrParticipantNotFound, expect: http.StatusNotFound},
		{name: "conflict", err: olatx.ErrInvalidTransition, expect: http.StatusConflict},
		{name: "coordinator", err: olatx.ErrCoordinatorUnreachable, expect: http.StatusBadGateway},
		{name: "peer", err: olatx.ErrPeerCall, expect: http.StatusBadGateway},
		{name: "other", err: io.ErrUnexpectedEOF, expect: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, httpStatus(tt.err))
		})
	}
}
