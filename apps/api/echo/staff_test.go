package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/laurinbuild/kantine/core/staff"
)

func TestAdminLogin(t *testing.T) {
	srv, _, _ := newTestServer(t)

	t.Run("Wrong token -> 401", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/admin/login", []byte(`{"token":"nope","device_name":"kiosk-1"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusUnauthorized, rec.Body.String())
		}
	})

	t.Run("Right token -> JWT", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/admin/login", []byte(`{"token":"`+testAdminToken+`","device_name":"kiosk-1"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		var resp LoginResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if resp.Token == "" {
			t.Error("empty token")
		}

		// the minted token must open the admin routes
		req, rec = newAuthRequest(http.MethodGet, "/v1/admin/status", resp.Token)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
	})
}

func TestAdminAccessLogs(t *testing.T) {
	srv, _, conf := newTestServer(t)
	token := adminToken(t, conf)

	t.Run("Auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/admin/access-logs")
		srv.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)}, rec)
	})

	t.Run("Failed and successful attempts are both recorded", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/admin/login", []byte(`{"token":"nope"}`))
		srv.ServeHTTP(rec, req)
		req, rec = newRequest(http.MethodPost, "/v1/admin/login", []byte(`{"token":"`+testAdminToken+`"}`))
		srv.ServeHTTP(rec, req)

		req, rec = newAuthRequest(http.MethodGet, "/v1/admin/access-logs", token)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		var logs []staff.AccessLog
		if err := json.Unmarshal(rec.Body.Bytes(), &logs); err != nil {
			t.Fatalf("unmarshalling response: %v", err)
		}
		if len(logs) != 2 {
			t.Fatalf("got %d logs; want 2", len(logs))
		}
		// newest first
		if !logs[0].Success || logs[1].Success {
			t.Errorf("logs = [%v %v]; want [success failure]", logs[0].Success, logs[1].Success)
		}
	})
}

func TestAdminTokenRefresh(t *testing.T) {
	srv, _, conf := newTestServer(t)
	token := adminToken(t, conf)

	req, rec := newAuthRequest(http.MethodPost, "/v1/admin/token-refresh", token)
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	if resp.Token == "" {
		t.Error("empty token")
	}
}
