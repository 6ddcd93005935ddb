package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/laurinbuild/kantine/core/user"
)

func createTestUser(t *testing.T, srv *Server, token, first, last string) user.User {
	t.Helper()

	body := []byte(fmt.Sprintf(`{"first_name":%q,"last_name":%q,"role_id":1}`, first, last))
	req, rec := newAuthRequest(http.MethodPost, "/v1/users", token, body)
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("creating user: code = %v; body %s", rec.Code, rec.Body.String())
	}

	var usr user.User
	if err := json.Unmarshal(rec.Body.Bytes(), &usr); err != nil {
		t.Fatalf("unmarshalling user: %v", err)
	}
	return usr
}

func TestUserCreate(t *testing.T) {
	srv, _, conf := newTestServer(t)
	token := adminToken(t, conf)

	tests := []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: "/v1/users",
			body: []byte(`{"first_name":"Mia","last_name":"Keller","role_id":1}`), wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errMissingToken),
		},
		{
			name: "Missing fields -> 400", method: http.MethodPost, path: "/v1/users",
			body: []byte(`{"first_name":"Mia"}`), token: token, wantCode: http.StatusBadRequest,
		},
		{
			name: "Unknown role -> 404", method: http.MethodPost, path: "/v1/users",
			body: []byte(`{"first_name":"Mia","last_name":"Keller","role_id":99}`), token: token, wantCode: http.StatusNotFound,
		},
		{
			name: "OK", method: http.MethodPost, path: "/v1/users",
			body: []byte(`{"first_name":"Mia","last_name":"Keller","role_id":1}`), token: token, wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			srv.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestUserQuery(t *testing.T) {
	srv, _, conf := newTestServer(t)
	token := adminToken(t, conf)

	createTestUser(t, srv, token, "Mia", "Keller")
	createTestUser(t, srv, token, "Ben", "Arnold")

	req, rec := newRequest(http.MethodGet, "/v1/users")
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
	}

	var users []user.User
	if err := json.Unmarshal(rec.Body.Bytes(), &users); err != nil {
		t.Fatalf("unmarshalling users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users; want 2", len(users))
	}
	// sorted by last name
	if users[0].LastName != "Arnold" || users[1].LastName != "Keller" {
		t.Errorf("order = [%s %s]; want [Arnold Keller]", users[0].LastName, users[1].LastName)
	}

	t.Run("Search", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/users?search=mia")
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var found []user.User
		if err := json.Unmarshal(rec.Body.Bytes(), &found); err != nil {
			t.Fatalf("unmarshalling users: %v", err)
		}
		if len(found) != 1 || found[0].FirstName != "Mia" {
			t.Errorf("found = %+v; want just Mia", found)
		}
	})
}

func TestUserPINFlow(t *testing.T) {
	srv, _, conf := newTestServer(t)
	token := adminToken(t, conf)
	usr := createTestUser(t, srv, token, "Mia", "Keller")
	base := fmt.Sprintf("/v1/users/%d", usr.ID)

	t.Run("No PIN yet", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, base+"/pin")
		srv.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"has_pin":false}`)}, rec)
	})

	t.Run("Bad PIN format -> 400", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, base+"/pin", []byte(`{"pin":"abc"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("Set and verify", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, base+"/pin", []byte(`{"pin":"4711"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("setting PIN: code = %v; body %s", rec.Code, rec.Body.String())
		}

		req, rec = newRequest(http.MethodGet, base+"/pin")
		srv.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"has_pin":true}`)}, rec)

		req, rec = newRequest(http.MethodPost, base+"/verify-pin", []byte(`{"pin":"4711"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("verifying PIN: code = %v; body %s", rec.Code, rec.Body.String())
		}

		req, rec = newRequest(http.MethodPost, base+"/verify-pin", []byte(`{"pin":"9999"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("wrong PIN: code = %v; want %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("Changing a set PIN requires staff", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, base+"/pin", []byte(`{"pin":"1234"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Errorf("code = %v; want %v; body %s", rec.Code, http.StatusConflict, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodPost, base+"/reset-pin", token, []byte(`{"pin":"1234"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("resetting PIN: code = %v; body %s", rec.Code, rec.Body.String())
		}

		req, rec = newRequest(http.MethodPost, base+"/verify-pin", []byte(`{"pin":"1234"}`))
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("verifying new PIN: code = %v; body %s", rec.Code, rec.Body.String())
		}
	})
}

func TestRoleCreateAndDelete(t *testing.T) {
	srv, _, conf := newTestServer(t)
	token := adminToken(t, conf)

	req, rec := newAuthRequest(http.MethodPost, "/v1/users/roles", token, []byte(`{"name":"Lehrer"}`))
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("creating role: code = %v; body %s", rec.Code, rec.Body.String())
	}

	var role user.Role
	if err := json.Unmarshal(rec.Body.Bytes(), &role); err != nil {
		t.Fatalf("unmarshalling role: %v", err)
	}

	t.Run("Role in use cannot be deleted", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"first_name":"Jan","last_name":"Roth","role_id":%d}`, role.ID))
		req, rec := newAuthRequest(http.MethodPost, "/v1/users", token, body)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("creating user: code = %v; body %s", rec.Code, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodDelete, fmt.Sprintf("/v1/users/roles/%d", role.ID), token)
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Errorf("code = %v; want %v; body %s", rec.Code, http.StatusConflict, rec.Body.String())
		}
	})
}
