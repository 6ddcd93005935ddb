package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/staff"
	"github.com/laurinbuild/kantine/core/theme"
	"github.com/laurinbuild/kantine/core/user"
	emailsvc "github.com/laurinbuild/kantine/services/email"
	dummydb "github.com/laurinbuild/kantine/storage/database/dummy"
)

const testAdminToken = "test-admin-secret"

var (
	validatorsOnce sync.Once

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

type testLogger struct{}

func (testLogger) Debug(msg string, args ...interface{}) {}
func (testLogger) Info(msg string, args ...interface{})  {}
func (testLogger) Warn(msg string, args ...interface{})  {}
func (testLogger) Error(msg string, args ...interface{}) {}
func (testLogger) Fatal(msg string, args ...interface{}) {}

func newTestConfig() *core.Config {
	return &core.Config{
		AppName:        "Kantine",
		Env:            "TEST",
		TestMode:       true,
		SecretKey:      []byte("secret"),
		AdminSecretKey: testAdminToken,
		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Cashbook: core.CashbookConfig{
			AutoCompany:    "Kaffeemaschine",
			SummaryCompany: "Kantine",
		},
	}
}

// newTestServer wires the API against the in-memory database. Services not
// under test stay nil; their routes are registered but never hit.
func newTestServer(t *testing.T) (*Server, *dummydb.DB, *core.Config) {
	t.Helper()

	conf := newTestConfig()

	validatorsOnce.Do(func() {
		translator, _ := ut.New(en.New()).GetTranslator("en")
		core.InitValidators(validator.New(), translator)
	})

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}

	logger := testLogger{}
	bus := theme.NewLocalBus()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	deps := ServerDeps{
		Conf:     conf,
		Logger:   logger,
		UserSvc:  user.NewService(dummydb.NewUserRepository(db), dummydb.NewPINArchive(db), mailSvc, conf),
		StaffSvc: staff.NewService(dummydb.NewStaffRepository(db), conf, logger),
		ThemeSvc: theme.NewService(dummydb.NewSettingsRepository(db), bus),
		Bus:      bus,
	}
	return NewServer(deps), db, conf
}

func adminToken(t *testing.T, conf *core.Config) string {
	t.Helper()
	claims := GetAdminClaims(conf, "test-device")
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}
	return token
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("json.Marshal() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
