package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/v1/staff":                         "/v1/staff",
		"/v1/staff/01HZX":                   "/v1/staff/:id",
		"/v1/staff/01HZX/role":              "/v1/staff/:id/role",
		"/v1/staff/01HZX/pin/reset":         "/v1/staff/:id/pin/reset",
		"/v1/staff/01HZX/extra":             "/v1/staff/01HZX/extra",
		"/v1/staff/login":                   "/v1/staff/login",
		"/v1/staff/me":                      "/v1/staff/me",
		"/v1/staff/login/business":          "/v1/staff/login/business",
		"/v1/sessions/01HZY":                "/v1/sessions/:id",
		"/v1/sessions/terminate":            "/v1/sessions/terminate",
		"/v1/activity?limit=10":             "/v1/activity",
		"/v1/sessions/sign-out-all?force=1": "/v1/sessions/sign-out-all",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG").String() != "debug" {
		t.Fatalf("expected debug level")
	}
	if parseLevel("").String() != "info" {
		t.Fatalf("expected info default")
	}
}
