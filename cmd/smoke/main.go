// Command smoke drives one staff lifecycle against a running API: health over
// gRPC, then create, sign in, sign out and delete over HTTP.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"mise.app/internal/auth"
	"mise.app/internal/ids"
	"mise.app/internal/obs"
)

type client struct {
	base   string
	bearer string
	http   *http.Client
}

func (c *client) call(ctx context.Context, method, path string, body any, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearer)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()
	log := obs.NewLogger(os.Getenv("LOG_LEVEL"))
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	grpcAddr := getenv("MISE_GRPC_ADDR", "localhost:9090")
	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal("dial grpc", zap.String("addr", grpcAddr), zap.Error(err))
	}
	defer conn.Close()
	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		log.Fatal("health check", zap.Error(err))
	}
	if health.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		log.Fatal("service not serving", zap.String("status", health.GetStatus().String()))
	}

	verifier, err := auth.NewTokenVerifier(os.Getenv("AUTH_JWT_SECRET"), getenv("AUTH_JWT_ISSUER", "mise-auth"))
	if err != nil {
		log.Fatal("token verifier", zap.Error(err))
	}
	ownerID := getenv("SMOKE_OWNER_ID", "dev-owner")
	token, err := verifier.Sign(ownerID, 10*time.Minute)
	if err != nil {
		log.Fatal("sign owner token", zap.Error(err))
	}
	jar, _ := cookiejar.New(nil)
	c := &client{
		base:   getenv("MISE_API_URL", "http://localhost:8080"),
		bearer: token,
		http:   &http.Client{Jar: jar, Timeout: 5 * time.Second},
	}
	adminPIN := getenv("SMOKE_ADMIN_PIN", "246810")

	must := func(step string, want int, got int, err error) {
		if err != nil {
			log.Fatal(step, zap.Error(err))
		}
		if got != want {
			log.Fatal(step, zap.Int("status", got), zap.Int("want", want))
		}
		log.Info(step, zap.Int("status", got))
	}

	var status struct {
		HasAdminPin bool `json:"has_admin_pin"`
	}
	code, err := c.call(ctx, http.MethodGet, "/v1/admin-pin", nil, &status)
	must("admin pin status", http.StatusOK, code, err)
	if !status.HasAdminPin {
		code, err = c.call(ctx, http.MethodPut, "/v1/admin-pin", map[string]string{"new_pin": adminPIN}, nil)
		must("set admin pin", http.StatusOK, code, err)
	}

	var created struct {
		Staff struct {
			ID string `json:"id"`
		} `json:"staff"`
	}
	code, err = c.call(ctx, http.MethodPost, "/v1/staff", map[string]any{
		"first_name": "Smoke",
		"last_name":  "Test",
		"email":      "smoke-" + ids.New() + "@mise.local",
		"role":       "waiter",
		"pin":        "4826",
	}, &created)
	must("create staff", http.StatusCreated, code, err)
	staffPath := "/v1/staff/" + created.Staff.ID

	code, err = c.call(ctx, http.MethodPost, staffPath+"/signin", map[string]string{"pin": "4826"}, nil)
	must("sign in", http.StatusOK, code, err)
	code, err = c.call(ctx, http.MethodGet, "/v1/staff/me", nil, nil)
	must("staff me", http.StatusOK, code, err)

	var bulk struct {
		Terminated int `json:"terminated"`
	}
	code, err = c.call(ctx, http.MethodPost, "/v1/sessions/sign-out-all", nil, &bulk)
	must("sign out all", http.StatusOK, code, err)
	if bulk.Terminated < 1 {
		log.Fatal("sign out all ended no sessions")
	}

	code, err = c.call(ctx, http.MethodPost, "/v1/admin-pin/verify", map[string]string{"pin": adminPIN}, nil)
	must("verify admin pin", http.StatusOK, code, err)
	code, err = c.call(ctx, http.MethodDelete, staffPath, nil, nil)
	must("delete staff", http.StatusOK, code, err)

	log.Info("smoke test passed", zap.String("staff_id", created.Staff.ID))
}
